package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"electra/internal/models"
)

// ErrStationNotFound represents missing station rows.
var ErrStationNotFound = errors.New("station not found")

// StationRepository handles persistence of charging stations.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository instance.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// StationFilter narrows List results.
type StationFilter struct {
	Status string
	City   string
	Skip   int
	Limit  int
}

// Create inserts a new station.
func (r *StationRepository) Create(ctx context.Context, station *models.Station) error {
	location, err := marshalJSONB(station.Location)
	if err != nil {
		return err
	}
	plugs, err := marshalJSONB(station.Plugs)
	if err != nil {
		return err
	}
	amenities, err := marshalJSONB(station.Amenities)
	if err != nil {
		return err
	}
	hours, err := marshalJSONB(station.WorkingHours)
	if err != nil {
		return err
	}
	photos, err := marshalJSONB(station.Photos)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO stations (name, description, location, capacity, available_ports, company_name,
			owner_id, plugs, amenities, rating, total_reviews, status, working_hours, photos,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		station.Name,
		station.Description,
		location,
		station.Capacity,
		station.AvailablePorts,
		station.CompanyName,
		station.OwnerID,
		plugs,
		amenities,
		station.Rating,
		station.TotalReviews,
		station.Status,
		hours,
		photos,
	).Scan(&station.ID, &station.Version, &station.CreatedAt, &station.UpdatedAt)
}

const stationColumns = `
	id, name, description, location, capacity, available_ports, company_name,
	owner_id, plugs, amenities, rating, total_reviews, status, working_hours, photos,
	version, created_at, updated_at
`

func scanStation(row interface{ Scan(...interface{}) error }) (*models.Station, error) {
	var (
		s         models.Station
		location  []byte
		plugs     []byte
		amenities []byte
		hours     []byte
		photos    []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&location,
		&s.Capacity,
		&s.AvailablePorts,
		&s.CompanyName,
		&s.OwnerID,
		&plugs,
		&amenities,
		&s.Rating,
		&s.TotalReviews,
		&s.Status,
		&hours,
		&photos,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(location, &s.Location); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(plugs, &s.Plugs); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(amenities, &s.Amenities); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(hours, &s.WorkingHours); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(photos, &s.Photos); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID fetches one station.
func (r *StationRepository) GetByID(ctx context.Context, id int64) (*models.Station, error) {
	query := fmt.Sprintf(`SELECT %s FROM stations WHERE id = $1 LIMIT 1`, stationColumns)
	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return station, nil
}

// ExistsWithNameOrAddress reports whether another station already uses
// the given name or street address.
func (r *StationRepository) ExistsWithNameOrAddress(ctx context.Context, name, address string, excludeID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM stations
			WHERE (LOWER(name) = LOWER($1) OR LOWER(location->>'address') = LOWER($2))
			  AND id <> $3
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(name),
		strings.TrimSpace(address),
		excludeID,
	).Scan(&exists)
	return exists, err
}

// Update performs an optimistic conditional write keyed on version.
func (r *StationRepository) Update(ctx context.Context, station *models.Station) error {
	location, err := marshalJSONB(station.Location)
	if err != nil {
		return err
	}
	plugs, err := marshalJSONB(station.Plugs)
	if err != nil {
		return err
	}
	amenities, err := marshalJSONB(station.Amenities)
	if err != nil {
		return err
	}
	hours, err := marshalJSONB(station.WorkingHours)
	if err != nil {
		return err
	}
	photos, err := marshalJSONB(station.Photos)
	if err != nil {
		return err
	}

	const query = `
		UPDATE stations
		SET name = $3, description = $4, location = $5, capacity = $6, available_ports = $7,
		    plugs = $8, amenities = $9, rating = $10, total_reviews = $11, status = $12,
		    working_hours = $13, photos = $14,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.Version,
		station.Name,
		station.Description,
		location,
		station.Capacity,
		station.AvailablePorts,
		plugs,
		amenities,
		station.Rating,
		station.TotalReviews,
		station.Status,
		hours,
		photos,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	station.Version++
	return nil
}

// Delete removes a station row.
func (r *StationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStationNotFound
	}
	return nil
}

// List returns stations matching the filter with skip/limit pagination.
func (r *StationRepository) List(ctx context.Context, filter StationFilter) ([]models.Station, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM stations
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR LOWER(location->>'city') = LOWER($2))
		ORDER BY name
		OFFSET $3 LIMIT $4
	`, stationColumns)

	rows, err := r.db.QueryContext(ctx, query, filter.Status, filter.City, filter.Skip, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}
