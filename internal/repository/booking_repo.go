package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"electra/internal/models"
)

// ErrBookingNotFound represents missing booking rows.
var ErrBookingNotFound = errors.New("booking not found")

// BookingRepository handles persistence of bookings.
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository returns repository instance.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, user_id, station_id, start_time, end_time, duration_minutes, status,
	pricing, payment_state, payment_method, transaction_id, cancellation,
	version, created_at, updated_at
`

// Create inserts a new booking.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	pricing, err := marshalJSONB(booking.Pricing)
	if err != nil {
		return err
	}
	cancellation, err := marshalJSONB(booking.Cancellation)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO bookings (user_id, station_id, start_time, end_time, duration_minutes,
			status, pricing, payment_state, payment_method, transaction_id, cancellation,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		booking.UserID,
		booking.StationID,
		booking.StartTime,
		booking.EndTime,
		booking.DurationMinutes,
		booking.Status,
		pricing,
		booking.PaymentState,
		booking.PaymentMethod,
		booking.TransactionID,
		cancellation,
	).Scan(&booking.ID, &booking.Version, &booking.CreatedAt, &booking.UpdatedAt)
}

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	var (
		b            models.Booking
		pricing      []byte
		cancellation []byte
	)
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.StationID,
		&b.StartTime,
		&b.EndTime,
		&b.DurationMinutes,
		&b.Status,
		&pricing,
		&b.PaymentState,
		&b.PaymentMethod,
		&b.TransactionID,
		&cancellation,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(pricing, &b.Pricing); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(cancellation, &b.Cancellation); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByID fetches one booking.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 LIMIT 1`, bookingColumns)
	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

// Update performs an optimistic conditional write keyed on version.
func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking) error {
	pricing, err := marshalJSONB(booking.Pricing)
	if err != nil {
		return err
	}
	cancellation, err := marshalJSONB(booking.Cancellation)
	if err != nil {
		return err
	}

	const query = `
		UPDATE bookings
		SET start_time = $3, end_time = $4, duration_minutes = $5, status = $6,
		    pricing = $7, payment_state = $8, payment_method = $9, transaction_id = $10,
		    cancellation = $11,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.Version,
		booking.StartTime,
		booking.EndTime,
		booking.DurationMinutes,
		booking.Status,
		pricing,
		booking.PaymentState,
		booking.PaymentMethod,
		booking.TransactionID,
		cancellation,
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
	booking.Version++
	return nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64, skip, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM bookings
		WHERE user_id = $1
		ORDER BY start_time DESC
		OFFSET $2 LIMIT $3
	`, bookingColumns)
	return r.queryBookings(ctx, query, userID, skip, limit)
}

// UpcomingByUser returns pending/confirmed bookings starting at or after now.
func (r *BookingRepository) UpcomingByUser(ctx context.Context, userID int64, now time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bookings
		WHERE user_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time >= $2
		ORDER BY start_time
	`, bookingColumns)
	return r.queryBookings(ctx, query, userID, now)
}

// ActiveByStation returns bookings currently in use at a station.
func (r *BookingRepository) ActiveByStation(ctx context.Context, stationID int64) ([]models.Booking, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bookings
		WHERE station_id = $1 AND status = 'active'
		ORDER BY start_time
	`, bookingColumns)
	return r.queryBookings(ctx, query, stationID)
}

// CountOverlapping counts non-terminal bookings intersecting the window,
// used to enforce station capacity.
func (r *BookingRepository) CountOverlapping(ctx context.Context, stationID int64, start, end time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM bookings
		WHERE station_id = $1
		  AND status IN ('pending', 'confirmed', 'active')
		  AND start_time < $3
		  AND end_time > $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, stationID, start, end).Scan(&count)
	return count, err
}

// HasNonTerminal reports whether any pending/confirmed/active booking
// still references the station.
func (r *BookingRepository) HasNonTerminal(ctx context.Context, stationID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE station_id = $1 AND status IN ('pending', 'confirmed', 'active')
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, stationID).Scan(&exists)
	return exists, err
}

func (r *BookingRepository) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}
