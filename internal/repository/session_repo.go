package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"electra/internal/models"
)

// ErrSessionNotFound represents missing charging-session rows.
var ErrSessionNotFound = errors.New("charging session not found")

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository instance.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// EnergySummary aggregates completed sessions for a user.
type EnergySummary struct {
	TotalEnergyKWh float64 `json:"total_energy_kwh"`
	TotalCost      float64 `json:"total_cost"`
	TotalSessions  int     `json:"total_sessions"`
}

const sessionColumns = `
	id, session_code, booking_id, user_id, station_id, status, charging_data,
	battery_capacity_kwh, started_at, ended_at, pauses, termination,
	duration_minutes, total_cost, version, created_at, updated_at
`

// Create inserts a new charging session.
func (r *SessionRepository) Create(ctx context.Context, session *models.ChargingSession) error {
	charging, err := marshalJSONB(session.Charging)
	if err != nil {
		return err
	}
	pauses, err := marshalJSONB(session.Pauses)
	if err != nil {
		return err
	}
	termination, err := marshalJSONB(session.Termination)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO charging_sessions (session_code, booking_id, user_id, station_id, status,
			charging_data, battery_capacity_kwh, started_at, ended_at, pauses, termination,
			duration_minutes, total_cost, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		session.SessionCode,
		session.BookingID,
		session.UserID,
		session.StationID,
		session.Status,
		charging,
		session.BatteryCapacityKWh,
		session.StartedAt,
		session.EndedAt,
		pauses,
		termination,
		session.DurationMinutes,
		session.TotalCost,
	).Scan(&session.ID, &session.Version, &session.CreatedAt, &session.UpdatedAt)
}

func scanSession(row interface{ Scan(...interface{}) error }) (*models.ChargingSession, error) {
	var (
		s           models.ChargingSession
		charging    []byte
		pauses      []byte
		termination []byte
		endedAt     sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.SessionCode,
		&s.BookingID,
		&s.UserID,
		&s.StationID,
		&s.Status,
		&charging,
		&s.BatteryCapacityKWh,
		&s.StartedAt,
		&endedAt,
		&pauses,
		&termination,
		&s.DurationMinutes,
		&s.TotalCost,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if err := unmarshalJSONB(charging, &s.Charging); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(pauses, &s.Pauses); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(termination, &s.Termination); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID fetches one session.
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.ChargingSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM charging_sessions WHERE id = $1 LIMIT 1`, sessionColumns)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// GetByCode fetches one session by its SES- reference.
func (r *SessionRepository) GetByCode(ctx context.Context, code string) (*models.ChargingSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM charging_sessions WHERE session_code = $1 LIMIT 1`, sessionColumns)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// GetActiveByBooking returns the non-terminal session for a booking, if any.
func (r *SessionRepository) GetActiveByBooking(ctx context.Context, bookingID int64) (*models.ChargingSession, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM charging_sessions
		WHERE booking_id = $1
		  AND status NOT IN ('completed', 'failed', 'interrupted', 'timeout')
		LIMIT 1
	`, sessionColumns)
	session, err := scanSession(r.db.QueryRowContext(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Update performs an optimistic conditional write keyed on version.
func (r *SessionRepository) Update(ctx context.Context, session *models.ChargingSession) error {
	charging, err := marshalJSONB(session.Charging)
	if err != nil {
		return err
	}
	pauses, err := marshalJSONB(session.Pauses)
	if err != nil {
		return err
	}
	termination, err := marshalJSONB(session.Termination)
	if err != nil {
		return err
	}

	const query = `
		UPDATE charging_sessions
		SET status = $3, charging_data = $4, ended_at = $5, pauses = $6, termination = $7,
		    duration_minutes = $8, total_cost = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Version,
		session.Status,
		charging,
		session.EndedAt,
		pauses,
		termination,
		session.DurationMinutes,
		session.TotalCost,
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
	session.Version++
	return nil
}

// ListByUser returns a user's last sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.ChargingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM charging_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, sessionColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// EnergySummaryByUser aggregates completed sessions for a user.
func (r *SessionRepository) EnergySummaryByUser(ctx context.Context, userID int64) (*EnergySummary, error) {
	const query = `
		SELECT
			COALESCE(SUM((charging_data->>'kwh_consumed')::float), 0),
			COALESCE(SUM(total_cost), 0),
			COUNT(*)
		FROM charging_sessions
		WHERE user_id = $1 AND status = 'completed'
	`
	var summary EnergySummary
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&summary.TotalEnergyKWh,
		&summary.TotalCost,
		&summary.TotalSessions,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
