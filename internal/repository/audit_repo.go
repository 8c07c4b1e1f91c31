package repository

import (
	"context"
	"database/sql"
	"fmt"

	"electra/internal/models"
)

// AuditRepository handles the append-only admin activity log.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository returns repository instance.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `
	id, admin_id, action, target_model, target_id, target_name,
	before_state, after_state, reason, ip_address, user_agent, severity, created_at
`

// Insert appends one activity entry.
func (r *AuditRepository) Insert(ctx context.Context, activity *models.AdminActivity) error {
	const query = `
		INSERT INTO admin_activities (admin_id, action, target_model, target_id, target_name,
			before_state, after_state, reason, ip_address, user_agent, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		activity.AdminID,
		activity.Action,
		activity.TargetModel,
		activity.TargetID,
		activity.TargetName,
		rawOrNull(activity.Before),
		rawOrNull(activity.After),
		activity.Reason,
		activity.IPAddress,
		activity.UserAgent,
		activity.Severity,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func rawOrNull(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanActivity(row interface{ Scan(...interface{}) error }) (*models.AdminActivity, error) {
	var (
		a      models.AdminActivity
		before []byte
		after  []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.AdminID,
		&a.Action,
		&a.TargetModel,
		&a.TargetID,
		&a.TargetName,
		&before,
		&after,
		&a.Reason,
		&a.IPAddress,
		&a.UserAgent,
		&a.Severity,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.Before = before
	a.After = after
	return &a, nil
}

// ActivityFilter narrows activity queries.
type ActivityFilter struct {
	Action   string
	Severity string
	Skip     int
	Limit    int
}

// ListByAdmin returns activity entries produced by one admin, newest first.
func (r *AuditRepository) ListByAdmin(ctx context.Context, adminID int64, filter ActivityFilter) ([]models.AdminActivity, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM admin_activities
		WHERE admin_id = $1
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR severity = $3)
		ORDER BY created_at DESC
		OFFSET $4 LIMIT $5
	`, auditColumns)
	return r.queryActivities(ctx, query, adminID, filter.Action, filter.Severity, filter.Skip, filter.Limit)
}

// ListByTarget returns activity entries touching one record, newest first.
func (r *AuditRepository) ListByTarget(ctx context.Context, targetModel string, targetID int64, limit int) ([]models.AdminActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM admin_activities
		WHERE target_model = $1 AND target_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, auditColumns)
	return r.queryActivities(ctx, query, targetModel, targetID, limit)
}

// Recent returns the latest entries across all admins.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]models.AdminActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM admin_activities
		ORDER BY created_at DESC
		LIMIT $1
	`, auditColumns)
	return r.queryActivities(ctx, query, limit)
}

func (r *AuditRepository) queryActivities(ctx context.Context, query string, args ...interface{}) ([]models.AdminActivity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []models.AdminActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}
