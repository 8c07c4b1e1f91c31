package repository

import (
	"context"
	"database/sql"

	"electra/internal/models"
)

// ReviewRepository handles persistence of station reviews.
type ReviewRepository struct {
	db *sql.DB
}

// NewReviewRepository returns repository instance.
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	const query = `
		INSERT INTO reviews (user_id, station_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		review.UserID,
		review.StationID,
		review.Rating,
		review.Comment,
	).Scan(&review.ID, &review.CreatedAt)
}

// ListByStation returns a station's reviews, newest first.
func (r *ReviewRepository) ListByStation(ctx context.Context, stationID int64, skip, limit int) ([]models.Review, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, station_id, rating, comment, created_at
		FROM reviews
		WHERE station_id = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, stationID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		if err := rows.Scan(
			&review.ID,
			&review.UserID,
			&review.StationID,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
		); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reviews, nil
}
