package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
)

// ReviewRepository defines the storage contract used by ReviewService.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	ListByStation(ctx context.Context, stationID int64, skip, limit int) ([]models.Review, error)
}

// StationRater reads and writes stations for the rating rollup.
type StationRater interface {
	GetByID(ctx context.Context, id int64) (*models.Station, error)
	Update(ctx context.Context, station *models.Station) error
}

// ReviewService contains station review logic.
type ReviewService struct {
	repo     ReviewRepository
	stations StationRater
	logger   *zap.Logger
}

// NewReviewService builds ReviewService.
func NewReviewService(repo ReviewRepository, stations StationRater, logger *zap.Logger) *ReviewService {
	return &ReviewService{repo: repo, stations: stations, logger: logger}
}

// Add records a review and folds its rating into the station's rolling
// average.
func (s *ReviewService) Add(ctx context.Context, actor auth.Identity, stationID int64, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.New(apperr.KindValidation, "rating must be between 1 and 5")
	}

	review := &models.Review{
		UserID:    actor.UserID,
		StationID: stationID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}

	err := retryOnConflict(ctx, func(ctx context.Context) error {
		station, err := s.stations.GetByID(ctx, stationID)
		if err != nil {
			if errors.Is(err, repository.ErrStationNotFound) {
				return apperr.New(apperr.KindNotFound, "station not found")
			}
			return err
		}
		station.ApplyReview(rating)
		return s.stations.Update(ctx, station)
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, review); err != nil {
		s.logger.Error("failed to persist review after rating rollup",
			zap.Int64("station_id", stationID),
			zap.Error(err),
		)
		return nil, err
	}
	return review, nil
}

// ListByStation returns a station's reviews.
func (s *ReviewService) ListByStation(ctx context.Context, stationID int64, skip, limit int) ([]models.Review, error) {
	return s.repo.ListByStation(ctx, stationID, skip, limit)
}
