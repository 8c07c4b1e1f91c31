package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
)

type fakeReviewRepo struct {
	reviews []models.Review
	nextID  int64
}

func (f *fakeReviewRepo) Create(_ context.Context, review *models.Review) error {
	f.nextID++
	review.ID = f.nextID
	f.reviews = append(f.reviews, *review)
	return nil
}

func (f *fakeReviewRepo) ListByStation(_ context.Context, stationID int64, _, _ int) ([]models.Review, error) {
	var out []models.Review
	for _, review := range f.reviews {
		if review.StationID == stationID {
			out = append(out, review)
		}
	}
	return out, nil
}

func TestReviewService_Add_RollsUpRating(t *testing.T) {
	stations := newFakeStationRepo()
	station := seedStation(t, stations, models.StationStatusActive)
	reviews := &fakeReviewRepo{}
	svc := NewReviewService(reviews, stations, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Add(ctx, auth.Identity{UserID: 3, Role: auth.RoleUser}, station.ID, 4, "fast chargers")
	require.NoError(t, err)
	_, err = svc.Add(ctx, auth.Identity{UserID: 4, Role: auth.RoleUser}, station.ID, 5, "")
	require.NoError(t, err)

	rated, err := stations.GetByID(ctx, station.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rated.TotalReviews)
	assert.InDelta(t, 4.5, rated.Rating, 0.001)

	listed, err := svc.ListByStation(ctx, station.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReviewService_Add_RejectsBadRating(t *testing.T) {
	svc := NewReviewService(&fakeReviewRepo{}, newFakeStationRepo(), zap.NewNop())

	_, err := svc.Add(context.Background(), auth.Identity{UserID: 3, Role: auth.RoleUser}, 1, 6, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestReviewService_Add_UnknownStation(t *testing.T) {
	svc := NewReviewService(&fakeReviewRepo{}, newFakeStationRepo(), zap.NewNop())

	_, err := svc.Add(context.Background(), auth.Identity{UserID: 3, Role: auth.RoleUser}, 42, 4, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
