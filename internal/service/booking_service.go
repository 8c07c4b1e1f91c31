package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
)

// Fallback charging power used to estimate energy when the client does
// not supply an expected kWh figure.
const defaultEstimatePowerKW = 7.0

// BookingRepository defines the storage contract used by BookingService.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) error
	ListByUser(ctx context.Context, userID int64, skip, limit int) ([]models.Booking, error)
	UpcomingByUser(ctx context.Context, userID int64, now time.Time) ([]models.Booking, error)
	ActiveByStation(ctx context.Context, stationID int64) ([]models.Booking, error)
	CountOverlapping(ctx context.Context, stationID int64, start, end time.Time) (int, error)
}

// StationReader fetches station aggregates for booking decisions.
type StationReader interface {
	GetByID(ctx context.Context, id int64) (*models.Station, error)
}

// CancellationRefunder executes the refund owed by a cancellation.
type CancellationRefunder interface {
	RefundForCancellation(ctx context.Context, booking *models.Booking, initiatedBy string) (partial bool, err error)
}

// BookingService contains reservation lifecycle logic.
type BookingService struct {
	repo     BookingRepository
	stations StationReader
	refunder CancellationRefunder
	audit    *AuditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewBookingService builds BookingService.
func NewBookingService(
	repo BookingRepository,
	stations StationReader,
	refunder CancellationRefunder,
	audit *AuditRecorder,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:     repo,
		stations: stations,
		refunder: refunder,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingInput carries reservation data.
type CreateBookingInput struct {
	StationID     int64
	StartTime     time.Time
	EndTime       time.Time
	EstimatedKWh  float64
	PaymentMethod string
}

// Create reserves a station window for the actor, snapshotting pricing
// from the station's cheapest available plug.
func (s *BookingService) Create(ctx context.Context, actor auth.Identity, input CreateBookingInput) (*models.Booking, error) {
	now := s.now()
	if !input.StartTime.After(now) {
		return nil, apperr.New(apperr.KindValidation, "start time must be in the future")
	}

	station, err := s.stations.GetByID(ctx, input.StationID)
	if err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "station not found")
		}
		return nil, err
	}
	if station.Status != models.StationStatusActive {
		return nil, apperr.Newf(apperr.KindConflict, "station is %s and cannot be booked", station.Status)
	}

	booking := &models.Booking{
		UserID:        actor.UserID,
		StationID:     station.ID,
		Status:        models.BookingStatusPending,
		PaymentState:  models.PaymentStatePending,
		PaymentMethod: input.PaymentMethod,
	}
	if err := booking.SetWindow(input.StartTime, input.EndTime); err != nil {
		return nil, err
	}

	overlapping, err := s.repo.CountOverlapping(ctx, station.ID, booking.StartTime, booking.EndTime)
	if err != nil {
		return nil, err
	}
	if overlapping >= station.Capacity {
		return nil, apperr.New(apperr.KindConflict, "no charging ports available for the requested window")
	}

	rate := station.CheapestRate()
	estimatedKWh := input.EstimatedKWh
	if estimatedKWh <= 0 {
		estimatedKWh = float64(booking.DurationMinutes) / 60 * defaultEstimatePowerKW
	}
	booking.Pricing = models.Pricing{
		RatePerKWh:    rate,
		EstimatedCost: math.Round(rate*estimatedKWh*100) / 100,
		Currency:      "INR",
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, err
	}
	s.logger.Info("booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("station_id", station.ID),
		zap.Int64("user_id", actor.UserID),
	)
	return booking, nil
}

// Confirm moves a pending booking to confirmed.
func (s *BookingService) Confirm(ctx context.Context, actor auth.Identity, id int64) (*models.Booking, error) {
	var confirmed *models.Booking
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		booking, err := s.getOwned(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := booking.Confirm(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, booking); err != nil {
			return err
		}
		confirmed = booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Cancel cancels a booking and, when the lead time earns one, triggers
// the refund. A failed refund marks the cancellation accordingly but
// never rolls the cancellation back.
func (s *BookingService) Cancel(ctx context.Context, actor auth.Identity, id int64, reason string) (*models.Booking, error) {
	cancelledBy := models.TerminatedByUser
	if actor.IsAdminLike() {
		cancelledBy = models.TerminatedByAdmin
	}

	var cancelled *models.Booking
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		booking, err := s.getOwned(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := booking.Cancel(s.now(), cancelledBy, reason); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, booking); err != nil {
			return err
		}
		cancelled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.settleRefund(ctx, cancelled, cancelledBy)

	if actor.IsAdminLike() && cancelled.UserID != actor.UserID {
		s.audit.Record(ctx, models.AdminActivity{
			AdminID:     actor.UserID,
			Action:      models.ActionCancel,
			TargetModel: "booking",
			TargetID:    cancelled.ID,
			Reason:      reason,
			After:       snapshot(cancelled),
			Severity:    models.SeverityMedium,
		})
	}
	return cancelled, nil
}

// settleRefund runs the refund owed by a fresh cancellation and records
// its outcome on the booking.
func (s *BookingService) settleRefund(ctx context.Context, booking *models.Booking, initiatedBy string) {
	if booking.Cancellation == nil || booking.Cancellation.RefundAmount <= 0 {
		return
	}

	partial, err := s.refunder.RefundForCancellation(ctx, booking, initiatedBy)
	outcome := models.RefundStatusProcessed
	if err != nil {
		outcome = models.RefundStatusFailed
		s.logger.Error("refund for cancelled booking failed",
			zap.Int64("booking_id", booking.ID),
			zap.Float64("refund_amount", booking.Cancellation.RefundAmount),
			zap.Error(err),
		)
	}

	updateErr := retryOnConflict(ctx, func(ctx context.Context) error {
		fresh, err := s.repo.GetByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		fresh.SetRefundOutcome(outcome, partial)
		if err := s.repo.Update(ctx, fresh); err != nil {
			return err
		}
		*booking = *fresh
		return nil
	})
	if updateErr != nil {
		s.logger.Error("failed to record refund outcome",
			zap.Int64("booking_id", booking.ID),
			zap.Error(updateErr),
		)
	}
}

// Get fetches a booking visible to the actor.
func (s *BookingService) Get(ctx context.Context, actor auth.Identity, id int64) (*models.Booking, error) {
	return s.getOwned(ctx, actor, id)
}

// ListByUser returns the actor's booking history.
func (s *BookingService) ListByUser(ctx context.Context, userID int64, skip, limit int) ([]models.Booking, error) {
	return s.repo.ListByUser(ctx, userID, skip, limit)
}

// Upcoming returns the actor's pending/confirmed future bookings.
func (s *BookingService) Upcoming(ctx context.Context, userID int64) ([]models.Booking, error) {
	return s.repo.UpcomingByUser(ctx, userID, s.now())
}

// ActiveByStation returns in-use bookings at a station.
func (s *BookingService) ActiveByStation(ctx context.Context, actor auth.Identity, stationID int64) ([]models.Booking, error) {
	if !actor.HasCapability(auth.CapManageStations) && !actor.HasCapability(auth.CapManageBookings) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to view station bookings")
	}
	return s.repo.ActiveByStation(ctx, stationID)
}

func (s *BookingService) getOwned(ctx context.Context, actor auth.Identity, id int64) (*models.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "booking not found")
		}
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.HasCapability(auth.CapManageBookings) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to access this booking")
	}
	return booking, nil
}
