package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/cache"
	"electra/internal/models"
	"electra/internal/repository"
	"electra/internal/ws"
)

// SessionRepository defines the storage contract used by SessionService.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ChargingSession) error
	GetByID(ctx context.Context, id int64) (*models.ChargingSession, error)
	GetByCode(ctx context.Context, code string) (*models.ChargingSession, error)
	GetActiveByBooking(ctx context.Context, bookingID int64) (*models.ChargingSession, error)
	Update(ctx context.Context, session *models.ChargingSession) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.ChargingSession, error)
	EnergySummaryByUser(ctx context.Context, userID int64) (*repository.EnergySummary, error)
}

// UserReader fetches user profiles for vehicle data.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// TelemetryBroadcaster pushes live frames to session subscribers.
type TelemetryBroadcaster interface {
	Broadcast(frame ws.TelemetryFrame)
}

// SessionCharger opens a payment for the completed session's cost.
type SessionCharger interface {
	ChargeForBooking(ctx context.Context, booking *models.Booking, sessionID *int64, method string) (*models.Payment, error)
}

// SessionService drives the charging-session state machine.
type SessionService struct {
	repo     SessionRepository
	bookings BookingLedger
	stations StationRater
	users    UserReader
	charger  SessionCharger
	active   *cache.ActiveSessionStore
	hub      TelemetryBroadcaster
	audit    *AuditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService builds SessionService. The cache and hub are
// optional; a nil cache disables the hot-path projection.
func NewSessionService(
	repo SessionRepository,
	bookings BookingLedger,
	stations StationRater,
	users UserReader,
	charger SessionCharger,
	active *cache.ActiveSessionStore,
	hub TelemetryBroadcaster,
	audit *AuditRecorder,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		repo:     repo,
		bookings: bookings,
		stations: stations,
		users:    users,
		charger:  charger,
		active:   active,
		hub:      hub,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSessionInput carries session start data.
type StartSessionInput struct {
	BookingID  int64
	InitialSOC float64
	TargetSOC  float64
}

// Start opens a charging session against a confirmed booking and moves
// the booking to active. Battery capacity comes from the user's default
// vehicle when one is registered.
func (s *SessionService) Start(ctx context.Context, actor auth.Identity, input StartSessionInput) (*models.ChargingSession, error) {
	if input.InitialSOC < 0 || input.InitialSOC > 100 || input.TargetSOC < 0 || input.TargetSOC > 100 {
		return nil, apperr.New(apperr.KindValidation, "state of charge must be between 0 and 100")
	}
	if input.TargetSOC <= input.InitialSOC {
		return nil, apperr.New(apperr.KindValidation, "target state of charge must exceed the initial one")
	}

	booking, err := s.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "booking not found")
		}
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.HasCapability(auth.CapManageBookings) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to start a session for this booking")
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, apperr.Newf(apperr.KindInvalidTransition, "booking in status %q cannot start a session", booking.Status)
	}

	if _, err := s.repo.GetActiveByBooking(ctx, booking.ID); err == nil {
		return nil, apperr.New(apperr.KindConflict, "booking already has a running session")
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	var batteryCapacity float64
	if user, err := s.users.GetByID(ctx, booking.UserID); err == nil {
		if vehicle := user.DefaultVehicle(); vehicle != nil {
			batteryCapacity = vehicle.BatteryCapacityKWh
		}
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	now := s.now()
	session := &models.ChargingSession{
		SessionCode: models.NewSessionCode(now),
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		StationID:   booking.StationID,
		Status:      models.SessionStatusInitiated,
		Charging: models.ChargingData{
			InitialSOC: input.InitialSOC,
			CurrentSOC: input.InitialSOC,
			TargetSOC:  input.TargetSOC,
		},
		BatteryCapacityKWh: batteryCapacity,
		StartedAt:          now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	err = retryOnConflict(ctx, func(ctx context.Context) error {
		fresh, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		if err := fresh.Activate(); err != nil {
			return err
		}
		return s.bookings.Update(ctx, fresh)
	})
	if err != nil {
		return nil, err
	}

	s.adjustPorts(ctx, session.StationID, -1)
	s.cacheSession(ctx, session)
	s.logger.Info("charging session started",
		zap.String("session_code", session.SessionCode),
		zap.Int64("booking_id", booking.ID),
		zap.Int64("station_id", booking.StationID),
	)
	return session, nil
}

// Advance moves the session forward along the machine, for the
// authenticating/starting/charging/stopping hops driven by the charger.
func (s *SessionService) Advance(ctx context.Context, actor auth.Identity, id int64, next models.SessionStatus) (*models.ChargingSession, error) {
	return s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		return session.TransitionTo(next)
	})
}

// Pause suspends a charging session.
func (s *SessionService) Pause(ctx context.Context, actor auth.Identity, id int64, reason string) (*models.ChargingSession, error) {
	return s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		return session.Pause(s.now(), reason)
	})
}

// Resume continues a paused session.
func (s *SessionService) Resume(ctx context.Context, actor auth.Identity, id int64) (*models.ChargingSession, error) {
	return s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		return session.Resume(s.now())
	})
}

// Complete ends the session, prices the consumed energy at the booking's
// snapshotted rate, finalizes the booking, and opens the payment.
func (s *SessionService) Complete(ctx context.Context, actor auth.Identity, id int64, reason string) (*models.ChargingSession, error) {
	terminatedBy := models.TerminatedByUser
	if actor.IsAdminLike() {
		terminatedBy = models.TerminatedByAdmin
	}

	var booking *models.Booking
	session, err := s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		if err := session.Complete(s.now(), terminatedBy, reason); err != nil {
			return err
		}
		b, err := s.bookings.GetByID(ctx, session.BookingID)
		if err != nil {
			return err
		}
		booking = b
		rate := b.Pricing.RatePerKWh
		session.TotalCost = math.Round(session.Charging.KWhConsumed*rate*100) / 100
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dropCache(ctx, session)
	s.adjustPorts(ctx, session.StationID, +1)

	err = retryOnConflict(ctx, func(ctx context.Context) error {
		fresh, err := s.bookings.GetByID(ctx, session.BookingID)
		if err != nil {
			return err
		}
		if err := fresh.Complete(session.TotalCost); err != nil {
			return err
		}
		if err := s.bookings.Update(ctx, fresh); err != nil {
			return err
		}
		booking = fresh
		return nil
	})
	if err != nil {
		s.logger.Error("failed to finalize booking after session completion",
			zap.String("session_code", session.SessionCode),
			zap.Int64("booking_id", session.BookingID),
			zap.Error(err),
		)
		return session, nil
	}

	sessionID := session.ID
	if _, err := s.charger.ChargeForBooking(ctx, booking, &sessionID, booking.PaymentMethod); err != nil {
		s.logger.Error("failed to open payment for completed session",
			zap.String("session_code", session.SessionCode),
			zap.Int64("booking_id", booking.ID),
			zap.Error(err),
		)
	}

	if actor.IsAdminLike() && session.UserID != actor.UserID {
		s.audit.Record(ctx, models.AdminActivity{
			AdminID:     actor.UserID,
			Action:      models.ActionUpdate,
			TargetModel: "charging_session",
			TargetID:    session.ID,
			TargetName:  session.SessionCode,
			Reason:      reason,
			Severity:    models.SeverityMedium,
		})
	}
	return session, nil
}

// Fail terminates the session into a failure state.
func (s *SessionService) Fail(ctx context.Context, actor auth.Identity, id int64, into models.SessionStatus, reason string) (*models.ChargingSession, error) {
	terminatedBy := models.TerminatedBySystem
	if actor.UserID != 0 && !actor.IsAdminLike() {
		terminatedBy = models.TerminatedByUser
	}
	session, err := s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		return session.Fail(s.now(), into, terminatedBy, reason)
	})
	if err != nil {
		return nil, err
	}
	s.dropCache(ctx, session)
	s.adjustPorts(ctx, session.StationID, +1)
	return session, nil
}

// RecordTelemetry folds a charger sample into the session, refreshes the
// cache projection, and fans the update out to live subscribers.
func (s *SessionService) RecordTelemetry(ctx context.Context, actor auth.Identity, id int64, sample models.TelemetrySample) (*models.ChargingSession, error) {
	session, err := s.mutate(ctx, actor, id, func(session *models.ChargingSession) error {
		return session.RecordTelemetry(sample)
	})
	if err != nil {
		return nil, err
	}

	s.cacheSession(ctx, session)
	if s.hub != nil {
		s.hub.Broadcast(ws.TelemetryFrame{
			SessionID:          session.ID,
			SessionCode:        session.SessionCode,
			Status:             string(session.Status),
			CurrentSOC:         session.Charging.CurrentSOC,
			PowerKW:            session.Charging.CurrentPowerKW,
			KWhConsumed:        session.Charging.KWhConsumed,
			ProgressPercentage: session.ProgressPercentage(),
			EstimatedMinutes:   session.EstimatedTimeRemaining(),
			Timestamp:          s.now(),
		})
	}
	return session, nil
}

// Get fetches a session visible to the actor.
func (s *SessionService) Get(ctx context.Context, actor auth.Identity, id int64) (*models.ChargingSession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetByCode fetches a session by its SES- reference.
func (s *SessionService) GetByCode(ctx context.Context, actor auth.Identity, code string) (*models.ChargingSession, error) {
	session, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "charging session not found")
		}
		return nil, err
	}
	if err := s.authorize(actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListByUser returns the user's session history.
func (s *SessionService) ListByUser(ctx context.Context, userID int64, limit int) ([]models.ChargingSession, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// EnergySummary aggregates the user's completed sessions.
func (s *SessionService) EnergySummary(ctx context.Context, userID int64) (*repository.EnergySummary, error) {
	return s.repo.EnergySummaryByUser(ctx, userID)
}

// mutate runs a read-modify-write on the session with conflict retries
// and the actor authorization applied on every read.
func (s *SessionService) mutate(ctx context.Context, actor auth.Identity, id int64, apply func(*models.ChargingSession) error) (*models.ChargingSession, error) {
	var result *models.ChargingSession
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		session, err := s.getSession(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, session); err != nil {
			return err
		}
		if err := apply(session); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SessionService) getSession(ctx context.Context, id int64) (*models.ChargingSession, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "charging session not found")
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionService) authorize(actor auth.Identity, session *models.ChargingSession) error {
	if session.UserID == actor.UserID || actor.HasCapability(auth.CapManageBookings) {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "not allowed to access this session")
}

func (s *SessionService) cacheSession(ctx context.Context, session *models.ChargingSession) {
	if s.active == nil {
		return
	}
	err := s.active.Save(ctx, cache.ActiveSession{
		SessionID:   session.ID,
		SessionCode: session.SessionCode,
		BookingID:   session.BookingID,
		UserID:      session.UserID,
		StationID:   session.StationID,
		Status:      string(session.Status),
		CurrentSOC:  session.Charging.CurrentSOC,
		PowerKW:     session.Charging.CurrentPowerKW,
		KWhConsumed: session.Charging.KWhConsumed,
	})
	if err != nil {
		s.logger.Warn("failed to cache active session",
			zap.String("session_code", session.SessionCode),
			zap.Error(err),
		)
	}
}

// adjustPorts moves station port availability as sessions claim and
// release connectors, clamped to [0, capacity]. Failures are logged;
// availability is advisory, not a booking gate.
func (s *SessionService) adjustPorts(ctx context.Context, stationID int64, delta int) {
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		station, err := s.stations.GetByID(ctx, stationID)
		if err != nil {
			return err
		}
		ports := station.AvailablePorts + delta
		if ports < 0 {
			ports = 0
		}
		if ports > station.Capacity {
			ports = station.Capacity
		}
		if ports == station.AvailablePorts {
			return nil
		}
		station.AvailablePorts = ports
		return s.stations.Update(ctx, station)
	})
	if err != nil {
		s.logger.Warn("failed to adjust station port availability",
			zap.Int64("station_id", stationID),
			zap.Int("delta", delta),
			zap.Error(err),
		)
	}
}

func (s *SessionService) dropCache(ctx context.Context, session *models.ChargingSession) {
	if s.active == nil {
		return
	}
	if err := s.active.Delete(ctx, session.SessionCode); err != nil {
		s.logger.Warn("failed to drop active session cache",
			zap.String("session_code", session.SessionCode),
			zap.Error(err),
		)
	}
}
