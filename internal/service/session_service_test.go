package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
	"electra/internal/ws"
)

type fakeSessionRepo struct {
	sessions map[int64]*models.ChargingSession
	nextID   int64
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[int64]*models.ChargingSession), nextID: 1}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *models.ChargingSession) error {
	session.ID = f.nextID
	session.Version = 1
	f.nextID++
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id int64) (*models.ChargingSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (f *fakeSessionRepo) GetByCode(_ context.Context, code string) (*models.ChargingSession, error) {
	for _, session := range f.sessions {
		if session.SessionCode == code {
			clone := *session
			return &clone, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionRepo) GetActiveByBooking(_ context.Context, bookingID int64) (*models.ChargingSession, error) {
	for _, session := range f.sessions {
		if session.BookingID == bookingID && !session.IsTerminal() {
			clone := *session
			return &clone, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionRepo) Update(_ context.Context, session *models.ChargingSession) error {
	stored, ok := f.sessions[session.ID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return repository.ErrVersionConflict
	}
	session.Version++
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessionRepo) ListByUser(context.Context, int64, int) ([]models.ChargingSession, error) {
	return nil, nil
}

func (f *fakeSessionRepo) EnergySummaryByUser(context.Context, int64) (*repository.EnergySummary, error) {
	return &repository.EnergySummary{}, nil
}

type fakeCharger struct {
	calls  int
	method string
}

func (f *fakeCharger) ChargeForBooking(_ context.Context, _ *models.Booking, _ *int64, method string) (*models.Payment, error) {
	f.calls++
	f.method = method
	return &models.Payment{}, nil
}

type fakeHub struct {
	frames []ws.TelemetryFrame
}

func (f *fakeHub) Broadcast(frame ws.TelemetryFrame) {
	f.frames = append(f.frames, frame)
}

type sessionFixture struct {
	svc      *SessionService
	sessions *fakeSessionRepo
	bookings *fakeBookingRepo
	stations *fakeStationRepo
	users    *fakeUserRepo
	charger  *fakeCharger
	hub      *fakeHub
	booking  *models.Booking
	station  *models.Station
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &sessionFixture{
		sessions: newFakeSessionRepo(),
		bookings: newFakeBookingRepo(),
		stations: newFakeStationRepo(),
		users:    newFakeUserRepo(),
		charger:  &fakeCharger{},
		hub:      &fakeHub{},
	}
	f.station = seedStation(t, f.stations, models.StationStatusActive)
	f.booking = confirmedBooking(t, f.bookings)
	f.booking.StationID = f.station.ID
	require.NoError(t, f.bookings.Update(context.Background(), f.booking))

	owner := &models.User{
		UserName: "Asha",
		Email:    "asha@example.com",
		Role:     string(auth.RoleUser),
		Vehicles: []models.Vehicle{
			{Make: "Tata", Model: "Nexon EV", BatteryCapacityKWh: 40, IsDefault: true},
		},
	}
	require.NoError(t, f.users.Create(context.Background(), owner))
	f.booking.UserID = owner.ID
	require.NoError(t, f.bookings.Update(context.Background(), f.booking))

	f.svc = NewSessionService(
		f.sessions, f.bookings, f.stations, f.users,
		f.charger, nil, f.hub, NewAuditRecorder(nil, logger), logger,
	)
	return f
}

func (f *sessionFixture) owner() auth.Identity {
	return auth.Identity{UserID: f.booking.UserID, Role: auth.RoleUser}
}

func (f *sessionFixture) start(t *testing.T) *models.ChargingSession {
	t.Helper()
	session, err := f.svc.Start(context.Background(), f.owner(), StartSessionInput{
		BookingID:  f.booking.ID,
		InitialSOC: 20,
		TargetSOC:  80,
	})
	require.NoError(t, err)
	return session
}

// charging walks a fresh session to the charging state.
func (f *sessionFixture) charging(t *testing.T) *models.ChargingSession {
	t.Helper()
	session := f.start(t)
	ctx := context.Background()
	for _, next := range []models.SessionStatus{
		models.SessionStatusAuthenticating,
		models.SessionStatusStarting,
		models.SessionStatusCharging,
	} {
		var err error
		session, err = f.svc.Advance(ctx, f.owner(), session.ID, next)
		require.NoError(t, err)
	}
	return session
}

func TestSessionService_Start(t *testing.T) {
	f := newSessionFixture(t)

	session := f.start(t)
	assert.Equal(t, models.SessionStatusInitiated, session.Status)
	assert.Contains(t, session.SessionCode, "SES-")
	assert.Equal(t, 20.0, session.Charging.InitialSOC)
	assert.Equal(t, 40.0, session.BatteryCapacityKWh)

	booking, err := f.bookings.GetByID(context.Background(), f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusActive, booking.Status)

	station, err := f.stations.GetByID(context.Background(), f.station.ID)
	require.NoError(t, err)
	assert.Equal(t, f.station.AvailablePorts-1, station.AvailablePorts)
}

func TestSessionService_Start_RejectsBadSOC(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.Start(context.Background(), f.owner(), StartSessionInput{
		BookingID:  f.booking.ID,
		InitialSOC: 80,
		TargetSOC:  20,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSessionService_Start_RejectsSecondSession(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t)

	// The booking is active now, which also blocks a restart.
	_, err := f.svc.Start(context.Background(), f.owner(), StartSessionInput{
		BookingID:  f.booking.ID,
		InitialSOC: 20,
		TargetSOC:  80,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestSessionService_Start_RejectsUnconfirmedBooking(t *testing.T) {
	f := newSessionFixture(t)
	f.booking.Status = models.BookingStatusPending
	require.NoError(t, f.bookings.Update(context.Background(), f.booking))

	_, err := f.svc.Start(context.Background(), f.owner(), StartSessionInput{
		BookingID:  f.booking.ID,
		InitialSOC: 20,
		TargetSOC:  80,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestSessionService_PauseResume(t *testing.T) {
	f := newSessionFixture(t)
	session := f.charging(t)
	ctx := context.Background()

	paused, err := f.svc.Pause(ctx, f.owner(), session.ID, "lunch break")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, paused.Status)
	require.Len(t, paused.Pauses, 1)
	assert.Equal(t, "lunch break", paused.Pauses[0].Reason)
	assert.Nil(t, paused.Pauses[0].ResumedAt)

	resumed, err := f.svc.Resume(ctx, f.owner(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCharging, resumed.Status)
	assert.NotNil(t, resumed.Pauses[0].ResumedAt)

	_, err = f.svc.Resume(ctx, f.owner(), session.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestSessionService_RecordTelemetry_BroadcastsFrame(t *testing.T) {
	f := newSessionFixture(t)
	session := f.charging(t)
	ctx := context.Background()
	base := time.Now().UTC()

	_, err := f.svc.RecordTelemetry(ctx, f.owner(), session.ID, models.TelemetrySample{
		Timestamp: base, SOC: 25, PowerKW: 30,
	})
	require.NoError(t, err)

	updated, err := f.svc.RecordTelemetry(ctx, f.owner(), session.ID, models.TelemetrySample{
		Timestamp: base.Add(30 * time.Minute), SOC: 40, PowerKW: 50,
	})
	require.NoError(t, err)

	// Trapezoid between 30 and 50 kW over half an hour.
	assert.InDelta(t, 20.0, updated.Charging.KWhConsumed, 0.001)
	assert.Equal(t, 50.0, updated.Charging.MaxPowerKW)

	require.Len(t, f.hub.frames, 2)
	last := f.hub.frames[1]
	assert.Equal(t, session.SessionCode, last.SessionCode)
	assert.Equal(t, 40.0, last.CurrentSOC)
	assert.InDelta(t, 33.33, last.ProgressPercentage, 0.01)
}

func TestSessionService_Complete_PricesConsumedEnergy(t *testing.T) {
	f := newSessionFixture(t)
	session := f.charging(t)
	ctx := context.Background()
	base := time.Now().UTC()

	_, err := f.svc.RecordTelemetry(ctx, f.owner(), session.ID, models.TelemetrySample{
		Timestamp: base, SOC: 25, PowerKW: 40,
	})
	require.NoError(t, err)
	_, err = f.svc.RecordTelemetry(ctx, f.owner(), session.ID, models.TelemetrySample{
		Timestamp: base.Add(time.Hour), SOC: 70, PowerKW: 40,
	})
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, f.owner(), session.ID, models.SessionStatusStopping)
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, f.owner(), session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, completed.Status)
	require.NotNil(t, completed.Termination)
	assert.True(t, completed.Termination.WasSuccessful)
	assert.Equal(t, models.TerminatedByUser, completed.Termination.TerminatedBy)

	// 40 kWh at the booking's 18/kWh snapshot.
	assert.Equal(t, 720.0, completed.TotalCost)

	booking, err := f.bookings.GetByID(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, booking.Status)
	require.NotNil(t, booking.Pricing.ActualCost)
	assert.Equal(t, 720.0, *booking.Pricing.ActualCost)

	assert.Equal(t, 1, f.charger.calls)

	station, err := f.stations.GetByID(ctx, f.station.ID)
	require.NoError(t, err)
	assert.Equal(t, f.station.AvailablePorts, station.AvailablePorts)
}

func TestSessionService_Fail_MarksTermination(t *testing.T) {
	f := newSessionFixture(t)
	session := f.charging(t)

	failed, err := f.svc.Fail(context.Background(), f.owner(), session.ID, models.SessionStatusInterrupted, "cable unplugged")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusInterrupted, failed.Status)
	require.NotNil(t, failed.Termination)
	assert.False(t, failed.Termination.WasSuccessful)
	assert.Equal(t, models.TerminatedByUser, failed.Termination.TerminatedBy)

	_, err = f.svc.Fail(context.Background(), f.owner(), session.ID, models.SessionStatusFailed, "again")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestSessionService_Get_ForbiddenForStranger(t *testing.T) {
	f := newSessionFixture(t)
	session := f.start(t)

	_, err := f.svc.Get(context.Background(), auth.Identity{UserID: 999, Role: auth.RoleUser}, session.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err := f.svc.Get(context.Background(), auth.Identity{UserID: 999, Role: auth.RoleAdmin}, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}
