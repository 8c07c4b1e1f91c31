package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electra/internal/apperr"
)

func newChargingSession(status SessionStatus) *ChargingSession {
	return &ChargingSession{
		SessionCode: NewSessionCode(time.Now()),
		BookingID:   1,
		UserID:      2,
		StationID:   3,
		Status:      status,
		Charging: ChargingData{
			InitialSOC: 20,
			CurrentSOC: 20,
			TargetSOC:  80,
		},
		BatteryCapacityKWh: 75,
		StartedAt:          time.Now().UTC().Add(-10 * time.Minute),
	}
}

func TestSession_PauseOnlyFromCharging(t *testing.T) {
	now := time.Now()

	s := newChargingSession(SessionStatusCharging)
	require.NoError(t, s.Pause(now, "lunch break"))
	assert.Equal(t, SessionStatusPaused, s.Status)
	require.Len(t, s.Pauses, 1)
	assert.Equal(t, "lunch break", s.Pauses[0].Reason)
	assert.Nil(t, s.Pauses[0].ResumedAt)

	for _, status := range []SessionStatus{
		SessionStatusInitiated, SessionStatusAuthenticating, SessionStatusStarting,
		SessionStatusPaused, SessionStatusCompleted, SessionStatusFailed,
	} {
		s := newChargingSession(status)
		err := s.Pause(now, "")
		require.Error(t, err, "status %s", status)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
		assert.Equal(t, status, s.Status, "state must be unchanged")
	}
}

func TestSession_ResumeOnlyFromPaused(t *testing.T) {
	now := time.Now()

	s := newChargingSession(SessionStatusCharging)
	require.NoError(t, s.Pause(now, ""))
	require.NoError(t, s.Resume(now.Add(5*time.Minute)))

	assert.Equal(t, SessionStatusCharging, s.Status)
	require.Len(t, s.Pauses, 1)
	require.NotNil(t, s.Pauses[0].ResumedAt)

	for _, status := range []SessionStatus{SessionStatusCharging, SessionStatusCompleted, SessionStatusInitiated} {
		s := newChargingSession(status)
		err := s.Resume(now)
		require.Error(t, err, "status %s", status)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
		assert.Equal(t, status, s.Status)
	}
}

func TestSession_CompleteFromAnyActiveState(t *testing.T) {
	now := time.Now()
	active := []SessionStatus{
		SessionStatusInitiated, SessionStatusAuthenticating, SessionStatusStarting,
		SessionStatusCharging, SessionStatusPaused, SessionStatusResuming, SessionStatusStopping,
	}
	for _, status := range active {
		s := newChargingSession(status)
		s.Charging.CurrentSOC = 64

		require.NoError(t, s.Complete(now, TerminatedByAdmin, "operator stop"), "status %s", status)
		assert.Equal(t, SessionStatusCompleted, s.Status)
		require.NotNil(t, s.Charging.FinalSOC)
		assert.Equal(t, 64.0, *s.Charging.FinalSOC)
		require.NotNil(t, s.EndedAt)
		require.NotNil(t, s.Termination)
		assert.Equal(t, TerminatedByAdmin, s.Termination.TerminatedBy)
		assert.True(t, s.Termination.WasSuccessful)
	}

	s := newChargingSession(SessionStatusFailed)
	err := s.Complete(now, TerminatedByUser, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}

func TestSession_FailOnlyFromHotStates(t *testing.T) {
	now := time.Now()

	for _, status := range []SessionStatus{SessionStatusAuthenticating, SessionStatusStarting, SessionStatusCharging} {
		for _, into := range []SessionStatus{SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout} {
			s := newChargingSession(status)
			require.NoError(t, s.Fail(now, into, TerminatedBySystem, "connector fault"))
			assert.Equal(t, into, s.Status)
			require.NotNil(t, s.Termination)
			assert.False(t, s.Termination.WasSuccessful)
		}
	}

	s := newChargingSession(SessionStatusPaused)
	err := s.Fail(now, SessionStatusFailed, TerminatedBySystem, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))

	s = newChargingSession(SessionStatusCharging)
	err = s.Fail(now, SessionStatusCompleted, TerminatedBySystem, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSession_TransitionTable(t *testing.T) {
	s := newChargingSession(SessionStatusInitiated)

	require.NoError(t, s.TransitionTo(SessionStatusAuthenticating))
	require.NoError(t, s.TransitionTo(SessionStatusStarting))
	require.NoError(t, s.TransitionTo(SessionStatusCharging))

	err := s.TransitionTo(SessionStatusCompleted)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	assert.Equal(t, SessionStatusCharging, s.Status)
}

func TestSession_RecordTelemetry_Aggregates(t *testing.T) {
	s := newChargingSession(SessionStatusCharging)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordTelemetry(TelemetrySample{Timestamp: base, SOC: 25, PowerKW: 40, Voltage: 400, Current: 100}))
	require.NoError(t, s.RecordTelemetry(TelemetrySample{Timestamp: base.Add(30 * time.Minute), SOC: 45, PowerKW: 60, Voltage: 410, Current: 140}))
	require.NoError(t, s.RecordTelemetry(TelemetrySample{Timestamp: base.Add(60 * time.Minute), SOC: 60, PowerKW: 50, Voltage: 405, Current: 120}))

	assert.Equal(t, 60.0, s.Charging.CurrentSOC)
	assert.Equal(t, 50.0, s.Charging.CurrentPowerKW)
	assert.Equal(t, 60.0, s.Charging.MaxPowerKW)
	assert.InDelta(t, 50.0, s.Charging.AveragePowerKW, 0.001)
	// Trapezoid: (40+60)/2*0.5h + (60+50)/2*0.5h = 25 + 27.5
	assert.InDelta(t, 52.5, s.Charging.KWhConsumed, 0.001)
	assert.Len(t, s.Charging.Curve, 3)
}

func TestSession_RecordTelemetry_RejectedWhenNotCharging(t *testing.T) {
	for _, status := range []SessionStatus{SessionStatusPaused, SessionStatusCompleted, SessionStatusInitiated} {
		s := newChargingSession(status)
		err := s.RecordTelemetry(TelemetrySample{SOC: 50})
		require.Error(t, err, "status %s", status)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	}
}

func TestSession_ProgressPercentage(t *testing.T) {
	tests := []struct {
		name    string
		initial float64
		current float64
		target  float64
		want    float64
	}{
		{"two thirds of the way", 20, 60, 80, 66.67},
		{"at start", 20, 20, 80, 0},
		{"at target", 20, 80, 80, 100},
		{"beyond target clamps to 100", 20, 95, 80, 100},
		{"below initial clamps to 0", 20, 10, 80, 0},
		{"target below initial is 100", 80, 50, 60, 100},
		{"target equals initial is 100", 50, 50, 50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newChargingSession(SessionStatusCharging)
			s.Charging.InitialSOC = tt.initial
			s.Charging.CurrentSOC = tt.current
			s.Charging.TargetSOC = tt.target
			assert.InDelta(t, tt.want, s.ProgressPercentage(), 0.001)
		})
	}
}

func TestSession_ProgressScenario(t *testing.T) {
	s := newChargingSession(SessionStatusCharging)
	base := time.Now().UTC()
	for i, soc := range []float64{30, 45, 60} {
		require.NoError(t, s.RecordTelemetry(TelemetrySample{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Minute),
			SOC:       soc,
			PowerKW:   50,
		}))
	}
	assert.InDelta(t, 66.67, s.ProgressPercentage(), 0.001)
}

func TestSession_EstimatedTimeRemaining(t *testing.T) {
	s := newChargingSession(SessionStatusCharging)
	s.Charging.CurrentSOC = 40
	s.Charging.AveragePowerKW = 50
	// (80-40)/100 * 75 = 30 kWh remaining; 30/50 * 60 = 36 minutes.
	assert.Equal(t, 36, s.EstimatedTimeRemaining())

	s.Charging.AveragePowerKW = 0
	s.Charging.CurrentPowerKW = 60
	assert.Equal(t, 30, s.EstimatedTimeRemaining())

	s.Charging.CurrentPowerKW = 0
	assert.Equal(t, 0, s.EstimatedTimeRemaining())

	s.Charging.AveragePowerKW = 50
	s.BatteryCapacityKWh = 0
	assert.Equal(t, 0, s.EstimatedTimeRemaining())

	s.BatteryCapacityKWh = 75
	s.Charging.CurrentSOC = 85
	assert.Equal(t, 0, s.EstimatedTimeRemaining())
}

func TestNewSessionCode_Format(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	code := NewSessionCode(now)
	assert.Regexp(t, `^SES-20260301-[0-9A-F]{8}$`, code)
	assert.NotEqual(t, code, NewSessionCode(now))
}
