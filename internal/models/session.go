package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"electra/internal/apperr"
)

// SessionStatus is the charging-session state machine position.
type SessionStatus string

const (
	SessionStatusInitiated      SessionStatus = "initiated"
	SessionStatusAuthenticating SessionStatus = "authenticating"
	SessionStatusStarting       SessionStatus = "starting"
	SessionStatusCharging       SessionStatus = "charging"
	SessionStatusPaused         SessionStatus = "paused"
	SessionStatusResuming       SessionStatus = "resuming"
	SessionStatusStopping       SessionStatus = "stopping"
	SessionStatusCompleted      SessionStatus = "completed"
	SessionStatusFailed         SessionStatus = "failed"
	SessionStatusInterrupted    SessionStatus = "interrupted"
	SessionStatusTimeout        SessionStatus = "timeout"
)

// Terminator values for session completion metadata.
const (
	TerminatedByUser   = "user"
	TerminatedByAdmin  = "admin"
	TerminatedBySystem = "system"
)

// TelemetrySample is one point on the charging curve.
type TelemetrySample struct {
	Timestamp time.Time `json:"timestamp"`
	SOC       float64   `json:"soc"`
	PowerKW   float64   `json:"power_kw"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
}

// PauseInterval records one pause with its open or closed end.
type PauseInterval struct {
	PausedAt  time.Time  `json:"paused_at"`
	ResumedAt *time.Time `json:"resumed_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Termination describes how a session ended.
type Termination struct {
	TerminatedBy  string `json:"terminated_by"`
	Reason        string `json:"reason,omitempty"`
	WasSuccessful bool   `json:"was_successful"`
}

// ChargingData holds SOC bounds and running telemetry aggregates.
type ChargingData struct {
	InitialSOC     float64           `json:"initial_soc"`
	CurrentSOC     float64           `json:"current_soc"`
	TargetSOC      float64           `json:"target_soc"`
	FinalSOC       *float64          `json:"final_soc,omitempty"`
	KWhConsumed    float64           `json:"kwh_consumed"`
	CurrentPowerKW float64           `json:"current_power_kw"`
	MaxPowerKW     float64           `json:"max_power_kw"`
	AveragePowerKW float64           `json:"average_power_kw"`
	Voltage        float64           `json:"voltage,omitempty"`
	Current        float64           `json:"current,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	Curve          []TelemetrySample `json:"curve,omitempty"`
}

// ChargingSession is one physical charging event tied to a booking.
// Sessions are never deleted; terminal states end the state machine.
type ChargingSession struct {
	ID                 int64         `db:"id" json:"id"`
	SessionCode        string        `db:"session_code" json:"session_code"`
	BookingID          int64         `db:"booking_id" json:"booking_id"`
	UserID             int64         `db:"user_id" json:"user_id"`
	StationID          int64         `db:"station_id" json:"station_id"`
	Status             SessionStatus `db:"status" json:"status"`
	Charging           ChargingData  `db:"charging_data" json:"charging_data"`
	BatteryCapacityKWh float64       `db:"battery_capacity_kwh" json:"battery_capacity_kwh,omitempty"`
	StartedAt          time.Time     `db:"started_at" json:"started_at"`
	EndedAt            *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	Pauses             []PauseInterval `db:"pauses" json:"pauses,omitempty"`
	Termination        *Termination  `db:"termination" json:"termination,omitempty"`
	DurationMinutes    int           `db:"duration_minutes" json:"duration_minutes"`
	TotalCost          float64       `db:"total_cost" json:"total_cost"`
	Version            int64         `db:"version" json:"version"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// NewSessionCode generates a unique SES-YYYYMMDD-XXXXXXXX reference.
func NewSessionCode(now time.Time) string {
	return fmt.Sprintf("SES-%s-%s", now.UTC().Format("20060102"), referenceSuffix(8))
}

func referenceSuffix(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if len(s) > n {
		s = s[:n]
	}
	return s
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusInitiated:      {SessionStatusAuthenticating},
	SessionStatusAuthenticating: {SessionStatusStarting, SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout},
	SessionStatusStarting:       {SessionStatusCharging, SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout},
	SessionStatusCharging:       {SessionStatusPaused, SessionStatusStopping, SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout},
	SessionStatusPaused:         {SessionStatusResuming, SessionStatusCharging},
	SessionStatusResuming:       {SessionStatusCharging},
	SessionStatusStopping:       {SessionStatusCompleted},
}

// IsTerminal reports whether the session state machine has ended.
func (s *ChargingSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout:
		return true
	}
	return false
}

// TransitionTo validates and applies a state-machine move.
func (s *ChargingSession) TransitionTo(next SessionStatus) error {
	for _, allowed := range sessionTransitions[s.Status] {
		if allowed == next {
			s.Status = next
			return nil
		}
	}
	return apperr.Newf(apperr.KindInvalidTransition, "session cannot move from %q to %q", s.Status, next)
}

// Pause is legal only while charging; it opens a pause interval.
func (s *ChargingSession) Pause(now time.Time, reason string) error {
	if s.Status != SessionStatusCharging {
		return apperr.Newf(apperr.KindInvalidTransition, "session in status %q cannot be paused", s.Status)
	}
	if reason == "" {
		reason = "User requested"
	}
	s.Pauses = append(s.Pauses, PauseInterval{PausedAt: now.UTC(), Reason: reason})
	s.Status = SessionStatusPaused
	return nil
}

// Resume is legal only while paused; it closes the open pause interval.
func (s *ChargingSession) Resume(now time.Time) error {
	if s.Status != SessionStatusPaused {
		return apperr.Newf(apperr.KindInvalidTransition, "session in status %q cannot be resumed", s.Status)
	}
	if n := len(s.Pauses); n > 0 && s.Pauses[n-1].ResumedAt == nil {
		t := now.UTC()
		s.Pauses[n-1].ResumedAt = &t
	}
	s.Status = SessionStatusCharging
	return nil
}

// Complete ends the session from any non-terminal state, freezing the
// final SOC and recording termination metadata.
func (s *ChargingSession) Complete(now time.Time, terminatedBy, reason string) error {
	if s.IsTerminal() {
		return apperr.Newf(apperr.KindInvalidTransition, "session in status %q is already terminal", s.Status)
	}
	if terminatedBy == "" {
		terminatedBy = TerminatedByUser
	}
	if reason == "" {
		reason = "Charging complete"
	}
	end := now.UTC()
	final := s.Charging.CurrentSOC
	s.Charging.FinalSOC = &final
	s.EndedAt = &end
	s.DurationMinutes = int(math.Round(end.Sub(s.StartedAt).Minutes()))
	s.Termination = &Termination{
		TerminatedBy:  terminatedBy,
		Reason:        reason,
		WasSuccessful: true,
	}
	s.Status = SessionStatusCompleted
	return nil
}

// Fail moves the session into one of the terminal failure states. Only
// the hot path of the machine can fail this way.
func (s *ChargingSession) Fail(now time.Time, into SessionStatus, terminatedBy, reason string) error {
	switch into {
	case SessionStatusFailed, SessionStatusInterrupted, SessionStatusTimeout:
	default:
		return apperr.Newf(apperr.KindValidation, "%q is not a failure status", into)
	}
	switch s.Status {
	case SessionStatusAuthenticating, SessionStatusStarting, SessionStatusCharging:
	default:
		return apperr.Newf(apperr.KindInvalidTransition, "session in status %q cannot fail into %q", s.Status, into)
	}
	end := now.UTC()
	final := s.Charging.CurrentSOC
	s.Charging.FinalSOC = &final
	s.EndedAt = &end
	s.DurationMinutes = int(math.Round(end.Sub(s.StartedAt).Minutes()))
	s.Termination = &Termination{
		TerminatedBy:  terminatedBy,
		Reason:        reason,
		WasSuccessful: false,
	}
	s.Status = into
	return nil
}

// RecordTelemetry appends a sample and refreshes the running aggregates.
// Energy is integrated trapezoidally between consecutive samples.
func (s *ChargingSession) RecordTelemetry(sample TelemetrySample) error {
	switch s.Status {
	case SessionStatusStarting, SessionStatusCharging:
	default:
		return apperr.Newf(apperr.KindInvalidTransition, "session in status %q does not accept telemetry", s.Status)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	sample.Timestamp = sample.Timestamp.UTC()

	if n := len(s.Charging.Curve); n > 0 {
		prev := s.Charging.Curve[n-1]
		dt := sample.Timestamp.Sub(prev.Timestamp).Hours()
		if dt > 0 {
			s.Charging.KWhConsumed += (prev.PowerKW + sample.PowerKW) / 2 * dt
		}
	}
	s.Charging.Curve = append(s.Charging.Curve, sample)

	s.Charging.CurrentSOC = sample.SOC
	s.Charging.CurrentPowerKW = sample.PowerKW
	s.Charging.Voltage = sample.Voltage
	s.Charging.Current = sample.Current
	if sample.PowerKW > s.Charging.MaxPowerKW {
		s.Charging.MaxPowerKW = sample.PowerKW
	}
	var sum float64
	for _, pt := range s.Charging.Curve {
		sum += pt.PowerKW
	}
	s.Charging.AveragePowerKW = sum / float64(len(s.Charging.Curve))
	return nil
}

// ProgressPercentage reports charge progress clamped to [0,100],
// rounded to two decimals. Defined as 100 when target <= initial.
func (s *ChargingSession) ProgressPercentage() float64 {
	initial := s.Charging.InitialSOC
	target := s.Charging.TargetSOC
	current := s.Charging.CurrentSOC
	if target <= initial {
		return 100
	}
	pct := (current - initial) / (target - initial) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}

// EstimatedTimeRemaining returns remaining charge time in whole minutes,
// or 0 when average power or battery capacity is unknown, or the target
// has been reached.
func (s *ChargingSession) EstimatedTimeRemaining() int {
	current := s.Charging.CurrentSOC
	if current == 0 {
		current = s.Charging.InitialSOC
	}
	avgPower := s.Charging.AveragePowerKW
	if avgPower == 0 {
		avgPower = s.Charging.CurrentPowerKW
	}
	if avgPower == 0 || s.BatteryCapacityKWh == 0 || current >= s.Charging.TargetSOC {
		return 0
	}
	remainingKWh := (s.Charging.TargetSOC - current) / 100 * s.BatteryCapacityKWh
	return int(math.Round(remainingKWh / avgPower * 60))
}
