package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electra/internal/apperr"
)

func newBooking(start, end time.Time) *Booking {
	b := &Booking{
		UserID:    1,
		StationID: 2,
		Status:    BookingStatusPending,
		Pricing: Pricing{
			RatePerKWh:    12,
			EstimatedCost: 600,
			Currency:      "INR",
		},
		PaymentState: PaymentStatePending,
	}
	if err := b.SetWindow(start, end); err != nil {
		panic(err)
	}
	return b
}

func TestBooking_SetWindow_RecomputesDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := newBooking(start, start.Add(90*time.Minute))
	assert.Equal(t, 90, b.DurationMinutes)

	require.NoError(t, b.SetWindow(start, start.Add(2*time.Hour)))
	assert.Equal(t, 120, b.DurationMinutes)
}

func TestBooking_SetWindow_RejectsInvertedWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := &Booking{}
	err := b.SetWindow(start, start)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestBooking_SetActualCost_RecomputesTotal(t *testing.T) {
	start := time.Now().Add(48 * time.Hour)
	b := newBooking(start, start.Add(time.Hour))
	b.Pricing.Tax = 50
	b.Pricing.ServiceFee = 20
	b.Pricing.Discount = 30

	b.SetActualCost(500)

	require.NotNil(t, b.Pricing.ActualCost)
	assert.Equal(t, 500.0, *b.Pricing.ActualCost)
	assert.Equal(t, 540.0, b.Pricing.TotalCost)
}

func TestBooking_RefundTiers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		leadTime   time.Duration
		wantRefund float64
	}{
		{"more than 24h gets full refund", 30 * time.Hour, 1000},
		{"exactly 24h gets half", 24 * time.Hour, 500},
		{"between 2h and 24h gets half", 10 * time.Hour, 500},
		{"exactly 2h gets nothing", 2 * time.Hour, 0},
		{"under 2h gets nothing", 90 * time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBooking(now.Add(tt.leadTime), now.Add(tt.leadTime+time.Hour))
			b.SetActualCost(1000)
			assert.InDelta(t, tt.wantRefund, b.RefundableAmount(now), 0.001)
		})
	}
}

func TestBooking_RefundFallsBackToEstimate(t *testing.T) {
	now := time.Now()
	b := newBooking(now.Add(30*time.Hour), now.Add(31*time.Hour))
	assert.InDelta(t, 600, b.RefundableAmount(now), 0.001)
}

func TestBooking_Cancel_FullRefundScenario(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newBooking(now.Add(30*time.Hour), now.Add(31*time.Hour))
	b.SetActualCost(1000)

	require.NoError(t, b.Cancel(now, TerminatedByUser, "plans changed"))

	assert.Equal(t, BookingStatusCancelled, b.Status)
	require.NotNil(t, b.Cancellation)
	assert.Equal(t, 1000.0, b.Cancellation.RefundAmount)
	assert.Equal(t, RefundStatusPending, b.Cancellation.RefundStatus)
	assert.Equal(t, TerminatedByUser, b.Cancellation.CancelledBy)
	assert.Equal(t, now.UTC(), b.Cancellation.CancelledAt)
}

func TestBooking_Cancel_ShortLeadTimeAllowedWithoutRefund(t *testing.T) {
	// 1.5 hours out: still cancellable (cutoff is 1 hour) but inside the
	// zero-refund tier.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newBooking(now.Add(90*time.Minute), now.Add(3*time.Hour))
	b.SetActualCost(1000)

	require.NoError(t, b.Cancel(now, TerminatedByUser, ""))
	assert.Equal(t, 0.0, b.Cancellation.RefundAmount)
}

func TestBooking_Cancel_TooLate(t *testing.T) {
	now := time.Now()
	b := newBooking(now.Add(30*time.Minute), now.Add(90*time.Minute))

	err := b.Cancel(now, TerminatedByUser, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTooLateToCancel))
	assert.Equal(t, BookingStatusPending, b.Status)
}

func TestBooking_Cancel_RejectedFromTerminalStates(t *testing.T) {
	now := time.Now()
	for _, status := range []BookingStatus{BookingStatusActive, BookingStatusCompleted, BookingStatusCancelled} {
		b := newBooking(now.Add(48*time.Hour), now.Add(49*time.Hour))
		b.Status = status

		err := b.Cancel(now, TerminatedByAdmin, "")
		require.Error(t, err, "status %s", status)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	}
}

func TestBooking_Lifecycle(t *testing.T) {
	now := time.Now()
	b := newBooking(now.Add(2*time.Hour), now.Add(3*time.Hour))

	require.NoError(t, b.Confirm())
	assert.Equal(t, BookingStatusConfirmed, b.Status)

	require.NoError(t, b.Activate())
	require.NoError(t, b.Complete(450))

	assert.Equal(t, BookingStatusCompleted, b.Status)
	assert.Equal(t, 450.0, b.Pricing.TotalCost)

	err := b.Confirm()
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}

func TestBooking_MarkPaid_RequiresConfirmation(t *testing.T) {
	now := time.Now()
	b := newBooking(now.Add(2*time.Hour), now.Add(3*time.Hour))

	err := b.MarkPaid("upi", "txn-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	assert.Equal(t, PaymentStatePending, b.PaymentState)

	require.NoError(t, b.Confirm())
	require.NoError(t, b.MarkPaid("upi", "txn-1"))
	assert.Equal(t, PaymentStatePaid, b.PaymentState)
	assert.Equal(t, "txn-1", b.TransactionID)
}

func TestBooking_SetRefundOutcome(t *testing.T) {
	now := time.Now()
	b := newBooking(now.Add(48*time.Hour), now.Add(49*time.Hour))
	require.NoError(t, b.Confirm())
	require.NoError(t, b.MarkPaid("card", "txn-9"))
	require.NoError(t, b.Cancel(now, TerminatedByUser, ""))

	b.SetRefundOutcome(RefundStatusProcessed, false)
	assert.Equal(t, RefundStatusProcessed, b.Cancellation.RefundStatus)
	assert.Equal(t, PaymentStateRefunded, b.PaymentState)
}
