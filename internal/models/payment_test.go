package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"electra/internal/apperr"
)

func newPayment(status PaymentStatus, amount float64) *Payment {
	return &Payment{
		PaymentCode: NewPaymentCode(time.Now()),
		UserID:      1,
		Amount:      amount,
		Currency:    "INR",
		Method:      "upi",
		Status:      status,
		Timestamps:  PaymentTimestamps{InitiatedAt: time.Now().UTC()},
	}
}

func TestPayment_StatusTransitions(t *testing.T) {
	now := time.Now()
	p := newPayment(PaymentStatusInitiated, 200)

	require.NoError(t, p.SetStatus(now, PaymentStatusPending))
	require.NoError(t, p.SetStatus(now, PaymentStatusProcessing))
	require.NoError(t, p.SetStatus(now, PaymentStatusSuccess))
	assert.Equal(t, PaymentStatusSuccess, p.Status)

	err := p.SetStatus(now, PaymentStatusProcessing)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}

func TestPayment_SetStatus_SkippingStatesRejected(t *testing.T) {
	p := newPayment(PaymentStatusInitiated, 100)
	err := p.SetStatus(time.Now(), PaymentStatusSuccess)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	assert.Equal(t, PaymentStatusInitiated, p.Status)
}

func TestPayment_TimestampsStampedOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newPayment(PaymentStatusInitiated, 200)

	require.NoError(t, p.SetStatus(now, PaymentStatusPending))
	require.NoError(t, p.SetStatus(now, PaymentStatusProcessing))
	require.NotNil(t, p.Timestamps.ProcessingAt)
	firstProcessing := *p.Timestamps.ProcessingAt

	require.NoError(t, p.SetStatus(now.Add(time.Hour), PaymentStatusSuccess))
	require.NotNil(t, p.Timestamps.CompletedAt)
	firstCompleted := *p.Timestamps.CompletedAt
	invoice := p.InvoiceNumber
	require.NotEmpty(t, invoice)

	// Re-delivered webhooks repeat the same target status; nothing may move.
	require.NoError(t, p.SetStatus(now.Add(2*time.Hour), PaymentStatusSuccess))
	assert.Equal(t, firstProcessing, *p.Timestamps.ProcessingAt)
	assert.Equal(t, firstCompleted, *p.Timestamps.CompletedAt)
	assert.Equal(t, invoice, p.InvoiceNumber)
}

func TestPayment_InvoiceOnlyOnSuccess(t *testing.T) {
	now := time.Now()
	p := newPayment(PaymentStatusInitiated, 150)

	require.NoError(t, p.SetStatus(now, PaymentStatusPending))
	assert.Empty(t, p.InvoiceNumber)

	require.NoError(t, p.SetStatus(now, PaymentStatusProcessing))
	assert.Empty(t, p.InvoiceNumber)

	require.NoError(t, p.SetStatus(now, PaymentStatusSuccess))
	assert.Regexp(t, `^INV-\d{8}-[0-9A-F]{6}$`, p.InvoiceNumber)
	require.NotNil(t, p.InvoiceGeneratedAt)
}

func TestPayment_InitiateRefund_Full(t *testing.T) {
	now := time.Now()
	p := newPayment(PaymentStatusSuccess, 200)

	require.NoError(t, p.InitiateRefund(now, 200, "booking cancelled", TerminatedByUser))

	assert.Equal(t, PaymentStatusRefunded, p.Status)
	require.NotNil(t, p.Refund)
	assert.Equal(t, 200.0, p.Refund.Amount)
	assert.Equal(t, RefundStateInitiated, p.Refund.Status)
	assert.Equal(t, TerminatedByUser, p.Refund.InitiatedBy)
}

func TestPayment_InitiateRefund_Partial(t *testing.T) {
	p := newPayment(PaymentStatusSuccess, 200)

	require.NoError(t, p.InitiateRefund(time.Now(), 50, "late cancellation", TerminatedByAdmin))

	assert.Equal(t, PaymentStatusPartialRefund, p.Status)
	assert.Equal(t, 50.0, p.Refund.Amount)
}

func TestPayment_InitiateRefund_ZeroDefaultsToFull(t *testing.T) {
	p := newPayment(PaymentStatusSuccess, 300)
	require.NoError(t, p.InitiateRefund(time.Now(), 0, "", ""))
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.Equal(t, 300.0, p.Refund.Amount)
	assert.Equal(t, TerminatedByUser, p.Refund.InitiatedBy)
}

func TestPayment_InitiateRefund_AmountExceedsOriginal(t *testing.T) {
	p := newPayment(PaymentStatusSuccess, 200)

	err := p.InitiateRefund(time.Now(), 200.01, "", TerminatedByUser)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidAmount))
	assert.Equal(t, PaymentStatusSuccess, p.Status)
	assert.Nil(t, p.Refund)
}

func TestPayment_InitiateRefund_NotRefundable(t *testing.T) {
	for _, status := range []PaymentStatus{
		PaymentStatusInitiated, PaymentStatusPending, PaymentStatusProcessing,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired,
	} {
		p := newPayment(status, 200)
		err := p.InitiateRefund(time.Now(), 100, "", TerminatedByUser)
		require.Error(t, err, "status %s", status)
		assert.True(t, apperr.IsKind(err, apperr.KindNotRefundable))
	}

	// A prior refund blocks a second one.
	p := newPayment(PaymentStatusSuccess, 200)
	require.NoError(t, p.InitiateRefund(time.Now(), 50, "", TerminatedByUser))
	p.Status = PaymentStatusSuccess
	err := p.InitiateRefund(time.Now(), 50, "", TerminatedByUser)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotRefundable))
}

func TestPayment_MarkFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newPayment(PaymentStatusProcessing, 200)

	p.MarkFailed(now, "GATEWAY_TIMEOUT", "provider did not respond")

	assert.Equal(t, PaymentStatusFailed, p.Status)
	require.NotNil(t, p.Timestamps.FailedAt)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "GATEWAY_TIMEOUT", p.Errors[0].Code)

	// Second failure appends an error but keeps the original stamp.
	first := *p.Timestamps.FailedAt
	p.MarkFailed(now.Add(time.Minute), "RETRY_FAILED", "retry also failed")
	assert.Equal(t, first, *p.Timestamps.FailedAt)
	assert.Len(t, p.Errors, 2)
}

func TestPayment_NetAmount(t *testing.T) {
	p := newPayment(PaymentStatusSuccess, 1000)

	s := p.NetAmount()

	assert.InDelta(t, 1000.0, s.GrossAmount, 1e-9)
	assert.InDelta(t, 20.0, s.GatewayFee, 1e-9)
	assert.InDelta(t, 3.6, s.GST, 1e-9)
	assert.InDelta(t, 23.6, s.TotalFees, 1e-9)
	assert.InDelta(t, 976.4, s.NetAmount, 1e-9)
}

func TestPayment_NetAmount_Rounding(t *testing.T) {
	p := newPayment(PaymentStatusSuccess, 333.33)

	s := p.NetAmount()

	assert.InDelta(t, 6.67, s.GatewayFee, 1e-9)
	assert.InDelta(t, 1.2, s.GST, 1e-9)
	assert.InDelta(t, 325.46, s.NetAmount, 1e-9)
}

func TestPayment_AddWebhookEvent(t *testing.T) {
	p := newPayment(PaymentStatusPending, 100)
	p.AddWebhookEvent(time.Now(), "payment.captured", []byte(`{"id":"pay_123"}`))
	require.Len(t, p.Webhooks, 1)
	assert.Equal(t, "payment.captured", p.Webhooks[0].Event)
}

func TestNewPaymentCode_Format(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	code := NewPaymentCode(now)
	assert.Regexp(t, `^PAY-20260301-[0-9A-F]{8}$`, code)
	assert.NotEqual(t, code, NewPaymentCode(now))
}
