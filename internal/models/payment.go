package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"electra/internal/apperr"
)

// PaymentStatus is the ledger state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusInitiated     PaymentStatus = "initiated"
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusProcessing    PaymentStatus = "processing"
	PaymentStatusSuccess       PaymentStatus = "success"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
	PaymentStatusExpired       PaymentStatus = "expired"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial-refund"
)

// Refund sub-record states.
const (
	RefundStateInitiated  = "initiated"
	RefundStateProcessing = "processing"
	RefundStateCompleted  = "completed"
	RefundStateFailed     = "failed"
)

// Breakdown itemizes the charged amount.
type Breakdown struct {
	BaseAmount     float64 `json:"base_amount"`
	Tax            float64 `json:"tax"`
	ServiceFee     float64 `json:"service_fee"`
	Discount       float64 `json:"discount"`
	CouponDiscount float64 `json:"coupon_discount"`
	ConvenienceFee float64 `json:"convenience_fee"`
}

// ProviderRef identifies the payment at the external provider.
type ProviderRef struct {
	Name      string `json:"name"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Refund is the embedded refund sub-record; it is the only part of a
// payment that may change after the status reaches a terminal value.
type Refund struct {
	Amount      float64    `json:"amount"`
	RefundID    string     `json:"refund_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	InitiatedAt time.Time  `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	InitiatedBy string     `json:"initiated_by"`
}

// PaymentError is one entry in the payment's error log.
type PaymentError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WebhookEvent is a raw provider callback retained for audit.
type WebhookEvent struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// PaymentTimestamps are stamped exactly once per status.
type PaymentTimestamps struct {
	InitiatedAt  time.Time  `json:"initiated_at"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Settlement is the fee reconciliation of a payment amount.
type Settlement struct {
	GrossAmount float64 `json:"gross_amount"`
	GatewayFee  float64 `json:"gateway_fee"`
	GST         float64 `json:"gst"`
	TotalFees   float64 `json:"total_fees"`
	NetAmount   float64 `json:"net_amount"`
}

// Payment records one charge attempt against a booking or session.
type Payment struct {
	ID                 int64             `db:"id" json:"id"`
	PaymentCode        string            `db:"payment_code" json:"payment_code"`
	UserID             int64             `db:"user_id" json:"user_id"`
	BookingID          *int64            `db:"booking_id" json:"booking_id,omitempty"`
	SessionID          *int64            `db:"session_id" json:"session_id,omitempty"`
	Type               string            `db:"payment_type" json:"payment_type"`
	Amount             float64           `db:"amount" json:"amount"`
	Currency           string            `db:"currency" json:"currency"`
	Method             string            `db:"method" json:"method"`
	Breakdown          Breakdown         `db:"breakdown" json:"breakdown"`
	Status             PaymentStatus     `db:"status" json:"status"`
	Provider           ProviderRef       `db:"provider" json:"provider"`
	Refund             *Refund           `db:"refund" json:"refund,omitempty"`
	Timestamps         PaymentTimestamps `db:"timestamps" json:"timestamps"`
	InvoiceNumber      string            `db:"invoice_number" json:"invoice_number,omitempty"`
	InvoiceGeneratedAt *time.Time        `db:"invoice_generated_at" json:"invoice_generated_at,omitempty"`
	Errors             []PaymentError    `db:"errors" json:"errors,omitempty"`
	Webhooks           []WebhookEvent    `db:"webhooks" json:"webhooks,omitempty"`
	Version            int64             `db:"version" json:"version"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// NewPaymentCode generates a unique PAY-YYYYMMDD-XXXXXXXX reference.
func NewPaymentCode(now time.Time) string {
	return fmt.Sprintf("PAY-%s-%s", now.UTC().Format("20060102"), referenceSuffix(8))
}

func newInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), referenceSuffix(6))
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated:  {PaymentStatusPending, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusProcessing: {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
}

// IsTerminal reports whether the payment status machine has ended.
// Refund transitions out of success are driven only by InitiateRefund.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled,
		PaymentStatusExpired, PaymentStatusRefunded, PaymentStatusPartialRefund:
		return true
	}
	return false
}

// SetStatus applies a provider-driven status transition. Re-applying the
// current status is a no-op so webhook retries never overwrite stamps.
func (p *Payment) SetStatus(now time.Time, next PaymentStatus) error {
	if p.Status == next {
		return nil
	}
	allowed := false
	for _, s := range paymentTransitions[p.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperr.Newf(apperr.KindInvalidTransition, "payment cannot move from %q to %q", p.Status, next)
	}
	p.Status = next
	p.stampStatus(now)
	return nil
}

// stampStatus writes the status timestamp and invoice number on the
// first observation of the corresponding status only.
func (p *Payment) stampStatus(now time.Time) {
	ts := now.UTC()
	switch p.Status {
	case PaymentStatusProcessing:
		if p.Timestamps.ProcessingAt == nil {
			p.Timestamps.ProcessingAt = &ts
		}
	case PaymentStatusSuccess:
		if p.Timestamps.CompletedAt == nil {
			p.Timestamps.CompletedAt = &ts
		}
		if p.InvoiceNumber == "" {
			p.InvoiceNumber = newInvoiceNumber(now)
			p.InvoiceGeneratedAt = &ts
		}
	case PaymentStatusFailed:
		if p.Timestamps.FailedAt == nil {
			p.Timestamps.FailedAt = &ts
		}
	}
}

// CanBeRefunded reports whether a refund may be initiated.
func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusSuccess && p.Refund == nil
}

// InitiateRefund opens the refund sub-record and moves the payment to
// refunded or partial-refund depending on the requested amount.
func (p *Payment) InitiateRefund(now time.Time, amount float64, reason, initiatedBy string) error {
	if !p.CanBeRefunded() {
		return apperr.New(apperr.KindNotRefundable, "payment cannot be refunded")
	}
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 || amount > p.Amount {
		return apperr.New(apperr.KindInvalidAmount, "refund amount cannot exceed payment amount")
	}
	if initiatedBy == "" {
		initiatedBy = TerminatedByUser
	}
	p.Refund = &Refund{
		Amount:      amount,
		Reason:      reason,
		Status:      RefundStateInitiated,
		InitiatedAt: now.UTC(),
		InitiatedBy: initiatedBy,
	}
	if amount == p.Amount {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartialRefund
	}
	return nil
}

// MarkFailed unconditionally fails the payment and appends to the error
// log. The failure timestamp is stamped on first failure only.
func (p *Payment) MarkFailed(now time.Time, code, message string) {
	p.Status = PaymentStatusFailed
	ts := now.UTC()
	if p.Timestamps.FailedAt == nil {
		p.Timestamps.FailedAt = &ts
	}
	p.Errors = append(p.Errors, PaymentError{
		Code:       code,
		Message:    message,
		OccurredAt: ts,
	})
}

// AddWebhookEvent retains a raw provider callback.
func (p *Payment) AddWebhookEvent(now time.Time, event string, payload json.RawMessage) {
	p.Webhooks = append(p.Webhooks, WebhookEvent{
		Event:      event,
		Payload:    payload,
		ReceivedAt: now.UTC(),
	})
}

// NetAmount reconciles the payment after provider fees: 2% gateway fee
// plus 18% GST on that fee, each rounded to two decimals.
func (p *Payment) NetAmount() Settlement {
	gatewayFee := round2(p.Amount * 0.02)
	gst := round2(gatewayFee * 0.18)
	totalFees := round2(gatewayFee + gst)
	return Settlement{
		GrossAmount: p.Amount,
		GatewayFee:  gatewayFee,
		GST:         gst,
		TotalFees:   totalFees,
		NetAmount:   round2(p.Amount - gatewayFee - gst),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
