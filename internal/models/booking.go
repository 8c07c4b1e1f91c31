package models

import (
	"math"
	"time"

	"electra/internal/apperr"
)

// BookingStatus is the booking lifecycle state.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentState tracks money state on a booking, independent of its
// lifecycle status but constrained by it.
type PaymentState string

const (
	PaymentStatePending  PaymentState = "pending"
	PaymentStatePaid     PaymentState = "paid"
	PaymentStateFailed   PaymentState = "failed"
	PaymentStateRefunded PaymentState = "refunded"
	PaymentStatePartial  PaymentState = "partial"
)

// Pricing is the cost snapshot carried by a booking. ActualCost is nil
// until a charging session completes; TotalCost is derived from it.
type Pricing struct {
	RatePerKWh    float64  `json:"rate_per_kwh"`
	EstimatedCost float64  `json:"estimated_cost"`
	ActualCost    *float64 `json:"actual_cost,omitempty"`
	Tax           float64  `json:"tax"`
	Discount      float64  `json:"discount"`
	ServiceFee    float64  `json:"service_fee"`
	TotalCost     float64  `json:"total_cost"`
	Currency      string   `json:"currency"`
}

// RefundStatus of a cancellation.
const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

// Cancellation records who cancelled a booking and what refund it earned.
type Cancellation struct {
	CancelledBy  string    `json:"cancelled_by"`
	CancelledAt  time.Time `json:"cancelled_at"`
	Reason       string    `json:"reason,omitempty"`
	RefundAmount float64   `json:"refund_amount"`
	RefundStatus string    `json:"refund_status"`
}

// Booking reserves a station time window for a user.
type Booking struct {
	ID              int64         `db:"id" json:"id"`
	UserID          int64         `db:"user_id" json:"user_id"`
	StationID       int64         `db:"station_id" json:"station_id"`
	StartTime       time.Time     `db:"start_time" json:"start_time"`
	EndTime         time.Time     `db:"end_time" json:"end_time"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	Status          BookingStatus `db:"status" json:"status"`
	Pricing         Pricing       `db:"pricing" json:"pricing"`
	PaymentState    PaymentState  `db:"payment_state" json:"payment_state"`
	PaymentMethod   string        `db:"payment_method" json:"payment_method,omitempty"`
	TransactionID   string        `db:"transaction_id" json:"transaction_id,omitempty"`
	Cancellation    *Cancellation `db:"cancellation" json:"cancellation,omitempty"`
	Version         int64         `db:"version" json:"version"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the booking can no longer change lifecycle state.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCompleted || b.Status == BookingStatusCancelled
}

// SetWindow sets the reserved interval and recomputes the derived duration.
func (b *Booking) SetWindow(start, end time.Time) error {
	if !end.After(start) {
		return apperr.New(apperr.KindValidation, "end time must be after start time")
	}
	b.StartTime = start.UTC()
	b.EndTime = end.UTC()
	b.RecomputeDuration()
	return nil
}

// RecomputeDuration derives duration in whole minutes from the window bounds.
func (b *Booking) RecomputeDuration() {
	b.DurationMinutes = int(math.Round(b.EndTime.Sub(b.StartTime).Minutes()))
}

// SetActualCost records the realized session cost and recomputes the total.
func (b *Booking) SetActualCost(cost float64) {
	c := cost
	b.Pricing.ActualCost = &c
	b.recomputeTotal()
}

func (b *Booking) recomputeTotal() {
	if b.Pricing.ActualCost == nil {
		return
	}
	b.Pricing.TotalCost = *b.Pricing.ActualCost + b.Pricing.Tax + b.Pricing.ServiceFee - b.Pricing.Discount
}

// HoursUntilStart returns lead time to the reserved window in hours.
func (b *Booking) HoursUntilStart(now time.Time) float64 {
	return b.StartTime.Sub(now).Hours()
}

// CanBeCancelled reports whether cancellation is still legal.
func (b *Booking) CanBeCancelled(now time.Time) bool {
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return false
	}
	return b.HoursUntilStart(now) > 1
}

// RefundableAmount computes the refund entitlement by lead time:
// full above 24h, half between 2h and 24h, nothing at 2h or less.
func (b *Booking) RefundableAmount(now time.Time) float64 {
	base := b.Pricing.TotalCost
	if base == 0 {
		base = b.Pricing.EstimatedCost
	}
	hours := b.HoursUntilStart(now)
	switch {
	case hours > 24:
		return base
	case hours > 2:
		return base * 0.5
	default:
		return 0
	}
}

// Cancel moves the booking to cancelled and records the cancellation with
// its computed refund entitlement. Refund execution is the payment
// ledger's job; only the initial pending status is recorded here.
func (b *Booking) Cancel(now time.Time, cancelledBy, reason string) error {
	if b.Status != BookingStatusPending && b.Status != BookingStatusConfirmed {
		return apperr.Newf(apperr.KindInvalidTransition, "booking in status %q cannot be cancelled", b.Status)
	}
	if b.HoursUntilStart(now) <= 1 {
		return apperr.New(apperr.KindTooLateToCancel, "bookings can only be cancelled more than 1 hour before start")
	}
	b.Cancellation = &Cancellation{
		CancelledBy:  cancelledBy,
		CancelledAt:  now.UTC(),
		Reason:       reason,
		RefundAmount: b.RefundableAmount(now),
		RefundStatus: RefundStatusPending,
	}
	b.Status = BookingStatusCancelled
	return nil
}

// Confirm moves a pending booking to confirmed.
func (b *Booking) Confirm() error {
	if b.Status != BookingStatusPending {
		return apperr.Newf(apperr.KindInvalidTransition, "only pending bookings can be confirmed, got %q", b.Status)
	}
	b.Status = BookingStatusConfirmed
	return nil
}

// Activate marks the booking in use when its charging session starts.
func (b *Booking) Activate() error {
	if b.Status != BookingStatusConfirmed {
		return apperr.Newf(apperr.KindInvalidTransition, "only confirmed bookings can become active, got %q", b.Status)
	}
	b.Status = BookingStatusActive
	return nil
}

// Complete finalizes the booking with the realized session cost.
func (b *Booking) Complete(actualCost float64) error {
	if b.Status != BookingStatusActive {
		return apperr.Newf(apperr.KindInvalidTransition, "only active bookings can be completed, got %q", b.Status)
	}
	b.SetActualCost(actualCost)
	b.Status = BookingStatusCompleted
	return nil
}

// MarkPaid records a successful charge. A booking cannot be paid before
// it is confirmed.
func (b *Booking) MarkPaid(method, transactionID string) error {
	switch b.Status {
	case BookingStatusConfirmed, BookingStatusActive, BookingStatusCompleted:
	default:
		return apperr.Newf(apperr.KindInvalidTransition, "booking in status %q cannot be marked paid", b.Status)
	}
	b.PaymentState = PaymentStatePaid
	b.PaymentMethod = method
	b.TransactionID = transactionID
	return nil
}

// SetRefundOutcome updates the cancellation's refund status and the
// booking payment state once the ledger has acted.
func (b *Booking) SetRefundOutcome(refundStatus string, partial bool) {
	if b.Cancellation != nil {
		b.Cancellation.RefundStatus = refundStatus
	}
	if refundStatus == RefundStatusProcessed {
		if partial {
			b.PaymentState = PaymentStatePartial
		} else {
			b.PaymentState = PaymentStateRefunded
		}
	}
}
