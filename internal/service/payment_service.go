package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
)

// PaymentRepository defines the storage contract used by PaymentService.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByCode(ctx context.Context, code string) (*models.Payment, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error)
	GetSuccessfulByBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	ListByUser(ctx context.Context, userID int64, status string, skip, limit int) ([]models.Payment, error)
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
}

// BookingLedger lets the payment flow read and settle bookings.
type BookingLedger interface {
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) error
}

// PaymentService contains the payment and refund ledger logic.
type PaymentService struct {
	repo     PaymentRepository
	bookings BookingLedger
	audit    *AuditRecorder
	logger   *zap.Logger
	expiry   time.Duration
	now      func() time.Time
}

// NewPaymentService builds PaymentService.
func NewPaymentService(
	repo PaymentRepository,
	bookings BookingLedger,
	audit *AuditRecorder,
	logger *zap.Logger,
	expiry time.Duration,
) *PaymentService {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &PaymentService{
		repo:     repo,
		bookings: bookings,
		audit:    audit,
		logger:   logger,
		expiry:   expiry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ChargeForBooking opens a payment for a booking's current total. The
// payment starts initiated; the provider drives it forward via webhooks.
func (s *PaymentService) ChargeForBooking(ctx context.Context, booking *models.Booking, sessionID *int64, method string) (*models.Payment, error) {
	amount := booking.Pricing.TotalCost
	if amount == 0 {
		amount = booking.Pricing.EstimatedCost
	}
	if amount <= 0 {
		return nil, apperr.New(apperr.KindInvalidAmount, "booking has no chargeable amount")
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	bookingID := booking.ID
	payment := &models.Payment{
		PaymentCode: models.NewPaymentCode(now),
		UserID:      booking.UserID,
		BookingID:   &bookingID,
		SessionID:   sessionID,
		Type:        "booking",
		Amount:      amount,
		Currency:    booking.Pricing.Currency,
		Method:      method,
		Breakdown: models.Breakdown{
			BaseAmount: baseAmount(booking),
			Tax:        booking.Pricing.Tax,
			ServiceFee: booking.Pricing.ServiceFee,
			Discount:   booking.Pricing.Discount,
		},
		Status: models.PaymentStatusInitiated,
		Timestamps: models.PaymentTimestamps{
			InitiatedAt: now,
			ExpiresAt:   &expiresAt,
		},
	}
	if payment.Currency == "" {
		payment.Currency = "INR"
	}
	if sessionID != nil {
		payment.Type = "session"
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	s.logger.Info("payment initiated",
		zap.String("payment_code", payment.PaymentCode),
		zap.Int64("booking_id", booking.ID),
		zap.Float64("amount", payment.Amount),
	)
	return payment, nil
}

func baseAmount(booking *models.Booking) float64 {
	if booking.Pricing.ActualCost != nil {
		return *booking.Pricing.ActualCost
	}
	return booking.Pricing.EstimatedCost
}

// WebhookInput is a provider callback, already signature-verified at the
// transport boundary.
type WebhookInput struct {
	Event             string
	ProviderName      string
	ProviderPaymentID string
	PaymentCode       string
	OrderID           string
	Signature         string
	Status            models.PaymentStatus
	ErrorCode         string
	ErrorMessage      string
	Payload           json.RawMessage
}

// HandleProviderWebhook applies a provider event to the ledger. Retried
// deliveries are harmless: re-applying the current status is a no-op and
// timestamps are stamped once.
func (s *PaymentService) HandleProviderWebhook(ctx context.Context, input WebhookInput) (*models.Payment, error) {
	var result *models.Payment
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		payment, err := s.locate(ctx, input)
		if err != nil {
			return err
		}

		now := s.now()
		payment.AddWebhookEvent(now, input.Event, input.Payload)
		if input.ProviderName != "" {
			payment.Provider.Name = input.ProviderName
		}
		if input.ProviderPaymentID != "" {
			payment.Provider.PaymentID = input.ProviderPaymentID
		}
		if input.OrderID != "" {
			payment.Provider.OrderID = input.OrderID
		}
		if input.Signature != "" {
			payment.Provider.Signature = input.Signature
		}

		if err := s.applyStatus(payment, now, input); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, payment); err != nil {
			return err
		}

		if payment.Status == models.PaymentStatusSuccess && payment.BookingID != nil {
			s.markBookingPaid(ctx, *payment.BookingID, payment)
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyStatus walks the payment toward the reported status, inserting
// the processing hop a coarse provider may skip.
func (s *PaymentService) applyStatus(payment *models.Payment, now time.Time, input WebhookInput) error {
	next := input.Status
	if next == "" {
		return nil
	}
	if next == models.PaymentStatusFailed {
		payment.MarkFailed(now, input.ErrorCode, input.ErrorMessage)
		return nil
	}
	if next == models.PaymentStatusSuccess && payment.Status == models.PaymentStatusPending {
		if err := payment.SetStatus(now, models.PaymentStatusProcessing); err != nil {
			return err
		}
	}
	return payment.SetStatus(now, next)
}

func (s *PaymentService) locate(ctx context.Context, input WebhookInput) (*models.Payment, error) {
	if input.ProviderPaymentID != "" {
		payment, err := s.repo.GetByProviderPaymentID(ctx, input.ProviderPaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, err
		}
	}
	if input.PaymentCode == "" {
		return nil, apperr.New(apperr.KindNotFound, "payment not found")
	}
	payment, err := s.repo.GetByCode(ctx, input.PaymentCode)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "payment not found")
		}
		return nil, err
	}
	return payment, nil
}

// markBookingPaid settles the booking after a successful charge. A
// failure here is logged; the ledger entry stays authoritative.
func (s *PaymentService) markBookingPaid(ctx context.Context, bookingID int64, payment *models.Payment) {
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		booking, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := booking.MarkPaid(payment.Method, payment.Provider.PaymentID); err != nil {
			return err
		}
		return s.bookings.Update(ctx, booking)
	})
	if err != nil {
		s.logger.Error("failed to mark booking paid",
			zap.Int64("booking_id", bookingID),
			zap.String("payment_code", payment.PaymentCode),
			zap.Error(err),
		)
	}
}

// RefundForCancellation moves a cancelled booking's refund entitlement
// through the ledger. Returns whether the refund was partial. A booking
// that was never successfully paid needs no ledger movement.
func (s *PaymentService) RefundForCancellation(ctx context.Context, booking *models.Booking, initiatedBy string) (bool, error) {
	payment, err := s.repo.GetSuccessfulByBooking(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return false, nil
		}
		return false, err
	}

	amount := booking.Cancellation.RefundAmount
	if amount > payment.Amount {
		amount = payment.Amount
	}
	partial := amount < payment.Amount

	err = retryOnConflict(ctx, func(ctx context.Context) error {
		fresh, err := s.repo.GetByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if err := fresh.InitiateRefund(s.now(), amount, "Booking cancelled", initiatedBy); err != nil {
			return err
		}
		s.completeRefund(fresh)
		if err := s.repo.Update(ctx, fresh); err != nil {
			return err
		}
		payment = fresh
		return nil
	})
	if err != nil {
		return partial, err
	}

	s.logger.Info("refund processed for cancellation",
		zap.Int64("booking_id", booking.ID),
		zap.String("payment_code", payment.PaymentCode),
		zap.Float64("amount", amount),
	)
	return partial, nil
}

// completeRefund settles the refund sub-record in place. There is no
// external refund provider behind the ledger.
func (s *PaymentService) completeRefund(payment *models.Payment) {
	if payment.Refund == nil {
		return
	}
	done := s.now()
	payment.Refund.Status = models.RefundStateCompleted
	payment.Refund.CompletedAt = &done
	payment.Refund.RefundID = "RF-" + payment.PaymentCode
}

// InitiateRefund opens a manual refund on a successful payment.
func (s *PaymentService) InitiateRefund(ctx context.Context, actor auth.Identity, paymentID int64, amount float64, reason string) (*models.Payment, error) {
	initiatedBy := models.TerminatedByUser
	if actor.IsAdminLike() {
		initiatedBy = models.TerminatedByAdmin
	}

	var refunded *models.Payment
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		payment, err := s.getVisible(ctx, actor, paymentID)
		if err != nil {
			return err
		}
		if err := payment.InitiateRefund(s.now(), amount, reason, initiatedBy); err != nil {
			return err
		}
		s.completeRefund(payment)
		if err := s.repo.Update(ctx, payment); err != nil {
			return err
		}
		refunded = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if actor.IsAdminLike() && refunded.UserID != actor.UserID {
		s.audit.Record(ctx, models.AdminActivity{
			AdminID:     actor.UserID,
			Action:      models.ActionRefund,
			TargetModel: "payment",
			TargetID:    refunded.ID,
			TargetName:  refunded.PaymentCode,
			Reason:      reason,
			After:       snapshot(refunded.Refund),
			Severity:    models.SeverityHigh,
		})
	}
	return refunded, nil
}

// MarkFailed force-fails a payment and appends to its error log.
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID int64, code, message string) (*models.Payment, error) {
	var failed *models.Payment
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		payment, err := s.repo.GetByID(ctx, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentNotFound) {
				return apperr.New(apperr.KindNotFound, "payment not found")
			}
			return err
		}
		payment.MarkFailed(s.now(), code, message)
		if err := s.repo.Update(ctx, payment); err != nil {
			return err
		}
		failed = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// Get fetches a payment visible to the actor.
func (s *PaymentService) Get(ctx context.Context, actor auth.Identity, id int64) (*models.Payment, error) {
	return s.getVisible(ctx, actor, id)
}

// Settlement returns the provider-fee reconciliation of a payment.
func (s *PaymentService) Settlement(ctx context.Context, actor auth.Identity, id int64) (*models.Settlement, error) {
	payment, err := s.getVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	settlement := payment.NetAmount()
	return &settlement, nil
}

// ListByUser returns a user's payment history.
func (s *PaymentService) ListByUser(ctx context.Context, userID int64, status string, skip, limit int) ([]models.Payment, error) {
	return s.repo.ListByUser(ctx, userID, status, skip, limit)
}

// ExpireStale expires initiated/pending payments older than the
// configured window and returns how many were moved.
func (s *PaymentService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.expiry)
	stale, err := s.repo.FindStale(ctx, cutoff, 0)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		payment := &stale[i]
		err := retryOnConflict(ctx, func(ctx context.Context) error {
			fresh, err := s.repo.GetByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			if err := fresh.SetStatus(s.now(), models.PaymentStatusExpired); err != nil {
				return err
			}
			return s.repo.Update(ctx, fresh)
		})
		if err != nil {
			s.logger.Warn("failed to expire stale payment",
				zap.String("payment_code", payment.PaymentCode),
				zap.Error(err),
			)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *PaymentService) getVisible(ctx context.Context, actor auth.Identity, id int64) (*models.Payment, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "payment not found")
		}
		return nil, err
	}
	if payment.UserID != actor.UserID && !actor.HasCapability(auth.CapManagePayments) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to access this payment")
	}
	return payment, nil
}
