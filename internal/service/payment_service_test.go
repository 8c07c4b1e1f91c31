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
)

type fakePaymentRepo struct {
	payments  map[int64]*models.Payment
	nextID    int64
	conflicts int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[int64]*models.Payment), nextID: 1}
}

func (f *fakePaymentRepo) Create(_ context.Context, payment *models.Payment) error {
	payment.ID = f.nextID
	payment.Version = 1
	f.nextID++
	clone := *payment
	f.payments[payment.ID] = &clone
	return nil
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	payment, ok := f.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	clone := *payment
	return &clone, nil
}

func (f *fakePaymentRepo) GetByCode(_ context.Context, code string) (*models.Payment, error) {
	for _, payment := range f.payments {
		if payment.PaymentCode == code {
			clone := *payment
			return &clone, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (f *fakePaymentRepo) GetByProviderPaymentID(_ context.Context, providerPaymentID string) (*models.Payment, error) {
	for _, payment := range f.payments {
		if payment.Provider.PaymentID == providerPaymentID {
			clone := *payment
			return &clone, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (f *fakePaymentRepo) GetSuccessfulByBooking(_ context.Context, bookingID int64) (*models.Payment, error) {
	for _, payment := range f.payments {
		if payment.BookingID != nil && *payment.BookingID == bookingID && payment.Status == models.PaymentStatusSuccess {
			clone := *payment
			return &clone, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (f *fakePaymentRepo) Update(_ context.Context, payment *models.Payment) error {
	if f.conflicts > 0 {
		f.conflicts--
		return repository.ErrVersionConflict
	}
	stored, ok := f.payments[payment.ID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	if stored.Version != payment.Version {
		return repository.ErrVersionConflict
	}
	payment.Version++
	clone := *payment
	f.payments[payment.ID] = &clone
	return nil
}

func (f *fakePaymentRepo) ListByUser(context.Context, int64, string, int, int) ([]models.Payment, error) {
	return nil, nil
}

func (f *fakePaymentRepo) FindStale(_ context.Context, olderThan time.Time, _ int) ([]models.Payment, error) {
	var stale []models.Payment
	for _, payment := range f.payments {
		switch payment.Status {
		case models.PaymentStatusInitiated, models.PaymentStatusPending:
		default:
			continue
		}
		if !payment.Timestamps.InitiatedAt.After(olderThan) {
			stale = append(stale, *payment)
		}
	}
	return stale, nil
}

func newPaymentService(repo *fakePaymentRepo, bookings *fakeBookingRepo) *PaymentService {
	logger := zap.NewNop()
	return NewPaymentService(repo, bookings, NewAuditRecorder(nil, logger), logger, 15*time.Minute)
}

func confirmedBooking(t *testing.T, bookings *fakeBookingRepo) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		UserID:      3,
		StationID:   1,
		Status:      models.BookingStatusConfirmed,
		Pricing: models.Pricing{
			RatePerKWh:    18,
			EstimatedCost: 540,
			Currency:      "INR",
		},
		PaymentState: models.PaymentStatePending,
	}
	require.NoError(t, bookings.Create(context.Background(), booking))
	return booking
}

func TestPaymentService_ChargeForBooking(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	payment, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusInitiated, payment.Status)
	assert.Equal(t, 540.0, payment.Amount)
	assert.Equal(t, "INR", payment.Currency)
	assert.Equal(t, "booking", payment.Type)
	assert.Contains(t, payment.PaymentCode, "PAY-")
	require.NotNil(t, payment.Timestamps.ExpiresAt)
}

func TestPaymentService_ChargeForBooking_NoAmount(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	booking.Pricing.EstimatedCost = 0
	svc := newPaymentService(repo, bookings)

	_, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidAmount, apperr.KindOf(err))
}

func webhook(code string, status models.PaymentStatus) WebhookInput {
	return WebhookInput{
		Event:       "payment." + string(status),
		PaymentCode: code,
		Status:      status,
	}
}

func TestPaymentService_Webhook_DrivesPaymentToSuccess(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	payment, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)

	_, err = svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusPending))
	require.NoError(t, err)

	// A coarse provider reports success straight from pending; the
	// processing hop is inserted on the way.
	settled, err := svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, settled.Status)
	assert.NotNil(t, settled.Timestamps.ProcessingAt)
	assert.NotNil(t, settled.Timestamps.CompletedAt)
	assert.NotEmpty(t, settled.InvoiceNumber)

	paid, err := bookings.GetByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatePaid, paid.PaymentState)
}

func TestPaymentService_Webhook_RedeliveryIsIdempotent(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	payment, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)

	_, err = svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusPending))
	require.NoError(t, err)
	first, err := svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusSuccess))
	require.NoError(t, err)

	second, err := svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, first.Timestamps.CompletedAt.UTC(), second.Timestamps.CompletedAt.UTC())
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	assert.Len(t, second.Webhooks, 3)
}

func TestPaymentService_Webhook_LocatesByProviderPaymentID(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	payment, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)

	input := webhook(payment.PaymentCode, models.PaymentStatusPending)
	input.ProviderName = "razorpay"
	input.ProviderPaymentID = "pay_abc123"
	_, err = svc.HandleProviderWebhook(context.Background(), input)
	require.NoError(t, err)

	// Follow-up event carries only the provider's own reference.
	followUp := WebhookInput{
		Event:             "payment.failed",
		ProviderPaymentID: "pay_abc123",
		Status:            models.PaymentStatusFailed,
		ErrorCode:         "BANK_DECLINED",
		ErrorMessage:      "insufficient funds",
	}
	failed, err := svc.HandleProviderWebhook(context.Background(), followUp)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, "BANK_DECLINED", failed.Errors[0].Code)
}

func TestPaymentService_Webhook_UnknownPayment(t *testing.T) {
	svc := newPaymentService(newFakePaymentRepo(), newFakeBookingRepo())

	_, err := svc.HandleProviderWebhook(context.Background(), webhook("PAY-20260901-NOPE", models.PaymentStatusPending))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func paidPayment(t *testing.T, svc *PaymentService, booking *models.Booking) *models.Payment {
	t.Helper()
	payment, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)
	_, err = svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusPending))
	require.NoError(t, err)
	settled, err := svc.HandleProviderWebhook(context.Background(), webhook(payment.PaymentCode, models.PaymentStatusSuccess))
	require.NoError(t, err)
	return settled
}

func TestPaymentService_RefundForCancellation_Full(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)
	payment := paidPayment(t, svc, booking)

	booking.Cancellation = &models.Cancellation{RefundAmount: payment.Amount}
	partial, err := svc.RefundForCancellation(context.Background(), booking, models.TerminatedByUser)
	require.NoError(t, err)
	assert.False(t, partial)

	refunded, err := repo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.Refund)
	assert.Equal(t, models.RefundStateCompleted, refunded.Refund.Status)
	assert.Equal(t, "RF-"+refunded.PaymentCode, refunded.Refund.RefundID)
}

func TestPaymentService_RefundForCancellation_Partial(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)
	payment := paidPayment(t, svc, booking)

	booking.Cancellation = &models.Cancellation{RefundAmount: payment.Amount / 2}
	partial, err := svc.RefundForCancellation(context.Background(), booking, models.TerminatedByUser)
	require.NoError(t, err)
	assert.True(t, partial)

	refunded, err := repo.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartialRefund, refunded.Status)
	assert.Equal(t, payment.Amount/2, refunded.Refund.Amount)
}

func TestPaymentService_RefundForCancellation_NeverPaid(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	booking.Cancellation = &models.Cancellation{RefundAmount: 540}
	partial, err := svc.RefundForCancellation(context.Background(), booking, models.TerminatedByUser)
	require.NoError(t, err)
	assert.False(t, partial)
}

func TestPaymentService_InitiateRefund_OnlyOnce(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)
	payment := paidPayment(t, svc, booking)
	owner := auth.Identity{UserID: booking.UserID, Role: auth.RoleUser}

	refunded, err := svc.InitiateRefund(context.Background(), owner, payment.ID, 0, "station closed")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)

	_, err = svc.InitiateRefund(context.Background(), owner, payment.ID, 0, "again")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotRefundable, apperr.KindOf(err))
}

func TestPaymentService_InitiateRefund_ForbiddenForStranger(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)
	payment := paidPayment(t, svc, booking)

	_, err := svc.InitiateRefund(context.Background(), auth.Identity{UserID: 42, Role: auth.RoleUser}, payment.ID, 0, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestPaymentService_Settlement(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)
	payment := paidPayment(t, svc, booking)

	settlement, err := svc.Settlement(context.Background(), auth.Identity{UserID: booking.UserID, Role: auth.RoleUser}, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, 540.0, settlement.GrossAmount)
	assert.Equal(t, 10.8, settlement.GatewayFee)
	assert.Equal(t, 1.94, settlement.GST)
	assert.Equal(t, 12.74, settlement.TotalFees)
	assert.Equal(t, 527.26, settlement.NetAmount)
}

func TestPaymentService_ExpireStale(t *testing.T) {
	repo := newFakePaymentRepo()
	bookings := newFakeBookingRepo()
	booking := confirmedBooking(t, bookings)
	svc := newPaymentService(repo, bookings)

	stale, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)
	fresh, err := svc.ChargeForBooking(context.Background(), booking, nil, "upi")
	require.NoError(t, err)

	// Age only the first payment past the expiry window.
	aged := repo.payments[stale.ID]
	aged.Timestamps.InitiatedAt = time.Now().UTC().Add(-time.Hour)

	expired, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, got.Status)

	untouched, err := repo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusInitiated, untouched.Status)
}
