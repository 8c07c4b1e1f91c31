package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"electra/internal/models"
)

// ErrPaymentNotFound represents missing payment rows.
var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository handles persistence of the payment ledger.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository returns repository instance.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, payment_code, user_id, booking_id, session_id, payment_type, amount, currency,
	method, breakdown, status, provider, refund, timestamps, invoice_number,
	invoice_generated_at, errors, webhooks, version, created_at, updated_at
`

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	breakdown, err := marshalJSONB(payment.Breakdown)
	if err != nil {
		return err
	}
	provider, err := marshalJSONB(payment.Provider)
	if err != nil {
		return err
	}
	refund, err := marshalJSONB(payment.Refund)
	if err != nil {
		return err
	}
	timestamps, err := marshalJSONB(payment.Timestamps)
	if err != nil {
		return err
	}
	errLog, err := marshalJSONB(payment.Errors)
	if err != nil {
		return err
	}
	webhooks, err := marshalJSONB(payment.Webhooks)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO payments (payment_code, user_id, booking_id, session_id, payment_type,
			amount, currency, method, breakdown, status, provider, refund, timestamps,
			invoice_number, invoice_generated_at, errors, webhooks,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, NOW(), NOW())
		RETURNING id, version, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		payment.PaymentCode,
		payment.UserID,
		payment.BookingID,
		payment.SessionID,
		payment.Type,
		payment.Amount,
		payment.Currency,
		payment.Method,
		breakdown,
		payment.Status,
		provider,
		refund,
		timestamps,
		nullableString(payment.InvoiceNumber),
		payment.InvoiceGeneratedAt,
		errLog,
		webhooks,
	).Scan(&payment.ID, &payment.Version, &payment.CreatedAt, &payment.UpdatedAt)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanPayment(row interface{ Scan(...interface{}) error }) (*models.Payment, error) {
	var (
		p           models.Payment
		breakdown   []byte
		provider    []byte
		refund      []byte
		timestamps  []byte
		errLog      []byte
		webhooks    []byte
		invoice     sql.NullString
		invoiceTime sql.NullTime
	)
	if err := row.Scan(
		&p.ID,
		&p.PaymentCode,
		&p.UserID,
		&p.BookingID,
		&p.SessionID,
		&p.Type,
		&p.Amount,
		&p.Currency,
		&p.Method,
		&breakdown,
		&p.Status,
		&provider,
		&refund,
		&timestamps,
		&invoice,
		&invoiceTime,
		&errLog,
		&webhooks,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if invoice.Valid {
		p.InvoiceNumber = invoice.String
	}
	if invoiceTime.Valid {
		t := invoiceTime.Time
		p.InvoiceGeneratedAt = &t
	}
	if err := unmarshalJSONB(breakdown, &p.Breakdown); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(provider, &p.Provider); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(refund, &p.Refund); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(timestamps, &p.Timestamps); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(errLog, &p.Errors); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(webhooks, &p.Webhooks); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID fetches one payment.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 LIMIT 1`, paymentColumns)
	return r.getOne(ctx, query, id)
}

// GetByCode fetches one payment by its PAY- reference.
func (r *PaymentRepository) GetByCode(ctx context.Context, code string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE payment_code = $1 LIMIT 1`, paymentColumns)
	return r.getOne(ctx, query, code)
}

// GetByProviderPaymentID resolves a webhook to its payment row.
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE provider->>'payment_id' = $1 LIMIT 1`, paymentColumns)
	return r.getOne(ctx, query, providerPaymentID)
}

// GetSuccessfulByBooking returns the successful payment for a booking, if any.
func (r *PaymentRepository) GetSuccessfulByBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE booking_id = $1 AND status = 'success'
		ORDER BY created_at DESC
		LIMIT 1
	`, paymentColumns)
	return r.getOne(ctx, query, bookingID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// Update performs an optimistic conditional write keyed on version.
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	breakdown, err := marshalJSONB(payment.Breakdown)
	if err != nil {
		return err
	}
	provider, err := marshalJSONB(payment.Provider)
	if err != nil {
		return err
	}
	refund, err := marshalJSONB(payment.Refund)
	if err != nil {
		return err
	}
	timestamps, err := marshalJSONB(payment.Timestamps)
	if err != nil {
		return err
	}
	errLog, err := marshalJSONB(payment.Errors)
	if err != nil {
		return err
	}
	webhooks, err := marshalJSONB(payment.Webhooks)
	if err != nil {
		return err
	}

	const query = `
		UPDATE payments
		SET status = $3, breakdown = $4, provider = $5, refund = $6, timestamps = $7,
		    invoice_number = $8, invoice_generated_at = $9, errors = $10, webhooks = $11,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.Version,
		payment.Status,
		breakdown,
		provider,
		refund,
		timestamps,
		nullableString(payment.InvoiceNumber),
		payment.InvoiceGeneratedAt,
		errLog,
		webhooks,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	payment.Version++
	return nil
}

// ListByUser returns a user's payments, optionally narrowed by status.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64, status string, skip, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4
	`, paymentColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, status, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// FindStale returns initiated/pending payments older than the cutoff,
// candidates for expiry.
func (r *PaymentRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE status IN ('initiated', 'pending')
		  AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`, paymentColumns)

	rows, err := r.db.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}
