package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/models"
	"electra/internal/service"
)

// PaymentHandlers serves payment ledger endpoints.
type PaymentHandlers struct {
	svc    *service.PaymentService
	logger *zap.Logger
}

// NewPaymentHandlers returns handler struct.
func NewPaymentHandlers(svc *service.PaymentService, logger *zap.Logger) *PaymentHandlers {
	return &PaymentHandlers{svc: svc, logger: logger}
}

// Get handles GET /api/payments/{id}.
func (h *PaymentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	payment, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "payment", payment)
}

// Settlement handles GET /api/payments/{id}/settlement.
func (h *PaymentHandlers) Settlement(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	settlement, err := h.svc.Settlement(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "settlement", settlement)
}

// Me handles GET /api/payments/me.
func (h *PaymentHandlers) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	payments, err := h.svc.ListByUser(r.Context(), actor.UserID,
		r.URL.Query().Get("status"), queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "payments", payments)
}

type refundRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// Refund handles POST /api/payments/{id}/refund.
func (h *PaymentHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req refundRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	payment, err := h.svc.InitiateRefund(r.Context(), actor, id, req.Amount, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "refund initiated", payment)
}

type markFailedRequest struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarkFailed handles POST /api/payments/{id}/fail.
func (h *PaymentHandlers) MarkFailed(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	if !actor.IsAdminLike() {
		writeAppError(w, apperr.New(apperr.KindForbidden, "not allowed to fail payments"))
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req markFailedRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	payment, err := h.svc.MarkFailed(r.Context(), id, req.Code, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "payment failed", payment)
}

type webhookRequest struct {
	Event             string          `json:"event"`
	Provider          string          `json:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	PaymentCode       string          `json:"payment_code"`
	OrderID           string          `json:"order_id"`
	Signature         string          `json:"signature"`
	Status            string          `json:"status"`
	ErrorCode         string          `json:"error_code"`
	ErrorMessage      string          `json:"error_message"`
	Payload           json.RawMessage `json:"payload"`
}

// Webhook handles POST /api/payments/webhook. The endpoint is called by
// the payment provider, not by users.
func (h *PaymentHandlers) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	payment, err := h.svc.HandleProviderWebhook(r.Context(), service.WebhookInput{
		Event:             req.Event,
		ProviderName:      req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
		PaymentCode:       req.PaymentCode,
		OrderID:           req.OrderID,
		Signature:         req.Signature,
		Status:            models.PaymentStatus(req.Status),
		ErrorCode:         req.ErrorCode,
		ErrorMessage:      req.ErrorMessage,
		Payload:           req.Payload,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "webhook processed", map[string]interface{}{
		"payment_code": payment.PaymentCode,
		"status":       payment.Status,
	})
}
