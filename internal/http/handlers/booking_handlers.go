package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/service"
)

// BookingHandlers serves reservation endpoints.
type BookingHandlers struct {
	svc    *service.BookingService
	logger *zap.Logger
}

// NewBookingHandlers returns handler struct.
func NewBookingHandlers(svc *service.BookingService, logger *zap.Logger) *BookingHandlers {
	return &BookingHandlers{svc: svc, logger: logger}
}

type createBookingRequest struct {
	StationID     int64     `json:"station_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	EstimatedKWh  float64   `json:"estimated_kwh"`
	PaymentMethod string    `json:"payment_method"`
}

// Create handles POST /api/bookings.
func (h *BookingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req createBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	booking, err := h.svc.Create(r.Context(), actor, service.CreateBookingInput{
		StationID:     req.StationID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		EstimatedKWh:  req.EstimatedKWh,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "booking created", booking)
}

// Get handles GET /api/bookings/{id}.
func (h *BookingHandlers) Get(w http.ResponseWriter, r *http.Request) {
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
	booking, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "booking", booking)
}

// Confirm handles POST /api/bookings/{id}/confirm.
func (h *BookingHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
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
	booking, err := h.svc.Confirm(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "booking confirmed", booking)
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/bookings/{id}/cancel.
func (h *BookingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
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
	var req cancelBookingRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
	}
	booking, err := h.svc.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "booking cancelled", booking)
}

// Me handles GET /api/bookings/me.
func (h *BookingHandlers) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	bookings, err := h.svc.ListByUser(r.Context(), actor.UserID, queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "bookings", bookings)
}

// Upcoming handles GET /api/bookings/me/upcoming.
func (h *BookingHandlers) Upcoming(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	bookings, err := h.svc.Upcoming(r.Context(), actor.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "upcoming bookings", bookings)
}

// ActiveByStation handles GET /api/stations/{id}/bookings/active.
func (h *BookingHandlers) ActiveByStation(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	stationID, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	bookings, err := h.svc.ActiveByStation(r.Context(), actor, stationID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "active bookings", bookings)
}
