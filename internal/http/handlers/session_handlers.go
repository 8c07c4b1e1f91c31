package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/models"
	"electra/internal/service"
	"electra/internal/ws"
)

// SessionHandlers serves charging-session endpoints.
type SessionHandlers struct {
	svc      *service.SessionService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSessionHandlers returns handler struct.
func NewSessionHandlers(svc *service.SessionService, hub *ws.Hub, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type startSessionRequest struct {
	BookingID  int64   `json:"booking_id"`
	InitialSOC float64 `json:"initial_soc"`
	TargetSOC  float64 `json:"target_soc"`
}

// Start handles POST /api/sessions.
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	session, err := h.svc.Start(r.Context(), actor, service.StartSessionInput{
		BookingID:  req.BookingID,
		InitialSOC: req.InitialSOC,
		TargetSOC:  req.TargetSOC,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "session started", sessionView(session))
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
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
	session, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session", sessionView(session))
}

type advanceSessionRequest struct {
	Status models.SessionStatus `json:"status"`
}

// Advance handles POST /api/sessions/{id}/advance.
func (h *SessionHandlers) Advance(w http.ResponseWriter, r *http.Request) {
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
	var req advanceSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	session, err := h.svc.Advance(r.Context(), actor, id, req.Status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session advanced", sessionView(session))
}

type pauseSessionRequest struct {
	Reason string `json:"reason"`
}

// Pause handles POST /api/sessions/{id}/pause.
func (h *SessionHandlers) Pause(w http.ResponseWriter, r *http.Request) {
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
	var req pauseSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
	}
	session, err := h.svc.Pause(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session paused", sessionView(session))
}

// Resume handles POST /api/sessions/{id}/resume.
func (h *SessionHandlers) Resume(w http.ResponseWriter, r *http.Request) {
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
	session, err := h.svc.Resume(r.Context(), actor, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session resumed", sessionView(session))
}

type completeSessionRequest struct {
	Reason string `json:"reason"`
}

// Complete handles POST /api/sessions/{id}/complete.
func (h *SessionHandlers) Complete(w http.ResponseWriter, r *http.Request) {
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
	var req completeSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeAppError(w, err)
			return
		}
	}
	session, err := h.svc.Complete(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session completed", sessionView(session))
}

type failSessionRequest struct {
	Status models.SessionStatus `json:"status"`
	Reason string               `json:"reason"`
}

// Fail handles POST /api/sessions/{id}/fail.
func (h *SessionHandlers) Fail(w http.ResponseWriter, r *http.Request) {
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
	var req failSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	session, err := h.svc.Fail(r.Context(), actor, id, req.Status, req.Reason)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "session terminated", sessionView(session))
}

type telemetryRequest struct {
	Timestamp time.Time `json:"timestamp"`
	SOC       float64   `json:"soc"`
	PowerKW   float64   `json:"power_kw"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
}

// Telemetry handles POST /api/sessions/{id}/telemetry.
func (h *SessionHandlers) Telemetry(w http.ResponseWriter, r *http.Request) {
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
	var req telemetryRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	session, err := h.svc.RecordTelemetry(r.Context(), actor, id, models.TelemetrySample{
		Timestamp: req.Timestamp,
		SOC:       req.SOC,
		PowerKW:   req.PowerKW,
		Voltage:   req.Voltage,
		Current:   req.Current,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "telemetry recorded", sessionView(session))
}

// Stream handles GET /api/sessions/{id}/stream, upgrading to a websocket
// that receives live telemetry frames for the session.
func (h *SessionHandlers) Stream(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.svc.Get(r.Context(), actor, id); err != nil {
		writeAppError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Subscribe(id, conn)
	defer func() {
		h.hub.Unsubscribe(id, conn)
		conn.Close()
	}()

	// Drain the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Me handles GET /api/sessions/me.
func (h *SessionHandlers) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	sessions, err := h.svc.ListByUser(r.Context(), actor.UserID, queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "sessions", sessions)
}

// EnergySummary handles GET /api/sessions/me/energy.
func (h *SessionHandlers) EnergySummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	summary, err := h.svc.EnergySummary(r.Context(), actor.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "energy summary", summary)
}

type sessionResponse struct {
	*models.ChargingSession
	ProgressPercentage       float64 `json:"progress_percentage"`
	EstimatedMinutesRemaining int    `json:"estimated_minutes_remaining"`
}

func sessionView(session *models.ChargingSession) sessionResponse {
	return sessionResponse{
		ChargingSession:           session,
		ProgressPercentage:        session.ProgressPercentage(),
		EstimatedMinutesRemaining: session.EstimatedTimeRemaining(),
	}
}
