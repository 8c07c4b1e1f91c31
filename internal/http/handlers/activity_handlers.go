package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/repository"
	"electra/internal/service"
)

// ActivityHandlers serves the admin activity log.
type ActivityHandlers struct {
	svc    *service.ActivityService
	logger *zap.Logger
}

// NewActivityHandlers returns handler struct.
func NewActivityHandlers(svc *service.ActivityService, logger *zap.Logger) *ActivityHandlers {
	return &ActivityHandlers{svc: svc, logger: logger}
}

// Recent handles GET /api/activities.
func (h *ActivityHandlers) Recent(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	activities, err := h.svc.Recent(r.Context(), actor, queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "activities", activities)
}

// ByAdmin handles GET /api/activities/admin/{id}.
func (h *ActivityHandlers) ByAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	adminID, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	activities, err := h.svc.ListByAdmin(r.Context(), actor, adminID, repository.ActivityFilter{
		Action:   r.URL.Query().Get("action"),
		Severity: r.URL.Query().Get("severity"),
		Skip:     queryInt(r, "skip", 0),
		Limit:    queryInt(r, "limit", 50),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "activities", activities)
}

// ByTarget handles GET /api/activities/target/{model}/{id}.
func (h *ActivityHandlers) ByTarget(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	targetModel := r.PathValue("model")
	if targetModel == "" {
		writeValidationError(w, "invalid target model")
		return
	}
	targetID, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	activities, err := h.svc.ListByTarget(r.Context(), actor, targetModel, targetID, queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "activities", activities)
}
