package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/models"
	"electra/internal/repository"
	"electra/internal/service"
	"electra/internal/storage"
)

// StationHandlers serves station registry endpoints.
type StationHandlers struct {
	svc     *service.StationService
	reviews *service.ReviewService
	logger  *zap.Logger
}

// NewStationHandlers returns handler struct.
func NewStationHandlers(svc *service.StationService, reviews *service.ReviewService, logger *zap.Logger) *StationHandlers {
	return &StationHandlers{svc: svc, reviews: reviews, logger: logger}
}

// Create handles POST /api/stations.
func (h *StationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var station models.Station
	if err := decodeBody(r, &station); err != nil {
		writeAppError(w, err)
		return
	}
	created, err := h.svc.Create(r.Context(), actor, &station)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "station created", created)
}

// Get handles GET /api/stations/{id}.
func (h *StationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	station, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "station", station)
}

// List handles GET /api/stations.
func (h *StationHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.StationFilter{
		Status: r.URL.Query().Get("status"),
		City:   r.URL.Query().Get("city"),
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	stations, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "stations", stations)
}

type updateStationRequest struct {
	Name           *string               `json:"name"`
	Description    *string               `json:"description"`
	Location       *models.Location      `json:"location"`
	Capacity       *int                  `json:"capacity"`
	AvailablePorts *int                  `json:"available_ports"`
	CompanyName    *string               `json:"company_name"`
	Plugs          []models.Plug         `json:"plugs"`
	Amenities      []string              `json:"amenities"`
	Status         *models.StationStatus `json:"status"`
	WorkingHours   *models.WorkingHours  `json:"working_hours"`
	Photos         []string              `json:"photos"`
}

// Update handles PUT /api/stations/{id}.
func (h *StationHandlers) Update(w http.ResponseWriter, r *http.Request) {
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
	var req updateStationRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	station, err := h.svc.Update(r.Context(), actor, id, service.UpdateStationInput{
		Name:           req.Name,
		Description:    req.Description,
		Location:       req.Location,
		Capacity:       req.Capacity,
		AvailablePorts: req.AvailablePorts,
		CompanyName:    req.CompanyName,
		Plugs:          req.Plugs,
		Amenities:      req.Amenities,
		Status:         req.Status,
		WorkingHours:   req.WorkingHours,
		Photos:         req.Photos,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "station updated", station)
}

// Delete handles DELETE /api/stations/{id}.
func (h *StationHandlers) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "station deleted", nil)
}

// UploadPhoto handles POST /api/stations/{id}/photos.
func (h *StationHandlers) UploadPhoto(w http.ResponseWriter, r *http.Request) {
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
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeValidationError(w, "expected multipart form data")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeValidationError(w, "photo file part is required")
		return
	}
	defer file.Close()

	station, err := h.svc.AddPhoto(r.Context(), actor, id, storage.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "photo added", station)
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview handles POST /api/stations/{id}/reviews.
func (h *StationHandlers) CreateReview(w http.ResponseWriter, r *http.Request) {
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
	var req createReviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	review, err := h.reviews.Add(r.Context(), actor, id, req.Rating, req.Comment)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "review added", review)
}

// ListReviews handles GET /api/stations/{id}/reviews.
func (h *StationHandlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	reviews, err := h.reviews.ListByStation(r.Context(), id, queryInt(r, "skip", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "reviews", reviews)
}
