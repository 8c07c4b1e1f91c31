package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/models"
	"electra/internal/service"
	"electra/internal/storage"
)

const maxUploadBytes = 10 << 20

// AuthHandlers serves account endpoints.
type AuthHandlers struct {
	svc    *service.AuthService
	logger *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(svc *service.AuthService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{svc: svc, logger: logger}
}

// Register handles POST /api/auth/register. The body is multipart with a
// mandatory profile image part.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeValidationError(w, "expected multipart form data")
		return
	}

	input := service.RegisterInput{
		UserName:    r.FormValue("user_name"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		PhoneNumber: r.FormValue("phone_number"),
	}
	file, header, err := r.FormFile("profile_image")
	if err == nil {
		defer file.Close()
		input.ProfileImage = &storage.Upload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      file,
		}
	}

	user, err := h.svc.Register(r.Context(), input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "user registered", user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "login successful", loginResponse{Token: token, User: user})
}

// Logout handles POST /api/auth/logout. Tokens are stateless; the client
// discards its copy.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "logged out", nil)
}

// Me handles GET /api/auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	user, err := h.svc.CurrentUser(r.Context(), actor.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "current user", user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "password changed", nil)
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// AssignRole handles PUT /api/users/{id}/role.
func (h *AuthHandlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	targetID, err := pathID(r, "id")
	if err != nil {
		writeAppError(w, err)
		return
	}
	var req assignRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	user, err := h.svc.AssignRole(r.Context(), actor, targetID, req.Role)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "role assigned", user)
}

// AddVehicle handles POST /api/users/me/vehicles.
func (h *AuthHandlers) AddVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(r)
	if !ok {
		writeAppError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
		return
	}
	var vehicle models.Vehicle
	if err := decodeBody(r, &vehicle); err != nil {
		writeAppError(w, err)
		return
	}
	user, err := h.svc.AddVehicle(r.Context(), actor.UserID, vehicle)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "vehicle added", user)
}
