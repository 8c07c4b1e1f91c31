package httpserver

import (
	"net/http"

	"electra/internal/http/handlers"
	"electra/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers     *handlers.AuthHandlers
	StationHandlers  *handlers.StationHandlers
	BookingHandlers  *handlers.BookingHandlers
	SessionHandlers  *handlers.SessionHandlers
	PaymentHandlers  *handlers.PaymentHandlers
	ActivityHandlers *handlers.ActivityHandlers
	HealthHandler    http.HandlerFunc
	AssetsDir        string
	AssetsBaseURL    string
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("GET /health", deps.HealthHandler)

	mux.Handle("POST /api/auth/register", http.HandlerFunc(deps.AuthHandlers.Register))
	mux.Handle("POST /api/auth/login", http.HandlerFunc(deps.AuthHandlers.Login))
	mux.Handle("POST /api/auth/logout", authenticated(deps.AuthHandlers.Logout))
	mux.Handle("GET /api/auth/me", authenticated(deps.AuthHandlers.Me))
	mux.Handle("POST /api/auth/change-password", authenticated(deps.AuthHandlers.ChangePassword))
	mux.Handle("PUT /api/users/{id}/role", authenticated(deps.AuthHandlers.AssignRole))
	mux.Handle("POST /api/users/me/vehicles", authenticated(deps.AuthHandlers.AddVehicle))

	mux.Handle("GET /api/stations", http.HandlerFunc(deps.StationHandlers.List))
	mux.Handle("GET /api/stations/{id}", http.HandlerFunc(deps.StationHandlers.Get))
	mux.Handle("POST /api/stations", authenticated(deps.StationHandlers.Create))
	mux.Handle("PUT /api/stations/{id}", authenticated(deps.StationHandlers.Update))
	mux.Handle("DELETE /api/stations/{id}", authenticated(deps.StationHandlers.Delete))
	mux.Handle("POST /api/stations/{id}/photos", authenticated(deps.StationHandlers.UploadPhoto))
	mux.Handle("GET /api/stations/{id}/reviews", http.HandlerFunc(deps.StationHandlers.ListReviews))
	mux.Handle("POST /api/stations/{id}/reviews", authenticated(deps.StationHandlers.CreateReview))
	mux.Handle("GET /api/stations/{id}/bookings/active", authenticated(deps.BookingHandlers.ActiveByStation))

	mux.Handle("POST /api/bookings", authenticated(deps.BookingHandlers.Create))
	mux.Handle("GET /api/bookings/me", authenticated(deps.BookingHandlers.Me))
	mux.Handle("GET /api/bookings/me/upcoming", authenticated(deps.BookingHandlers.Upcoming))
	mux.Handle("GET /api/bookings/{id}", authenticated(deps.BookingHandlers.Get))
	mux.Handle("POST /api/bookings/{id}/confirm", authenticated(deps.BookingHandlers.Confirm))
	mux.Handle("POST /api/bookings/{id}/cancel", authenticated(deps.BookingHandlers.Cancel))

	mux.Handle("POST /api/sessions", authenticated(deps.SessionHandlers.Start))
	mux.Handle("GET /api/sessions/me", authenticated(deps.SessionHandlers.Me))
	mux.Handle("GET /api/sessions/me/energy", authenticated(deps.SessionHandlers.EnergySummary))
	mux.Handle("GET /api/sessions/{id}", authenticated(deps.SessionHandlers.Get))
	mux.Handle("POST /api/sessions/{id}/advance", authenticated(deps.SessionHandlers.Advance))
	mux.Handle("POST /api/sessions/{id}/pause", authenticated(deps.SessionHandlers.Pause))
	mux.Handle("POST /api/sessions/{id}/resume", authenticated(deps.SessionHandlers.Resume))
	mux.Handle("POST /api/sessions/{id}/complete", authenticated(deps.SessionHandlers.Complete))
	mux.Handle("POST /api/sessions/{id}/fail", authenticated(deps.SessionHandlers.Fail))
	mux.Handle("POST /api/sessions/{id}/telemetry", authenticated(deps.SessionHandlers.Telemetry))
	mux.Handle("GET /api/sessions/{id}/stream", authenticated(deps.SessionHandlers.Stream))

	mux.Handle("GET /api/payments/me", authenticated(deps.PaymentHandlers.Me))
	mux.Handle("GET /api/payments/{id}", authenticated(deps.PaymentHandlers.Get))
	mux.Handle("GET /api/payments/{id}/settlement", authenticated(deps.PaymentHandlers.Settlement))
	mux.Handle("POST /api/payments/{id}/refund", authenticated(deps.PaymentHandlers.Refund))
	mux.Handle("POST /api/payments/{id}/fail", authenticated(deps.PaymentHandlers.MarkFailed))
	mux.Handle("POST /api/payments/webhook", http.HandlerFunc(deps.PaymentHandlers.Webhook))

	mux.Handle("GET /api/activities", authenticated(deps.ActivityHandlers.Recent))
	mux.Handle("GET /api/activities/admin/{id}", authenticated(deps.ActivityHandlers.ByAdmin))
	mux.Handle("GET /api/activities/target/{model}/{id}", authenticated(deps.ActivityHandlers.ByTarget))

	if deps.AssetsDir != "" && deps.AssetsBaseURL != "" {
		prefix := deps.AssetsBaseURL + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(deps.AssetsDir))))
	}

	return mux
}
