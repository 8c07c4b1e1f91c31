package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"electra/internal/auth"
	"electra/internal/cache"
	"electra/internal/config"
	"electra/internal/db"
	httpserver "electra/internal/http"
	"electra/internal/http/handlers"
	"electra/internal/http/middleware"
	"electra/internal/redisconn"
	"electra/internal/repository"
	"electra/internal/service"
	"electra/internal/storage"
	"electra/internal/ws"
)

const activeSessionTTL = 12 * time.Hour

// App wires the application dependency graph.
type App struct {
	server   *httpserver.Server
	payments *service.PaymentService
	database *sql.DB
	redis    *redis.Client
	logger   *zap.Logger
	expiry   time.Duration
}

// New constructs application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	database, err := db.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var activeStore *cache.ActiveSessionStore
	if cfg.Redis.Addr != "" {
		redisClient, err = redisconn.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			database.Close()
			return nil, err
		}
		activeStore = cache.NewActiveSessionStore(redisClient, activeSessionTTL)
	} else {
		logger.Warn("redis address not set, active session cache disabled")
	}

	assets, err := storage.NewLocalAssetStore(cfg.Assets.Dir, cfg.Assets.BaseURL)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		database.Close()
		return nil, err
	}

	userRepo := repository.NewUserRepository(database)
	stationRepo := repository.NewStationRepository(database)
	bookingRepo := repository.NewBookingRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	paymentRepo := repository.NewPaymentRepository(database)
	auditRepo := repository.NewAuditRepository(database)
	reviewRepo := repository.NewReviewRepository(database)

	audit := service.NewAuditRecorder(auditRepo, logger)
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWTExpiry())
	hasher := auth.NewBcryptHasher(0)
	hub := ws.NewHub(logger)

	authService := service.NewAuthService(userRepo, hasher, tokens, assets, audit, logger)
	stationService := service.NewStationService(stationRepo, bookingRepo, assets, audit, logger)
	paymentService := service.NewPaymentService(paymentRepo, bookingRepo, audit, logger, cfg.PaymentExpiry())
	bookingService := service.NewBookingService(bookingRepo, stationRepo, paymentService, audit, logger)
	sessionService := service.NewSessionService(
		sessionRepo, bookingRepo, stationRepo, userRepo,
		paymentService, activeStore, hub, audit, logger,
	)
	reviewService := service.NewReviewService(reviewRepo, stationRepo, logger)
	activityService := service.NewActivityService(auditRepo)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:     handlers.NewAuthHandlers(authService, logger),
		StationHandlers:  handlers.NewStationHandlers(stationService, reviewService, logger),
		BookingHandlers:  handlers.NewBookingHandlers(bookingService, logger),
		SessionHandlers:  handlers.NewSessionHandlers(sessionService, hub, logger),
		PaymentHandlers:  handlers.NewPaymentHandlers(paymentService, logger),
		ActivityHandlers: handlers.NewActivityHandlers(activityService, logger),
		HealthHandler:    handlers.NewHealthHandler(),
		AssetsDir:        cfg.Assets.Dir,
		AssetsBaseURL:    cfg.Assets.BaseURL,
	}, middleware.AuthMiddleware(tokens))

	server := httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	return &App{
		server:   server,
		payments: paymentService,
		database: database,
		redis:    redisClient,
		logger:   logger,
		expiry:   cfg.PaymentExpiry(),
	}, nil
}

// Run serves HTTP traffic and sweeps stale payments until ctx ends.
func (a *App) Run(ctx context.Context) error {
	go a.expireStalePayments(ctx)
	return a.server.Run(ctx)
}

// expireStalePayments periodically moves abandoned initiated/pending
// payments to expired.
func (a *App) expireStalePayments(ctx context.Context) {
	ticker := time.NewTicker(a.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := a.payments.ExpireStale(ctx)
			if err != nil {
				a.logger.Warn("stale payment sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				a.logger.Info("expired stale payments", zap.Int("count", expired))
			}
		}
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.database.Close()
}
