package handlers

import (
	"ImageVault/internal/config"
	"ImageVault/internal/middleware"
	"ImageVault/internal/rateguard"
	"ImageVault/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Router chi.Router
}

// NewHandler разводящий для хендлеров
func NewHandler(
	userService *service.UserService,
	vaultService *service.VaultService,
	guard *rateguard.Guard,
	logger *zap.SugaredLogger,
	config *config.Config,
) *Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithLogging)
	r.Use(middleware.WithGzip)
	r.Use(middleware.WithBanCheck(guard))
	r.Use(middleware.WithFailureTracking(guard))
	r.Use(middleware.WithRateLimit(guard.Basic, middleware.ByIP))
	r.Use(middleware.WithAuth(config.AuthSecret))

	strictLimit := middleware.WithRateLimit(guard.Strict, middleware.ByIP)
	keyLimit := middleware.WithRateLimit(guard.KeyAccess, middleware.ByIPAndUser)

	// Handlers
	userHandler := NewUserHandler(userService, logger, config)
	objectHandler := NewObjectHandler(vaultService, logger, config)

	// User routes
	r.Post("/api/user/register", userHandler.Register)
	r.Post("/api/user/login", userHandler.Login)

	// Object routes
	r.Route("/api/objects", func(r chi.Router) {
		r.Get("/", objectHandler.List)
		r.With(strictLimit).Post("/", objectHandler.Upload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/content", objectHandler.Download)
			r.With(strictLimit).Delete("/", objectHandler.Delete)
			r.With(strictLimit).Post("/one-time-token", objectHandler.OneTimeToken)
			r.With(keyLimit).Post("/key", objectHandler.IssueKey)
			r.With(keyLimit).Post("/redeem", objectHandler.Redeem)
		})
	})

	return &Handler{Router: r}
}
