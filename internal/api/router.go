package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/app"
	iauth "github.com/campusworks/interndocs/internal/auth"
	"github.com/campusworks/interndocs/internal/handlers"
	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/models"
	"github.com/campusworks/interndocs/internal/notifications"
	"github.com/campusworks/interndocs/internal/services"
)

// Deps bundles everything the router needs. The rate store is shared across
// all three limiter scopes so a multi-instance deployment can point it at
// Redis.
type Deps struct {
	DB        *gorm.DB
	Config    *app.Config
	Tokens    *iauth.TokenService
	Hub       *notifications.Hub
	RateStore middleware.RateStore

	Users         *services.UserService
	Documents     *services.DocumentService
	Logs          *services.VerificationLogService
	Notifications *services.NotificationService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.RateStore == nil {
		deps.RateStore = middleware.NewMemoryRateStore()
	}

	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit("general", deps.RateStore,
		cfg.RateLimit.General.Max, cfg.RateLimit.General.Window))

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Users)
	userHandler := handlers.NewUserHandler(deps.Users)
	docHandler := handlers.NewDocumentHandler(deps.Documents, deps.Logs, cfg.Storage.MaxUploadBytes)
	notifHandler := handlers.NewNotificationHandler(deps.Notifications, deps.Hub, deps.Tokens)

	// Public auth routes. Login counts only failed attempts against its
	// budget; registration shares the general limiter.
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login",
			middleware.LoginRateLimit(deps.RateStore, cfg.RateLimit.Login.Max, cfg.RateLimit.Login.Window),
			authHandler.Login)
	}

	// Everything below requires a valid token and an active account.
	authed := r.Group("/api", middleware.Auth(deps.Tokens, deps.DB))

	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRole(models.RoleHR, models.RoleSuperAdmin)
	admin := middleware.RequireRole(models.RoleSuperAdmin)

	docs := authed.Group("/documents")
	{
		docs.POST("",
			middleware.RateLimit("upload", deps.RateStore,
				cfg.RateLimit.Upload.Max, cfg.RateLimit.Upload.Window),
			docHandler.Upload)
		docs.GET("/my", docHandler.ListMine)
		docs.GET("", staff, docHandler.List)
		docs.GET("/events", staff, docHandler.Events)
		docs.GET("/:id", docHandler.Get)
		docs.GET("/:id/download", docHandler.Download)
		docs.GET("/:id/history", docHandler.History)
		docs.POST("/:id/verify", staff, docHandler.Approve)
		docs.POST("/:id/reject", staff, docHandler.Reject)
		docs.POST("/:id/request-revision", staff, docHandler.RequestRevision)
		docs.DELETE("/:id", docHandler.Delete)
		docs.DELETE("/:id/purge", admin, docHandler.Purge)
	}

	users := authed.Group("/users")
	{
		users.GET("/interns", staff, userHandler.ListInterns)
		users.GET("/:id", staff, userHandler.Get)
		users.PATCH("/:id/profile", staff, userHandler.UpdateProfile)
		users.PUT("/:id/role", admin, userHandler.ChangeRole)
		users.DELETE("/:id", staff, userHandler.Deactivate)
	}

	authed.GET("/profile", userHandler.Profile)
	authed.PUT("/profile", userHandler.UpdateProfile)

	notifs := authed.Group("/notifications")
	{
		notifs.GET("", notifHandler.List)
		notifs.GET("/unread-count", notifHandler.UnreadCount)
		notifs.POST("/:id/read", notifHandler.MarkRead)
		notifs.POST("/read-all", notifHandler.MarkAllRead)
		notifs.DELETE("/:id", notifHandler.Delete)
	}

	// WebSocket stream authenticates via query token inside the handler.
	r.GET("/api/notifications/stream", notifHandler.Stream)

	return r, nil
}
