package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/app"
	"github.com/kartheek-penagamuri/stride-sub000/internal/handlers"
	"github.com/kartheek-penagamuri/stride-sub000/internal/middleware"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring/checks"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
)

// Dependencies are the services the HTTP layer exposes.
type Dependencies struct {
	DB            *gorm.DB
	Pods          *services.PodService
	Sessions      *services.SessionService
	Waitlist      *services.WaitlistService
	Notifications *services.NotificationService
	Audit         *services.AuditService
	// Health defaults to a manager probing DB only.
	Health *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.Pods == nil:
		return errors.New("pod service must be provided")
	case d.Sessions == nil:
		return errors.New("session service must be provided")
	case d.Waitlist == nil:
		return errors.New("waitlist service must be provided")
	case d.Notifications == nil:
		return errors.New("notification service must be provided")
	case d.Audit == nil:
		return errors.New("audit service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the pod API.
func NewRouter(deps Dependencies, cfg *app.Config) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.APIHeaders())
	r.Use(middleware.Identity())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(deps.DB, 0))
	}
	r.GET("/health", handlers.Health(health))
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health/live", handlers.Liveness(health))
		r.GET("/health/ready", handlers.Readiness(health))
	}

	api := r.Group("/api")

	match := handlers.NewMatchHandler(deps.Waitlist)
	api.POST("/match", match.Request)
	waitlist := api.Group("/waitlist")
	{
		waitlist.GET("/:id", match.Get)
		waitlist.POST("/:id/cancel", match.Cancel)
		waitlist.POST("/:id/accept", match.Accept)
	}

	pods := handlers.NewPodHandler(deps.Pods, deps.Sessions)
	podGroup := api.Group("/pods")
	{
		podGroup.POST("", pods.Create)
		podGroup.GET("/:id", pods.Get)
		podGroup.POST("/:id/join", pods.Join)
		podGroup.POST("/:id/leave", pods.Leave)
		podGroup.POST("/:id/activate", pods.Activate)
		podGroup.POST("/:id/complete", pods.Complete)
		podGroup.GET("/:id/sessions", pods.Sessions)
	}

	sessions := handlers.NewSessionHandler(deps.Sessions)
	sessionGroup := api.Group("/sessions")
	{
		sessionGroup.POST("", sessions.Create)
		sessionGroup.GET("/:id", sessions.Get)
		sessionGroup.GET("/:id/attendance", sessions.Attendance)
		sessionGroup.PUT("/:id/attendance", sessions.MarkAttendance)
		sessionGroup.GET("/:id/transitions", sessions.Transitions)
		sessionGroup.POST("/:id/:action", sessions.Transition)
	}

	notifications := handlers.NewNotificationHandler(deps.Notifications)
	users := api.Group("/users/:id")
	{
		users.GET("/pods", pods.ListForUser)
		users.GET("/notifications", notifications.List)
		users.POST("/notifications/:nid/read", notifications.MarkRead)
	}

	audit := handlers.NewAuditHandler(deps.Audit)
	api.GET("/audit", audit.List)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
