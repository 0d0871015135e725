package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/formgate/internal/app"
	"github.com/charlesng35/formgate/internal/handlers"
	"github.com/charlesng35/formgate/internal/middleware"
)

// Dependencies are the services the HTTP layer talks to.
type Dependencies struct {
	Admissions handlers.Admitter
	Records    handlers.Pinger
	Allowlist  handlers.AllowlistProbe
	// RateStore backs the submission rate limiter. Nil selects an in-memory store.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Admissions == nil {
		return nil, errors.New("admission service must be provided")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, deps)

	submissions, err := handlers.NewSubmissionHandler(deps.Admissions)
	if err != nil {
		return nil, err
	}

	limit := cfg.Server.RateLimit
	window := limit.Window
	if window <= 0 {
		window = time.Minute
	}
	limiter := middleware.RateLimit(deps.RateStore, limit.Requests, window)

	r.POST("/submit", limiter, submissions.Submit)
	r.POST("/api/submissions", limiter, submissions.Submit)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoMethod(middleware.MethodNotAllowedHandler)

	// Static assets, with the allowlist file hidden
	if dir := cfg.Storage.PublicDir; dir != "" {
		static := handlers.NewStaticHandler(dir, cfg.Storage.AllowlistPath, app.AllowlistFileName)
		r.NoRoute(static.Serve)
	} else {
		r.NoRoute(middleware.NotFoundHandler)
	}

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, deps Dependencies) {
	health := handlers.NewHealthHandler(deps.Records, deps.Allowlist)

	r.GET("/health", health.Live)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}
