package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/use-agent/placafipe/api/handler"
	"github.com/use-agent/placafipe/api/middleware"
	"github.com/use-agent/placafipe/config"
	"github.com/use-agent/placafipe/metrics"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Lookup    handler.Looker
	Sessions  handler.SessionSource
	Metrics   *metrics.Collector // nil disables /metrics and HTTP metrics
	Config    *config.Config
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → RequestID → CORS → Metrics
//	Lookup:  Auth (if enabled) → RateLimit
//
// Health and metrics sit outside auth so probes and scrapers always work.
func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(cors.New(corsConfig(cfg.CORS)))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	// Liveness, no auth required.
	health := handler.Health(deps.Sessions, deps.StartTime)
	r.GET("/", health)
	r.GET("/health", health)
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Protected group: auth + rate limit.
	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/consultar/:placa", handler.Lookup(deps.Lookup, cfg.Lookup.TimeoutStatus))

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = cfg.AllowOrigins
	return c
}
