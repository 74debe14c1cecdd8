package api

import (
	"net/http"

	"stockwatch/internal/config"
	"stockwatch/internal/server/api/middleware"
	av1 "stockwatch/internal/server/api/v1"
	"stockwatch/internal/storage"
	"stockwatch/internal/tickers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Router handles all routing logic
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger *zap.Logger
}

// NewRouter creates and configures a new router
func NewRouter(cfg *config.Config, store *storage.Store, registry *tickers.Registry, logger *zap.Logger) *Router {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: logger,
	}

	r.setupMiddleware()
	r.setupAPIV1(store, registry)

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() {
	m := middleware.New(r.logger)

	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())
	r.engine.Use(m.Secure())
}

// setupAPIV1 configures v1 API routes
func (r *Router) setupAPIV1(store *storage.Store, registry *tickers.Registry) {
	api := av1.NewAPI(store.Snapshots(), store.Diffs(), store.Subscriptions(), registry, r.logger)

	v1Router := r.engine.Group("/api/v1")
	api.RegisterRoutes(v1Router)
}
