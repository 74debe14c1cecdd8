package v1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/server/api/response"
	"stockwatch/internal/storage"
	"stockwatch/internal/tickers"
	"stockwatch/internal/types"
	"stockwatch/internal/validator"
	"stockwatch/internal/version"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// API represents the API
type API struct {
	snapshots storage.SnapshotRepository
	diffs     storage.DiffRepository
	subs      storage.SubscriptionRepository
	registry  *tickers.Registry
	validator *validator.Validator
	logger    *zap.Logger
}

// NewAPI creates new API
func NewAPI(snapshots storage.SnapshotRepository, diffs storage.DiffRepository,
	subs storage.SubscriptionRepository, registry *tickers.Registry, logger *zap.Logger) *API {
	return &API{
		snapshots: snapshots,
		diffs:     diffs,
		subs:      subs,
		registry:  registry,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	// Ticker endpoints
	t := r.Group("/tickers")
	{
		t.GET("/:ticker/history", api.getHistory)
		t.GET("/:ticker/diffs", api.getDiffs)
	}

	// Diff log
	r.GET("/diffs", api.getDiffs)

	// Subscription endpoints
	users := r.Group("/users")
	{
		users.POST("", api.registerUser)
		users.DELETE("/:name", api.deleteUser)
	}

	// Health check
	r.GET("/health", api.healthCheck)
}

// getHistory returns a ticker's collapsed history for one record type
func (api *API) getHistory(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	ticker := strings.ToUpper(c.Param("ticker"))
	if err := api.validator.Ticker(ticker); err != nil {
		resp.BadRequest(err)
		return
	}

	source := c.DefaultQuery("source", "profile")
	t, ok := api.registry.Get(source)
	if !ok {
		resp.BadRequest(fmt.Errorf("unknown record type %q", source))
		return
	}

	rows, err := api.snapshots.History(ctx, source, ticker)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			api.logger.Info("Client canceled history request",
				zap.String("ticker", ticker))
			return
		}

		api.logger.Error("Failed to get history",
			zap.Error(err),
			zap.String("ticker", ticker),
			zap.String("source", source))
		resp.InternalError(errors.New("failed to get history"))
		return
	}

	if len(rows) == 0 {
		resp.NotFound(fmt.Errorf("no history for %s", ticker))
		return
	}

	// Keep nested group roots visible even though they hold complex values
	keep := make(map[string]struct{})
	for key := range t.NestedKeys() {
		keep[key] = struct{}{}
	}

	view := storage.PruneView(storage.CollapseHistory(rows), keep)
	resp.Success(gin.H{
		"ticker":  ticker,
		"source":  source,
		"history": view,
	})
}

// getDiffs returns the diff log, optionally narrowed to one ticker
func (api *API) getDiffs(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	ticker := strings.ToUpper(c.Param("ticker"))
	if ticker == "" {
		ticker = strings.ToUpper(c.Query("ticker"))
	}
	if ticker != "" {
		if err := api.validator.Ticker(ticker); err != nil {
			resp.BadRequest(err)
			return
		}
	}

	diffs, err := api.diffs.Query(ctx, ticker)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			api.logger.Info("Client canceled diffs request")
			return
		}

		api.logger.Error("Failed to get diffs",
			zap.Error(err),
			zap.String("ticker", ticker))
		resp.InternalError(errors.New("failed to get diffs"))
		return
	}

	resp.Success(diffs)
}

// registerUser registers a delivery subscription
func (api *API) registerUser(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var sub types.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		resp.BadRequest(errors.New("invalid subscription format"))
		return
	}

	if err := api.validator.Struct(&sub); err != nil {
		resp.ValidationError(err)
		return
	}

	if err := api.subs.Upsert(ctx, &sub); err != nil {
		api.logger.Error("Failed to register subscription",
			zap.Error(err),
			zap.String("user", sub.UserName))
		resp.InternalError(errors.New("failed to register subscription"))
		return
	}

	api.logger.Info("Registered subscription",
		zap.String("user", sub.UserName),
		zap.Bool("delay", sub.Delay))
	resp.Created(sub)
}

// deleteUser removes a delivery subscription
func (api *API) deleteUser(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	name := c.Param("name")
	if name == "" {
		resp.BadRequest(errors.New("user name is required"))
		return
	}

	if err := api.subs.Delete(ctx, name); err != nil {
		api.logger.Error("Failed to delete subscription",
			zap.Error(err),
			zap.String("user", name))
		resp.InternalError(errors.New("failed to delete subscription"))
		return
	}

	resp.NoContent()
}

// healthCheck handles health check requests
func (api *API) healthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)

	resp.Success(gin.H{
		"status":  "healthy",
		"version": version.GetInfo(),
	})
}
