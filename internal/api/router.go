package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/idempotency"
	"github.com/tmpim/krist/pkg/logging"
)

// Options configures the HTTP routes
type Options struct {
	SubmitRate  float64
	SubmitBurst int
	Idempotency idempotency.Options
}

// Router sets up API routes
type Router struct {
	services     *Services
	addresses    *db.AddressRepository
	blocks       *db.BlockRepository
	transactions *db.TransactionRepository
	limiter      *RateLimiter
	opts         Options
	logger       *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(services *Services, opts Options) *Router {
	repo := db.NewRepository(services.DB.DB)
	return &Router{
		services:     services,
		addresses:    db.NewAddressRepository(repo),
		blocks:       db.NewBlockRepository(repo),
		transactions: db.NewTransactionRepository(repo),
		limiter:      NewRateLimiter(opts.SubmitRate, opts.SubmitBurst),
		opts:         opts,
		logger:       logging.WithComponent("api-router"),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/motd", r.motd)

	engine.GET("/work", r.work)
	engine.GET("/work/day", r.workDay)
	engine.GET("/work/detailed", r.workDetailed)

	engine.GET("/blocks/last", r.lastBlock)
	engine.GET("/blocks/:height", r.block)

	engine.GET("/addresses/:address", r.address)
	engine.GET("/transactions/:id", r.transaction)
	engine.GET("/supply", r.supply)

	engine.POST("/submit",
		r.limiter.Middleware(),
		idempotency.Middleware(r.services.Cache, r.opts.Idempotency),
		r.submit,
	)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "OK", "service": "krist"}
	code := 200

	if err := r.services.DB.Health(ctx); err != nil {
		r.logger.Warn("Database health check failed", zap.Error(err))
		status["status"] = "DEGRADED"
		status["database"] = err.Error()
		code = 503
	}
	if err := r.services.Cache.Health(ctx); err != nil {
		r.logger.Warn("Redis health check failed", zap.Error(err))
		status["status"] = "DEGRADED"
		status["redis"] = err.Error()
		code = 503
	}

	c.JSON(code, status)
}
