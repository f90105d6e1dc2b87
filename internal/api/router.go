// Package api exposes the engine's operational HTTP surface: health,
// Prometheus metrics, job statistics, and schedule cancellation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	statsTimeout         = 5 * time.Second
	serviceVersion       = "1.0.0"
)

// StatsStore provides aggregate job counts for the stats endpoint.
type StatsStore interface {
	GetStats(ctx context.Context) (*domain.JobStats, error)
}

// DBPinger reports database reachability. *sqlx.DB satisfies it.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CacheInspector reports credential cache occupancy.
type CacheInspector interface {
	Sizes() (global, tenant int)
}

// Engine is the scheduler surface the API drives.
type Engine interface {
	Cancel(ctx context.Context, jobID, tenantID string) error
	IsRunning() bool
}

// Router holds the API dependencies
type Router struct {
	stats    StatsStore
	db       DBPinger
	redis    *redis.Client
	cache    CacheInspector
	engine   Engine
	registry *prometheus.Registry
	debug    bool
	logger   logger.Logger
}

// NewRouter creates a new API router
func NewRouter(stats StatsStore, db DBPinger, redisClient *redis.Client, cache CacheInspector, engine Engine, registry *prometheus.Registry, debug bool, log logger.Logger) *Router {
	return &Router{
		stats:    stats,
		db:       db,
		redis:    redisClient,
		cache:    cache,
		engine:   engine,
		registry: registry,
		debug:    debug,
		logger:   log,
	}
}

// SetupRoutes builds the gin engine with all operational routes.
func (r *Router) SetupRoutes() *gin.Engine {
	// Set Gin mode based on config
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Health check (public, no auth)
	router.GET("/health", r.healthCheck)

	if r.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/stats", r.getStats)
	v1.DELETE("/jobs/:id/schedule", r.cancelSchedule)

	return router
}

// NewServer wraps the gin engine in an http.Server with the given timeouts.
func (r *Router) NewServer(address string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         address,
		Handler:      r.SetupRoutes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// healthCheck returns the service health status
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "publication-engine",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.db.PingContext(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{
		"connected": dbConnected,
	}

	redisHealth := r.checkRedisHealth(ctx)
	health["redis"] = redisHealth
	if connected, ok := redisHealth["connected"].(bool); ok && !connected {
		if health["status"] == healthStatusHealthy {
			health["status"] = healthStatusDegraded
		}
	}

	if r.engine != nil {
		health["scheduler"] = gin.H{
			"running": r.engine.IsRunning(),
		}
	}

	c.JSON(http.StatusOK, health)
}

// checkRedisHealth checks Redis connection and returns health info
func (r *Router) checkRedisHealth(ctx context.Context) gin.H {
	if r.redis == nil {
		return gin.H{
			"connected": false,
			"error":     "Redis client not initialized",
		}
	}

	err := r.redis.Ping(ctx).Err()
	redisHealth := gin.H{
		"connected": err == nil,
	}
	if err != nil {
		redisHealth["error"] = err.Error()
	}

	return redisHealth
}
