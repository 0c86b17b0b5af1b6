// Package api assembles the gin engine for the tracking service.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/api/handlers"
	"github.com/quickutil/toolstats/internal/api/middleware"
	"github.com/quickutil/toolstats/internal/ipres"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/ratelimit"
	"github.com/quickutil/toolstats/internal/usage"
)

// RouterOptions carries everything the router needs from the
// composition root.
type RouterOptions struct {
	Store    usage.Backend
	Resolver *ipres.Resolver
	Limiter  *ratelimit.Limiter
	AdminKey string
	Debug    bool
}

// NewRouter wires middleware and routes. The rate limiter runs ahead of
// every /api route, admin routes included.
func NewRouter(opts RouterOptions) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	h := handlers.New(opts.Store, opts.Resolver)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.RateLimit(opts.Limiter))
	apiGroup.Use(middleware.RequestSizeLimit(middleware.DefaultMaxRequestSize))

	apiGroup.GET("", h.Capabilities)
	apiGroup.GET("/healthz", h.Healthz)
	apiGroup.POST("/track-usage", h.TrackUsage)
	apiGroup.GET("/popular-tools", h.PopularTools)
	apiGroup.GET("/daily-stats", h.DailyStats)
	apiGroup.GET("/tool-usage/:toolId", h.ToolUsageCount)
	apiGroup.GET("/client-info", h.ClientInfo)
	apiGroup.GET("/public-ip", h.PublicIP)

	admin := apiGroup.Group("/admin")
	admin.Use(middleware.AdminKey(opts.AdminKey))
	admin.GET("/recent-usage", h.AdminRecentUsage)
	admin.GET("/client-debug", h.AdminClientDebug)
	admin.GET("/dashboard", h.AdminDashboard)

	return r
}

// requestLogger logs each request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
