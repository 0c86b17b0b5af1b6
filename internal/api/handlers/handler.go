// Package handlers implements the tracking API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/buildinfo"
	"github.com/quickutil/toolstats/internal/ipres"
	"github.com/quickutil/toolstats/internal/usage"
)

// Handler carries the dependencies shared by all endpoints. The store
// may be nil when the database was unreachable at startup; affected
// endpoints then fail per-request with a generic 500 while the rest of
// the API keeps serving.
type Handler struct {
	store    usage.Backend
	resolver *ipres.Resolver
}

// New builds a handler set.
func New(store usage.Backend, resolver *ipres.Resolver) *Handler {
	return &Handler{store: store, resolver: resolver}
}

// dbUnavailableMessage is the generic message for per-request storage
// failures; detail stays in the server log.
const dbUnavailableMessage = "Internal server error"

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Capabilities lists the API surface for discovery.
func (h *Handler) Capabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "toolstats",
		"version": buildinfo.Version,
		"endpoints": []string{
			"POST /api/track-usage",
			"GET /api/popular-tools?limit=N",
			"GET /api/daily-stats?days=N",
			"GET /api/tool-usage/:toolId",
			"GET /api/client-info",
			"GET /api/public-ip",
			"GET /api/healthz",
			"GET /api/admin/recent-usage?limit=N",
			"GET /api/admin/client-debug",
			"GET /api/admin/dashboard",
		},
		"timestamp": nowStamp(),
	})
}

// Healthz is the liveness probe used by analytics clients.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": nowStamp()})
}
