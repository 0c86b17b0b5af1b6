package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/ipres"
)

// ClientInfo exposes the server's own view of the caller for diagnostics
// and as the last-resort source in the client's resolution chain. Read
// only, nothing persisted.
func (h *Handler) ClientInfo(c *gin.Context) {
	raw := ipres.FromRequest(c.Request)
	c.JSON(http.StatusOK, gin.H{
		"ip":        ipres.Normalize(raw),
		"rawIp":     raw,
		"userAgent": c.Request.UserAgent(),
		"timestamp": nowStamp(),
	})
}

// PublicIP resolves the caller's externally visible address through the
// third-party echo chain, falling back to header resolution when every
// service fails.
func (h *Handler) PublicIP(c *gin.Context) {
	ip, source, ok := h.resolver.Resolve(c.Request.Context())
	if ok {
		c.JSON(http.StatusOK, gin.H{
			"ip":        ipres.Normalize(ip),
			"source":    source,
			"timestamp": nowStamp(),
		})
		return
	}

	fallback := ipres.Normalize(ipres.FromRequest(c.Request))
	c.JSON(http.StatusOK, gin.H{
		"ip":        fallback,
		"source":    "fallback-headers",
		"warning":   "external IP services unavailable; value derived from request headers",
		"timestamp": nowStamp(),
	})
}
