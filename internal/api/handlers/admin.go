package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/ipres"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/usage"
)

// Admin endpoints expose raw IPs and full header dumps. They sit behind
// the shared-secret gate; nothing here is reachable without it.

// AdminRecentUsage returns the newest raw event rows.
func (h *Handler) AdminRecentUsage(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	limit := parseQueryInt(c, "limit", 50)

	records, err := h.store.QueryRecentUsage(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("admin recent-usage: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	if records == nil {
		records = []usage.EventRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"usage": records, "timestamp": nowStamp()})
}

// AdminClientDebug dumps the request headers alongside the raw and
// normalized IP derivation.
func (h *Handler) AdminClientDebug(c *gin.Context) {
	raw := ipres.FromRequest(c.Request)
	clean := ipres.Normalize(raw)

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.Request.Header.Get(name)
	}

	c.JSON(http.StatusOK, gin.H{
		"rawIp":      raw,
		"cleanIp":    clean,
		"wellFormed": ipres.WellFormed(clean),
		"remoteAddr": c.Request.RemoteAddr,
		"headers":    headers,
		"timestamp":  nowStamp(),
	})
}

// AdminDashboard returns the aggregate dashboard rollup.
func (h *Handler) AdminDashboard(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}

	summary, err := h.store.QueryDashboardSummary(c.Request.Context())
	if err != nil {
		log.Errorf("admin dashboard: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totalUsage":     summary.TotalUsage,
		"totalSessions":  summary.TotalSessions,
		"recentActivity": summary.RecentActivity,
		"timestamp":      nowStamp(),
	})
}
