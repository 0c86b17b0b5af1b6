package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/usage"
)

// parseQueryInt reads a positive integer query parameter, falling back
// to def on absence or garbage.
func parseQueryInt(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// PopularTools returns the tools ranked by usage count.
func (h *Handler) PopularTools(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	limit := parseQueryInt(c, "limit", 10)

	tools, err := h.store.QueryPopularTools(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("popular-tools: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	if tools == nil {
		tools = []usage.PopularTool{}
	}
	c.JSON(http.StatusOK, tools)
}

// DailyStats returns the most recent daily rollups, newest first.
func (h *Handler) DailyStats(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	days := parseQueryInt(c, "days", 30)

	stats, err := h.store.QueryDailyStats(c.Request.Context(), days)
	if err != nil {
		log.Errorf("daily-stats: query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	if stats == nil {
		stats = []usage.DailyAggregate{}
	}
	c.JSON(http.StatusOK, stats)
}

// ToolUsageCount returns the total event count for one tool.
func (h *Handler) ToolUsageCount(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	toolID := c.Param("toolId")

	count, err := h.store.QueryToolUsageCount(c.Request.Context(), toolID)
	if err != nil {
		log.Errorf("tool-usage: query failed for %s: %v", toolID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"toolId": toolID, "count": count})
}
