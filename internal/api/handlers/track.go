package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/ipres"
	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/usage"
)

// trackRequest is the wire shape posted by analytics clients.
type trackRequest struct {
	ToolID      string `json:"toolId"`
	ToolName    string `json:"toolName"`
	UserSession string `json:"userSession"`
	UserAgent   string `json:"userAgent"`
	ClientIP    string `json:"clientIp"`
}

// TrackUsage records one tool invocation: event insert plus session and
// daily rollup upserts.
func (h *Handler) TrackUsage(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var missing []string
	if strings.TrimSpace(req.ToolID) == "" {
		missing = append(missing, "toolId")
	}
	if strings.TrimSpace(req.ToolName) == "" {
		missing = append(missing, "toolName")
	}
	if strings.TrimSpace(req.UserSession) == "" {
		missing = append(missing, "userSession")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	if h.store == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}

	// The client's own resolution takes precedence: it may see through
	// proxies the server cannot. Sentinels fall back to header resolution.
	ip := req.ClientIP
	switch ip {
	case "", ipres.Unknown, ipres.Undetected, ipres.ErrorValue:
		ip = ipres.FromRequest(c.Request)
	}
	ip = ipres.Normalize(ip)

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	ev := usage.Event{
		ToolID:    req.ToolID,
		ToolName:  req.ToolName,
		SessionID: req.UserSession,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := h.store.RecordUsage(c.Request.Context(), ev); err != nil {
		log.Errorf("track-usage: record failed for tool %s: %v", req.ToolID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbUnavailableMessage})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
