package usage

import "time"

// Event is one tool invocation to record. The server assigns the
// timestamp; IPAddress arrives already normalized.
type Event struct {
	ToolID    string
	ToolName  string
	SessionID string
	IPAddress string
	UserAgent string
}

// EventRecord is a stored tool usage row, as returned by the read side.
type EventRecord struct {
	ID          int64     `json:"id"`
	ToolID      string    `json:"tool_id"`
	ToolName    string    `json:"tool_name"`
	SessionID   string    `json:"session_id"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	RequestedAt time.Time `json:"requested_at"`
}

// PopularTool is one entry of the popularity ranking.
type PopularTool struct {
	ToolID   string `json:"tool_id"`
	ToolName string `json:"tool_name"`
	Count    int64  `json:"usage_count"`
}

// DailyAggregate is the per-UTC-date rollup row.
type DailyAggregate struct {
	Date            string `json:"date"` // "2006-01-02"
	TotalToolUses   int64  `json:"total_tool_uses"`
	TotalUsers      int64  `json:"total_users"`
	UniqueToolsUsed int64  `json:"unique_tools_used"`
}

// SessionRecord is the per-session rollup row.
type SessionRecord struct {
	SessionID     string    `json:"session_id"`
	FirstVisit    time.Time `json:"first_visit"`
	LastVisit     time.Time `json:"last_visit"`
	TotalToolUses int64     `json:"total_tool_uses"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
}

// DashboardSummary is the admin dashboard rollup.
type DashboardSummary struct {
	TotalUsage     int64         `json:"totalUsage"`
	TotalSessions  int64         `json:"totalSessions"`
	RecentActivity []EventRecord `json:"recentActivity"`
}
