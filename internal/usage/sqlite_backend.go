package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width UTC format so stored timestamps compare
// correctly as text.
const timeLayout = "2006-01-02 15:04:05.000"

// SQLiteBackend implements Backend over a local SQLite database.
// It is the zero-configuration default.
type SQLiteBackend struct {
	db *sql.DB

	now func() time.Time
}

// NewSQLiteBackend opens (creating if needed) the database at path and
// ensures the schema.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, now: time.Now}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT 'unknown',
		user_agent TEXT NOT NULL DEFAULT '',
		requested_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_tool_id ON tool_usage_events(tool_id);
	CREATE INDEX IF NOT EXISTS idx_events_session_id ON tool_usage_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_requested_at ON tool_usage_events(requested_at);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		first_visit TEXT NOT NULL,
		last_visit TEXT NOT NULL,
		total_tool_uses INTEGER NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT 'unknown',
		user_agent TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS daily_aggregates (
		date TEXT PRIMARY KEY,
		total_tool_uses INTEGER NOT NULL DEFAULT 0,
		total_users INTEGER NOT NULL DEFAULT 0,
		unique_tools_used INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := b.db.ExecContext(ctx, schema)
	return err
}

// RecordUsage writes the event row and both rollups in one transaction.
func (b *SQLiteBackend) RecordUsage(ctx context.Context, ev Event) error {
	now := b.now().UTC()
	stamp := now.Format(timeLayout)
	day := now.Format("2006-01-02")
	dayStart := day + " 00:00:00.000"
	dayEnd := now.AddDate(0, 0, 1).Format("2006-01-02") + " 00:00:00.000"

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tool_usage_events (tool_id, tool_name, session_id, ip_address, user_agent, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ToolID, ev.ToolName, ev.SessionID, ev.IPAddress, ev.UserAgent, stamp); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, first_visit, last_visit, total_tool_uses, ip_address, user_agent)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			total_tool_uses = total_tool_uses + 1,
			last_visit = excluded.last_visit,
			ip_address = excluded.ip_address,
			user_agent = excluded.user_agent
	`, ev.SessionID, stamp, stamp, ev.IPAddress, ev.UserAgent); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_aggregates (date, total_tool_uses, total_users, unique_tools_used)
		VALUES (?, 1, 0, 0)
		ON CONFLICT(date) DO UPDATE SET total_tool_uses = total_tool_uses + 1
	`, day); err != nil {
		return fmt.Errorf("upsert daily aggregate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE daily_aggregates SET
			total_users = (SELECT COUNT(DISTINCT session_id) FROM tool_usage_events
				WHERE requested_at >= ? AND requested_at < ?),
			unique_tools_used = (SELECT COUNT(DISTINCT tool_id) FROM tool_usage_events
				WHERE requested_at >= ? AND requested_at < ?)
		WHERE date = ?
	`, dayStart, dayEnd, dayStart, dayEnd, day); err != nil {
		return fmt.Errorf("refresh daily aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// QueryPopularTools groups by tool, descending count, ties broken by
// first insertion so the order stays deterministic.
func (b *SQLiteBackend) QueryPopularTools(ctx context.Context, limit int) ([]PopularTool, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT tool_id, tool_name, COUNT(*) AS usage_count
		FROM tool_usage_events
		GROUP BY tool_id, tool_name
		ORDER BY usage_count DESC, MIN(id) ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query popular tools: %w", err)
	}
	defer rows.Close()

	var results []PopularTool
	for rows.Next() {
		var pt PopularTool
		if err := rows.Scan(&pt.ToolID, &pt.ToolName, &pt.Count); err != nil {
			return nil, err
		}
		results = append(results, pt)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) QueryDailyStats(ctx context.Context, days int) ([]DailyAggregate, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT date, total_tool_uses, total_users, unique_tools_used
		FROM daily_aggregates
		ORDER BY date DESC
		LIMIT ?
	`, days)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var results []DailyAggregate
	for rows.Next() {
		var d DailyAggregate
		if err := rows.Scan(&d.Date, &d.TotalToolUses, &d.TotalUsers, &d.UniqueToolsUsed); err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) QueryToolUsageCount(ctx context.Context, toolID string) (int64, error) {
	var count int64
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tool_usage_events WHERE tool_id = ?`, toolID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query tool usage count: %w", err)
	}
	return count, nil
}

func (b *SQLiteBackend) QuerySession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var s SessionRecord
	var first, last string
	err := b.db.QueryRowContext(ctx, `
		SELECT session_id, first_visit, last_visit, total_tool_uses, ip_address, user_agent
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &first, &last, &s.TotalToolUses, &s.IPAddress, &s.UserAgent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if s.FirstVisit, err = time.Parse(timeLayout, first); err != nil {
		return nil, fmt.Errorf("parse first_visit: %w", err)
	}
	if s.LastVisit, err = time.Parse(timeLayout, last); err != nil {
		return nil, fmt.Errorf("parse last_visit: %w", err)
	}
	return &s, nil
}

func (b *SQLiteBackend) QueryRecentUsage(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, tool_id, tool_name, session_id, ip_address, user_agent, requested_at
		FROM tool_usage_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}
	defer rows.Close()

	var results []EventRecord
	for rows.Next() {
		var ev EventRecord
		var stamp string
		if err := rows.Scan(&ev.ID, &ev.ToolID, &ev.ToolName, &ev.SessionID, &ev.IPAddress, &ev.UserAgent, &stamp); err != nil {
			return nil, err
		}
		if ev.RequestedAt, err = time.Parse(timeLayout, stamp); err != nil {
			return nil, fmt.Errorf("parse requested_at: %w", err)
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

func (b *SQLiteBackend) QueryDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	summary := &DashboardSummary{}
	if err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tool_usage_events`).Scan(&summary.TotalUsage); err != nil {
		return nil, fmt.Errorf("query total usage: %w", err)
	}
	if err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions`).Scan(&summary.TotalSessions); err != nil {
		return nil, fmt.Errorf("query total sessions: %w", err)
	}
	recent, err := b.QueryRecentUsage(ctx, 10)
	if err != nil {
		return nil, err
	}
	summary.RecentActivity = recent
	return summary, nil
}

// Close closes the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
