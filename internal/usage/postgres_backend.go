package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/jackc/pgx/v5/pgxpool"

	log "github.com/quickutil/toolstats/internal/logging"
	"github.com/quickutil/toolstats/internal/resilience"
)

// PostgresBackend implements Backend using PostgreSQL with pgx.
type PostgresBackend struct {
	pool *pgxpool.Pool

	now func() time.Time
}

// NewPostgresBackend creates a Postgres-backed store. The initial
// connect is retried with backoff since the database is often still
// starting when the service comes up.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	retryCfg := resilience.DefaultRetryConfig
	retryCfg.MaxDelay = 5 * time.Second
	rp := resilience.NewRetryPolicy[*pgxpool.Pool](retryCfg)

	pool, err := failsafe.With(rp).WithContext(connectCtx).Get(func() (*pgxpool.Pool, error) {
		p, errNew := pgxpool.New(connectCtx, dsn)
		if errNew != nil {
			return nil, errNew
		}
		if errPing := p.Ping(connectCtx); errPing != nil {
			p.Close()
			log.Warnf("usage: postgres ping failed, retrying: %v", errPing)
			return nil, errPing
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	b := &PostgresBackend{pool: pool, now: time.Now}
	if err := b.ensureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_usage_events (
		id BIGSERIAL PRIMARY KEY,
		tool_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT 'unknown',
		user_agent TEXT NOT NULL DEFAULT '',
		requested_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_tool_id ON tool_usage_events(tool_id);
	CREATE INDEX IF NOT EXISTS idx_events_session_id ON tool_usage_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_requested_at ON tool_usage_events(requested_at);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		first_visit TIMESTAMPTZ NOT NULL,
		last_visit TIMESTAMPTZ NOT NULL,
		total_tool_uses BIGINT NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT 'unknown',
		user_agent TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS daily_aggregates (
		date TEXT PRIMARY KEY,
		total_tool_uses BIGINT NOT NULL DEFAULT 0,
		total_users BIGINT NOT NULL DEFAULT 0,
		unique_tools_used BIGINT NOT NULL DEFAULT 0
	);
	`
	_, err := b.pool.Exec(ctx, schema)
	return err
}

// RecordUsage writes the event row and both rollups in one transaction.
func (b *PostgresBackend) RecordUsage(ctx context.Context, ev Event) error {
	now := b.now().UTC()
	day := now.Format("2006-01-02")
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.AddDate(0, 0, 1)

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO tool_usage_events (tool_id, tool_name, session_id, ip_address, user_agent, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ToolID, ev.ToolName, ev.SessionID, ev.IPAddress, ev.UserAgent, now); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (session_id, first_visit, last_visit, total_tool_uses, ip_address, user_agent)
		VALUES ($1, $2, $2, 1, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			total_tool_uses = sessions.total_tool_uses + 1,
			last_visit = EXCLUDED.last_visit,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent
	`, ev.SessionID, now, ev.IPAddress, ev.UserAgent); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_aggregates (date, total_tool_uses, total_users, unique_tools_used)
		VALUES ($1, 1, 0, 0)
		ON CONFLICT (date) DO UPDATE SET total_tool_uses = daily_aggregates.total_tool_uses + 1
	`, day); err != nil {
		return fmt.Errorf("upsert daily aggregate: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE daily_aggregates SET
			total_users = (SELECT COUNT(DISTINCT session_id) FROM tool_usage_events
				WHERE requested_at >= $1 AND requested_at < $2),
			unique_tools_used = (SELECT COUNT(DISTINCT tool_id) FROM tool_usage_events
				WHERE requested_at >= $1 AND requested_at < $2)
		WHERE date = $3
	`, dayStart, dayEnd, day); err != nil {
		return fmt.Errorf("refresh daily aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *PostgresBackend) QueryPopularTools(ctx context.Context, limit int) ([]PopularTool, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := b.pool.Query(ctx, `
		SELECT tool_id, tool_name, COUNT(*) AS usage_count
		FROM tool_usage_events
		GROUP BY tool_id, tool_name
		ORDER BY usage_count DESC, MIN(id) ASC
		LIMIT $1
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

func (b *PostgresBackend) QueryDailyStats(ctx context.Context, days int) ([]DailyAggregate, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := b.pool.Query(ctx, `
		SELECT date, total_tool_uses, total_users, unique_tools_used
		FROM daily_aggregates
		ORDER BY date DESC
		LIMIT $1
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

func (b *PostgresBackend) QueryToolUsageCount(ctx context.Context, toolID string) (int64, error) {
	var count int64
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tool_usage_events WHERE tool_id = $1`, toolID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query tool usage count: %w", err)
	}
	return count, nil
}

func (b *PostgresBackend) QuerySession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT session_id, first_visit, last_visit, total_tool_uses, ip_address, user_agent
		FROM sessions WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var s SessionRecord
	if err := rows.Scan(&s.SessionID, &s.FirstVisit, &s.LastVisit, &s.TotalToolUses, &s.IPAddress, &s.UserAgent); err != nil {
		return nil, err
	}
	return &s, nil
}

func (b *PostgresBackend) QueryRecentUsage(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.pool.Query(ctx, `
		SELECT id, tool_id, tool_name, session_id, ip_address, user_agent, requested_at
		FROM tool_usage_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}
	defer rows.Close()

	var results []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.ID, &ev.ToolID, &ev.ToolName, &ev.SessionID, &ev.IPAddress, &ev.UserAgent, &ev.RequestedAt); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

func (b *PostgresBackend) QueryDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	summary := &DashboardSummary{}
	if err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tool_usage_events`).Scan(&summary.TotalUsage); err != nil {
		return nil, fmt.Errorf("query total usage: %w", err)
	}
	if err := b.pool.QueryRow(ctx,
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

// Close releases the connection pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
