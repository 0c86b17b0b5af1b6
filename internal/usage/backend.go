// Package usage provides durable tool-usage tracking: an insert-only
// event log plus upsert-maintained session and daily rollups, behind a
// backend interface with SQLite and Postgres implementations.
package usage

import (
	"context"
	"fmt"

	"github.com/quickutil/toolstats/internal/config"
)

// Backend defines the persistence contract for the usage store.
// Implementations must be safe for concurrent use.
//
// RecordUsage performs the three writes for one event (event insert,
// session upsert, daily upsert) inside a single transaction, so a
// partial failure never leaves a stray event with an un-incremented
// session count.
type Backend interface {
	// RecordUsage durably records one event and updates both rollups.
	RecordUsage(ctx context.Context, ev Event) error

	// QueryPopularTools groups events by tool and returns the top entries
	// by descending count. Ties break by first insertion.
	QueryPopularTools(ctx context.Context, limit int) ([]PopularTool, error)

	// QueryDailyStats returns the most recent daily rollups, newest first.
	QueryDailyStats(ctx context.Context, days int) ([]DailyAggregate, error)

	// QueryToolUsageCount returns the total event count for one tool.
	QueryToolUsageCount(ctx context.Context, toolID string) (int64, error)

	// QuerySession returns the rollup row for one session id, or nil.
	QuerySession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// QueryRecentUsage returns the newest raw event rows, including IPs.
	QueryRecentUsage(ctx context.Context, limit int) ([]EventRecord, error)

	// QueryDashboardSummary returns totals plus recent activity.
	QueryDashboardSummary(ctx context.Context) (*DashboardSummary, error)

	// Close releases the underlying database handles.
	Close() error
}

// NewBackend creates the appropriate backend for the DSN.
func NewBackend(ctx context.Context, dsn string) (Backend, error) {
	parsed, err := config.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("DSN is required (use sqlite:// or postgres://)")
	}

	switch parsed.Backend {
	case "postgres":
		return NewPostgresBackend(ctx, parsed.URL)
	case "sqlite":
		return NewSQLiteBackend(parsed.Path)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", parsed.Backend)
	}
}
