package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "usage.sqlite"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func record(t *testing.T, b *SQLiteBackend, toolID, sessionID string) {
	t.Helper()
	err := b.RecordUsage(context.Background(), Event{
		ToolID:    toolID,
		ToolName:  "Tool " + toolID,
		SessionID: sessionID,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("RecordUsage(%s, %s): %v", toolID, sessionID, err)
	}
}

func TestRecordUsageVisibleImmediately(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	record(t, b, "json-formatter", "sess-1")
	record(t, b, "json-formatter", "sess-1")
	record(t, b, "json-formatter", "sess-2")

	count, err := b.QueryToolUsageCount(ctx, "json-formatter")
	if err != nil {
		t.Fatalf("QueryToolUsageCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = b.QueryToolUsageCount(ctx, "never-used")
	if err != nil {
		t.Fatalf("QueryToolUsageCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count for unused tool = %d, want 0", count)
	}
}

func TestSessionUpsert(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }
	record(t, b, "json-formatter", "sess-1")

	b.now = func() time.Time { return base.Add(time.Hour) }
	record(t, b, "regex-tester", "sess-1")
	record(t, b, "regex-tester", "sess-1")

	s, err := b.QuerySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("QuerySession: %v", err)
	}
	if s == nil {
		t.Fatal("QuerySession returned nil, want record")
	}
	if s.TotalToolUses != 3 {
		t.Errorf("TotalToolUses = %d, want 3", s.TotalToolUses)
	}
	if !s.FirstVisit.Equal(base) {
		t.Errorf("FirstVisit = %v, want %v (must not move on later events)", s.FirstVisit, base)
	}
	if !s.LastVisit.Equal(base.Add(time.Hour)) {
		t.Errorf("LastVisit = %v, want %v", s.LastVisit, base.Add(time.Hour))
	}
}

func TestQuerySessionMissing(t *testing.T) {
	b := newTestBackend(t)
	s, err := b.QuerySession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("QuerySession: %v", err)
	}
	if s != nil {
		t.Errorf("QuerySession = %+v, want nil for unknown session", s)
	}
}

func TestDailyAggregatesSplitByUTCDate(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 29, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 30, 0, 10, 0, 0, time.UTC)

	b.now = func() time.Time { return day1 }
	record(t, b, "json-formatter", "sess-1")
	record(t, b, "regex-tester", "sess-2")

	b.now = func() time.Time { return day2 }
	record(t, b, "json-formatter", "sess-1")

	stats, err := b.QueryDailyStats(ctx, 30)
	if err != nil {
		t.Fatalf("QueryDailyStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2 distinct dates", len(stats))
	}

	// Newest date first.
	if stats[0].Date != "2026-08-30" || stats[1].Date != "2026-08-29" {
		t.Fatalf("dates = %q, %q, want 2026-08-30 then 2026-08-29", stats[0].Date, stats[1].Date)
	}
	if stats[1].TotalToolUses != 2 || stats[1].TotalUsers != 2 || stats[1].UniqueToolsUsed != 2 {
		t.Errorf("day1 aggregate = %+v, want uses=2 users=2 tools=2", stats[1])
	}
	if stats[0].TotalToolUses != 1 || stats[0].TotalUsers != 1 || stats[0].UniqueToolsUsed != 1 {
		t.Errorf("day2 aggregate = %+v, want uses=1 users=1 tools=1", stats[0])
	}
}

func TestPopularToolsOrdering(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	record(t, b, "alpha", "s1")
	record(t, b, "beta", "s1")
	record(t, b, "beta", "s2")
	record(t, b, "beta", "s3")
	record(t, b, "gamma", "s1")
	record(t, b, "gamma", "s2")

	tools, err := b.QueryPopularTools(ctx, 10)
	if err != nil {
		t.Fatalf("QueryPopularTools: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("len(tools) = %d, want 3", len(tools))
	}
	if tools[0].ToolID != "beta" || tools[0].Count != 3 {
		t.Errorf("tools[0] = %+v, want beta with 3 uses", tools[0])
	}
	// alpha and gamma differ in count; gamma has 2, alpha 1.
	if tools[1].ToolID != "gamma" || tools[2].ToolID != "alpha" {
		t.Errorf("order = %s, %s, want gamma then alpha", tools[1].ToolID, tools[2].ToolID)
	}
}

func TestPopularToolsTieBreakByFirstSeen(t *testing.T) {
	b := newTestBackend(t)

	record(t, b, "older", "s1")
	record(t, b, "newer", "s1")

	tools, err := b.QueryPopularTools(context.Background(), 10)
	if err != nil {
		t.Fatalf("QueryPopularTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("len(tools) = %d, want 2", len(tools))
	}
	if tools[0].ToolID != "older" {
		t.Errorf("tie broken as %s first, want older (first inserted)", tools[0].ToolID)
	}
}

func TestPopularToolsLimit(t *testing.T) {
	b := newTestBackend(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		record(t, b, id, "s1")
	}
	tools, err := b.QueryPopularTools(context.Background(), 2)
	if err != nil {
		t.Fatalf("QueryPopularTools: %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("len(tools) = %d, want limit of 2 applied", len(tools))
	}
}

func TestRecentUsageNewestFirst(t *testing.T) {
	b := newTestBackend(t)

	record(t, b, "first", "s1")
	record(t, b, "second", "s1")
	record(t, b, "third", "s1")

	events, err := b.QueryRecentUsage(context.Background(), 2)
	if err != nil {
		t.Fatalf("QueryRecentUsage: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].ToolID != "third" || events[1].ToolID != "second" {
		t.Errorf("order = %s, %s, want third then second", events[0].ToolID, events[1].ToolID)
	}
}

func TestDashboardSummary(t *testing.T) {
	b := newTestBackend(t)

	record(t, b, "json-formatter", "sess-1")
	record(t, b, "json-formatter", "sess-2")
	record(t, b, "regex-tester", "sess-2")

	summary, err := b.QueryDashboardSummary(context.Background())
	if err != nil {
		t.Fatalf("QueryDashboardSummary: %v", err)
	}
	if summary.TotalUsage != 3 {
		t.Errorf("TotalUsage = %d, want 3", summary.TotalUsage)
	}
	if summary.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", summary.TotalSessions)
	}
	if len(summary.RecentActivity) != 3 {
		t.Errorf("len(RecentActivity) = %d, want 3", len(summary.RecentActivity))
	}
}
