package ratelimit

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestLimiter(clock *fakeClock) *Limiter {
	return New(time.Minute, 100, 5*time.Minute, WithClock(clock.Now))
}

func TestWindowAllowsUpToThreshold(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 100; i++ {
		if !l.CheckAndRecord("1.2.3.4") {
			t.Fatalf("request %d rejected, want all 100 within the window accepted", i+1)
		}
		clock.Advance(100 * time.Millisecond)
	}

	if l.CheckAndRecord("1.2.3.4") {
		t.Errorf("request 101 accepted, want rejected")
	}
}

func TestCooldownRejectsUntilElapsed(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 101; i++ {
		l.CheckAndRecord("1.2.3.4")
	}

	// Still inside the cooldown, even with no traffic in between.
	clock.Advance(4 * time.Minute)
	if l.CheckAndRecord("1.2.3.4") {
		t.Errorf("request during cooldown accepted, want rejected")
	}

	// Past the 5 minute mark: the entry resets and the request passes.
	clock.Advance(2 * time.Minute)
	if !l.CheckAndRecord("1.2.3.4") {
		t.Errorf("request after cooldown rejected, want accepted")
	}
}

func TestWindowSlidesOldTimestampsOut(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 100; i++ {
		if !l.CheckAndRecord("k") {
			t.Fatalf("request %d rejected", i+1)
		}
	}

	// After the window passes, the full budget is back.
	clock.Advance(61 * time.Second)
	for i := 0; i < 100; i++ {
		if !l.CheckAndRecord("k") {
			t.Fatalf("request %d after window rejected, want accepted", i+1)
		}
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 101; i++ {
		l.CheckAndRecord("blocked-key")
	}
	if l.CheckAndRecord("blocked-key") {
		t.Fatalf("blocked key accepted")
	}
	if !l.CheckAndRecord("other-key") {
		t.Errorf("independent key rejected, want accepted")
	}
}

func TestUnknownClientsShareOneBucket(t *testing.T) {
	clock := newFakeClock()
	l := New(time.Minute, 2, 5*time.Minute, WithClock(clock.Now))

	l.CheckAndRecord("unknown")
	l.CheckAndRecord("unknown")
	if l.CheckAndRecord("unknown") {
		t.Errorf("third unidentifiable request accepted, want shared bucket exhausted")
	}
}

func TestSweepReclaimsIdleEntries(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	l.CheckAndRecord("idle")
	l.CheckAndRecord("busy")

	clock.Advance(6 * time.Minute)
	l.CheckAndRecord("busy")

	l.sweep()
	if got := l.Len(); got != 1 {
		t.Errorf("entries after sweep = %d, want 1", got)
	}
}

func TestSweepKeepsActiveBlocks(t *testing.T) {
	clock := newFakeClock()
	l := New(time.Minute, 1, 5*time.Minute, WithClock(clock.Now))

	l.CheckAndRecord("abuser")
	l.CheckAndRecord("abuser") // trips the block

	clock.Advance(2 * time.Minute)
	l.sweep()

	// The block must survive the sweep so the cooldown is not shortened.
	if l.CheckAndRecord("abuser") {
		t.Errorf("blocked key accepted after sweep, want cooldown preserved")
	}
}
