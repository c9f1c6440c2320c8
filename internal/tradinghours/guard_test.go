package tradinghours

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testGuard() *Guard {
	cfg := Config{StartHour: 4, EndHour: 20, ResumeHour: 6, Zone: time.UTC}
	return New(cfg, zerolog.Nop())
}

func TestGuard_IsConnectionAllowedAt_HourWindow(t *testing.T) {
	g := testGuard()

	cases := []struct {
		hour int
		want bool
	}{
		{3, false},
		{4, true},
		{19, true},
		{20, false},
		{23, false},
	}
	for _, c := range cases {
		at := time.Date(2026, 1, 5, c.hour, 0, 0, 0, time.UTC)
		if got := g.isConnectionAllowedAt(at); got != c.want {
			t.Errorf("hour %d: expected %v, got %v", c.hour, c.want, got)
		}
	}
}

func TestGuard_MarkNotTradingDay_BlocksUntilResume(t *testing.T) {
	g := testGuard()
	g.MarkNotTradingDay("Not trade day")

	next, disallowed := g.GetNextAllowedLogon()
	if !disallowed {
		t.Fatal("expected a disallowed window after MarkNotTradingDay")
	}
	if next.Hour() != 6 {
		t.Errorf("expected resume hour 6, got %d", next.Hour())
	}

	if g.isConnectionAllowedAt(next.Add(-time.Minute)) {
		t.Error("expected connection disallowed just before the override")
	}
	if !g.isConnectionAllowedAt(next) {
		t.Error("expected connection allowed exactly at nextAllowedLogon")
	}
}

func TestGuard_ScheduleResume_ClearsOverrideAndInvokesCallback(t *testing.T) {
	g := testGuard()
	g.mu.Lock()
	g.nextAllowedLogon = time.Now().Add(20 * time.Millisecond)
	g.mu.Unlock()

	done := make(chan struct{})
	g.ScheduleResume(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected resume callback to fire")
	}

	if _, disallowed := g.GetNextAllowedLogon(); disallowed {
		t.Error("expected override cleared after resume fires")
	}
}

func TestGuard_ScheduleResume_NoopAfterShutdown(t *testing.T) {
	g := testGuard()
	g.MarkNotTradingDay("Not trade day")
	g.Shutdown()

	called := false
	g.ScheduleResume(func() { called = true })
	time.Sleep(10 * time.Millisecond)
	if called {
		t.Error("expected no callback invocation after shutdown")
	}
}

func TestGuard_GetNextAllowedLogon_ElapsedOverrideNoLongerBlocks(t *testing.T) {
	g := New(Config{StartHour: 0, EndHour: 24, ResumeHour: 6, Zone: time.UTC}, zerolog.Nop())

	g.mu.Lock()
	g.nextAllowedLogon = time.Now().Add(-time.Minute)
	g.mu.Unlock()

	if next, blocked := g.GetNextAllowedLogon(); blocked {
		t.Fatalf("elapsed override must not block, got %v", next)
	}
	// Both views agree even before the resume timer clears the field.
	if !g.IsConnectionAllowed() {
		t.Error("connection should be allowed once the override instant passed")
	}
}
