package proxy

import (
	"testing"
	"time"
)

func newTestPool(t *testing.T, scraping, checkout []string) (*Pool, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(scraping, checkout)
	p.SetClock(func() time.Time { return now })
	return p, &now
}

func TestStrikeEscalation(t *testing.T) {
	p, now := newTestPool(t, []string{"http://p1:8080"}, nil)

	// Strike 1: 5 minute cooldown
	p.ReportForbidden("http://p1:8080")
	snap := p.StatusSnapshot(PoolScraping)
	if len(snap.Cooldown) != 1 {
		t.Fatalf("expected 1 proxy in cooldown after first strike, got %+v", snap)
	}
	if until := snap.Cooldown[0].CooldownUntil; !until.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("expected 5m cooldown, got until=%v", until)
	}

	// Strike 2: 15 minute cooldown
	p.ReportForbidden("http://p1:8080")
	snap = p.StatusSnapshot(PoolScraping)
	if until := snap.Cooldown[0].CooldownUntil; !until.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expected 15m cooldown, got until=%v", until)
	}

	// Strike 3: blocked, no expiry
	p.ReportForbidden("http://p1:8080")
	snap = p.StatusSnapshot(PoolScraping)
	if len(snap.Blocked) != 1 {
		t.Fatalf("expected blocked after third strike, got %+v", snap)
	}
	if !snap.Blocked[0].CooldownUntil.IsZero() {
		t.Errorf("blocked proxy should have no cooldown expiry")
	}

	// Further forbidden reports leave it blocked with strike count intact
	p.ReportForbidden("http://p1:8080")
	snap = p.StatusSnapshot(PoolScraping)
	if len(snap.Blocked) != 1 || snap.Blocked[0].StrikeCount != 3 {
		t.Errorf("forbidden on blocked proxy should be a no-op, got %+v", snap.Blocked)
	}
}

func TestLazyCooldownExpiry(t *testing.T) {
	p, now := newTestPool(t, []string{"http://p1:8080"}, nil)

	p.ReportForbidden("http://p1:8080")
	if px := p.AssignForCycle(PoolScraping, 0); px != nil {
		t.Fatalf("cooling proxy should not be assignable, got %v", px.URL)
	}

	// Advance past the cooldown; no state transition call needed.
	*now = now.Add(6 * time.Minute)
	px := p.AssignForCycle(PoolScraping, 0)
	if px == nil || px.URL != "http://p1:8080" {
		t.Fatalf("expired cooldown should make proxy eligible, got %v", px)
	}

	snap := p.StatusSnapshot(PoolScraping)
	if len(snap.Active) != 1 {
		t.Errorf("snapshot should report expired cooldown as active, got %+v", snap)
	}
}

func TestReportSuccessResets(t *testing.T) {
	p, _ := newTestPool(t, []string{"http://p1:8080"}, nil)

	p.ReportForbidden("http://p1:8080")
	p.ReportSuccess("http://p1:8080")

	snap := p.StatusSnapshot(PoolScraping)
	if len(snap.Active) != 1 || snap.Active[0].StrikeCount != 0 {
		t.Fatalf("success should reset strikes and reactivate, got %+v", snap)
	}

	// Blocked proxies are not auto-reactivated by success.
	for i := 0; i < 3; i++ {
		p.ReportForbidden("http://p1:8080")
	}
	p.ReportSuccess("http://p1:8080")
	snap = p.StatusSnapshot(PoolScraping)
	if len(snap.Blocked) != 1 {
		t.Errorf("success on blocked proxy should be a status no-op, got %+v", snap)
	}

	p.Unblock("http://p1:8080")
	snap = p.StatusSnapshot(PoolScraping)
	if len(snap.Active) != 1 || snap.Active[0].StrikeCount != 0 {
		t.Errorf("unblock should fully reset the proxy, got %+v", snap)
	}
}

func TestCheckoutProxiesNeverPenalized(t *testing.T) {
	p, _ := newTestPool(t, nil, []string{"http://c1:8080"})

	for i := 0; i < 5; i++ {
		p.ReportForbidden("http://c1:8080")
	}

	snap := p.StatusSnapshot(PoolCheckout)
	if len(snap.Active) != 1 || snap.Active[0].StrikeCount != 0 {
		t.Errorf("checkout proxy must stay active regardless of strikes, got %+v", snap)
	}
}

func TestRoundRobinAdvancesPerCycle(t *testing.T) {
	proxies := []string{"http://p1:8080", "http://p2:8080", "http://p3:8080"}
	p, _ := newTestPool(t, proxies, nil)

	// Within one cycle the mapping is stable across repeated sweeps.
	first := p.AssignForCycle(PoolScraping, 0)
	again := p.AssignForCycle(PoolScraping, 0)
	if first.URL != again.URL {
		t.Fatalf("mapping must be stable within a cycle: %s vs %s", first.URL, again.URL)
	}

	// Five endpoints over three proxies wrap modulo the active count.
	for idx := 0; idx < 5; idx++ {
		got := p.AssignForCycle(PoolScraping, idx)
		want := proxies[idx%3]
		if got.URL != want {
			t.Errorf("endpoint %d: expected %s, got %s", idx, want, got.URL)
		}
	}

	// After one cycle advance each endpoint shifts to the next proxy.
	p.AdvanceCycle()
	for idx := 0; idx < 5; idx++ {
		got := p.AssignForCycle(PoolScraping, idx)
		want := proxies[(idx+1)%3]
		if got.URL != want {
			t.Errorf("endpoint %d after advance: expected %s, got %s", idx, want, got.URL)
		}
	}
}

func TestAssignSkipsUnavailable(t *testing.T) {
	p, _ := newTestPool(t, []string{"http://p1:8080", "http://p2:8080"}, nil)

	p.ReportForbidden("http://p1:8080")

	// Only p2 remains eligible; every index maps to it.
	for idx := 0; idx < 3; idx++ {
		got := p.AssignForCycle(PoolScraping, idx)
		if got == nil || got.URL != "http://p2:8080" {
			t.Errorf("endpoint %d: expected p2, got %v", idx, got)
		}
	}

	p.ReportForbidden("http://p2:8080")
	if got := p.AssignForCycle(PoolScraping, 0); got != nil {
		t.Errorf("fully unavailable pool should assign nothing, got %v", got.URL)
	}

	// AnyAvailable is best-effort and still returns a configured proxy.
	if got := p.AnyAvailable(PoolScraping); got == nil {
		t.Error("AnyAvailable should fall back to a configured proxy")
	}
}

func TestStickyForIsDeterministic(t *testing.T) {
	p, _ := newTestPool(t, nil, []string{"http://c1:8080", "http://c2:8080"})

	a := p.StickyFor(PoolCheckout, 101)
	b := p.StickyFor(PoolCheckout, 101)
	if a.URL != b.URL {
		t.Errorf("sticky selection must be stable per item: %s vs %s", a.URL, b.URL)
	}

	odd := p.StickyFor(PoolCheckout, 101)
	even := p.StickyFor(PoolCheckout, 102)
	if odd.URL == even.URL {
		t.Errorf("adjacent items should spread across the pool")
	}

	if px := p.StickyFor(PoolCheckout, -5); px == nil {
		t.Error("negative item ids must still resolve a proxy")
	}
}
