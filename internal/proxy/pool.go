// Package proxy tracks the health of the outbound proxy pools and hands out
// assignments for poll cycles and checkout sessions.
package proxy

import (
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Pool names. Scraping proxies carry the polling traffic and are subject to
// strike escalation; checkout proxies are treated as always-active.
const (
	PoolScraping = "scraping"
	PoolCheckout = "checkout"
)

// Status is the health state of a single proxy.
type Status string

const (
	StatusActive   Status = "active"
	StatusCooldown Status = "cooldown"
	StatusBlocked  Status = "blocked"
)

// Strike escalation: first forbidden response parks the proxy for 5 minutes,
// the second for 15, the third blocks it until a manual unblock.
const (
	firstStrikeCooldown  = 5 * time.Minute
	secondStrikeCooldown = 15 * time.Minute
	blockingStrike       = 3
)

// Proxy is one outbound identity and its mutable health record. Health is
// mutated only by the pool in response to reported request outcomes.
type Proxy struct {
	URL             string
	Pool            string
	StrikeCount     int
	Status          Status
	CooldownUntil   time.Time
	LastSuccessAt   time.Time
	LastForbiddenAt time.Time
}

// Snapshot is an observability view of one pool, with lazy cooldown expiry
// already applied.
type Snapshot struct {
	Active   []Proxy
	Cooldown []Proxy
	Blocked  []Proxy
	Total    int
}

// Pool owns the health table for both proxy pools. All state lives behind
// one mutex; callers hold no references into the table.
type Pool struct {
	mu     sync.Mutex
	pools  map[string][]*Proxy // insertion order per pool
	byURL  map[string]*Proxy
	cycle  int
	now    func() time.Time
	notify func(p Proxy)
}

// NewPool builds the health table from the configured proxy URL lists.
// Entries that fail to parse are skipped with a warning.
func NewPool(scraping, checkout []string) *Pool {
	p := &Pool{
		pools: make(map[string][]*Proxy),
		byURL: make(map[string]*Proxy),
		now:   time.Now,
	}
	p.addAll(PoolScraping, scraping)
	p.addAll(PoolCheckout, checkout)
	return p
}

func (p *Pool) addAll(pool string, urls []string) {
	for _, raw := range urls {
		if _, err := url.Parse(raw); err != nil || raw == "" {
			slog.Warn("proxy_config_invalid", "pool", pool, "url", raw, "error", err)
			continue
		}
		if _, dup := p.byURL[raw]; dup {
			slog.Warn("proxy_config_duplicate", "pool", pool, "url", raw)
			continue
		}
		px := &Proxy{URL: raw, Pool: pool, Status: StatusActive}
		p.pools[pool] = append(p.pools[pool], px)
		p.byURL[raw] = px
	}
}

// SetNotify registers a callback invoked (with a copy) whenever a proxy's
// health state changes. Used to feed the observability sink.
func (p *Pool) SetNotify(fn func(Proxy)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

// SetClock overrides the pool's time source. Tests only.
func (p *Pool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// eligible reports whether a proxy may be assigned right now. Cooldown
// expiry is lazy: an elapsed cooldown counts as active without a sweep.
func eligible(px *Proxy, now time.Time) bool {
	switch px.Status {
	case StatusActive:
		return true
	case StatusCooldown:
		return !px.CooldownUntil.After(now)
	default:
		return false
	}
}

// AssignForCycle returns the proxy serving the endpoint at the given index
// for the current poll cycle, or nil if the pool is empty or fully
// unavailable. The mapping is stable within a cycle: the cycle counter
// offsets the endpoint index, and AdvanceCycle shifts every endpoint to the
// next proxy.
func (p *Pool) AssignForCycle(pool string, index int) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	available := make([]*Proxy, 0, len(p.pools[pool]))
	for _, px := range p.pools[pool] {
		if eligible(px, now) {
			available = append(available, px)
		}
	}
	if len(available) == 0 {
		return nil
	}

	chosen := available[(index+p.cycle)%len(available)]
	cp := *chosen
	return &cp
}

// AdvanceCycle shifts the round-robin mapping. Called once per completed
// poll sweep, not per endpoint.
func (p *Pool) AdvanceCycle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycle++
}

// AnyAvailable returns a proxy for one-off operations outside the polling
// cadence. Best effort: prefers an eligible proxy but falls back to any
// configured one.
func (p *Pool) AnyAvailable(pool string) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, px := range p.pools[pool] {
		if eligible(px, now) {
			cp := *px
			return &cp
		}
	}
	if list := p.pools[pool]; len(list) > 0 {
		cp := *list[0]
		return &cp
	}
	return nil
}

// StickyFor returns the proxy pinned to the given item for the duration of
// its checkout session. Selection is deterministic on the item identity so
// every request in the session shares one network fingerprint.
func (p *Pool) StickyFor(pool string, itemID int64) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.pools[pool]
	if len(list) == 0 {
		return nil
	}
	idx := int(itemID % int64(len(list)))
	if idx < 0 {
		idx += len(list)
	}
	cp := *list[idx]
	return &cp
}

// ReportForbidden records an anti-abuse rejection against the proxy and
// escalates its cooldown. Checkout proxies and already-blocked proxies are
// unaffected.
func (p *Pool) ReportForbidden(proxyURL string) {
	p.mu.Lock()
	px, ok := p.byURL[proxyURL]
	if !ok || px.Pool == PoolCheckout || px.Status == StatusBlocked {
		p.mu.Unlock()
		return
	}

	now := p.now()
	px.StrikeCount++
	px.LastForbiddenAt = now

	switch {
	case px.StrikeCount >= blockingStrike:
		px.Status = StatusBlocked
		px.CooldownUntil = time.Time{}
	case px.StrikeCount == 2:
		px.Status = StatusCooldown
		px.CooldownUntil = now.Add(secondStrikeCooldown)
	default:
		px.Status = StatusCooldown
		px.CooldownUntil = now.Add(firstStrikeCooldown)
	}

	cp := *px
	notify := p.notify
	p.mu.Unlock()

	slog.Warn("proxy_strike",
		"proxy", proxyURL,
		"strikes", cp.StrikeCount,
		"status", cp.Status,
		"cooldown_until", cp.CooldownUntil,
	)
	if notify != nil {
		notify(cp)
	}
}

// ReportSuccess resets the proxy's strike record: a successful response is
// proof the cooldown reputation has recovered. A blocked proxy stays
// blocked; it requires an explicit Unblock.
func (p *Pool) ReportSuccess(proxyURL string) {
	p.mu.Lock()
	px, ok := p.byURL[proxyURL]
	if !ok {
		p.mu.Unlock()
		return
	}

	px.LastSuccessAt = p.now()
	if px.Status == StatusBlocked {
		p.mu.Unlock()
		return
	}

	changed := px.Status != StatusActive || px.StrikeCount != 0
	px.StrikeCount = 0
	px.Status = StatusActive
	px.CooldownUntil = time.Time{}

	cp := *px
	notify := p.notify
	p.mu.Unlock()

	if changed && notify != nil {
		notify(cp)
	}
}

// Unblock is the manual reset path for a blocked proxy.
func (p *Pool) Unblock(proxyURL string) {
	p.mu.Lock()
	px, ok := p.byURL[proxyURL]
	if !ok {
		p.mu.Unlock()
		return
	}

	px.Status = StatusActive
	px.StrikeCount = 0
	px.CooldownUntil = time.Time{}

	cp := *px
	notify := p.notify
	p.mu.Unlock()

	slog.Info("proxy_unblocked", "proxy", proxyURL)
	if notify != nil {
		notify(cp)
	}
}

// StatusSnapshot classifies the pool's proxies for observability. Proxies
// whose cooldown has elapsed are reported as active.
func (p *Pool) StatusSnapshot(pool string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	snap := Snapshot{Total: len(p.pools[pool])}
	for _, px := range p.pools[pool] {
		cp := *px
		switch {
		case eligible(px, now):
			snap.Active = append(snap.Active, cp)
		case px.Status == StatusCooldown:
			snap.Cooldown = append(snap.Cooldown, cp)
		default:
			snap.Blocked = append(snap.Blocked, cp)
		}
	}
	return snap
}
