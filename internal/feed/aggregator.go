// Package feed polls the configured search endpoints on a jittered schedule
// and publishes deduplicated, newest-first item batches to the pipeline.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/snipekit/engine/internal/bridge"
	"github.com/snipekit/engine/internal/proxy"
	"github.com/snipekit/engine/internal/store"
)

// Seen-set bounds: trimmed back to seenTrimTo once it exceeds seenLimit,
// keeping the most recently seen identities.
const (
	seenLimit  = 5000
	seenTrimTo = 2000
)

// Searcher executes one search request through the external collaborator.
type Searcher interface {
	Search(ctx context.Context, endpointURL string, page int, proxyURL string) (json.RawMessage, error)
}

// Cycle is one completed poll sweep. Items is the full deduplicated batch,
// Fresh the subset never seen by this aggregator before.
type Cycle struct {
	Items []store.Item
	Fresh []store.Item
}

// Aggregator owns the poll loop, the scraping-pool round robin and the
// recently-seen identity set.
type Aggregator struct {
	searcher  Searcher
	pool      *proxy.Pool
	endpoints []store.SearchEndpoint
	interval  time.Duration

	out     chan Cycle
	publish func(store.Event)

	seen      map[int64]struct{}
	seenOrder []int64

	// pause and jitter are injectable for tests.
	pause  func(ctx context.Context) error
	jitter func(base time.Duration) time.Duration
}

// New creates an aggregator over the given endpoints. Disabled endpoints are
// skipped at poll time so a settings toggle takes effect without rebuilding.
func New(searcher Searcher, pool *proxy.Pool, endpoints []store.SearchEndpoint, interval time.Duration, publish func(store.Event)) *Aggregator {
	if publish == nil {
		publish = func(store.Event) {}
	}
	return &Aggregator{
		searcher:  searcher,
		pool:      pool,
		endpoints: endpoints,
		interval:  interval,
		out:       make(chan Cycle, 8),
		publish:   publish,
		seen:      make(map[int64]struct{}),
		pause:     randomPause,
		jitter:    jitterInterval,
	}
}

// Cycles is the channel the matching engine and UI consume batches from.
func (a *Aggregator) Cycles() <-chan Cycle { return a.out }

// SetPause overrides the inter-endpoint pause. Tests only.
func (a *Aggregator) SetPause(fn func(ctx context.Context) error) { a.pause = fn }

// SetJitter overrides interval jitter. Tests only.
func (a *Aggregator) SetJitter(fn func(base time.Duration) time.Duration) { a.jitter = fn }

// Start runs poll cycles until ctx is cancelled. The interval is re-jittered
// every cycle so the cadence never settles into a fixed fingerprint.
func (a *Aggregator) Start(ctx context.Context) {
	slog.Info("feed_started",
		"endpoints", len(a.endpoints),
		"interval", a.interval,
	)
	for {
		a.RunPollCycle(ctx)

		wait := a.jitter(a.interval)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			slog.Info("feed_stopped")
			return
		case <-t.C:
		}
	}
}

// RunPollCycle sweeps every enabled endpoint in configured order, then
// publishes the deduplicated batch and advances the proxy round robin.
// Per-endpoint failures never abort the sweep; only an unreachable bridge
// does, since every remaining call would fail the same way.
func (a *Aggregator) RunPollCycle(ctx context.Context) {
	collected := make(map[int64]store.Item)
	order := make([]int64, 0, 64)

	idx := 0
	for _, ep := range a.endpoints {
		if !ep.Enabled {
			continue
		}
		if idx > 0 {
			if err := a.pause(ctx); err != nil {
				return
			}
		}
		if !a.pollEndpoint(ctx, ep.URL, idx, collected, &order) {
			break
		}
		idx++
	}

	batch := make([]store.Item, 0, len(order))
	for _, id := range order {
		batch = append(batch, collected[id])
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID > batch[j].ID })

	fresh := make([]store.Item, 0, len(batch))
	for _, it := range batch {
		if _, ok := a.seen[it.ID]; !ok {
			fresh = append(fresh, it)
		}
	}
	a.markSeen(batch)
	a.pool.AdvanceCycle()

	a.publish(store.Event{
		Kind:    store.EventPollCycle,
		Message: fmt.Sprintf("poll cycle complete: %d items, %d new", len(batch), len(fresh)),
		Fields:  map[string]any{"items": len(batch), "fresh": len(fresh)},
	})
	slog.Debug("poll_cycle_complete", "items", len(batch), "fresh", len(fresh))

	select {
	case a.out <- Cycle{Items: batch, Fresh: fresh}:
	case <-ctx.Done():
	}
}

// pollEndpoint fetches one endpoint and merges its listings into the cycle's
// working set. Returns false when the sweep should stop early.
func (a *Aggregator) pollEndpoint(ctx context.Context, endpointURL string, index int, collected map[int64]store.Item, order *[]int64) bool {
	var proxyURL string
	if p := a.pool.AssignForCycle(proxy.PoolScraping, index); p != nil {
		proxyURL = p.URL
	}

	now := time.Now()
	data, err := a.searcher.Search(ctx, endpointURL, 1, proxyURL)
	if err != nil {
		return a.handleSearchError(err, endpointURL, proxyURL)
	}
	if proxyURL != "" {
		a.pool.ReportSuccess(proxyURL)
	}

	items, err := Normalize(data, endpointURL)
	if err != nil {
		slog.Warn("search_parse_failed", "endpoint", endpointURL, "error", err)
		return true
	}

	for _, it := range items {
		it.SeenAt = now
		prev, ok := collected[it.ID]
		if !ok {
			collected[it.ID] = it
			*order = append(*order, it.ID)
			continue
		}
		prev.SourceURLs = mergeSources(prev.SourceURLs, it.SourceURLs)
		collected[it.ID] = prev
	}
	return true
}

func (a *Aggregator) handleSearchError(err error, endpointURL, proxyURL string) bool {
	var bErr *bridge.Error
	if !errors.As(err, &bErr) {
		slog.Warn("search_failed", "endpoint", endpointURL, "error", err)
		return true
	}

	switch {
	case bridge.IsProxyPenalty(bErr):
		slog.Warn("search_forbidden", "endpoint", endpointURL, "proxy", proxyURL, "code", bErr.Code)
		if proxyURL != "" {
			a.pool.ReportForbidden(proxyURL)
		}
		return true
	case bridge.IsSessionExpired(bErr):
		slog.Warn("session_expired", "endpoint", endpointURL, "code", bErr.Code)
		a.publish(store.Event{
			Kind:    store.EventSessionExpired,
			Message: "session expired: re-authenticate to resume polling",
			Fields:  map[string]any{"code": bErr.Code},
		})
		return true
	case bErr.Code == bridge.CodeBridgeUnreachable:
		slog.Error("bridge_unreachable", "error", bErr.Message)
		return false
	default:
		slog.Warn("search_failed", "endpoint", endpointURL, "code", bErr.Code, "error", bErr.Message)
		return true
	}
}

// markSeen records this cycle's identities and trims the set back to the
// most recent entries once it outgrows the limit.
func (a *Aggregator) markSeen(items []store.Item) {
	for _, it := range items {
		if _, ok := a.seen[it.ID]; ok {
			continue
		}
		a.seen[it.ID] = struct{}{}
		a.seenOrder = append(a.seenOrder, it.ID)
	}
	if len(a.seenOrder) <= seenLimit {
		return
	}
	cut := len(a.seenOrder) - seenTrimTo
	for _, id := range a.seenOrder[:cut] {
		delete(a.seen, id)
	}
	a.seenOrder = append([]int64(nil), a.seenOrder[cut:]...)
}

func mergeSources(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		found := false
		for _, existing := range out {
			if existing == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// randomPause sleeps 1-2 seconds between endpoints so a sweep never fires a
// synchronized burst of requests.
func randomPause(ctx context.Context) error {
	d := time.Second + time.Duration(rand.Int63n(int64(time.Second)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitterInterval applies +-30% uniform jitter to the base poll interval.
func jitterInterval(base time.Duration) time.Duration {
	f := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(base) * f)
}
