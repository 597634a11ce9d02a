package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/snipekit/engine/internal/bridge"
	"github.com/snipekit/engine/internal/proxy"
	"github.com/snipekit/engine/internal/store"
)

// fakeSearcher returns a canned response or error per endpoint URL.
type fakeSearcher struct {
	responses map[string]json.RawMessage
	errs      map[string]error
	calls     []string
}

func (f *fakeSearcher) Search(_ context.Context, endpointURL string, _ int, _ string) (json.RawMessage, error) {
	f.calls = append(f.calls, endpointURL)
	if err, ok := f.errs[endpointURL]; ok {
		return nil, err
	}
	return f.responses[endpointURL], nil
}

func itemsJSON(ids ...int64) json.RawMessage {
	type entry struct {
		ID    int64   `json:"id"`
		Title string  `json:"title"`
		Price float64 `json:"price"`
	}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, entry{ID: id, Title: fmt.Sprintf("item %d", id), Price: 10})
	}
	raw, _ := json.Marshal(map[string]any{"items": entries})
	return raw
}

func newTestAggregator(searcher Searcher, endpoints []store.SearchEndpoint, events *[]store.Event) *Aggregator {
	pool := proxy.NewPool([]string{"http://p1:8080"}, nil)
	publish := func(store.Event) {}
	if events != nil {
		publish = func(e store.Event) { *events = append(*events, e) }
	}
	a := New(searcher, pool, endpoints, time.Second, publish)
	a.SetPause(func(context.Context) error { return nil })
	return a
}

func drain(t *testing.T, a *Aggregator) Cycle {
	t.Helper()
	select {
	case c := <-a.Cycles():
		return c
	case <-time.After(time.Second):
		t.Fatal("no cycle published")
		return Cycle{}
	}
}

func TestDedupeMergesSourceURLs(t *testing.T) {
	eps := []store.SearchEndpoint{
		{URL: "https://x/a", Enabled: true},
		{URL: "https://x/b", Enabled: true},
	}
	searcher := &fakeSearcher{responses: map[string]json.RawMessage{
		"https://x/a": itemsJSON(10, 11),
		"https://x/b": itemsJSON(11, 12),
	}}
	a := newTestAggregator(searcher, eps, nil)

	go a.RunPollCycle(context.Background())
	cycle := drain(t, a)

	if len(cycle.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(cycle.Items))
	}
	// Newest first.
	if cycle.Items[0].ID != 12 || cycle.Items[2].ID != 10 {
		t.Errorf("order = [%d %d %d], want descending", cycle.Items[0].ID, cycle.Items[1].ID, cycle.Items[2].ID)
	}
	for _, it := range cycle.Items {
		if it.ID == 11 {
			if len(it.SourceURLs) != 2 {
				t.Errorf("item 11 sources = %v, want both endpoints", it.SourceURLs)
			}
		}
	}
}

func TestSecondCycleYieldsSameItemsNoFresh(t *testing.T) {
	eps := []store.SearchEndpoint{{URL: "https://x/a", Enabled: true}}
	searcher := &fakeSearcher{responses: map[string]json.RawMessage{
		"https://x/a": itemsJSON(1, 2, 3),
	}}
	a := newTestAggregator(searcher, eps, nil)

	go a.RunPollCycle(context.Background())
	first := drain(t, a)
	if len(first.Fresh) != 3 {
		t.Fatalf("first cycle fresh = %d, want 3", len(first.Fresh))
	}

	go a.RunPollCycle(context.Background())
	second := drain(t, a)
	if len(second.Items) != 3 {
		t.Errorf("second cycle items = %d, want 3", len(second.Items))
	}
	if len(second.Fresh) != 0 {
		t.Errorf("second cycle fresh = %d, want 0", len(second.Fresh))
	}
	for i := range second.Items {
		if second.Items[i].ID != first.Items[i].ID {
			t.Errorf("item set changed between identical cycles")
		}
		if len(second.Items[i].SourceURLs) != len(first.Items[i].SourceURLs) {
			t.Errorf("source sets changed between identical cycles")
		}
	}
}

func TestDisabledEndpointsSkipped(t *testing.T) {
	eps := []store.SearchEndpoint{
		{URL: "https://x/a", Enabled: true},
		{URL: "https://x/off", Enabled: false},
	}
	searcher := &fakeSearcher{responses: map[string]json.RawMessage{
		"https://x/a":   itemsJSON(1),
		"https://x/off": itemsJSON(99),
	}}
	a := newTestAggregator(searcher, eps, nil)

	go a.RunPollCycle(context.Background())
	cycle := drain(t, a)

	if len(cycle.Items) != 1 || cycle.Items[0].ID != 1 {
		t.Errorf("items = %+v, want only the enabled endpoint's item", cycle.Items)
	}
	if len(searcher.calls) != 1 {
		t.Errorf("search calls = %v, disabled endpoint must not be queried", searcher.calls)
	}
}

func TestForbiddenPenalizesProxyAndContinues(t *testing.T) {
	eps := []store.SearchEndpoint{
		{URL: "https://x/bad", Enabled: true},
		{URL: "https://x/good", Enabled: true},
	}
	searcher := &fakeSearcher{
		responses: map[string]json.RawMessage{"https://x/good": itemsJSON(5)},
		errs:      map[string]error{"https://x/bad": &bridge.Error{Code: bridge.CodeForbidden, Message: "blocked"}},
	}
	pool := proxy.NewPool([]string{"http://p1:8080", "http://p2:8080"}, nil)
	a := New(searcher, pool, eps, time.Second, func(store.Event) {})
	a.SetPause(func(context.Context) error { return nil })

	go a.RunPollCycle(context.Background())
	cycle := drain(t, a)

	if len(cycle.Items) != 1 || cycle.Items[0].ID != 5 {
		t.Errorf("items = %+v, cycle should continue past a forbidden endpoint", cycle.Items)
	}
	snap := pool.StatusSnapshot(proxy.PoolScraping)
	if len(snap.Cooldown) != 1 {
		t.Errorf("cooldown proxies = %d, want 1", len(snap.Cooldown))
	}
}

func TestSessionExpiredRaisesSignalWithoutPenalty(t *testing.T) {
	eps := []store.SearchEndpoint{{URL: "https://x/a", Enabled: true}}
	searcher := &fakeSearcher{
		errs: map[string]error{"https://x/a": &bridge.Error{Code: bridge.CodeSessionExpired, Message: "401"}},
	}
	var events []store.Event
	a := newTestAggregator(searcher, eps, &events)

	go a.RunPollCycle(context.Background())
	drain(t, a)

	var sawSession bool
	for _, e := range events {
		if e.Kind == store.EventSessionExpired {
			sawSession = true
		}
	}
	if !sawSession {
		t.Error("expected a session-expired event")
	}
}

func TestBridgeUnreachableAbortsSweep(t *testing.T) {
	eps := []store.SearchEndpoint{
		{URL: "https://x/a", Enabled: true},
		{URL: "https://x/b", Enabled: true},
	}
	searcher := &fakeSearcher{
		errs: map[string]error{"https://x/a": &bridge.Error{Code: bridge.CodeBridgeUnreachable, Message: "down"}},
		responses: map[string]json.RawMessage{
			"https://x/b": itemsJSON(1),
		},
	}
	a := newTestAggregator(searcher, eps, nil)

	go a.RunPollCycle(context.Background())
	cycle := drain(t, a)

	if len(searcher.calls) != 1 {
		t.Errorf("search calls = %v, want sweep aborted after unreachable bridge", searcher.calls)
	}
	if len(cycle.Items) != 0 {
		t.Errorf("items = %d, want 0", len(cycle.Items))
	}
}

func TestSeenSetTrims(t *testing.T) {
	a := newTestAggregator(&fakeSearcher{}, nil, nil)

	batch := make([]store.Item, seenLimit+1)
	for i := range batch {
		batch[i] = store.Item{ID: int64(i + 1)}
	}
	a.markSeen(batch)

	if len(a.seen) != seenTrimTo {
		t.Fatalf("seen size = %d, want %d", len(a.seen), seenTrimTo)
	}
	if _, ok := a.seen[1]; ok {
		t.Error("oldest identity should have been trimmed")
	}
	if _, ok := a.seen[int64(seenLimit+1)]; !ok {
		t.Error("newest identity should have been kept")
	}
}
