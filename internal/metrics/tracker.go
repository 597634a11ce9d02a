// Package metrics provides real-time metrics tracking for the pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/snipekit/engine/internal/store"
)

// MetricsSnapshot is a point-in-time view of pipeline metrics.
type MetricsSnapshot struct {
	PollCycles          int64
	ItemsSeen           int64
	FreshItems          int64
	Matches             int64
	CountdownsStarted   int64
	CountdownsCancelled int64
	BudgetSkips         int64
	PurchasesCompleted  int64
	PurchasesSimulated  int64
	PurchasesAwaiting   int64
	PurchasesFailed     int64
	SessionExpiries     int64
	ItemRate            float64 // items per second over the recent window
	BridgeStatus        string
	LastPollAt          time.Time
	Uptime              time.Duration
}

// MetricsTracker provides thread-safe metrics tracking. It is fed from the
// event stream so components stay decoupled from it.
type MetricsTracker struct {
	mu                  sync.RWMutex
	pollCycles          int64
	itemsSeen           int64
	freshItems          int64
	matches             int64
	countdownsStarted   int64
	countdownsCancelled int64
	budgetSkips         int64
	purchasesCompleted  int64
	purchasesSimulated  int64
	purchasesAwaiting   int64
	purchasesFailed     int64
	sessionExpiries     int64
	itemTimestamps      []time.Time // for rate calculation
	bridgeStatus        string
	lastPollAt          time.Time
	startTime           time.Time
}

// NewMetricsTracker creates a new MetricsTracker.
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		itemTimestamps: make([]time.Time, 0, 1000),
		bridgeStatus:   "unknown",
		startTime:      time.Now(),
	}
}

// SetBridgeStatus records the bridge health probe outcome.
func (m *MetricsTracker) SetBridgeStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridgeStatus = status
}

// RecordCycle records one completed poll sweep and its item counts.
func (m *MetricsTracker) RecordCycle(items, fresh int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCycles++
	m.itemsSeen += int64(items)
	m.freshItems += int64(fresh)
	m.lastPollAt = time.Now()

	now := time.Now()
	for i := 0; i < fresh; i++ {
		m.itemTimestamps = append(m.itemTimestamps, now)
	}
	m.trimTimestampsLocked(now)
}

// RecordEvent folds a pipeline event into the counters.
func (m *MetricsTracker) RecordEvent(e store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch e.Kind {
	case store.EventRuleMatched:
		m.matches++
	case store.EventCountdownStarted:
		m.countdownsStarted++
	case store.EventCountdownCancel:
		m.countdownsCancelled++
	case store.EventBudgetExceeded:
		m.budgetSkips++
	case store.EventPurchaseComplete:
		m.purchasesCompleted++
	case store.EventPurchaseSimulate:
		m.purchasesSimulated++
	case store.EventAwaitApproval:
		m.purchasesAwaiting++
	case store.EventPurchaseFailed:
		m.purchasesFailed++
	case store.EventSessionExpired:
		m.sessionExpiries++
	}
}

// trimTimestampsLocked drops timestamps older than the rate window.
func (m *MetricsTracker) trimTimestampsLocked(now time.Time) {
	cutoff := now.Add(-60 * time.Second)
	idx := 0
	for i, ts := range m.itemTimestamps {
		if ts.After(cutoff) {
			idx = i
			break
		}
	}
	if idx > 0 {
		m.itemTimestamps = m.itemTimestamps[idx:]
	}
}

// Snapshot returns a copy of current metrics.
func (m *MetricsTracker) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rate float64
	cutoff := time.Now().Add(-60 * time.Second)
	recent := 0
	for _, ts := range m.itemTimestamps {
		if ts.After(cutoff) {
			recent++
		}
	}
	if recent > 0 {
		rate = float64(recent) / 60.0
	}

	return MetricsSnapshot{
		PollCycles:          m.pollCycles,
		ItemsSeen:           m.itemsSeen,
		FreshItems:          m.freshItems,
		Matches:             m.matches,
		CountdownsStarted:   m.countdownsStarted,
		CountdownsCancelled: m.countdownsCancelled,
		BudgetSkips:         m.budgetSkips,
		PurchasesCompleted:  m.purchasesCompleted,
		PurchasesSimulated:  m.purchasesSimulated,
		PurchasesAwaiting:   m.purchasesAwaiting,
		PurchasesFailed:     m.purchasesFailed,
		SessionExpiries:     m.sessionExpiries,
		ItemRate:            rate,
		BridgeStatus:        m.bridgeStatus,
		LastPollAt:          m.lastPollAt,
		Uptime:              time.Since(m.startTime),
	}
}
