// Package sniper evaluates incoming items against the configured acquisition
// rules and turns matches into cancellable purchase countdowns.
package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snipekit/engine/internal/ledger"
	"github.com/snipekit/engine/internal/store"
)

// Purchaser executes the checkout transaction for an expired countdown.
type Purchaser interface {
	Execute(ctx context.Context, ruleID string, item store.Item, proxyURL string) store.PurchaseResult
}

// Options are the global toggles the engine consults on every match.
type Options struct {
	AutobuyEnabled bool
	SimulationMode bool
	Window         time.Duration
}

type pendingCountdown struct {
	countdown store.Countdown
	handle    Handle
}

// Engine owns the rules, its own seen-item set and the pending countdown
// table. Countdown callbacks re-enter through the mutex, so expiry and
// cancellation never race.
type Engine struct {
	mu      sync.Mutex
	rules   []store.Rule
	seen    map[int64]struct{}
	pending map[string]*pendingCountdown
	byPair  map[string]string

	ledger      ledger.Ledger
	purchaser   Purchaser
	stickyProxy func(itemID int64) string
	scheduler   Scheduler
	publish     func(store.Event)
	opts        Options

	ctx context.Context
}

// NewEngine wires the matching engine. stickyProxy selects the checkout
// proxy for an item; it may return empty for direct connections.
func NewEngine(ctx context.Context, rules []store.Rule, lg ledger.Ledger, purchaser Purchaser, stickyProxy func(itemID int64) string, scheduler Scheduler, publish func(store.Event), opts Options) *Engine {
	if publish == nil {
		publish = func(store.Event) {}
	}
	if stickyProxy == nil {
		stickyProxy = func(int64) string { return "" }
	}
	return &Engine{
		rules:       rules,
		seen:        make(map[int64]struct{}),
		pending:     make(map[string]*pendingCountdown),
		byPair:      make(map[string]string),
		ledger:      lg,
		purchaser:   purchaser,
		stickyProxy: stickyProxy,
		scheduler:   scheduler,
		publish:     publish,
		opts:        opts,
		ctx:         ctx,
	}
}

// Rules returns the configured rules for display.
func (e *Engine) Rules() []store.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// PendingCountdowns returns the live countdowns for display.
func (e *Engine) PendingCountdowns() []store.Countdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]store.Countdown, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.countdown)
	}
	return out
}

// OnNewItems evaluates a batch against every enabled rule in rule order.
// Items this engine has already evaluated are skipped regardless of what
// the aggregator's own seen-set decided.
func (e *Engine) OnNewItems(items []store.Item) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, item := range items {
		if _, ok := e.seen[item.ID]; ok {
			continue
		}
		e.seen[item.ID] = struct{}{}

		for _, rule := range e.rules {
			if !rule.Enabled || !MatchesRule(rule, item) {
				continue
			}
			e.onMatchLocked(rule, item)
		}
	}
}

func (e *Engine) onMatchLocked(rule store.Rule, item store.Item) {
	slog.Info("rule_matched",
		"rule", rule.Name,
		"item_id", item.ID,
		"title", item.Title,
		"price", item.Price,
	)
	e.publish(store.Event{
		Kind:    store.EventRuleMatched,
		Message: fmt.Sprintf("%s matched %q at %s %s", rule.Name, item.Title, item.Price, item.Currency),
		Fields:  map[string]any{"rule_id": rule.ID, "item_id": item.ID, "price": item.PriceValue},
	})

	if rule.BudgetLimit > 0 {
		spent, err := e.ledger.SpentForRule(rule.ID)
		if err != nil {
			slog.Warn("ledger_lookup_failed", "rule", rule.Name, "error", err)
			spent = 0
		}
		if spent+item.PriceValue > rule.BudgetLimit {
			slog.Info("budget_exceeded",
				"rule", rule.Name,
				"spent", spent,
				"price", item.PriceValue,
				"limit", rule.BudgetLimit,
			)
			e.publish(store.Event{
				Kind:    store.EventBudgetExceeded,
				Message: fmt.Sprintf("%s skipped %q: %.2f spent + %.2f exceeds %.2f budget", rule.Name, item.Title, spent, item.PriceValue, rule.BudgetLimit),
				Fields:  map[string]any{"rule_id": rule.ID, "item_id": item.ID},
			})
			return
		}
	}

	if !e.opts.AutobuyEnabled {
		e.publish(store.Event{
			Kind:    store.EventAutobuyOff,
			Message: fmt.Sprintf("%s matched %q but autobuy is off", rule.Name, item.Title),
			Fields:  map[string]any{"rule_id": rule.ID, "item_id": item.ID},
		})
		return
	}

	pair := fmt.Sprintf("%s/%d", rule.ID, item.ID)
	if _, live := e.byPair[pair]; live {
		return
	}

	cd := store.Countdown{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Item:      item,
		CreatedAt: time.Now(),
		Window:    e.opts.Window,
	}
	handle := e.scheduler.Submit(e.opts.Window, func() { e.onExpiry(cd.ID) })
	e.pending[cd.ID] = &pendingCountdown{countdown: cd, handle: handle}
	e.byPair[pair] = cd.ID

	e.publish(store.Event{
		Kind:    store.EventCountdownStarted,
		Message: fmt.Sprintf("countdown %s: buying %q in %s", cd.ID[:8], item.Title, e.opts.Window),
		Fields: map[string]any{
			"countdown_id": cd.ID,
			"rule_id":      rule.ID,
			"item_id":      item.ID,
			"window_ms":    e.opts.Window.Milliseconds(),
		},
	})
}

// Cancel stops a pending countdown. It returns false when the countdown is
// unknown or already expired; an in-flight checkout is never interrupted.
func (e *Engine) Cancel(countdownID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[countdownID]
	if !ok {
		return false
	}
	if !p.handle.Cancel() {
		return false
	}
	e.removeLocked(p.countdown)

	e.publish(store.Event{
		Kind:    store.EventCountdownCancel,
		Message: fmt.Sprintf("countdown cancelled for %q", p.countdown.Item.Title),
		Fields:  map[string]any{"countdown_id": countdownID},
	})
	return true
}

func (e *Engine) removeLocked(cd store.Countdown) {
	delete(e.pending, cd.ID)
	delete(e.byPair, fmt.Sprintf("%s/%d", cd.RuleID, cd.Item.ID))
}

func (e *Engine) onExpiry(countdownID string) {
	e.mu.Lock()
	p, ok := e.pending[countdownID]
	if !ok {
		e.mu.Unlock()
		return
	}
	e.removeLocked(p.countdown)
	cd := p.countdown
	e.mu.Unlock()

	if e.opts.SimulationMode {
		slog.Info("purchase_simulated",
			"rule", cd.RuleName,
			"title", cd.Item.Title,
			"price", cd.Item.Price,
		)
		e.publish(store.Event{
			Kind:    store.EventPurchaseSimulate,
			Message: fmt.Sprintf("[simulation] would buy %q at %s %s", cd.Item.Title, cd.Item.Price, cd.Item.Currency),
			Fields:  map[string]any{"rule_id": cd.RuleID, "item_id": cd.Item.ID, "price": cd.Item.PriceValue},
		})
		return
	}

	proxyURL := e.stickyProxy(cd.Item.ID)
	result := e.purchaser.Execute(e.ctx, cd.RuleID, cd.Item, proxyURL)

	switch {
	case result.OK && result.AwaitingApproval:
		e.publish(store.Event{
			Kind:    store.EventAwaitApproval,
			Message: fmt.Sprintf("purchase of %q needs approval: %s", cd.Item.Title, result.ApprovalURL),
			Fields:  map[string]any{"item_id": cd.Item.ID, "approval_url": result.ApprovalURL},
		})
	case result.OK:
		e.publish(store.Event{
			Kind:    store.EventPurchaseComplete,
			Message: fmt.Sprintf("bought %q for %s %s (order %s)", cd.Item.Title, cd.Item.Price, cd.Item.Currency, result.OrderID),
			Fields:  map[string]any{"item_id": cd.Item.ID, "order_id": result.OrderID, "amount": result.Amount},
		})
	default:
		slog.Warn("purchase_failed",
			"rule", cd.RuleName,
			"title", cd.Item.Title,
			"code", result.Code,
			"message", result.Message,
		)
		e.publish(store.Event{
			Kind:    store.EventPurchaseFailed,
			Message: fmt.Sprintf("purchase of %q failed: %s", cd.Item.Title, result.Message),
			Fields:  map[string]any{"item_id": cd.Item.ID, "code": result.Code},
		})
	}
}
