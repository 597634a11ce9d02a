// Package ledger tracks cumulative spend per rule so budget ceilings hold
// across purchases within one process lifetime.
package ledger

import (
	"sync"
	"time"

	"github.com/snipekit/engine/internal/store"
)

// Ledger is the budget collaborator consumed by the matching engine and the
// checkout orchestrator.
type Ledger interface {
	SpentForRule(ruleID string) (float64, error)
	RecordPurchase(ruleID string, item store.Item, orderID string, amount float64) error
}

// Purchase is one completed acquisition.
type Purchase struct {
	RuleID  string
	Item    store.Item
	OrderID string
	Amount  float64
	At      time.Time
}

// Memory is the in-process Ledger implementation. Durable purchase history
// lives with the desktop shell; this core only needs spend-to-date.
type Memory struct {
	mu        sync.Mutex
	spent     map[string]float64
	purchases []Purchase
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{spent: make(map[string]float64)}
}

// SpentForRule returns the cumulative recorded spend for a rule.
func (m *Memory) SpentForRule(ruleID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[ruleID], nil
}

// RecordPurchase appends a completed purchase and adds its amount to the
// rule's running total.
func (m *Memory) RecordPurchase(ruleID string, item store.Item, orderID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, Purchase{
		RuleID:  ruleID,
		Item:    item,
		OrderID: orderID,
		Amount:  amount,
		At:      time.Now(),
	})
	m.spent[ruleID] += amount
	return nil
}

// Purchases returns a copy of the purchase history, oldest first.
func (m *Memory) Purchases() []Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Purchase, len(m.purchases))
	copy(out, m.purchases)
	return out
}
