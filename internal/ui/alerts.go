package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/store"
)

// AlertsView displays matches, countdowns and purchase outcomes.
type AlertsView struct {
	list     *tview.List
	events   []store.Event
	maxItems int
}

// NewAlertsView creates a new alerts view.
func NewAlertsView() *AlertsView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🎯 Sniper Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)

	return &AlertsView{
		list:     list,
		events:   make([]store.Event, 0, 50),
		maxItems: 50,
	}
}

// Widget returns the tview primitive.
func (v *AlertsView) Widget() tview.Primitive {
	return v.list
}

// AddEvent adds a pipeline event to the alerts list. Routine cycle and
// step events are shown only in the log, not here.
func (v *AlertsView) AddEvent(event store.Event) {
	if !alertWorthy(event.Kind) {
		return
	}
	v.events = append([]store.Event{event}, v.events...)
	if len(v.events) > v.maxItems {
		v.events = v.events[:v.maxItems]
	}
	v.rebuildList()
}

// Refresh redraws the list.
func (v *AlertsView) Refresh() {
	v.rebuildList()
}

func alertWorthy(kind string) bool {
	switch kind {
	case store.EventRuleMatched, store.EventAutobuyOff, store.EventBudgetExceeded,
		store.EventCountdownStarted, store.EventCountdownCancel,
		store.EventPurchaseComplete, store.EventPurchaseSimulate,
		store.EventPurchaseFailed, store.EventAwaitApproval,
		store.EventSessionExpired:
		return true
	}
	return false
}

func (v *AlertsView) rebuildList() {
	v.list.Clear()

	if len(v.events) == 0 {
		v.list.AddItem("No matches yet", "", 0, nil)
		return
	}

	for _, event := range v.events {
		icon := eventIcon(event.Kind)
		mainText := fmt.Sprintf("%s %s %s", event.Time.Format("15:04:05"), icon, event.Kind)
		v.list.AddItem(mainText, event.Message, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" 🎯 Sniper Alerts (%d) ", len(v.events)))
}

func eventIcon(kind string) string {
	switch kind {
	case store.EventRuleMatched:
		return "🎯"
	case store.EventCountdownStarted:
		return "⏱"
	case store.EventCountdownCancel:
		return "✋"
	case store.EventPurchaseComplete:
		return "✅"
	case store.EventPurchaseSimulate:
		return "🧪"
	case store.EventPurchaseFailed:
		return "❌"
	case store.EventAwaitApproval:
		return "🔐"
	case store.EventBudgetExceeded:
		return "💸"
	case store.EventAutobuyOff:
		return "💤"
	case store.EventSessionExpired:
		return "🔑"
	default:
		return "•"
	}
}
