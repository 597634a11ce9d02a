package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/metrics"
)

// StatsDashboardView displays pipeline health and performance metrics.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{textView: textView}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.MetricsSnapshot) {
	v.textView.Clear()

	bridgeColor := "red"
	if snapshot.BridgeStatus == "healthy" {
		bridgeColor = "green"
	}

	lastPoll := "never"
	if !snapshot.LastPollAt.IsZero() {
		lastPoll = formatTimeAgo(snapshot.LastPollAt)
	}

	text := fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
Bridge: [%s]%s[-]
Last Poll: %s

[yellow]Feed Stats[-]
Poll Cycles: %d
Items Seen: %d
New Items: %d
Rate: %.2f items/sec

[yellow]Sniper Stats[-]
Matches: %d
Countdowns: %d started, %d cancelled
Budget Skips: %d

[yellow]Purchases[-]
Completed: %d
Simulated: %d
Awaiting Approval: %d
Failed: %d
Session Expiries: %d
`,
		formatDuration(snapshot.Uptime),
		bridgeColor, snapshot.BridgeStatus,
		lastPoll,
		snapshot.PollCycles,
		snapshot.ItemsSeen,
		snapshot.FreshItems,
		snapshot.ItemRate,
		snapshot.Matches,
		snapshot.CountdownsStarted,
		snapshot.CountdownsCancelled,
		snapshot.BudgetSkips,
		snapshot.PurchasesCompleted,
		snapshot.PurchasesSimulated,
		snapshot.PurchasesAwaiting,
		snapshot.PurchasesFailed,
		snapshot.SessionExpiries,
	)

	fmt.Fprint(v.textView, text)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)
	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
