package ui

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/proxy"
)

// ProxyTableView displays the health of both proxy pools.
type ProxyTableView struct {
	table *tview.Table
}

// NewProxyTableView creates a new proxy table view.
func NewProxyTableView() *ProxyTableView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Proxy Pools ").SetBorder(true)

	for col, header := range proxyHeaders() {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}

	return &ProxyTableView{table: table}
}

func proxyHeaders() []string {
	return []string{"Proxy", "Pool", "Status", "Strikes", "Cooldown"}
}

// Widget returns the tview primitive.
func (v *ProxyTableView) Widget() tview.Primitive {
	return v.table
}

// Update refreshes the table from both pool snapshots.
func (v *ProxyTableView) Update(scraping, checkout proxy.Snapshot) {
	v.table.Clear()

	for col, header := range proxyHeaders() {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	row := 1
	for _, snap := range []proxy.Snapshot{scraping, checkout} {
		for _, group := range [][]proxy.Proxy{snap.Active, snap.Cooldown, snap.Blocked} {
			for _, p := range group {
				v.setRow(row, p)
				row++
			}
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Proxy Pools (%d/%d healthy) ",
		len(scraping.Active)+len(checkout.Active), scraping.Total+checkout.Total))
}

func (v *ProxyTableView) setRow(row int, p proxy.Proxy) {
	statusColor := tcell.ColorGreen
	switch p.Status {
	case proxy.StatusCooldown:
		statusColor = tcell.ColorYellow
	case proxy.StatusBlocked:
		statusColor = tcell.ColorRed
	}

	cooldown := "-"
	if p.Status == proxy.StatusCooldown && !p.CooldownUntil.IsZero() {
		remaining := time.Until(p.CooldownUntil)
		if remaining > 0 {
			cooldown = fmt.Sprintf("%.0fs", remaining.Seconds())
		}
	}

	v.table.SetCell(row, 0, tview.NewTableCell(maskProxyURL(p.URL)).SetAlign(tview.AlignLeft))
	v.table.SetCell(row, 1, tview.NewTableCell(p.Pool).SetAlign(tview.AlignLeft))
	v.table.SetCell(row, 2, tview.NewTableCell(string(p.Status)).SetAlign(tview.AlignLeft).SetTextColor(statusColor))
	v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", p.StrikeCount)).SetAlign(tview.AlignRight))
	v.table.SetCell(row, 4, tview.NewTableCell(cooldown).SetAlign(tview.AlignRight))
}

// maskProxyURL hides credentials, showing only host and port.
func maskProxyURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if len(raw) > 24 {
			return raw[:21] + "..."
		}
		return raw
	}
	return u.Host
}
