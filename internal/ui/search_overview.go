package ui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/store"
)

// SearchOverviewView displays the configured searches and rules.
type SearchOverviewView struct {
	table *tview.Table
}

// NewSearchOverviewView creates a new search overview view. Endpoints and
// rules are fixed at startup, so the table is built once.
func NewSearchOverviewView(endpoints []store.SearchEndpoint, rules []store.Rule) *SearchOverviewView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	enabledRules := 0
	for _, r := range rules {
		if r.Enabled {
			enabledRules++
		}
	}
	table.SetTitle(fmt.Sprintf(" Searches & Rules (%d rules) ", enabledRules)).SetBorder(true)

	headers := []string{"Kind", "Name", "Detail"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}

	row := 1
	for _, ep := range endpoints {
		color := tcell.ColorGreen
		state := "on"
		if !ep.Enabled {
			color = tcell.ColorGray
			state = "off"
		}
		table.SetCell(row, 0, tview.NewTableCell("search").SetTextColor(color))
		table.SetCell(row, 1, tview.NewTableCell(searchLabel(ep.URL)))
		table.SetCell(row, 2, tview.NewTableCell(state))
		row++
	}
	for _, r := range rules {
		color := tcell.ColorGreen
		if !r.Enabled {
			color = tcell.ColorGray
		}
		table.SetCell(row, 0, tview.NewTableCell("rule").SetTextColor(color))
		table.SetCell(row, 1, tview.NewTableCell(r.Name))
		table.SetCell(row, 2, tview.NewTableCell(ruleDetail(r)))
		row++
	}

	return &SearchOverviewView{table: table}
}

// Widget returns the tview primitive.
func (v *SearchOverviewView) Widget() tview.Primitive {
	return v.table
}

// searchLabel reduces a catalog URL to its query text for display.
func searchLabel(raw string) string {
	u, err := url.Parse(raw)
	if err == nil {
		if q := u.Query().Get("search_text"); q != "" {
			return q
		}
	}
	if len(raw) > 32 {
		return raw[:29] + "..."
	}
	return raw
}

func ruleDetail(r store.Rule) string {
	parts := make([]string, 0, 3)
	if r.MaxPrice > 0 {
		parts = append(parts, fmt.Sprintf("≤%.2f", r.MaxPrice))
	}
	if len(r.Keywords) > 0 {
		parts = append(parts, strings.Join(r.Keywords, "+"))
	}
	if r.BudgetLimit > 0 {
		parts = append(parts, fmt.Sprintf("budget %.0f", r.BudgetLimit))
	}
	if len(parts) == 0 {
		return "match all"
	}
	return strings.Join(parts, " | ")
}
