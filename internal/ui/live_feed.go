package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/store"
)

// LiveFeedView displays a scrolling feed of newly discovered listings.
type LiveFeedView struct {
	table   *tview.Table
	items   []store.Item
	maxRows int
}

// NewLiveFeedView creates a new live feed view.
func NewLiveFeedView() *LiveFeedView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Feed ").SetBorder(true)

	for col, header := range feedHeaders() {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}

	return &LiveFeedView{
		table:   table,
		items:   make([]store.Item, 0, 100),
		maxRows: 100,
	}
}

func feedHeaders() []string {
	return []string{"Time", "Title", "Price", "Condition", "Brand", "Sources"}
}

// Widget returns the tview primitive.
func (v *LiveFeedView) Widget() tview.Primitive {
	return v.table
}

// AddBatch prepends a cycle's fresh items to the feed.
func (v *LiveFeedView) AddBatch(items []store.Item) {
	if len(items) == 0 {
		return
	}
	v.items = append(append([]store.Item{}, items...), v.items...)
	if len(v.items) > v.maxRows {
		v.items = v.items[:v.maxRows]
	}
	v.updateTable()
}

// Refresh redraws the table.
func (v *LiveFeedView) Refresh() {
	v.updateTable()
}

func (v *LiveFeedView) updateTable() {
	v.table.Clear()

	for col, header := range feedHeaders() {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		v.table.SetCell(0, col, cell)
	}

	for i, item := range v.items {
		row := i + 1

		title := item.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}

		price := item.Price
		if item.Currency != "" {
			price = fmt.Sprintf("%s %s", item.Price, item.Currency)
		}

		cells := []string{
			item.SeenAt.Format("15:04:05"),
			title,
			price,
			item.Condition,
			item.Brand,
			fmt.Sprintf("%d", len(item.SourceURLs)),
		}
		for col, text := range cells {
			v.table.SetCell(row, col, tview.NewTableCell(text).SetAlign(tview.AlignLeft))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Feed (%d) ", len(v.items)))
}
