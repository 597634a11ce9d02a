// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/snipekit/engine/internal/feed"
	"github.com/snipekit/engine/internal/metrics"
	"github.com/snipekit/engine/internal/proxy"
	"github.com/snipekit/engine/internal/store"
)

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	searchOverview *SearchOverviewView
	alerts         *AlertsView
	liveFeed       *LiveFeedView
	statsDashboard *StatsDashboardView
	proxyTable     *ProxyTableView

	// Data sources
	cycleChan      <-chan feed.Cycle
	eventChan      <-chan store.Event
	metricsTracker *metrics.MetricsTracker
	pool           *proxy.Pool

	refreshRate time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates a new TUI application over the pipeline's output channels.
func NewApp(cycleChan <-chan feed.Cycle, eventChan <-chan store.Event, tracker *metrics.MetricsTracker, pool *proxy.Pool, endpoints []store.SearchEndpoint, rules []store.Rule, refreshRate time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:            tview.NewApplication(),
		cycleChan:      cycleChan,
		eventChan:      eventChan,
		metricsTracker: tracker,
		pool:           pool,
		refreshRate:    refreshRate,
		ctx:            ctx,
		cancel:         cancel,
	}

	a.searchOverview = NewSearchOverviewView(endpoints, rules)
	a.alerts = NewAlertsView()
	a.liveFeed = NewLiveFeedView()
	a.statsDashboard = NewStatsDashboardView()
	a.proxyTable = NewProxyTableView()

	a.setupLayout()
	a.setupKeyboard()

	return a
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Search Overview (left) | Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.searchOverview.Widget(), 0, 1, false).
		AddItem(a.alerts.Widget(), 0, 2, false)

	// Middle row: Live Feed (full width)
	middleRow := a.liveFeed.Widget()

	// Bottom row: Stats Dashboard (left) | Proxy Pools (right)
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.proxyTable.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 2, false).
		AddItem(middleRow, 0, 3, false).
		AddItem(bottomRow, 0, 2, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.processCycles()
	go a.processEvents()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// processCycles reads completed poll batches and updates the live feed.
func (a *App) processCycles() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case cycle, ok := <-a.cycleChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.liveFeed.AddBatch(cycle.Fresh)
			})
		}
	}
}

// processEvents reads pipeline events and updates the alerts panel.
func (a *App) processEvents() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.eventChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.alerts.AddEvent(event)
			})
		}
	}
}

// updateLoop periodically refreshes views with metrics and proxy data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			snapshot := a.metricsTracker.Snapshot()
			scraping := a.pool.StatusSnapshot(proxy.PoolScraping)
			checkout := a.pool.StatusSnapshot(proxy.PoolCheckout)

			a.app.QueueUpdateDraw(func() {
				a.statsDashboard.Update(snapshot)
				a.proxyTable.Update(scraping, checkout)
			})
		}
	}
}

// refresh manually refreshes all views.
func (a *App) refresh() {
	snapshot := a.metricsTracker.Snapshot()
	scraping := a.pool.StatusSnapshot(proxy.PoolScraping)
	checkout := a.pool.StatusSnapshot(proxy.PoolCheckout)

	a.app.QueueUpdateDraw(func() {
		a.alerts.Refresh()
		a.liveFeed.Refresh()
		a.statsDashboard.Update(snapshot)
		a.proxyTable.Update(scraping, checkout)
	})
}
