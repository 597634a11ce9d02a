// Package main is the entry point for the snipekit acquisition engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snipekit/engine/internal/bridge"
	"github.com/snipekit/engine/internal/checkout"
	"github.com/snipekit/engine/internal/config"
	"github.com/snipekit/engine/internal/events"
	"github.com/snipekit/engine/internal/feed"
	"github.com/snipekit/engine/internal/ledger"
	"github.com/snipekit/engine/internal/metrics"
	"github.com/snipekit/engine/internal/proxy"
	"github.com/snipekit/engine/internal/sniper"
	"github.com/snipekit/engine/internal/store"
	"github.com/snipekit/engine/internal/ui"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("snipekit starting", "version", "1.0.0")

	slog.Info("config_loaded",
		"bridge_url", cfg.BridgeURL,
		"session_cookie", cfg.MaskedSessionCookie(),
		"search_endpoints", len(cfg.SearchEndpoints),
		"scraping_proxies", len(cfg.ScrapingProxies),
		"checkout_proxies", len(cfg.CheckoutProxies),
		"poll_interval", cfg.PollInterval,
		"autobuy_enabled", cfg.AutobuyEnabled,
		"simulation_mode", cfg.SimulationMode,
		"countdown_window", cfg.CountdownWindow,
		"delivery_mode", cfg.DeliveryMode,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Event fan-out: bus feeds the websocket hub, the TUI and the tracker.
	bus := events.NewBus()
	hub := events.NewHub()
	go hub.Run(ctx)
	go func() {
		if err := hub.Serve(ctx, cfg.EventsListenAddr); err != nil {
			slog.Error("events_server_failed", "error", err)
		}
	}()
	go func() {
		for e := range bus.Subscribe() {
			hub.BroadcastEvent(e)
		}
	}()

	tracker := metrics.NewMetricsTracker()
	go func() {
		for e := range bus.Subscribe() {
			tracker.RecordEvent(e)
		}
	}()

	// Proxy pools, with state changes surfaced as events.
	pool := proxy.NewPool(cfg.ScrapingProxies, cfg.CheckoutProxies)
	pool.SetNotify(func(p proxy.Proxy) {
		bus.Publish(store.Event{
			Kind:    store.EventProxyState,
			Message: "proxy " + string(p.Status) + ": " + p.URL,
			Fields:  map[string]any{"pool": p.Pool, "status": string(p.Status), "strikes": p.StrikeCount},
		})
	})

	// Bridge client and startup health probe.
	client := bridge.NewClient(cfg.BridgeURL, bridge.StaticSession(cfg.SessionCookie))
	if err := client.Health(ctx); err != nil {
		slog.Warn("bridge_health_check_failed", "error", err)
		tracker.SetBridgeStatus("unreachable")
	} else {
		slog.Info("bridge_healthy", "url", cfg.BridgeURL)
		tracker.SetBridgeStatus("healthy")
	}

	// Budget ledger and checkout orchestrator.
	lg := ledger.NewMemory()
	orchestrator := checkout.New(client, lg, checkout.Config{
		VerificationEnabled:   cfg.VerificationEnabled,
		VerificationThreshold: cfg.VerificationThreshold,
		DeliveryMode:          cfg.DeliveryMode,
		PickupLatitude:        cfg.PickupLatitude,
		PickupLongitude:       cfg.PickupLongitude,
		PickupCountryCode:     cfg.PickupCountryCode,
	}, bus.Publish)

	// Sniper rules and matching engine.
	rules, err := sniper.LoadRules(cfg.RulesPath)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	stickyProxy := func(itemID int64) string {
		if p := pool.StickyFor(proxy.PoolCheckout, itemID); p != nil {
			return p.URL
		}
		return ""
	}
	engine := sniper.NewEngine(ctx, rules, lg, orchestrator, stickyProxy, sniper.TimerScheduler{}, bus.Publish, sniper.Options{
		AutobuyEnabled: cfg.AutobuyEnabled,
		SimulationMode: cfg.SimulationMode,
		Window:         cfg.CountdownWindow,
	})

	// Feed aggregator.
	aggregator := feed.New(client, pool, cfg.SearchEndpoints, cfg.PollInterval, bus.Publish)
	go aggregator.Start(ctx)

	// Fan completed cycles into the tracker, the engine and the TUI.
	uiCycles := make(chan feed.Cycle, 8)
	go func() {
		defer close(uiCycles)
		for {
			select {
			case <-ctx.Done():
				return
			case cycle, ok := <-aggregator.Cycles():
				if !ok {
					return
				}
				tracker.RecordCycle(len(cycle.Items), len(cycle.Fresh))
				engine.OnNewItems(cycle.Fresh)
				select {
				case uiCycles <- cycle:
				default:
				}
			}
		}
	}()

	slog.Info("engine_started",
		"status", "polling",
		"endpoints", len(cfg.SearchEndpoints),
		"rules", len(rules),
		"simulation", cfg.SimulationMode,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(uiCycles, bus.Subscribe(), tracker, pool, cfg.SearchEndpoints, rules, cfg.UIRefreshRate)

		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
				cancel()
			}
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()
	slog.Info("shutdown_complete")
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
