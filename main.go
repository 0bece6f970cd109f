// market-matrix scans a crypto watchlist across four timeframes, scores
// multi-timeframe confluence, and tracks simulated positions with trailing
// exits and a loss-streak circuit breaker. Cycles are one-shot: an external
// scheduler invokes one command per cycle and the process exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"market-matrix/config"
	"market-matrix/internal/database"
	"market-matrix/internal/logging"
	"market-matrix/internal/market"
	"market-matrix/internal/notification"
	"market-matrix/internal/position"
	"market-matrix/internal/reflection"
	"market-matrix/internal/scanner"
	"market-matrix/internal/store"
	"market-matrix/internal/telemetry"
	"market-matrix/internal/verifier"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Missing .env is fine; real config comes from the file and environment.
	_ = godotenv.Load()

	configPath := os.Getenv("MATRIX_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer app.Close()

	if err := app.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
		logger.Error().Err(err).Str("command", os.Args[1]).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: market-matrix <command>

commands:
  scan-daily        macro bias scan (1d)
  scan-4h           outlook scan (1d + 4h)
  scan-1h           shift scan (1d + 4h + 1h)
  scan-15m          tactical scan, accepts qualifying setups
  scan-all          full four-timeframe scan, accepts qualifying setups
  analyze <symbol>  full analysis for one symbol, printed as JSON
  check-positions   run the position lifecycle once
  update-trailing   run trailing evaluation against live positions once
  reset-breaker     clear the circuit breaker and loss streak
  monitor           stream live prices and run the lifecycle continuously`)
}

// app wires the configured collaborators for one invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	feed     market.DataFeed
	prices   market.PriceSource
	runner   *scanner.Runner
	manager  *position.Manager
	notifier *notification.Manager
	db       *database.DB
	closers  []func()
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Market data: mock feed for offline runs, REST adapter otherwise.
	if cfg.FeedConfig.MockMode {
		mock := market.NewMockFeed()
		a.feed = mock
		a.prices = mock
	} else {
		feed := market.NewBinanceFeed(cfg.FeedConfig, logger)
		a.feed = feed
		a.prices = feed
	}

	st, err := newStore(cfg.StoreConfig, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := st.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	audit := verifier.NewFileAuditLog(cfg.ReportConfig.AuditFile)
	sinks := []verifier.AuditSink{audit}

	a.manager = position.NewManager(cfg.PaperConfig, cfg.TrailingConfig, st, a.prices, logger)
	a.manager.AddCloseListener(reflection.NewJournal(cfg.ReportConfig.LessonLogFile, logger))

	a.notifier = notification.NewManager(logger)
	if cfg.NotificationConfig.Enabled && cfg.NotificationConfig.WebhookURL != "" {
		a.notifier.AddNotifier(notification.NewWebhookNotifier(cfg.NotificationConfig.WebhookURL))
	}
	a.manager.AddCloseListener(a.notifier)

	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := db.RunMigrations(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
		repo := database.NewRepository(db)
		sinks = append(sinks, repo)
		a.manager.AddCloseListener(repo)
	}

	// External executor bridge, when configured, supplies live positions and
	// close execution for trailing reconciliation.
	if cfg.FeedConfig.ExecCommand != "" {
		bridge := market.NewExecBridge(cfg.FeedConfig.ExecCommand, logger)
		a.manager.SetReconciliation(bridge, bridge)
	} else if mock, ok := a.feed.(*market.MockFeed); ok {
		a.manager.SetReconciliation(mock, mock)
	}
	if cfg.ReportConfig.TelemetryFile != "" {
		a.manager.SetTelemetry(telemetry.NewFileSink(cfg.ReportConfig.TelemetryFile))
	}

	v := verifier.New(logger, sinks...)
	sc := scanner.New(cfg, a.feed, v, logger)
	a.runner = scanner.NewRunner(sc, cfg.WatchlistConfig.Symbols, cfg.ReportConfig, logger)
	return a, nil
}

func newStore(cfg config.StoreConfig, logger zerolog.Logger) (position.Store, error) {
	switch cfg.Backend {
	case "redis":
		return store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, logger)
	default:
		return store.NewFileStore(cfg.StateFile, logger), nil
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) runCommand(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "scan-daily":
		return a.scan(ctx, scanner.ScanDaily)
	case "scan-4h":
		return a.scan(ctx, scanner.Scan4H)
	case "scan-1h":
		return a.scan(ctx, scanner.Scan1H)
	case "scan-15m":
		return a.scan(ctx, scanner.Scan15m)
	case "scan-all":
		return a.scan(ctx, scanner.ScanComplete)
	case "analyze":
		if len(args) < 1 {
			return errors.New("analyze requires a symbol argument")
		}
		return a.analyze(ctx, args[0])
	case "check-positions":
		return a.checkPositions(ctx)
	case "update-trailing":
		return a.updateTrailing(ctx)
	case "reset-breaker":
		return a.manager.ResetCircuitBreaker(ctx)
	case "monitor":
		return a.monitor(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// scan runs one cycle. Tactical scans hand qualifying setups straight to the
// lifecycle manager; zero signals is still a successful cycle.
func (a *app) scan(ctx context.Context, st scanner.ScanType) error {
	report, err := a.runner.Run(ctx, st)
	if err != nil {
		return err
	}

	for _, alert := range report.Alerts {
		fmt.Println(alert)
	}

	if len(report.Setups) > 0 {
		opened, err := a.manager.AcceptSetups(ctx, report.Setups)
		if err != nil {
			return err
		}
		for _, pos := range opened {
			setup := position.TradeSetup{
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				Confluence: pos.Confluence,
				Entry:      pos.EntryPrice,
				StopLoss:   pos.StopLoss,
				TakeProfit: pos.TakeProfit,
			}
			a.notifier.NotifySetup(ctx, setup)
			fmt.Printf("opened %s %s @ %.6g (confluence %.1f)\n", pos.Side, pos.Symbol, pos.EntryPrice, pos.Confluence)
		}
	}

	stats, err := a.manager.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("scan %s: %d symbols, %d setups | record %dW-%dL, breaker=%v\n",
		st, len(report.Symbols), len(report.Setups), stats.Wins, stats.Losses, stats.CircuitBreakerActive)
	return nil
}

func (a *app) analyze(ctx context.Context, symbol string) error {
	analysis, score := a.runner.AnalyzeOne(ctx, symbol)

	out := struct {
		*scanner.Analysis
		Confluence scanner.ConfluenceScore `json:"confluence"`
	}{analysis, score}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (a *app) checkPositions(ctx context.Context) error {
	result, err := a.manager.CheckPositions(ctx)
	if err != nil {
		return err
	}

	for _, trade := range result.Closed {
		fmt.Printf("closed %s %s: %s at %.6g, pnl %.2f%% (%s)\n",
			trade.Symbol, trade.Side, trade.ExitReason, trade.ExitPrice, trade.PnlPercent, trade.Result)
	}
	fmt.Printf("positions: %d open, %d closed this cycle | record %dW-%dL, streak %d, breaker=%v\n",
		result.Open, len(result.Closed), result.Stats.Wins, result.Stats.Losses,
		result.Stats.ConsecutiveLosses, result.Stats.CircuitBreakerActive)
	return nil
}

func (a *app) updateTrailing(ctx context.Context) error {
	result, err := a.manager.UpdateTrailing(ctx)
	if err != nil {
		return err
	}
	for _, event := range result.Triggered {
		fmt.Printf("trailing close %s @ %.6g\n", event.Symbol, event.Price)
	}
	fmt.Printf("trailing: %d live positions tracked, %d closes triggered\n", result.Tracked, len(result.Triggered))
	return nil
}

// monitorInterval is how often the lifecycle runs while streaming.
const monitorInterval = 15 * time.Second

// monitor streams live ticks and runs the lifecycle on an interval. The
// stream reconnects with a flat backoff until the context is cancelled.
func (a *app) monitor(ctx context.Context) error {
	stream := market.NewPriceStream(a.cfg.FeedConfig.StreamURL, a.cfg.WatchlistConfig.Symbols, a.logger)
	updates := make(chan market.PriceUpdate, 256)

	go func() {
		for ctx.Err() == nil {
			if err := stream.Run(ctx, updates); err != nil && ctx.Err() == nil {
				a.logger.Warn().Err(err).Msg("price stream dropped, reconnecting")
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
				}
			}
		}
	}()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("monitor stopped")
			return nil
		case update := <-updates:
			a.logger.Debug().Str("symbol", update.Symbol).Float64("price", update.Price).Msg("tick")
		case <-ticker.C:
			if err := a.checkPositions(ctx); err != nil {
				if errors.Is(err, store.ErrCorruptState) {
					return err
				}
				a.logger.Error().Err(err).Msg("lifecycle pass failed")
			}
		}
	}
}
