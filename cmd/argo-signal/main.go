// Command argo-signal runs the signal engine: historical downloads,
// backtests, Monte Carlo analysis, the live trading loop and config schema
// generation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-signal/internal/analytics"
	"github.com/rxtech-lab/argo-signal/internal/backtest"
	"github.com/rxtech-lab/argo-signal/internal/cache"
	"github.com/rxtech-lab/argo-signal/internal/config"
	"github.com/rxtech-lab/argo-signal/internal/dedup"
	"github.com/rxtech-lab/argo-signal/internal/engine"
	"github.com/rxtech-lab/argo-signal/internal/metrics"
	"github.com/rxtech-lab/argo-signal/internal/server"
	"github.com/rxtech-lab/argo-signal/internal/source"
	"github.com/rxtech-lab/argo-signal/internal/version"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

func main() {
	cmd := &cli.Command{
		Name:    "argo-signal",
		Usage:   "Candle signal engine: download, backtest, analyze and trade",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			downloadCommand(),
			backtestCommand(),
			montecarloCommand(),
			liveCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		Value:   "config.yaml",
	}
}

func symbolFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "symbol",
		Aliases:  []string{"s"},
		Usage:    "Symbol to operate on (e.g. BTCUSDT)",
		Required: required,
	}
}

func dateFlag(name string, usage string, required bool) cli.Flag {
	return &cli.TimestampFlag{
		Name:     name,
		Usage:    usage,
		Required: required,
		Config: cli.TimestampConfig{
			Layouts: []string{"2006-01-02"},
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download historical candles into the DuckDB store",
		Flags: []cli.Flag{
			configFlag(),
			symbolFlag(true),
			dateFlag("start", "Start date in YYYY-MM-DD format", true),
			dateFlag("end", "End date in YYYY-MM-DD format; defaults to today", false),
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Data provider: binance or polygon",
				Value: "binance",
			},
		},
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	store, err := source.NewDuckDBStore(cfg.Source.DataPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	end := cmd.Timestamp("end")
	if end.IsZero() {
		end = time.Now()
	}

	var downloader source.Downloader

	switch cmd.String("provider") {
	case "polygon":
		apiKey := cfg.Source.PolygonApiKey
		if apiKey == "" {
			apiKey = os.Getenv("POLYGON_API_KEY")
		}

		downloader, err = source.NewPolygonSource(apiKey, store, true)
		if err != nil {
			return err
		}
	default:
		downloader = source.NewBinanceSource(store)
	}

	symbol := cmd.String("symbol")

	written, err := downloader.Download(ctx, symbol, cfg.Timeframe, cmd.Timestamp("start"), end, nil)
	if err != nil {
		return err
	}

	log.Info("download complete",
		zap.String("symbol", symbol),
		zap.String("timeframe", cfg.Timeframe),
		zap.Int("candles", written),
	)

	return nil
}

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Replay stored candles through the signal engine",
		Flags: []cli.Flag{
			configFlag(),
			symbolFlag(true),
			dateFlag("start", "Replay start date", false),
			dateFlag("end", "Replay end date", false),
		},
		Action: backtestAction,
	}
}

func runBacktest(ctx context.Context, cmd *cli.Command) (*backtest.Result, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	store, err := source.NewDuckDBStore(cfg.Source.DataPath, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	symbol := cmd.String("symbol")

	candles, err := store.LoadCandles(ctx, symbol, cfg.Timeframe, cmd.Timestamp("start"), cmd.Timestamp("end"))
	if err != nil {
		return nil, err
	}

	bt, err := backtest.NewEngine(backtest.Config{
		Symbol:       symbol,
		InitialFunds: cfg.InitialFunds,
		ShowProgress: true,
		Pipeline:     cfg.Pipeline,
		Strategy:     cfg.Signal,
		Risk:         cfg.Risk,
	}, log)
	if err != nil {
		return nil, err
	}

	return bt.Run(ctx, candles)
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	result, err := runBacktest(ctx, cmd)
	if err != nil {
		return err
	}

	report := backtest.BuildReport(result)

	return printJSON(map[string]any{
		"result": result,
		"report": report,
	})
}

func montecarloCommand() *cli.Command {
	return &cli.Command{
		Name:  "montecarlo",
		Usage: "Backtest, then resample the trade P&L sequence",
		Flags: []cli.Flag{
			configFlag(),
			symbolFlag(false),
			dateFlag("start", "Replay start date", false),
			dateFlag("end", "Replay end date", false),
			&cli.IntFlag{
				Name:    "iterations",
				Aliases: []string{"n"},
				Usage:   "Number of shuffled replays",
				Value:   1000,
			},
			&cli.StringFlag{
				Name:  "pnl",
				Usage: "JSON file with a per-trade P&L array; skips the backtest",
			},
			&cli.FloatFlag{
				Name:  "capital",
				Usage: "Starting capital when --pnl is used",
				Value: 100,
			},
		},
		Action: montecarloAction,
	}
}

func montecarloAction(ctx context.Context, cmd *cli.Command) error {
	var (
		pnls    []float64
		capital float64
	)

	if path := cmd.String("pnl"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read pnl file: %w", err)
		}

		if err := json.Unmarshal(data, &pnls); err != nil {
			return fmt.Errorf("failed to parse pnl file: %w", err)
		}

		capital = cmd.Float("capital")
	} else {
		if cmd.String("symbol") == "" {
			return fmt.Errorf("--symbol is required unless --pnl is given")
		}

		result, err := runBacktest(ctx, cmd)
		if err != nil {
			return err
		}

		pnls = backtest.PnLSeries(result.TradeRecords)
		capital = result.InitialFunds
	}

	analyzer, err := analytics.NewAnalyzer(analytics.Config{
		Iterations:     int(cmd.Int("iterations")),
		InitialCapital: capital,
	})
	if err != nil {
		return err
	}

	report, err := analyzer.Analyze(pnls)
	if err != nil {
		return err
	}

	fmt.Println(report.String())

	return nil
}

func liveCommand() *cli.Command {
	return &cli.Command{
		Name:   "live",
		Usage:  "Run the realtime signal loop",
		Flags:  []cli.Flag{configFlag()},
		Action: liveAction,
	}
}

func liveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	store := cache.New()

	gate, err := buildGate(ctx, cfg)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		InitialFunds: cfg.InitialFunds,
		Pipeline:     cfg.Pipeline,
		Strategy:     cfg.Signal,
		Risk:         cfg.Risk,
	}, store, gate, engine.NopNotifier{}, m, log)
	if err != nil {
		return err
	}

	if err := warmFromStore(ctx, cfg, eng, log); err != nil {
		return err
	}

	srv := server.New(cfg.Server.Addr, store, registry, log)

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error("status server failed", zap.Error(err))
		}
	}()

	var stream source.StreamSource
	if cfg.Source.Provider == config.SourceOKX {
		stream = source.NewOKXSource(cfg.Source.OKXEndpoint)
	} else {
		stream = source.NewBinanceSource(nil)
	}

	log.Info("live loop starting",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("timeframe", cfg.Timeframe),
		zap.String("provider", string(cfg.Source.Provider)),
	)

	for candle, err := range stream.Stream(ctx, cfg.Symbols, cfg.Timeframe) {
		if err != nil {
			log.Error("stream error", zap.Error(err))

			continue
		}

		key := cache.Key{
			Symbol:    candle.Symbol,
			Timeframe: candle.Timeframe,
			Strategy:  cfg.Strategy,
		}

		if err := eng.OnCandle(ctx, key, candle); err != nil {
			log.Error("candle processing failed",
				zap.String("key", key.String()),
				zap.Int64("timestamp", candle.Timestamp),
				zap.Error(err),
			)
		}
	}

	return ctx.Err()
}

// buildGate selects the Redis gate when configured, otherwise an in-process
// gate with a background sweeper.
func buildGate(ctx context.Context, cfg config.AppConfig) (dedup.Gate, error) {
	if cfg.Redis != nil {
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		return dedup.NewRedisGate(client, dedup.DefaultRetention), nil
	}

	gate := dedup.NewMemoryGate(dedup.DefaultRetention)
	go gate.RunSweeper(ctx, time.Minute)

	return gate, nil
}

// warmFromStore seeds each symbol's cache entry from the historical store.
// Missing history is not fatal; the key starts cold.
func warmFromStore(ctx context.Context, cfg config.AppConfig, eng *engine.Engine, log *logger.Logger) error {
	store, err := source.NewDuckDBStore(cfg.Source.DataPath, log)
	if err != nil {
		log.Warn("historical store unavailable, starting cold", zap.Error(err))

		return nil
	}
	defer store.Close()

	for _, symbol := range cfg.Symbols {
		history, err := store.LoadCandles(ctx, symbol, cfg.Timeframe, time.Time{}, time.Time{})
		if err != nil || len(history) == 0 {
			log.Warn("no history for symbol, starting cold", zap.String("symbol", symbol))

			continue
		}

		key := cache.Key{Symbol: symbol, Timeframe: cfg.Timeframe, Strategy: cfg.Strategy}
		if err := eng.Warm(key, history); err != nil {
			return err
		}
	}

	return nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema for the configuration file",
		Action: func(_ context.Context, _ *cli.Command) error {
			schema, err := config.Schema()
			if err != nil {
				return err
			}

			fmt.Println(schema)

			return nil
		},
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}
