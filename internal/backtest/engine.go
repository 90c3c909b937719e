// Package backtest replays historical candles through the same pipeline ->
// generator -> state machine sequence as the live path. The loop is
// single-threaded and free of wall-clock and random dependencies, so one
// candle array and one configuration always produce the same ledger.
package backtest

import (
	"context"
	"os"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/strategy"
	"github.com/rxtech-lab/argo-signal/internal/trading"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

// DefaultInitialFunds is the starting capital when none is configured.
const DefaultInitialFunds = 100.0

// Config assembles one replay run.
type Config struct {
	Symbol        string           `yaml:"symbol" json:"symbol"`
	InitialFunds  float64          `yaml:"initial_funds" json:"initial_funds"`
	MinDataLength int              `yaml:"min_data_length" json:"min_data_length"`
	ShowProgress  bool             `yaml:"show_progress" json:"show_progress"`
	Pipeline      pipeline.Config  `yaml:"pipeline" json:"pipeline"`
	Strategy      strategy.Config  `yaml:"strategy" json:"strategy"`
	Risk          types.RiskConfig `yaml:"risk" json:"risk"`
}

// Result is the outcome of one replay.
type Result struct {
	InitialFunds    float64             `json:"initial_funds"`
	FinalFunds      float64             `json:"final_funds"`
	TotalProfitLoss float64             `json:"total_profit_loss"`
	WinRate         float64             `json:"win_rate"`
	Wins            int64               `json:"wins"`
	Losses          int64               `json:"losses"`
	// OpenTrades counts every position opened during the replay.
	OpenTrades      int                 `json:"open_trades"`
	TradeRecords    []types.TradeRecord `json:"trade_records"`
}

// Engine drives the replay loop.
type Engine struct {
	cfg    Config
	logger *logger.Logger
}

// NewEngine validates the configuration and returns an engine.
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	if cfg.InitialFunds <= 0 {
		cfg.InitialFunds = DefaultInitialFunds
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{cfg: cfg, logger: log}, nil
}

// Run replays the candle array and returns the final state. The context is
// checked each candle so long replays stay cancellable.
func (e *Engine) Run(ctx context.Context, candles []types.Candle) (*Result, error) {
	if len(candles) == 0 {
		return nil, errors.New(errors.ErrCodeInsufficientData, "no candles to replay")
	}

	pipe, err := pipeline.New(e.cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	gen, err := strategy.New(e.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	state := types.NewTradingState(e.cfg.InitialFunds)
	machine, err := trading.NewStateMachine(e.cfg.Risk, e.cfg.Symbol, state)
	if err != nil {
		return nil, err
	}

	minWindow := pipe.MinLookback()
	if e.cfg.MinDataLength > minWindow {
		minWindow = e.cfg.MinDataLength
	}
	if len(candles) <= minWindow {
		return nil, errors.Newf(errors.ErrCodeInsufficientData,
			"need more than %d candles for warm-up, got %d", minWindow, len(candles))
	}

	var bar *progressbar.ProgressBar
	if e.cfg.ShowProgress {
		bar = progressbar.NewOptions(len(candles),
			progressbar.OptionSetDescription("replaying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	window := make([]types.Candle, 0, minWindow)
	for i, candle := range candles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		snapshot := pipe.Next(candle)

		window = append(window, candle)
		if len(window) > minWindow {
			window = window[1:]
		}
		if i+1 < minWindow {
			continue
		}

		signal := gen.Generate(window, &snapshot)
		if err := machine.Step(candle, signal); err != nil {
			return nil, err
		}
	}

	machine.Finalize(candles[len(candles)-1])

	result := &Result{
		InitialFunds:    e.cfg.InitialFunds,
		FinalFunds:      state.Funds,
		TotalProfitLoss: state.Funds - e.cfg.InitialFunds,
		WinRate:         state.WinRate(),
		Wins:            state.Wins,
		Losses:          state.Losses,
		OpenTrades:      state.OpenPositionTimes,
		TradeRecords:    state.TradeRecords,
	}
	e.logger.Info("replay finished",
		zap.Float64("final_funds", result.FinalFunds),
		zap.Float64("win_rate", result.WinRate),
		zap.Int64("wins", result.Wins),
		zap.Int64("losses", result.Losses),
		zap.Int("records", len(result.TradeRecords)),
	)

	return result, nil
}
