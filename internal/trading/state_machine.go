// Package trading implements the position state machine: Flat -> Open ->
// PartiallyClosed -> Flat. One StateMachine instance owns one TradingState;
// callers serialize access (the backtest loop is single-threaded, the live
// path holds the per-key cache lock).
package trading

import (
	"github.com/google/uuid"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// Close reasons recorded on ledger entries.
const (
	CloseReasonSignalKlineStop = "signal_kline_stop_loss"
	CloseReasonMaxLoss         = "max_loss_stop"
	CloseReasonBreakevenStop   = "breakeven_stop"
	CloseReasonTakeProfit      = "take_profit"
	CloseReasonFibLadder       = "fibonacci_take_profit"
	CloseReasonOppositeSignal  = "opposite_signal"
	CloseReasonFinalize        = "finalize"
)

// StateMachine advances one TradingState candle by candle.
type StateMachine struct {
	cfg    types.RiskConfig
	symbol string
	state  *types.TradingState
}

// NewStateMachine validates the risk config and wraps the given state.
func NewStateMachine(cfg types.RiskConfig, symbol string, state *types.TradingState) (*StateMachine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "trading state must not be nil")
	}
	return &StateMachine{cfg: cfg, symbol: symbol, state: state}, nil
}

// State exposes the owned state for inspection.
func (m *StateMachine) State() *types.TradingState {
	return m.state
}

// Step processes one candle together with the signal generated from it.
// Risk rules run first so an intrabar stop fires even when the same candle
// carries a new signal; then the signal drives open/close/reverse/update,
// and finally a pending best-price signal may fill.
func (m *StateMachine) Step(candle types.Candle, signal types.SignalResult) error {
	if err := signal.Validate(); err != nil {
		return err
	}

	if m.state.Position != nil {
		m.checkRisk(candle)
	}

	if signal.HasDirection() {
		m.handleDirectional(candle, signal)
		return nil
	}

	if m.state.Position == nil && m.state.PendingSignal != nil {
		m.tryFillPending(candle)
	}
	return nil
}

// Finalize force-closes any open position at the last candle's close. Used
// by the backtest engine so final funds reflect the open position's value.
func (m *StateMachine) Finalize(candle types.Candle) {
	if m.state.Position == nil {
		return
	}
	m.closePosition(candle, candle.Close, CloseReasonFinalize)
	m.state.PendingSignal = nil
}

func (m *StateMachine) handleDirectional(candle types.Candle, signal types.SignalResult) {
	side := signal.Side()

	if pos := m.state.Position; pos != nil {
		if pos.Side == side {
			// Same-direction repeat: refresh targets, never re-open.
			m.updateStops(pos, signal)
			return
		}
		// Opposite signal: close at the signal price, then reverse.
		m.closePosition(candle, signal.OpenPrice, CloseReasonOppositeSignal)
		m.openPosition(candle, signal, signal.OpenPrice)
		return
	}

	// A best-price suggestion parks the signal; the fill happens on a later
	// candle that touches the price. Otherwise open immediately.
	if signal.BestOpenPrice.IsSome() {
		pending := signal
		m.state.PendingSignal = &pending
		return
	}
	m.state.PendingSignal = nil
	m.openPosition(candle, signal, signal.OpenPrice)
}

// tryFillPending opens the parked signal when the candle trades through its
// best price. Long fills need the low at or below the price, short fills
// need the high above it.
func (m *StateMachine) tryFillPending(candle types.Candle) {
	pending := m.state.PendingSignal
	if candle.Timestamp < pending.Timestamp {
		return
	}
	best, err := pending.BestOpenPrice.Take()
	if err != nil {
		m.state.PendingSignal = nil
		return
	}
	filled := false
	if pending.ShouldBuy && candle.Low <= best {
		filled = true
	}
	if pending.ShouldSell && candle.High > best {
		filled = true
	}
	if !filled {
		return
	}
	m.state.PendingSignal = nil
	m.openPosition(candle, *pending, best)
}

func (m *StateMachine) openPosition(candle types.Candle, signal types.SignalResult, fillPrice float64) {
	if fillPrice <= 0 || m.state.Funds <= 0 {
		return
	}
	pos := &types.TradePosition{
		Side:            signal.Side(),
		Quantity:        m.state.Funds / fillPrice,
		EntryPrice:      fillPrice,
		OpenTimestamp:   candle.Timestamp,
		SignalTimestamp: signal.Timestamp,
		AtrStopLoss:     signal.AtrStopLoss,
		StopLossSource:  signal.StopLossSource,
		SnapshotJSON:    signal.SnapshotJSON,
	}
	if m.cfg.UseSignalKlineStopLoss {
		pos.StopLoss = signal.KlineStopLoss
	}
	if stop, err := pos.StopLoss.Take(); err == nil {
		pos.InitialRisk = abs(fillPrice - stop)
	}
	if m.cfg.TakeProfitRatio > 0 && pos.InitialRisk > 0 {
		if pos.Side == types.TradeSideLong {
			pos.TakeProfit = optional.Some(fillPrice + pos.InitialRisk*m.cfg.TakeProfitRatio)
		} else {
			pos.TakeProfit = optional.Some(fillPrice - pos.InitialRisk*m.cfg.TakeProfitRatio)
		}
	} else if signal.TakeProfit.IsSome() {
		pos.TakeProfit = signal.TakeProfit
	}

	m.state.Position = pos
	m.state.OpenPositionTimes++
	m.state.TotalProfitLoss = 0

	m.appendRecord(types.TradeRecord{
		ID:              uuid.NewString(),
		Symbol:          m.symbol,
		Side:            pos.Side,
		OptionType:      "open",
		OpenTimestamp:   candle.Timestamp,
		SignalTimestamp: signal.Timestamp,
		OpenPrice:       fillPrice,
		Quantity:        pos.Quantity,
		SnapshotJSON:    signal.SnapshotJSON,
		StopLossSource:  signal.StopLossSource,
	})
}

// updateStops refreshes the stop and take-profit targets on a repeat signal
// without touching quantity or the fib ladder. A breakeven stop already
// armed is never loosened.
func (m *StateMachine) updateStops(pos *types.TradePosition, signal types.SignalResult) {
	if m.cfg.UseSignalKlineStopLoss && signal.KlineStopLoss.IsSome() && !pos.BreakevenArmed {
		pos.StopLoss = signal.KlineStopLoss
		pos.StopLossSource = signal.StopLossSource
	}
	if signal.AtrStopLoss.IsSome() {
		pos.AtrStopLoss = signal.AtrStopLoss
	}
	if signal.TakeProfit.IsSome() && m.cfg.TakeProfitRatio <= 0 {
		pos.TakeProfit = signal.TakeProfit
	}
}

// checkRisk evaluates exits against the candle's full range. Stops take
// priority over profit targets within one bar; the fib ladder runs last so a
// stopped-out position never partially closes on the same bar.
func (m *StateMachine) checkRisk(candle types.Candle) {
	pos := m.state.Position
	m.armBreakeven(pos, candle)

	adverse := candle.Low
	favorable := candle.High
	if pos.Side == types.TradeSideShort {
		adverse = candle.High
		favorable = candle.Low
	}

	if stop, err := pos.StopLoss.Take(); err == nil && stopHit(pos.Side, adverse, stop) {
		reason := CloseReasonSignalKlineStop
		if pos.BreakevenArmed && stop == pos.EntryPrice {
			reason = CloseReasonBreakevenStop
		}
		m.closePosition(candle, stop, reason)
		return
	}

	// Max loss guard against the adverse extreme.
	if pos.EntryPrice > 0 {
		lossPct := -pos.UnrealizedPnL(adverse) / (pos.Quantity * pos.EntryPrice)
		if lossPct > m.cfg.MaxLossPercent {
			stop := pos.EntryPrice * (1 - m.cfg.MaxLossPercent)
			if pos.Side == types.TradeSideShort {
				stop = pos.EntryPrice * (1 + m.cfg.MaxLossPercent)
			}
			m.closePosition(candle, stop, CloseReasonMaxLoss)
			return
		}
	}

	if target, err := pos.TakeProfit.Take(); err == nil && takeProfitHit(pos.Side, favorable, target) {
		m.closePosition(candle, target, CloseReasonTakeProfit)
		return
	}

	m.processFibLadder(candle, favorable)
}

// armBreakeven ratchets the stop to the entry price once the favorable
// extreme covers BreakevenTriggerRatio times the initial risk distance. The
// ratchet fires once and the stop never moves back.
func (m *StateMachine) armBreakeven(pos *types.TradePosition, candle types.Candle) {
	if !m.cfg.UseBreakevenRatchet || pos.BreakevenArmed || pos.InitialRisk <= 0 {
		return
	}
	trigger := pos.EntryPrice + pos.InitialRisk*m.cfg.BreakevenTriggerRatio
	hit := candle.High >= trigger
	if pos.Side == types.TradeSideShort {
		trigger = pos.EntryPrice - pos.InitialRisk*m.cfg.BreakevenTriggerRatio
		hit = candle.Low <= trigger
	}
	if hit {
		pos.StopLoss = optional.Some(pos.EntryPrice)
		pos.BreakevenArmed = true
	}
}

// processFibLadder realizes partial profits at each retracement level the
// favorable price crossed. Every level fires at most once per position; when
// the remainder drops below the epsilon the position closes fully and the
// triggered set resets with it.
func (m *StateMachine) processFibLadder(candle types.Candle, favorable float64) {
	pos := m.state.Position
	for idx, level := range m.cfg.FibLevels {
		if pos.LevelTriggered(idx) {
			continue
		}
		fibPrice := pos.EntryPrice * (1 + level)
		crossed := favorable >= fibPrice
		if pos.Side == types.TradeSideShort {
			fibPrice = pos.EntryPrice * (1 - level)
			crossed = favorable <= fibPrice
		}
		if !crossed {
			continue
		}

		sellQty := pos.Quantity * m.cfg.FibTakeFractions[idx]
		if sellQty < types.PositionEpsilon {
			continue
		}
		profit := sellQty * (fibPrice - pos.EntryPrice)
		if pos.Side == types.TradeSideShort {
			profit = sellQty * (pos.EntryPrice - fibPrice)
		}

		remaining := pos.Quantity - sellQty
		if remaining <= types.PositionEpsilon {
			m.state.Funds += profit
			m.state.TotalProfitLoss += profit
			pos.Quantity = remaining
			m.closePosition(candle, fibPrice, CloseReasonFibLadder)
			return
		}

		pos.Quantity = remaining
		pos.MarkLevelTriggered(idx)
		m.state.Funds += profit
		m.state.TotalProfitLoss += profit

		m.appendRecord(types.TradeRecord{
			ID:              uuid.NewString(),
			Symbol:          m.symbol,
			Side:            pos.Side,
			OptionType:      "fibonacci_close",
			OpenTimestamp:   pos.OpenTimestamp,
			SignalTimestamp: pos.SignalTimestamp,
			CloseTimestamp:  optional.Some(candle.Timestamp),
			OpenPrice:       pos.EntryPrice,
			ClosePrice:      optional.Some(fibPrice),
			Quantity:        sellQty,
			ProfitLoss:      profit,
			FullClose:       false,
			CloseType:       CloseReasonFibLadder,
			SnapshotJSON:    pos.SnapshotJSON,
			StopLossSource:  pos.StopLossSource,
		})
	}
}

// closePosition realizes the remaining quantity at exitPrice, charges the
// close fee on entry notional, settles win/loss counters, and appends the
// ledger record. Degenerate quantities settle as a no-op close.
func (m *StateMachine) closePosition(candle types.Candle, exitPrice float64, reason string) {
	pos := m.state.Position
	if pos == nil {
		return
	}

	profit := pos.UnrealizedPnL(exitPrice)
	profitAfterFee := profit
	if profit != 0 {
		fee := pos.Quantity * pos.EntryPrice * m.cfg.FeeRate
		profitAfterFee = profit - fee
	}

	m.state.Funds += profitAfterFee
	m.state.TotalProfitLoss += profitAfterFee

	if m.state.TotalProfitLoss > 0 {
		m.state.Wins++
	} else if m.state.TotalProfitLoss < 0 {
		m.state.Losses++
	}

	m.appendRecord(types.TradeRecord{
		ID:              uuid.NewString(),
		Symbol:          m.symbol,
		Side:            pos.Side,
		OptionType:      "close",
		OpenTimestamp:   pos.OpenTimestamp,
		SignalTimestamp: pos.SignalTimestamp,
		CloseTimestamp:  optional.Some(candle.Timestamp),
		OpenPrice:       pos.EntryPrice,
		ClosePrice:      optional.Some(exitPrice),
		Quantity:        pos.Quantity,
		ProfitLoss:      m.state.TotalProfitLoss,
		FullClose:       true,
		CloseType:       reason,
		WinNum:          m.state.Wins,
		LossNum:         m.state.Losses,
		SnapshotJSON:    pos.SnapshotJSON,
		StopLossSource:  pos.StopLossSource,
	})

	m.state.Position = nil
}

func (m *StateMachine) appendRecord(record types.TradeRecord) {
	m.state.TradeRecords = append(m.state.TradeRecords, record)
}

func stopHit(side types.TradeSide, adverse, stop float64) bool {
	if side == types.TradeSideLong {
		return adverse <= stop
	}
	return adverse >= stop
}

func takeProfitHit(side types.TradeSide, favorable, target float64) bool {
	if side == types.TradeSideLong {
		return favorable >= target
	}
	return favorable <= target
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
