package types

import (
	"slices"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// StopLossSource labels which detector produced the signal-candle stop price.
type StopLossSource string

const (
	StopLossSourceEngulfing StopLossSource = "engulfing"
	StopLossSourceHammer    StopLossSource = "hammer"
	StopLossSourceAtr       StopLossSource = "atr"
	StopLossSourceFibSwing  StopLossSource = "fib_swing"
)

// SignalResult is the immutable decision produced by the signal generator
// for one candle.
type SignalResult struct {
	ShouldBuy  bool  `json:"should_buy"`
	ShouldSell bool  `json:"should_sell"`
	Timestamp  int64 `json:"timestamp"`

	// OpenPrice is the immediate fill price (usually the close).
	OpenPrice float64 `json:"open_price"`
	// BestOpenPrice suggests a better intrabar entry; the trading state
	// machine holds the signal until a later candle touches it.
	BestOpenPrice optional.Option[float64] `json:"best_open_price,omitempty"`

	// KlineStopLoss is the signal-candle-based stop (pattern open, hammer
	// low/high, or swing extreme).
	KlineStopLoss  optional.Option[float64] `json:"kline_stop_loss,omitempty"`
	AtrStopLoss    optional.Option[float64] `json:"atr_stop_loss,omitempty"`
	TakeProfit     optional.Option[float64] `json:"take_profit,omitempty"`
	StopLossSource StopLossSource           `json:"stop_loss_source,omitempty"`

	// SnapshotJSON and DecisionTrace record the indicator state and the
	// vote breakdown that produced this decision, for the audit trail.
	SnapshotJSON  string   `json:"snapshot_json,omitempty"`
	DecisionTrace string   `json:"decision_trace,omitempty"`
	FilterReasons []string `json:"filter_reasons,omitempty"`
}

// Clone returns a deep copy sharing no mutable memory with s.
func (s *SignalResult) Clone() *SignalResult {
	c := *s
	c.FilterReasons = slices.Clone(s.FilterReasons)
	return &c
}

// HasDirection reports whether the signal requests an entry.
func (s SignalResult) HasDirection() bool {
	return s.ShouldBuy || s.ShouldSell
}

// Side returns the requested trade side. Only meaningful when HasDirection
// is true.
func (s SignalResult) Side() TradeSide {
	if s.ShouldBuy {
		return TradeSideLong
	}
	return TradeSideShort
}

// Validate rejects malformed signals before they reach the trading state
// machine.
func (s SignalResult) Validate() error {
	if s.ShouldBuy && s.ShouldSell {
		return errors.New(errors.ErrCodeInvalidSignal, "signal requests both buy and sell")
	}
	if s.HasDirection() && s.OpenPrice <= 0 {
		return errors.Newf(errors.ErrCodeInvalidSignal, "directional signal with non-positive open price %f", s.OpenPrice)
	}
	return nil
}
