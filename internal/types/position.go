package types

import (
	"maps"
	"slices"

	"github.com/moznion/go-optional"
)

// PositionEpsilon is the quantity below which a position counts as fully
// closed.
const PositionEpsilon = 1e-8

// TradePosition is an open or partially-closed holding.
type TradePosition struct {
	Side       TradeSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ClosePrice optional.Option[float64] `json:"close_price,omitempty"`

	// OpenTimestamp is the candle that actually filled the entry;
	// SignalTimestamp is the candle that generated the signal (they differ
	// when the fill waited for a best-price touch).
	OpenTimestamp   int64 `json:"open_timestamp"`
	SignalTimestamp int64 `json:"signal_timestamp"`

	StopLoss       optional.Option[float64] `json:"stop_loss,omitempty"`
	AtrStopLoss    optional.Option[float64] `json:"atr_stop_loss,omitempty"`
	TakeProfit     optional.Option[float64] `json:"take_profit,omitempty"`
	StopLossSource StopLossSource           `json:"stop_loss_source,omitempty"`

	// InitialRisk is the entry-to-stop distance captured at open, used by
	// the breakeven ratchet trigger.
	InitialRisk float64 `json:"initial_risk"`
	// BreakevenArmed is set once the stop has been ratcheted to the entry
	// price; the ratchet is one-directional and never disarmed while the
	// position lives.
	BreakevenArmed bool `json:"breakeven_armed"`

	// TriggeredFibLevels records ladder indices that already fired; each
	// level fires at most once per position lifetime.
	TriggeredFibLevels map[int]struct{} `json:"-"`

	SnapshotJSON string `json:"snapshot_json,omitempty"`
}

// LevelTriggered reports whether ladder index idx already fired.
func (p *TradePosition) LevelTriggered(idx int) bool {
	_, ok := p.TriggeredFibLevels[idx]
	return ok
}

// MarkLevelTriggered records ladder index idx as fired.
func (p *TradePosition) MarkLevelTriggered(idx int) {
	if p.TriggeredFibLevels == nil {
		p.TriggeredFibLevels = make(map[int]struct{})
	}
	p.TriggeredFibLevels[idx] = struct{}{}
}

// Clone returns a deep copy sharing no mutable memory with p.
func (p *TradePosition) Clone() *TradePosition {
	c := *p
	c.TriggeredFibLevels = maps.Clone(p.TriggeredFibLevels)
	return &c
}

// UnrealizedPnL returns quantity x (price - entry) for longs and the mirror
// for shorts.
func (p *TradePosition) UnrealizedPnL(price float64) float64 {
	if p.Side == TradeSideLong {
		return p.Quantity * (price - p.EntryPrice)
	}
	return p.Quantity * (p.EntryPrice - price)
}

// TradeRecord is one append-only ledger entry; exactly one is written per
// close or partial-close event.
type TradeRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       TradeSide `json:"side"`
	OptionType string    `json:"option_type"` // "open", "close", "fibonacci_close"

	OpenTimestamp   int64                  `json:"open_timestamp"`
	SignalTimestamp int64                  `json:"signal_timestamp"`
	CloseTimestamp  optional.Option[int64] `json:"close_timestamp,omitempty"`

	OpenPrice  float64                  `json:"open_price"`
	ClosePrice optional.Option[float64] `json:"close_price,omitempty"`

	Quantity   float64 `json:"quantity"`
	ProfitLoss float64 `json:"profit_loss"`
	FullClose  bool    `json:"full_close"`
	CloseType  string  `json:"close_type"`

	WinNum  int64 `json:"win_num"`
	LossNum int64 `json:"loss_num"`

	SnapshotJSON   string         `json:"snapshot_json,omitempty"`
	StopLossSource StopLossSource `json:"stop_loss_source,omitempty"`
}

// TradingState is the mutable state owned by exactly one backtest replay or
// one live cache entry; it is never shared without the cache's per-key lock.
type TradingState struct {
	Funds             float64 `json:"funds"`
	Wins              int64   `json:"wins"`
	Losses            int64   `json:"losses"`
	OpenPositionTimes int     `json:"open_position_times"`
	TotalProfitLoss   float64 `json:"total_profit_loss"`

	// PendingSignal holds a directional signal waiting for its best-price
	// fill on a later candle; consumed or superseded, never replayed.
	PendingSignal *SignalResult `json:"pending_signal,omitempty"`

	Position *TradePosition `json:"position,omitempty"`

	TradeRecords []TradeRecord `json:"trade_records"`
}

// NewTradingState returns a state with the given starting capital.
func NewTradingState(funds float64) *TradingState {
	return &TradingState{
		Funds:        funds,
		TradeRecords: make([]TradeRecord, 0, 256),
	}
}

// Clone returns a deep copy sharing no mutable memory with s. Option values
// inside records are replaced wholesale, never written through, so the
// shallow record copy is enough.
func (s *TradingState) Clone() *TradingState {
	c := *s
	c.TradeRecords = slices.Clone(s.TradeRecords)
	if s.PendingSignal != nil {
		c.PendingSignal = s.PendingSignal.Clone()
	}
	if s.Position != nil {
		c.Position = s.Position.Clone()
	}
	return &c
}

// WinRate returns wins/(wins+losses), or 0 when no trade has closed.
func (s *TradingState) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total)
}
