package types

import "encoding/json"

// EmaSnapshot carries the trend EMA stack for one candle.
type EmaSnapshot struct {
	Ema1 float64 `json:"ema1"`
	Ema2 float64 `json:"ema2"`
	Ema3 float64 `json:"ema3"`
	Ema4 float64 `json:"ema4"`
	Ema5 float64 `json:"ema5"`
	// CrossedUp/CrossedDown report an ema2/ema3 tunnel cross on this candle.
	CrossedUp   bool `json:"crossed_up"`
	CrossedDown bool `json:"crossed_down"`
	// LongTrend is true when the stack is fully bullish ordered, ShortTrend
	// when fully bearish ordered.
	LongTrend  bool `json:"long_trend"`
	ShortTrend bool `json:"short_trend"`
}

// VolumeSnapshot carries the volume ratio against its rolling average.
type VolumeSnapshot struct {
	Ratio      float64 `json:"ratio"`
	Increasing bool    `json:"increasing"`
	Decreasing bool    `json:"decreasing"`
}

// RsiSnapshot carries the RSI value and threshold flags.
type RsiSnapshot struct {
	Value      float64 `json:"value"`
	Overbought bool    `json:"overbought"`
	Oversold   bool    `json:"oversold"`
}

// BollingerSnapshot carries the band values plus consecutive touch counters.
type BollingerSnapshot struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	// UpperTouches/LowerTouches count consecutive candles touching a band.
	UpperTouches int `json:"upper_touches"`
	LowerTouches int `json:"lower_touches"`
}

// PatternSnapshot carries candle-pattern detections for the current candle.
type PatternSnapshot struct {
	IsEngulfing        bool    `json:"is_engulfing"`
	EngulfingBullish   bool    `json:"engulfing_bullish"`
	EngulfingBodyRatio float64 `json:"engulfing_body_ratio"`
	IsHammer           bool    `json:"is_hammer"`
	IsShootingStar     bool    `json:"is_shooting_star"`
	UpperShadowRatio   float64 `json:"upper_shadow_ratio"`
	LowerShadowRatio   float64 `json:"lower_shadow_ratio"`
}

// AtrSnapshot carries the ATR value and the derived trailing stop prices.
type AtrSnapshot struct {
	Value     float64 `json:"value"`
	LongStop  float64 `json:"long_stop"`
	ShortStop float64 `json:"short_stop"`
}

// NweSnapshot carries the Nadaraya-Watson envelope bounds.
type NweSnapshot struct {
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Lower float64 `json:"lower"`
}

// MacdSnapshot carries the MACD line, signal line, and histogram.
type MacdSnapshot struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// FibSnapshot carries the swing retracement detection.
type FibSnapshot struct {
	Ratio     float64 `json:"ratio"`
	InZone    bool    `json:"in_zone"`
	Upswing   bool    `json:"upswing"`
	SwingHigh float64 `json:"swing_high"`
	SwingLow  float64 `json:"swing_low"`
	// LongSignal/ShortSignal are asserted only after trend and volume
	// confirmation.
	LongSignal  bool    `json:"long_signal"`
	ShortSignal bool    `json:"short_signal"`
	StopPrice   float64 `json:"stop_price"`
}

// CompositeSignalSnapshot aggregates the outputs of all active indicator
// units for one candle. It is produced fresh per candle and never mutated
// after the signal generator consumes it; absent units leave their slot at
// the zero value.
type CompositeSignalSnapshot struct {
	Timestamp int64             `json:"timestamp"`
	Ema       EmaSnapshot       `json:"ema"`
	Volume    VolumeSnapshot    `json:"volume"`
	Rsi       RsiSnapshot       `json:"rsi"`
	Bollinger BollingerSnapshot `json:"bollinger"`
	Pattern   PatternSnapshot   `json:"pattern"`
	Atr       AtrSnapshot       `json:"atr"`
	Nwe       NweSnapshot       `json:"nwe"`
	Macd      MacdSnapshot      `json:"macd"`
	Fib       FibSnapshot       `json:"fib"`
}

// JSON serializes the snapshot for the audit trail on trade records.
func (s CompositeSignalSnapshot) JSON() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}
