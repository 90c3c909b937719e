package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// RiskConfig controls position sizing, stops, and the partial take-profit
// ladder. Validated at construction; invalid parameters are rejected, never
// clamped.
type RiskConfig struct {
	// MaxLossPercent caps the loss from a single position as a fraction of
	// entry notional.
	MaxLossPercent float64 `yaml:"max_loss_percent" json:"max_loss_percent" validate:"gt=0,lte=1"`

	// UseSignalKlineStopLoss arms the signal-candle-based stop at open.
	UseSignalKlineStopLoss bool `yaml:"use_signal_kline_stop_loss" json:"use_signal_kline_stop_loss"`

	// TakeProfitRatio expresses the fixed target as a multiple of the
	// signal-candle stop distance; 0 disables it.
	TakeProfitRatio float64 `yaml:"take_profit_ratio" json:"take_profit_ratio" validate:"gte=0"`

	// FibLevels is the retracement ladder (fractions of entry price moved
	// in the position's favor); FibTakeFractions holds the share of the
	// open quantity realized at each level.
	FibLevels        []float64 `yaml:"fib_levels" json:"fib_levels"`
	FibTakeFractions []float64 `yaml:"fib_take_fractions" json:"fib_take_fractions"`

	// UseBreakevenRatchet moves the stop to the entry price once unrealized
	// profit reaches BreakevenTriggerRatio times the initial risk distance.
	UseBreakevenRatchet   bool    `yaml:"use_breakeven_ratchet" json:"use_breakeven_ratchet"`
	BreakevenTriggerRatio float64 `yaml:"breakeven_trigger_ratio" json:"breakeven_trigger_ratio" validate:"gte=0"`

	// FeeRate is charged on entry notional at close.
	FeeRate float64 `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`
}

// DefaultFibLevels is the standard retracement ladder.
var DefaultFibLevels = []float64{0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// DefaultFibTakeFractions realizes a matching share of the opening quantity
// at each ladder level.
var DefaultFibTakeFractions = []float64{0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// DefaultRiskConfig mirrors the production defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxLossPercent:         0.02,
		UseSignalKlineStopLoss: true,
		TakeProfitRatio:        0,
		FibLevels:              append([]float64(nil), DefaultFibLevels...),
		FibTakeFractions:       append([]float64(nil), DefaultFibTakeFractions...),
		UseBreakevenRatchet:    true,
		BreakevenTriggerRatio:  1.5,
		FeeRate:                0.0007,
	}
}

var validate = validator.New()

// Validate checks field constraints and ladder consistency.
func (c RiskConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk config", err)
	}
	if len(c.FibLevels) != len(c.FibTakeFractions) {
		return errors.Newf(errors.ErrCodeInvalidFibLadder,
			"fib ladder has %d levels but %d take fractions", len(c.FibLevels), len(c.FibTakeFractions))
	}
	prev := 0.0
	for i, level := range c.FibLevels {
		if level <= prev {
			return errors.Newf(errors.ErrCodeInvalidFibLadder, "fib level %d (%f) not strictly ascending", i, level)
		}
		prev = level
		if f := c.FibTakeFractions[i]; f <= 0 || f > 1 {
			return errors.Newf(errors.ErrCodeInvalidFibLadder, "fib take fraction %d (%f) out of (0,1]", i, f)
		}
	}
	return nil
}
