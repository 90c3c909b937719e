package types

import "github.com/rxtech-lab/argo-signal/pkg/errors"

// StrategyType identifies the closed set of supported strategy kinds.
// Dispatch over strategies is an explicit switch on this type; there is no
// runtime registration.
type StrategyType string

const (
	// StrategyTypeVegas is the EMA-tunnel trend strategy with pattern and
	// volume confirmation.
	StrategyTypeVegas StrategyType = "vegas"
	// StrategyTypeNwe is the Nadaraya-Watson envelope reversion strategy.
	StrategyTypeNwe StrategyType = "nwe"
	// StrategyTypeFibonacci is the swing retracement strategy.
	StrategyTypeFibonacci StrategyType = "fibonacci"
)

// ParseStrategyType converts a string to a StrategyType, rejecting unknown kinds.
func ParseStrategyType(s string) (StrategyType, error) {
	switch StrategyType(s) {
	case StrategyTypeVegas, StrategyTypeNwe, StrategyTypeFibonacci:
		return StrategyType(s), nil
	default:
		return "", errors.Newf(errors.ErrCodeUnsupportedStrategy, "unsupported strategy type: %q", s)
	}
}

// TradeSide is the direction of a position.
type TradeSide string

const (
	TradeSideLong  TradeSide = "long"
	TradeSideShort TradeSide = "short"
)

// Opposite returns the mirrored side.
func (s TradeSide) Opposite() TradeSide {
	if s == TradeSideLong {
		return TradeSideShort
	}
	return TradeSideLong
}
