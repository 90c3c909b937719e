package types

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (suite *TypesTestSuite) TestCandleValidate() {
	valid := Candle{Symbol: "BTCUSDT", Open: 100, High: 110, Low: 90, Close: 95}
	suite.NoError(valid.Validate())

	badHigh := Candle{Open: 100, High: 99, Low: 90, Close: 95}
	suite.Error(badHigh.Validate())

	badLow := Candle{Open: 100, High: 110, Low: 101, Close: 105}
	suite.Error(badLow.Validate())
}

func (suite *TypesTestSuite) TestCandleShadows() {
	c := Candle{Open: 100, High: 110, Low: 90, Close: 95}
	suite.Equal(5.0, c.Body())
	suite.Equal(20.0, c.Range())
	suite.Equal(10.0, c.UpperShadow())
	suite.Equal(5.0, c.LowerShadow())
	suite.True(c.IsBearish())
	suite.InDelta(20.0, c.Amplitude(), 1e-12)
}

func (suite *TypesTestSuite) TestSignalResultValidate() {
	ok := SignalResult{ShouldBuy: true, OpenPrice: 100, Timestamp: 1}
	suite.NoError(ok.Validate())
	suite.Equal(TradeSideLong, ok.Side())

	both := SignalResult{ShouldBuy: true, ShouldSell: true, OpenPrice: 100}
	suite.Error(both.Validate())

	zeroPrice := SignalResult{ShouldSell: true, OpenPrice: 0}
	suite.Error(zeroPrice.Validate())

	noAction := SignalResult{}
	suite.NoError(noAction.Validate())
	suite.False(noAction.HasDirection())
}

func (suite *TypesTestSuite) TestPositionFibLevels() {
	p := &TradePosition{Side: TradeSideLong, Quantity: 1, EntryPrice: 100}
	suite.False(p.LevelTriggered(0))
	p.MarkLevelTriggered(0)
	suite.True(p.LevelTriggered(0))
	suite.False(p.LevelTriggered(1))
}

func (suite *TypesTestSuite) TestPositionUnrealizedPnL() {
	long := &TradePosition{Side: TradeSideLong, Quantity: 2, EntryPrice: 100}
	suite.Equal(20.0, long.UnrealizedPnL(110))

	short := &TradePosition{Side: TradeSideShort, Quantity: 2, EntryPrice: 100}
	suite.Equal(20.0, short.UnrealizedPnL(90))
	suite.Equal(-20.0, short.UnrealizedPnL(110))

	suite.True(optional.None[float64]().IsNone())
}

func (suite *TypesTestSuite) TestRiskConfigValidate() {
	suite.NoError(DefaultRiskConfig().Validate())

	bad := DefaultRiskConfig()
	bad.MaxLossPercent = 0
	suite.Error(bad.Validate())

	mismatch := DefaultRiskConfig()
	mismatch.FibTakeFractions = mismatch.FibTakeFractions[:2]
	suite.Error(mismatch.Validate())

	unordered := DefaultRiskConfig()
	unordered.FibLevels = []float64{0.5, 0.382}
	unordered.FibTakeFractions = []float64{0.5, 0.5}
	suite.Error(unordered.Validate())
}

func (suite *TypesTestSuite) TestWinRate() {
	s := NewTradingState(100)
	suite.Equal(0.0, s.WinRate())
	s.Wins, s.Losses = 3, 1
	suite.Equal(0.75, s.WinRate())
}

func (suite *TypesTestSuite) TestParseStrategyType() {
	st, err := ParseStrategyType("vegas")
	suite.NoError(err)
	suite.Equal(StrategyTypeVegas, st)

	_, err = ParseStrategyType("martingale")
	suite.Error(err)

	suite.Equal(TradeSideShort, TradeSideLong.Opposite())
}
