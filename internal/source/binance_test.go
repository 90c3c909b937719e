package source

import (
	"context"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-signal/internal/types"
)

// mockKlineStreamer implements KlineStreamer for testing.
type mockKlineStreamer struct {
	events     []*binance.WsKlineEvent
	errs       []error
	startError error
}

func (m *mockKlineStreamer) WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	if m.startError != nil {
		return nil, nil, m.startError
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	go func() {
		defer close(doneC)

		for _, event := range m.events {
			select {
			case <-stopC:
				return
			default:
				handler(event)
			}
		}

		for _, err := range m.errs {
			errHandler(err)
		}

		select {
		case <-stopC:
		case <-time.After(5 * time.Second):
		}
	}()

	return doneC, stopC, nil
}

type BinanceSourceTestSuite struct {
	suite.Suite
}

func TestBinanceSourceSuite(t *testing.T) {
	suite.Run(t, new(BinanceSourceTestSuite))
}

func wsEvent(symbol string, ts int64, open, high, low, closePrice, volume string, final bool) *binance.WsKlineEvent {
	return &binance.WsKlineEvent{
		Symbol: symbol,
		Kline: binance.WsKline{
			StartTime: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			IsFinal:   final,
		},
	}
}

func (suite *BinanceSourceTestSuite) TestStreamYieldsCandles() {
	streamer := &mockKlineStreamer{
		events: []*binance.WsKlineEvent{
			wsEvent("BTCUSDT", 1704067200000, "42000.50", "42500.00", "41800.00", "42300.00", "1000.5", true),
			wsEvent("BTCUSDT", 1704067260000, "42300.00", "42600.00", "42200.00", "42550.00", "800.25", false),
		},
	}
	src := NewBinanceSourceWithStreamer(nil, streamer)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var received []types.Candle

	for candle, err := range src.Stream(ctx, []string{"BTCUSDT"}, "1m") {
		suite.Require().NoError(err)
		received = append(received, candle)

		if len(received) == 2 {
			cancel()
		}
	}

	suite.Require().Len(received, 2)
	suite.Equal("BTCUSDT", received[0].Symbol)
	suite.Equal("1m", received[0].Timeframe)
	suite.Equal(int64(1704067200000), received[0].Timestamp)
	suite.InDelta(42000.50, received[0].Open, 1e-9)
	suite.InDelta(42300.00, received[0].Close, 1e-9)
	suite.True(received[0].Confirmed)
	suite.False(received[1].Confirmed)
}

func (suite *BinanceSourceTestSuite) TestStreamMalformedKlineYieldsError() {
	streamer := &mockKlineStreamer{
		events: []*binance.WsKlineEvent{
			wsEvent("BTCUSDT", 1704067200000, "not-a-number", "1", "1", "1", "1", true),
		},
	}
	src := NewBinanceSourceWithStreamer(nil, streamer)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var streamErr error

	for _, err := range src.Stream(ctx, []string{"BTCUSDT"}, "1m") {
		if err != nil {
			streamErr = err
			cancel()
		}
	}

	suite.Error(streamErr)
}

func (suite *BinanceSourceTestSuite) TestStreamSubscribeFailure() {
	streamer := &mockKlineStreamer{startError: context.DeadlineExceeded}
	src := NewBinanceSourceWithStreamer(nil, streamer)

	var streamErr error

	for _, err := range src.Stream(context.Background(), []string{"BTCUSDT"}, "1m") {
		streamErr = err
	}

	suite.Error(streamErr)
}

func (suite *BinanceSourceTestSuite) TestKlinesToCandles() {
	klines := []*binance.Kline{
		{OpenTime: 1000, CloseTime: 59999, Open: "100", High: "105", Low: "99", Close: "104", Volume: "1234.5"},
	}

	candles, err := klinesToCandles("ETHUSDT", "1m", klines)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 1)
	suite.Equal("ETHUSDT", candles[0].Symbol)
	suite.InDelta(105.0, candles[0].High, 1e-9)
	suite.True(candles[0].Confirmed)
}

func (suite *BinanceSourceTestSuite) TestKlinesToCandlesRejectsGarbage() {
	klines := []*binance.Kline{
		{OpenTime: 1000, Open: "garbage", High: "105", Low: "99", Close: "104", Volume: "1"},
	}

	_, err := klinesToCandles("ETHUSDT", "1m", klines)
	suite.Error(err)
}
