package source

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// binancePageSize is the maximum number of klines Binance returns per
// request.
const binancePageSize = 500

// KlineStreamer abstracts the Binance websocket kline subscription so tests
// can inject a fake event source.
type KlineStreamer interface {
	WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (doneC chan struct{}, stopC chan struct{}, err error)
}

type liveKlineStreamer struct{}

func (liveKlineStreamer) WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// BinanceSource downloads historical klines and streams realtime candles
// from Binance. It implements Downloader and StreamSource.
type BinanceSource struct {
	client   *binance.Client
	streamer KlineStreamer
	writer   CandleWriter
}

// NewBinanceSource creates a source backed by the public Binance API. No
// credentials are needed for kline data.
func NewBinanceSource(writer CandleWriter) *BinanceSource {
	return &BinanceSource{
		client:   binance.NewClient("", ""),
		streamer: liveKlineStreamer{},
		writer:   writer,
	}
}

// NewBinanceSourceWithStreamer injects a custom websocket service. A nil
// client disables historical downloads.
func NewBinanceSourceWithStreamer(client *binance.Client, streamer KlineStreamer) *BinanceSource {
	return &BinanceSource{
		client:   client,
		streamer: streamer,
	}
}

// Download implements Downloader. Binance pages at 500 klines per request;
// the loop advances past the last close time until end is reached.
func (s *BinanceSource) Download(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time, onProgress OnProgress) (int, error) {
	if s.writer == nil {
		return 0, errors.New(errors.ErrCodeInvalidConfiguration, "no candle writer configured")
	}

	if err := s.writer.Initialize(); err != nil {
		return 0, err
	}

	startMillis := start.UnixMilli()
	endMillis := end.UnixMilli()
	current := startMillis
	written := 0

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		klines, err := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(current).
			EndTime(endMillis).
			Do(ctx)
		if err != nil {
			return written, errors.Wrapf(errors.ErrCodeDownloadFailed, err, "failed to fetch %s klines", symbol)
		}

		if onProgress != nil {
			onProgress(float64(current-startMillis), float64(endMillis-startMillis), "downloading "+symbol)
		}

		candles, err := klinesToCandles(symbol, timeframe, klines)
		if err != nil {
			return written, err
		}

		if err := s.writer.WriteCandles(candles); err != nil {
			return written, err
		}

		written += len(candles)

		if len(klines) < binancePageSize {
			break
		}

		current = klines[len(klines)-1].CloseTime + 1
		if current >= endMillis {
			break
		}
	}

	if err := s.writer.Finalize(); err != nil {
		return written, err
	}

	return written, nil
}

// Stream implements StreamSource. One websocket subscription is opened per
// symbol and all events funnel into a single iterator. Unconfirmed klines
// are yielded with Confirmed=false.
func (s *BinanceSource) Stream(ctx context.Context, symbols []string, timeframe string) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		type item struct {
			candle types.Candle
			err    error
		}

		events := make(chan item, 64)
		stops := make([]chan struct{}, 0, len(symbols))

		for _, symbol := range symbols {
			handler := func(event *binance.WsKlineEvent) {
				candle, err := wsKlineToCandle(timeframe, event)
				select {
				case events <- item{candle: candle, err: err}:
				case <-ctx.Done():
				}
			}
			errHandler := func(err error) {
				select {
				case events <- item{err: errors.Wrap(errors.ErrCodeDataSourceUnavailable, "binance stream error", err)}:
				case <-ctx.Done():
				}
			}

			_, stopC, err := s.streamer.WsKlineServe(symbol, timeframe, handler, errHandler)
			if err != nil {
				yield(types.Candle{}, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to subscribe %s", symbol))
				closeAll(stops)

				return
			}

			stops = append(stops, stopC)
		}

		defer closeAll(stops)

		for {
			select {
			case <-ctx.Done():
				return
			case it := <-events:
				if !yield(it.candle, it.err) {
					return
				}
			}
		}
	}
}

func closeAll(stops []chan struct{}) {
	for _, stop := range stops {
		close(stop)
	}
}

func klinesToCandles(symbol string, timeframe string, klines []*binance.Kline) ([]types.Candle, error) {
	candles := make([]types.Candle, 0, len(klines))

	for _, k := range klines {
		open, err := strconv.ParseFloat(k.Open, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad open %q", k.Open)
		}

		high, err := strconv.ParseFloat(k.High, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad high %q", k.High)
		}

		low, err := strconv.ParseFloat(k.Low, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad low %q", k.Low)
		}

		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad close %q", k.Close)
		}

		volume, err := strconv.ParseFloat(k.Volume, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad volume %q", k.Volume)
		}

		candles = append(candles, types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			Confirmed: true,
		})
	}

	return candles, nil
}

func wsKlineToCandle(timeframe string, event *binance.WsKlineEvent) (types.Candle, error) {
	k := event.Kline

	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad open %q", k.Open)
	}

	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad high %q", k.High)
	}

	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad low %q", k.Low)
	}

	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad close %q", k.Close)
	}

	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return types.Candle{}, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad volume %q", k.Volume)
	}

	return types.Candle{
		Symbol:    event.Symbol,
		Timeframe: timeframe,
		Timestamp: k.StartTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Confirmed: k.IsFinal,
	}, nil
}
