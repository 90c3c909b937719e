package source

import (
	"context"
	"encoding/json"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// DefaultOKXEndpoint is the OKX v5 business websocket, which carries the
// candlestick channels.
const DefaultOKXEndpoint = "wss://ws.okx.com:8443/ws/v5/business"

const (
	okxPingInterval = 25 * time.Second
	okxReadTimeout  = 40 * time.Second
	okxWriteTimeout = 10 * time.Second
)

// OKXSource streams realtime candles from OKX over a websocket. It
// implements StreamSource.
type OKXSource struct {
	endpoint string
	dialer   *websocket.Dialer
}

// NewOKXSource creates a stream source against endpoint; an empty endpoint
// selects DefaultOKXEndpoint.
func NewOKXSource(endpoint string) *OKXSource {
	if endpoint == "" {
		endpoint = DefaultOKXEndpoint
	}

	return &OKXSource{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
	}
}

type okxSubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxSubscribeRequest struct {
	Op   string            `json:"op"`
	Args []okxSubscribeArg `json:"args"`
}

type okxPush struct {
	Event string          `json:"event,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Arg   okxSubscribeArg `json:"arg"`
	Data  [][]string      `json:"data"`
}

// Stream implements StreamSource. A single connection carries all symbol
// subscriptions. The read loop enforces a deadline refreshed before each
// read, with a text ping keepalive; cancel the context to stop.
func (s *OKXSource) Stream(ctx context.Context, symbols []string, timeframe string) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		channel, err := okxCandleChannel(timeframe)
		if err != nil {
			yield(types.Candle{}, err)

			return
		}

		conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
		if err != nil {
			yield(types.Candle{}, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to dial %s", s.endpoint))

			return
		}
		defer conn.Close()

		sub := okxSubscribeRequest{Op: "subscribe"}
		for _, symbol := range symbols {
			sub.Args = append(sub.Args, okxSubscribeArg{Channel: channel, InstID: symbol})
		}

		_ = conn.SetWriteDeadline(time.Now().Add(okxWriteTimeout))
		if err := conn.WriteJSON(sub); err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to subscribe", err))

			return
		}

		// close the connection when the context dies so ReadMessage unblocks
		done := make(chan struct{})
		defer close(done)

		go func() {
			ticker := time.NewTicker(okxPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					_ = conn.Close()

					return
				case <-done:
					return
				case <-ticker.C:
					// OKX keepalive is a text ping, not a control frame
					_ = conn.SetWriteDeadline(time.Now().Add(okxWriteTimeout))
					_ = conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(okxReadTimeout))

			_, payload, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				yield(types.Candle{}, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "okx read failed", err))

				return
			}

			if string(payload) == "pong" {
				continue
			}

			candles, err := parseOKXPush(timeframe, payload)
			if err != nil {
				if !yield(types.Candle{}, err) {
					return
				}

				continue
			}

			for _, candle := range candles {
				if !yield(candle, nil) {
					return
				}
			}
		}
	}
}

// okxCandleChannel maps interval notation to the OKX channel name. OKX
// upper-cases units above minutes: candle1m but candle1H, candle1D.
func okxCandleChannel(timeframe string) (string, error) {
	if len(timeframe) < 2 {
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "invalid timeframe %q", timeframe)
	}

	unit := timeframe[len(timeframe)-1:]
	value := strings.TrimSuffix(timeframe, unit)

	if _, err := strconv.Atoi(value); err != nil {
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "invalid timeframe %q", timeframe)
	}

	switch unit {
	case "s", "m":
		return "candle" + value + unit, nil
	case "h", "d", "w":
		return "candle" + value + strings.ToUpper(unit), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported timeframe unit %q", unit)
	}
}

// parseOKXPush decodes one push frame into candles. Event frames
// (subscribe acks, errors) yield no candles; an error event fails the
// stream. Data rows are [ts, open, high, low, close, vol, volCcy,
// volCcyQuote, confirm].
func parseOKXPush(timeframe string, payload []byte) ([]types.Candle, error) {
	var push okxPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCandleParseFailed, "failed to decode okx frame", err)
	}

	if push.Event == "error" {
		return nil, errors.Newf(errors.ErrCodeDataSourceUnavailable, "okx error event: %s", push.Msg)
	}

	if push.Event != "" || len(push.Data) == 0 {
		return nil, nil
	}

	candles := make([]types.Candle, 0, len(push.Data))

	for _, row := range push.Data {
		if len(row) < 6 {
			return nil, errors.Newf(errors.ErrCodeCandleParseFailed, "short okx candle row: %d fields", len(row))
		}

		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad timestamp %q", row[0])
		}

		values := make([]float64, 5)
		for i := 0; i < 5; i++ {
			values[i], err = strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeCandleParseFailed, err, "bad candle field %q", row[i+1])
			}
		}

		confirmed := false
		if len(row) >= 9 {
			confirmed = row[8] == "1"
		}

		candles = append(candles, types.Candle{
			Symbol:    push.Arg.InstID,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
			Confirmed: confirmed,
		})
	}

	return candles, nil
}
