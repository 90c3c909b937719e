package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// PolygonSource downloads historical aggregates from Polygon.io. It
// implements Downloader.
type PolygonSource struct {
	client       *polygon.Client
	writer       CandleWriter
	showProgress bool
}

// NewPolygonSource creates a Polygon-backed downloader. An API key is
// required.
func NewPolygonSource(apiKey string, writer CandleWriter, showProgress bool) (*PolygonSource, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon api key is required")
	}

	return &PolygonSource{
		client:       polygon.New(apiKey),
		writer:       writer,
		showProgress: showProgress,
	}, nil
}

// Download implements Downloader. Polygon serves at most 50000 aggregates
// per page; the iterator handles pagination internally.
func (s *PolygonSource) Download(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time, onProgress OnProgress) (int, error) {
	if s.writer == nil {
		return 0, errors.New(errors.ErrCodeInvalidConfiguration, "no candle writer configured")
	}

	multiplier, timespan, err := parseTimeframe(timeframe)
	if err != nil {
		return 0, err
	}

	if err := s.writer.Initialize(); err != nil {
		return 0, err
	}

	totalDays := int(end.Sub(start).Hours()/24) + 1

	var bar *progressbar.ProgressBar
	if s.showProgress {
		bar = progressbar.NewOptions(totalDays,
			progressbar.OptionSetDescription(fmt.Sprintf("downloading %s", symbol)),
			progressbar.OptionShowCount(),
		)
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := s.client.ListAggs(ctx, params)

	written := 0
	lastDay := time.Time{}

	for iter.Next() {
		agg := iter.Item()
		ts := time.Time(agg.Timestamp)

		candle := types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts.UnixMilli(),
			Open:      agg.Open,
			High:      agg.High,
			Low:       agg.Low,
			Close:     agg.Close,
			Volume:    agg.Volume,
			Confirmed: true,
		}

		if err := s.writer.WriteCandles([]types.Candle{candle}); err != nil {
			return written, err
		}

		written++

		day := ts.Truncate(24 * time.Hour)
		if !day.Equal(lastDay) {
			lastDay = day

			if bar != nil {
				_ = bar.Add(1)
			}

			if onProgress != nil {
				onProgress(float64(day.Sub(start).Hours()/24), float64(totalDays), fmt.Sprintf("downloading %s", symbol))
			}
		}
	}

	if err := iter.Err(); err != nil {
		return written, errors.Wrapf(errors.ErrCodeDownloadFailed, err, "failed to download %s aggregates", symbol)
	}

	if err := s.writer.Finalize(); err != nil {
		return written, err
	}

	return written, nil
}

// parseTimeframe converts interval notation like "1m", "15m", "4h" or "1d"
// into a Polygon multiplier and timespan.
func parseTimeframe(timeframe string) (int, models.Timespan, error) {
	if len(timeframe) < 2 {
		return 0, "", errors.Newf(errors.ErrCodeInvalidParameter, "invalid timeframe %q", timeframe)
	}

	unit := timeframe[len(timeframe)-1:]
	multiplier, err := strconv.Atoi(strings.TrimSuffix(timeframe, unit))
	if err != nil || multiplier < 1 {
		return 0, "", errors.Newf(errors.ErrCodeInvalidParameter, "invalid timeframe %q", timeframe)
	}

	switch unit {
	case "m":
		return multiplier, models.Minute, nil
	case "h":
		return multiplier, models.Hour, nil
	case "d":
		return multiplier, models.Day, nil
	case "w":
		return multiplier, models.Week, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported timeframe unit %q", unit)
	}
}
