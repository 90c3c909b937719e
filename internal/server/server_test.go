package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-signal/internal/cache"
	"github.com/rxtech-lab/argo-signal/internal/metrics"
	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/types"
)

type ServerTestSuite struct {
	suite.Suite
	cache  *cache.Cache
	server *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.cache = cache.New()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.CandlesTotal.WithLabelValues("BTCUSDT_1m_vegas").Inc()

	suite.server = New(":0", suite.cache, registry, nil)
}

func (suite *ServerTestSuite) seedEntry(symbol string, withPosition bool) cache.Key {
	key := cache.Key{Symbol: symbol, Timeframe: "1m", Strategy: types.StrategyTypeVegas}

	pipe, err := pipeline.New(pipeline.Config{Volume: &pipeline.VolumeConfig{Period: 5}})
	suite.Require().NoError(err)

	state := types.NewTradingState(100)
	if withPosition {
		state.Position = &types.TradePosition{
			Side:       types.TradeSideLong,
			Quantity:   1,
			EntryPrice: 100,
		}
	}

	candles := []types.Candle{{
		Symbol: symbol, Timeframe: "1m", Timestamp: 60_000,
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10, Confirmed: true,
	}}
	suite.cache.UpdateBoth(key, candles, pipe, state, 60_000)

	return key
}

func (suite *ServerTestSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(rec, req)

	return rec
}

func (suite *ServerTestSuite) TestHealthz() {
	rec := suite.get("/healthz")
	suite.Equal(http.StatusOK, rec.Code)
	suite.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (suite *ServerTestSuite) TestMetricsExposed() {
	rec := suite.get("/metrics")
	suite.Equal(http.StatusOK, rec.Code)
	suite.Contains(rec.Body.String(), "argosignal_candles_total")
}

func (suite *ServerTestSuite) TestCacheKeys() {
	suite.seedEntry("BTCUSDT", false)
	suite.seedEntry("ETHUSDT", false)

	rec := suite.get("/cache")
	suite.Equal(http.StatusOK, rec.Code)

	var body struct {
		Keys []string `json:"keys"`
	}
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Equal([]string{"BTCUSDT_1m_vegas", "ETHUSDT_1m_vegas"}, body.Keys)
}

func (suite *ServerTestSuite) TestCacheEntry() {
	suite.seedEntry("BTCUSDT", false)

	rec := suite.get("/cache/BTCUSDT/1m/vegas")
	suite.Equal(http.StatusOK, rec.Code)

	var body cacheEntryResponse
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Equal("BTCUSDT_1m_vegas", body.Key)
	suite.Equal(1, body.Candles)
	suite.Require().NotNil(body.LastCandle)
	suite.Equal(int64(60_000), body.LastCandle.Timestamp)
	suite.InDelta(100.0, body.State.Funds, 1e-9)
}

func (suite *ServerTestSuite) TestCacheEntryNotFound() {
	rec := suite.get("/cache/UNKNOWN/1m/vegas")
	suite.Equal(http.StatusNotFound, rec.Code)
}

func (suite *ServerTestSuite) TestPositions() {
	suite.seedEntry("BTCUSDT", true)
	suite.seedEntry("ETHUSDT", false)

	rec := suite.get("/positions")
	suite.Equal(http.StatusOK, rec.Code)

	var body struct {
		Positions []positionResponse `json:"positions"`
	}
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	suite.Require().Len(body.Positions, 1)
	suite.Equal("BTCUSDT_1m_vegas", body.Positions[0].Key)
	suite.Equal(types.TradeSideLong, body.Positions[0].Position.Side)
}
