// Package server exposes the engine's runtime state over HTTP: health,
// Prometheus metrics, cached pipeline entries and open positions.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-signal/internal/cache"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Server serves the status API.
type Server struct {
	cache  *cache.Cache
	logger *logger.Logger
	srv    *http.Server
}

// New builds the status server on addr. gatherer backs /metrics; pass the
// registry the engine metrics were registered on.
func New(addr string, c *cache.Cache, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Server{
		cache:  c,
		logger: log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/cache", s.handleCacheKeys).Methods(http.MethodGet)
	router.HandleFunc("/cache/{symbol}/{timeframe}/{strategy}", s.handleCacheEntry).Methods(http.MethodGet)
	router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.srv.Addr))

		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheKeys(w http.ResponseWriter, _ *http.Request) {
	names := s.cache.Keys()
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]any{"keys": names})
}

// cacheEntryResponse is the wire shape for one cached key.
type cacheEntryResponse struct {
	Key        string             `json:"key"`
	Timestamp  int64              `json:"timestamp"`
	Candles    int                `json:"candles"`
	LastCandle *types.Candle      `json:"last_candle,omitempty"`
	State      types.TradingState `json:"state"`
}

func (s *Server) handleCacheEntry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := cache.Key{
		Symbol:    vars["symbol"],
		Timeframe: vars["timeframe"],
		Strategy:  types.StrategyType(vars["strategy"]),
	}

	entry, err := s.cache.Snapshot(key)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeCacheKeyNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

			return
		}

		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

		return
	}

	resp := cacheEntryResponse{
		Key:       key.String(),
		Timestamp: entry.Timestamp,
		Candles:   len(entry.Candles),
	}

	if last, ok := entry.LastCandle(); ok {
		resp.LastCandle = &last
	}

	if entry.State != nil {
		resp.State = *entry.State
	}

	writeJSON(w, http.StatusOK, resp)
}

// positionResponse is one open position with its key context.
type positionResponse struct {
	Key      string              `json:"key"`
	Position types.TradePosition `json:"position"`
	Pending  *types.SignalResult `json:"pending_signal,omitempty"`
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	var positions []positionResponse

	s.cache.ForEach(func(key string, entry *cache.Entry) {
		if entry.State == nil || entry.State.Position == nil {
			return
		}

		positions = append(positions, positionResponse{
			Key:      key,
			Position: *entry.State.Position,
			Pending:  entry.State.PendingSignal,
		})
	})

	sort.Slice(positions, func(i, j int) bool { return positions[i].Key < positions[j].Key })

	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
