package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
	"github.com/rxtech-lab/argo-signal/pkg/logger"
)

// DuckDBStore persists candles in a DuckDB database and serves historical
// loads for warm-up and backtests. It implements both HistoricalSource and
// CandleWriter.
type DuckDBStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	tx   *sql.Tx
	stmt *sql.Stmt
}

// NewDuckDBStore opens (or creates) the DuckDB database at path. Use
// ":memory:" for an ephemeral store.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to open duckdb at %s", path)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &DuckDBStore{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the candles table if it does not exist.
func (s *DuckDBStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to create candles table", err)
	}

	return nil
}

// ImportParquet exposes a previously exported Parquet file as the candles
// table, replacing any existing table of that name.
func (s *DuckDBStore) ImportParquet(path string) error {
	if _, err := s.db.Exec(`DROP VIEW IF EXISTS candles;`); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to drop existing view", err)
	}

	// squirrel has no CREATE VIEW support, raw SQL here
	query := fmt.Sprintf(`CREATE VIEW candles AS SELECT * FROM read_parquet('%s');`, path)
	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to import parquet %s", path)
	}

	return nil
}

// ExportParquet writes the candles table to a Parquet file at path.
func (s *DuckDBStore) ExportParquet(path string) error {
	query := fmt.Sprintf(`COPY candles TO '%s' (FORMAT PARQUET)`, path)
	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to export parquet to %s", path)
	}

	return nil
}

// WriteCandles inserts a batch of candles inside a single transaction that
// spans Initialize..Finalize. Only confirmed candles are persisted.
func (s *DuckDBStore) WriteCandles(candles []types.Candle) error {
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to begin transaction", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			_ = tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to prepare insert", err)
		}

		s.tx = tx
		s.stmt = stmt
	}

	for _, candle := range candles {
		if !candle.Confirmed {
			continue
		}

		_, err := s.stmt.Exec(
			candle.Symbol,
			candle.Timeframe,
			candle.Timestamp,
			candle.Open,
			candle.High,
			candle.Low,
			candle.Close,
			candle.Volume,
		)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to insert candle %s@%d", candle.Symbol, candle.Timestamp)
		}
	}

	return nil
}

// Finalize commits the open write transaction.
func (s *DuckDBStore) Finalize() error {
	if s.tx == nil {
		return nil
	}

	if s.stmt != nil {
		_ = s.stmt.Close()
		s.stmt = nil
	}

	if err := s.tx.Commit(); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to commit candle writes", err)
	}

	s.tx = nil

	return nil
}

// LoadCandles implements HistoricalSource. Zero start/end leave that bound
// open. Rows come back ordered by timestamp ascending and are marked
// Confirmed.
func (s *DuckDBStore) LoadCandles(ctx context.Context, symbol string, timeframe string, start time.Time, end time.Time) ([]types.Candle, error) {
	builder := s.sq.
		Select("symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume").
		From("candles").
		Where(squirrel.Eq{"symbol": symbol, "timeframe": timeframe}).
		OrderBy("timestamp ASC")

	if !start.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"timestamp": start.UnixMilli()})
	}

	if !end.IsZero() {
		builder = builder.Where(squirrel.LtOrEq{"timestamp": end.UnixMilli()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build candle query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "candle query failed", err)
	}
	defer rows.Close()

	var candles []types.Candle

	for rows.Next() {
		var c types.Candle
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCandleParseFailed, "failed to scan candle row", err)
		}

		c.Confirmed = true
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "candle row iteration failed", err)
	}

	s.logger.Debug("loaded candles",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("count", len(candles)),
	)

	return candles, nil
}

// Count returns the number of stored candles for symbol/timeframe.
func (s *DuckDBStore) Count(ctx context.Context, symbol string, timeframe string) (int, error) {
	query, args, err := s.sq.
		Select("COUNT(*)").
		From("candles").
		Where(squirrel.Eq{"symbol": symbol, "timeframe": timeframe}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "count query failed", err)
	}

	return count, nil
}

// Close rolls back any open transaction and closes the database.
func (s *DuckDBStore) Close() error {
	if s.stmt != nil {
		_ = s.stmt.Close()
		s.stmt = nil
	}

	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to close duckdb", err)
		}

		s.db = nil
	}

	return nil
}
