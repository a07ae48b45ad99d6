package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"NextClose/internal/model"
)

const dateLayout = "2006-01-02"

// SQLiteRecorder persists the run log to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecasts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT NOT NULL UNIQUE,
			timestamp     INTEGER NOT NULL,
			ticker        TEXT NOT NULL,
			present_date  TEXT NOT NULL,
			forecast_date TEXT NOT NULL,
			training_rows INTEGER,
			last_close    REAL,
			yhat          REAL,
			yhat_lower    REAL,
			yhat_upper    REAL,
			trend         REAL,
			yearly        REAL,
			weekly        REAL,
			regressors    REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_ticker_ts ON forecasts(ticker, timestamp)`,

		`CREATE TABLE IF NOT EXISTS failures (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT,
			timestamp INTEGER NOT NULL,
			ticker    TEXT NOT NULL,
			stage     TEXT,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_ts ON failures(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordForecast(fc *model.Forecast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := fc.Prediction
	_, err := r.db.Exec(`INSERT INTO forecasts
		(run_id, timestamp, ticker, present_date, forecast_date, training_rows, last_close,
		 yhat, yhat_lower, yhat_upper, trend, yearly, weekly, regressors)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		fc.RunID, stamp(fc.CreatedAt), fc.Ticker,
		fc.PresentDate.Format(dateLayout), fc.ForecastDate.Format(dateLayout),
		fc.TrainingRows, fc.LastClose,
		p.YHat, p.YHatLower, p.YHatUpper, p.Trend, p.Yearly, p.Weekly,
		p.ExtraRegressorsAdditive+p.ExtraRegressorsMultiplicative,
	)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordFailure(evt *FailureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO failures
		(run_id, timestamp, ticker, stage, error)
		VALUES (?,?,?,?,?)`,
		evt.RunID, stamp(evt.At), evt.Ticker, evt.Stage, evt.Error,
	)
	if err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Recent(ticker string, limit int) ([]model.Forecast, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT run_id, timestamp, present_date, forecast_date, training_rows,
		last_close, yhat, yhat_lower, yhat_upper, trend, yearly, weekly, regressors
		FROM forecasts WHERE ticker = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	var out []model.Forecast
	for rows.Next() {
		var (
			fc               model.Forecast
			ts               int64
			present, forDate string
		)
		p := &fc.Prediction
		if err := rows.Scan(&fc.RunID, &ts, &present, &forDate, &fc.TrainingRows, &fc.LastClose,
			&p.YHat, &p.YHatLower, &p.YHatUpper, &p.Trend, &p.Yearly, &p.Weekly,
			&p.ExtraRegressorsAdditive); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		fc.Ticker = ticker
		fc.CreatedAt = time.Unix(ts, 0).UTC()
		if fc.PresentDate, err = time.Parse(dateLayout, present); err != nil {
			return nil, fmt.Errorf("parse present_date: %w", err)
		}
		if fc.ForecastDate, err = time.Parse(dateLayout, forDate); err != nil {
			return nil, fmt.Errorf("parse forecast_date: %w", err)
		}
		p.DS = fc.ForecastDate
		p.TrendLower, p.TrendUpper = p.Trend, p.Trend
		out = append(out, fc)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func stamp(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Unix()
}
