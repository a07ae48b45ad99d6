package recorder

import (
	"time"

	"NextClose/internal/model"
)

// FailureEvent records a run that stopped before producing a forecast.
type FailureEvent struct {
	RunID  string
	Ticker string
	Stage  string // last stage reached
	Error  string
	At     time.Time
}

// Recorder persists the forecast run log.
type Recorder interface {
	RecordForecast(fc *model.Forecast) error
	RecordFailure(evt *FailureEvent) error
	// Recent returns up to limit forecasts for ticker, newest first.
	Recent(ticker string, limit int) ([]model.Forecast, error)
	Close() error
}
