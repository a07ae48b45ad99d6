package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"NextClose/internal/collector"
	"NextClose/internal/model"
)

var (
	// ErrFetch marks a market-data download failure.
	ErrFetch = errors.New("market data fetch failed")
	// ErrEmptyWindow means no bar survived date coercion and window filtering.
	ErrEmptyWindow = errors.New("no bars in date window")
)

// DefaultStart is the first date of the history window.
var DefaultStart = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Option configures a Loader.
type Option func(*Loader)

// WithStart sets the first date of the window.
func WithStart(start time.Time) Option {
	return func(l *Loader) { l.start = model.Day(start) }
}

// WithClock sets the source of "today", the last date of the window.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// WithAdjust sets the adjustment flag passed to the fetcher.
func WithAdjust(adjust bool) Option {
	return func(l *Loader) { l.adjust = adjust }
}

// Loader builds the price bar table of one instrument, with a zeroed
// placeholder row for the next forecast date appended.
type Loader struct {
	fetcher collector.Fetcher
	ticker  string
	start   time.Time
	now     func() time.Time
	adjust  bool
}

// NewLoader creates a Loader for ticker.
func NewLoader(fetcher collector.Fetcher, ticker string, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		ticker:  ticker,
		start:   DefaultStart,
		now:     time.Now,
		adjust:  true,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Ticker returns the instrument identifier.
func (l *Loader) Ticker() string { return l.ticker }

// Build fetches and filters the history and appends the placeholder row.
// Failures are logged and reported as ok=false; no table is returned.
func (l *Loader) Build(ctx context.Context) (*model.Frame, bool) {
	table, err := l.build(ctx)
	if err != nil {
		log.Error().Err(err).Str("ticker", l.ticker).Str("stage", "dataset").Msg("dataset build failed")
		return nil, false
	}
	return table, true
}

func (l *Loader) build(ctx context.Context) (*model.Frame, error) {
	raw, err := l.fetcher.Download(ctx, []string{l.ticker}, l.adjust)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, l.fetcher.Name(), err)
	}
	history, ok := raw[l.ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s returned no series for %q", ErrFetch, l.fetcher.Name(), l.ticker)
	}

	end := model.Day(l.now())
	bars, dropped := normalize(history, l.start, end)
	if dropped > 0 {
		log.Debug().Str("ticker", l.ticker).Int("dropped", dropped).Msg("rows with unreadable dates dropped")
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrEmptyWindow, l.start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	present := bars[len(bars)-1].Date
	forecastDate := NextForecastDate(present)
	log.Info().
		Str("ticker", l.ticker).
		Str("present_date", present.Format("2006-01-02")).
		Str("forecast_date", forecastDate.Format("2006-01-02")).
		Msg("forecast date resolved")

	return model.BarsToFrame(bars).AppendRow(forecastDate, nil), nil
}

// normalize parses dates, drops unreadable ones, keeps [start, end], sorts
// and collapses duplicate dates with the last occurrence winning.
func normalize(history []model.RawBar, start, end time.Time) ([]model.Bar, int) {
	bars := make([]model.Bar, 0, len(history))
	dropped := 0
	for _, r := range history {
		d, ok := ParseDate(r.Date)
		if !ok {
			dropped++
			continue
		}
		if d.Before(start) || d.After(end) {
			continue
		}
		bars = append(bars, model.Bar{
			Date:      d,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			AdjClose:  r.AdjClose,
			Value:     r.Value,
			Volume:    r.Volume,
			Count:     r.Count,
			Yesterday: r.Yesterday,
			Close:     r.Close,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out, dropped
}
