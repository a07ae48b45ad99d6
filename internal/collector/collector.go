package collector

import (
	"context"
	"math"
	"time"

	"NextClose/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Bars  map[string][]model.RawBar
	Err   error
	Calls int

	// Generated series, used for symbols missing from Bars when Price > 0.
	Price float64
	Days  int
	End   time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Download(_ context.Context, symbols []string, _ bool) (map[string][]model.RawBar, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string][]model.RawBar, len(symbols))
	for _, s := range symbols {
		if bars, ok := m.Bars[s]; ok {
			out[s] = bars
			continue
		}
		if m.Price > 0 {
			out[s] = GenerateBars(m.Price, m.Days, m.End)
		}
	}
	return out, nil
}

// GenerateBars produces count weekday bars ending on or before end, with a
// gentle drift and a weekly wave so models have something to fit.
func GenerateBars(basePrice float64, count int, end time.Time) []model.RawBar {
	if end.IsZero() {
		end = time.Now()
	}
	dates := make([]time.Time, 0, count)
	for d := model.Day(end); len(dates) < count; d = d.AddDate(0, 0, -1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}
	bars := make([]model.RawBar, count)
	prev := 0.0
	for i := 0; i < count; i++ {
		d := dates[count-1-i]
		p := basePrice * (1 + float64(i)*0.001 + 0.01*math.Sin(2*math.Pi*float64(d.Weekday())/7))
		bars[i] = model.RawBar{
			Date:      d.Format("2006-01-02"),
			Open:      p * 0.999,
			High:      p * 1.005,
			Low:       p * 0.995,
			Close:     p,
			AdjClose:  p,
			Volume:    1000000,
			Value:     p * 1000000,
			Count:     1200,
			Yesterday: prev,
		}
		prev = p
	}
	return bars
}
