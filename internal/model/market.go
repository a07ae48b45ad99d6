package model

import "time"

// Field names of the price bar table, in column order.
const (
	ColDate      = "date"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColAdjClose  = "adjClose"
	ColValue     = "value"
	ColVolume    = "volume"
	ColCount     = "count"
	ColYesterday = "yesterday"
	ColClose     = "close"
)

// BarColumns lists the numeric columns of a price bar table.
var BarColumns = []string{
	ColOpen, ColHigh, ColLow, ColAdjClose, ColValue, ColVolume, ColCount, ColYesterday, ColClose,
}

// RawBar is a daily bar as returned by a market-data source. Date is left
// unparsed; the dataset loader owns date coercion.
type RawBar struct {
	Date      string  `json:"date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	AdjClose  float64 `json:"adjClose"`
	Value     float64 `json:"value"`
	Volume    float64 `json:"volume"`
	Count     float64 `json:"count"`
	Yesterday float64 `json:"yesterday"`
	Close     float64 `json:"close"`
}

// Bar is a RawBar with a parsed calendar date.
type Bar struct {
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	AdjClose  float64
	Value     float64
	Volume    float64
	Count     float64
	Yesterday float64
	Close     float64
}

// Field returns the value of the named numeric column.
func (b Bar) Field(name string) float64 {
	switch name {
	case ColOpen:
		return b.Open
	case ColHigh:
		return b.High
	case ColLow:
		return b.Low
	case ColAdjClose:
		return b.AdjClose
	case ColValue:
		return b.Value
	case ColVolume:
		return b.Volume
	case ColCount:
		return b.Count
	case ColYesterday:
		return b.Yesterday
	case ColClose:
		return b.Close
	}
	return 0
}

// BarsToFrame lays bars out as a price bar table indexed by date.
func BarsToFrame(bars []Bar) *Frame {
	dates := make([]time.Time, len(bars))
	for i, b := range bars {
		dates[i] = b.Date
	}
	f := NewFrame(ColDate, dates)
	for _, name := range BarColumns {
		col := make([]float64, len(bars))
		for i, b := range bars {
			col[i] = b.Field(name)
		}
		f.mustSet(name, col)
	}
	return f
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
