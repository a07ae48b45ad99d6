package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDates(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestFrame_SetColumnLengthMismatch(t *testing.T) {
	f := NewFrame("date", testDates(3))
	require.NoError(t, f.SetColumn("close", []float64{1, 2, 3}))
	assert.Error(t, f.SetColumn("open", []float64{1, 2}))
	assert.Error(t, f.SetColumn("date", []float64{1, 2, 3}))
	assert.Equal(t, []string{"close"}, f.Columns())
}

func TestFrame_DropRenameDoNotMutate(t *testing.T) {
	f := NewFrame("date", testDates(2))
	require.NoError(t, f.SetColumn("close", []float64{1, 2}))
	require.NoError(t, f.SetColumn("open", []float64{3, 4}))

	dropped := f.Drop("open", "missing")
	assert.Equal(t, []string{"close"}, dropped.Columns())
	assert.Equal(t, []string{"close", "open"}, f.Columns())

	renamed := f.Rename(map[string]string{"date": "ds", "close": "y"})
	assert.Equal(t, "ds", renamed.Index())
	assert.Equal(t, []string{"y", "open"}, renamed.Columns())
	assert.Equal(t, "date", f.Index())
}

func TestFrame_SliceTailAppend(t *testing.T) {
	f := NewFrame("date", testDates(4))
	require.NoError(t, f.SetColumn("close", []float64{1, 2, 3, 4}))

	head := f.Slice(0, f.Len()-1)
	assert.Equal(t, 3, head.Len())

	tail := f.Tail(1)
	require.Equal(t, 1, tail.Len())
	c, _ := tail.Column("close")
	assert.Equal(t, []float64{4}, c)

	next := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	appended := f.AppendRow(next, nil)
	require.Equal(t, 5, appended.Len())
	assert.Equal(t, next, appended.Dates()[4])
	c, _ = appended.Column("close")
	assert.Equal(t, 0.0, c[4])
	assert.Equal(t, 4, f.Len())
}

func TestFrame_FillNaN(t *testing.T) {
	f := NewFrame("date", testDates(3))
	require.NoError(t, f.SetColumn("x", []float64{math.NaN(), 1, math.NaN()}))
	filled := f.FillNaN(0)
	c, _ := filled.Column("x")
	assert.Equal(t, []float64{0, 1, 0}, c)
	orig, _ := f.Column("x")
	assert.True(t, math.IsNaN(orig[0]))
}

func TestBarsToFrame_ColumnOrder(t *testing.T) {
	bars := []Bar{{Date: testDates(1)[0], Open: 1, Close: 2, Volume: 3}}
	f := BarsToFrame(bars)
	assert.Equal(t, BarColumns, f.Columns())
	row := f.Row(0)
	assert.Equal(t, 1.0, row[ColOpen])
	assert.Equal(t, 2.0, row[ColClose])
	assert.Equal(t, 3.0, row[ColVolume])
}
