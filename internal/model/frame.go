package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Frame is a small columnar table: one time index column plus ordered
// float64 columns of equal length. Missing values are NaN.
//
// Methods that change shape return a new Frame; SetColumn is the only
// in-place mutation and is meant for building a frame up.
type Frame struct {
	index string
	dates []time.Time
	names []string
	cols  map[string][]float64
}

// NewFrame creates a frame with the given index column name and dates.
func NewFrame(index string, dates []time.Time) *Frame {
	d := make([]time.Time, len(dates))
	copy(d, dates)
	return &Frame{index: index, dates: d, cols: make(map[string][]float64)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.dates) }

// Index returns the name of the date column.
func (f *Frame) Index() string { return f.index }

// Dates returns the index values. The slice must not be modified.
func (f *Frame) Dates() []time.Time { return f.dates }

// Columns returns the float column names in order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether name is a float column.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the values of a float column. The slice must not be modified.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// SetColumn adds or replaces a float column.
func (f *Frame) SetColumn(name string, values []float64) error {
	if name == "" || name == f.index {
		return fmt.Errorf("invalid column name %q", name)
	}
	if len(values) != len(f.dates) {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), len(f.dates))
	}
	v := make([]float64, len(values))
	copy(v, values)
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = v
	return nil
}

func (f *Frame) mustSet(name string, values []float64) {
	if err := f.SetColumn(name, values); err != nil {
		panic(err)
	}
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.index, f.dates)
	for _, n := range f.names {
		out.mustSet(n, f.cols[n])
	}
	return out
}

// Drop returns a copy without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := NewFrame(f.index, f.dates)
	for _, n := range f.names {
		if !skip[n] {
			out.mustSet(n, f.cols[n])
		}
	}
	return out
}

// Rename returns a copy with columns renamed by mapping. The index column
// can be renamed too.
func (f *Frame) Rename(mapping map[string]string) *Frame {
	index := f.index
	if to, ok := mapping[index]; ok {
		index = to
	}
	out := NewFrame(index, f.dates)
	for _, n := range f.names {
		name := n
		if to, ok := mapping[n]; ok {
			name = to
		}
		out.mustSet(name, f.cols[n])
	}
	return out
}

// Slice returns rows [i, j) as a new frame.
func (f *Frame) Slice(i, j int) *Frame {
	if i < 0 {
		i = 0
	}
	if j > len(f.dates) {
		j = len(f.dates)
	}
	if i > j {
		i = j
	}
	out := NewFrame(f.index, f.dates[i:j])
	for _, n := range f.names {
		out.mustSet(n, f.cols[n][i:j])
	}
	return out
}

// Take returns the rows at the given positions, in that order.
func (f *Frame) Take(rows []int) *Frame {
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = f.dates[r]
	}
	out := NewFrame(f.index, dates)
	for _, n := range f.names {
		src := f.cols[n]
		col := make([]float64, len(rows))
		for i, r := range rows {
			col[i] = src[r]
		}
		out.mustSet(n, col)
	}
	return out
}

// Tail returns the last n rows.
func (f *Frame) Tail(n int) *Frame {
	return f.Slice(len(f.dates)-n, len(f.dates))
}

// FillNaN returns a copy with every NaN replaced by v.
func (f *Frame) FillNaN(v float64) *Frame {
	out := NewFrame(f.index, f.dates)
	for _, n := range f.names {
		src := f.cols[n]
		dst := make([]float64, len(src))
		for i, x := range src {
			if math.IsNaN(x) {
				x = v
			}
			dst[i] = x
		}
		out.mustSet(n, dst)
	}
	return out
}

// AppendRow returns a copy with one row added at the end. Columns missing
// from values are set to 0.
func (f *Frame) AppendRow(date time.Time, values map[string]float64) *Frame {
	out := NewFrame(f.index, append(append([]time.Time{}, f.dates...), date))
	for _, n := range f.names {
		col := make([]float64, 0, len(f.dates)+1)
		col = append(col, f.cols[n]...)
		out.mustSet(n, append(col, values[n]))
	}
	return out
}

// Row returns the values of row i keyed by column name.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.names))
	for _, n := range f.names {
		row[n] = f.cols[n][i]
	}
	return row
}

// String renders the frame as a plain text table, for logs and debugging.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(f.index)
	for _, n := range f.names {
		b.WriteString("\t")
		b.WriteString(n)
	}
	b.WriteString("\n")
	for i, d := range f.dates {
		b.WriteString(d.Format("2006-01-02"))
		for _, n := range f.names {
			fmt.Fprintf(&b, "\t%g", f.cols[n][i])
		}
		b.WriteString("\n")
	}
	return b.String()
}
