package calculator

import (
	"errors"
	"fmt"
	"math"

	"NextClose/internal/model"
)

// LagBases are the base columns lagged by the feature builder, with the
// prefix used in the lag column names.
var LagBases = []struct {
	Column string
	Prefix string
}{
	{model.ColClose, "Close"},
	{model.ColOpen, "Open"},
	{model.ColHigh, "High"},
	{model.ColLow, "Low"},
}

// Shift returns values moved down by k rows. The first k entries are NaN.
func Shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i-k < 0 || i-k >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}

// LagName returns the column name for the k-period lag of a base prefix.
func LagName(prefix string, k int) string {
	return fmt.Sprintf("%s_lag_%d", prefix, k)
}

// AddLags returns a copy of f with lag columns 1..periods for every
// LagBases column, ordered by period then base.
func AddLags(f *model.Frame, periods int) (*model.Frame, error) {
	if periods <= 0 {
		return nil, errors.New("periods must be positive")
	}
	out := f.Clone()
	for k := 1; k <= periods; k++ {
		for _, b := range LagBases {
			base, ok := f.Column(b.Column)
			if !ok {
				return nil, fmt.Errorf("missing base column %q", b.Column)
			}
			if err := out.SetColumn(LagName(b.Prefix, k), Shift(base, k)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
