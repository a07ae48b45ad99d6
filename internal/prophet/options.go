package prophet

import (
	"errors"
	"fmt"
	"strings"
)

// SeasonalityMode says how seasonal and regressor terms combine with the trend.
type SeasonalityMode string

const (
	Additive       SeasonalityMode = "additive"
	Multiplicative SeasonalityMode = "multiplicative"
)

// ParseMode validates a mode name.
func ParseMode(s string) (SeasonalityMode, error) {
	switch m := SeasonalityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case Additive, Multiplicative:
		return m, nil
	}
	return "", fmt.Errorf("seasonality mode must be %q or %q, got %q", Additive, Multiplicative, s)
}

// Options configures a Model. Start from DefaultOptions.
type Options struct {
	YearlySeasonality     bool
	WeeklySeasonality     bool
	SeasonalityMode       SeasonalityMode
	NChangepoints         int
	ChangepointRange      float64
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	IntervalWidth         float64
	YearlyOrder           int
	WeeklyOrder           int
}

// DefaultOptions returns yearly and weekly seasonality on, additive mode,
// 25 changepoints over the first 80% of history.
func DefaultOptions() Options {
	return Options{
		YearlySeasonality:     true,
		WeeklySeasonality:     true,
		SeasonalityMode:       Additive,
		NChangepoints:         25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		IntervalWidth:         0.8,
		YearlyOrder:           10,
		WeeklyOrder:           3,
	}
}

func (o Options) validate() error {
	if _, err := ParseMode(string(o.SeasonalityMode)); err != nil {
		return err
	}
	switch {
	case o.NChangepoints < 0:
		return errors.New("changepoints must be >= 0")
	case o.ChangepointRange <= 0 || o.ChangepointRange > 1:
		return errors.New("changepoint range must be in (0, 1]")
	case o.ChangepointPriorScale <= 0:
		return errors.New("changepoint prior scale must be positive")
	case o.SeasonalityPriorScale <= 0:
		return errors.New("seasonality prior scale must be positive")
	case o.IntervalWidth <= 0 || o.IntervalWidth >= 1:
		return errors.New("interval width must be in (0, 1)")
	case o.YearlySeasonality && o.YearlyOrder <= 0:
		return errors.New("yearly fourier order must be positive")
	case o.WeeklySeasonality && o.WeeklyOrder <= 0:
		return errors.New("weekly fourier order must be positive")
	}
	return nil
}

type regressor struct {
	name        string
	priorScale  float64
	standardize *bool // nil means auto
	mode        SeasonalityMode
	mu          float64
	std         float64
}

// RegressorOption configures one extra regressor.
type RegressorOption func(*regressor)

// WithPriorScale sets the regressor's prior scale. Default: the
// seasonality prior scale.
func WithPriorScale(scale float64) RegressorOption {
	return func(r *regressor) { r.priorScale = scale }
}

// WithStandardize forces standardization on or off. Default is auto:
// binary and constant columns are left as they are.
func WithStandardize(on bool) RegressorOption {
	return func(r *regressor) { r.standardize = &on }
}

// WithMode sets the regressor's mode. Default: the model's seasonality mode.
func WithMode(mode SeasonalityMode) RegressorOption {
	return func(r *regressor) { r.mode = mode }
}

var reservedNames = func() map[string]bool {
	base := []string{
		"trend", "additive_terms", "daily", "weekly", "yearly", "holidays", "zeros",
		"extra_regressors_additive", "yhat", "extra_regressors_multiplicative",
		"multiplicative_terms",
	}
	m := map[string]bool{"ds": true, "y": true, "cap": true, "floor": true, "y_scaled": true, "cap_scaled": true}
	for _, n := range base {
		m[n] = true
		m[n+"_lower"] = true
		m[n+"_upper"] = true
	}
	return m
}()

func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("regressor name is empty")
	case strings.Contains(name, "_delim_"):
		return fmt.Errorf("name %q cannot contain \"_delim_\"", name)
	case reservedNames[name]:
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}
