// Package prophet fits a decomposable time-series model: a piecewise-linear
// trend with automatic changepoints, Fourier yearly and weekly seasonality,
// and extra regressors. Coefficients are the MAP estimate under Gaussian
// priors, computed as a ridge regression on the scaled data.
package prophet

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"NextClose/internal/model"
)

var (
	ErrNotFitted     = errors.New("model has not been fit")
	ErrAlreadyFitted = errors.New("model can only be fit once")
)

const (
	indexName    = "ds"
	targetName   = "y"
	yearlyPeriod = 365.25
	weeklyPeriod = 7.0
	trendPrior   = 5.0
	noisePasses  = 3
)

const (
	groupYearly     = "yearly"
	groupWeekly     = "weekly"
	groupRegressors = "extra_regressors"
)

// column is one non-trend design column.
type column struct {
	name  string
	group string
	mode  SeasonalityMode
	prior float64
	reg   *regressor
	// Fourier term, unset for regressors.
	period float64
	order  int
	cos    bool
}

// Model is a single-use forecaster: configure, add regressors, Fit once,
// then Predict.
type Model struct {
	opts       Options
	regressors []*regressor
	byName     map[string]*regressor

	fitted       bool
	start        time.Time
	tScale       float64
	yScale       float64
	changepoints []float64
	columns      []column
	beta         []float64
	sigma        float64
	z            float64
}

// New validates opts and returns an unfitted model.
func New(opts Options) (*Model, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("prophet options: %w", err)
	}
	return &Model{opts: opts, byName: make(map[string]*regressor)}, nil
}

// AddRegressor registers a column of the history and future frames as an
// extra linear regressor. Re-adding a name replaces its settings.
func (m *Model) AddRegressor(name string, opts ...RegressorOption) error {
	if m.fitted {
		return errors.New("regressors must be added prior to model fitting")
	}
	if err := validateName(name); err != nil {
		return err
	}
	r := &regressor{name: name, priorScale: m.opts.SeasonalityPriorScale, mode: m.opts.SeasonalityMode}
	for _, o := range opts {
		o(r)
	}
	if r.priorScale <= 0 {
		return fmt.Errorf("regressor %q: prior scale must be positive", name)
	}
	if _, err := ParseMode(string(r.mode)); err != nil {
		return fmt.Errorf("regressor %q: %w", name, err)
	}
	if old, ok := m.byName[name]; ok {
		*old = *r
		return nil
	}
	m.byName[name] = r
	m.regressors = append(m.regressors, r)
	return nil
}

// Regressors returns the registered regressor names in order.
func (m *Model) Regressors() []string {
	out := make([]string, len(m.regressors))
	for i, r := range m.regressors {
		out[i] = r.name
	}
	return out
}

// Fitted reports whether Fit has succeeded.
func (m *Model) Fitted() bool { return m.fitted }

// Sigma returns the residual noise scale in target units.
func (m *Model) Sigma() float64 { return m.sigma * m.yScale }

// Fit estimates the model on history, which must be indexed by "ds" and
// carry the target "y" plus every registered regressor.
func (m *Model) Fit(history *model.Frame) error {
	if m.fitted {
		return ErrAlreadyFitted
	}
	if history.Index() != indexName {
		return fmt.Errorf("history must be indexed by %q, got %q", indexName, history.Index())
	}
	if _, ok := history.Column(targetName); !ok {
		return fmt.Errorf("history has no %q column", targetName)
	}
	if history.Len() < 2 {
		return errors.New("history has less than 2 rows")
	}
	history = sortByDate(history)
	y, _ := history.Column(targetName)
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("found non-finite value in %q", targetName)
		}
	}

	dates := history.Dates()
	m.start = dates[0]
	m.tScale = dates[len(dates)-1].Sub(m.start).Hours() / 24
	if m.tScale <= 0 {
		return errors.New("history spans a single date")
	}
	m.yScale = 0
	for _, v := range y {
		m.yScale = math.Max(m.yScale, math.Abs(v))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}
	ys := make([]float64, len(y))
	for i, v := range y {
		ys[i] = v / m.yScale
	}

	if err := m.initRegressors(history); err != nil {
		return err
	}
	t := m.scaledTime(dates)
	m.changepoints = changepoints(t, m.opts.NChangepoints, m.opts.ChangepointRange)
	m.columns = m.buildColumns()

	vals, err := m.columnValues(history)
	if err != nil {
		return err
	}
	scales := m.priorScales()

	beta, sigma, err := fitRidge(m.design(t, vals, nil), ys, scales)
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	if m.hasMultiplicative() {
		// Second stage: multiplicative columns act on the first-stage trend.
		nT := m.trendWidth()
		trend := make([]float64, len(t))
		for i, ti := range t {
			trend[i] = dot(m.trendRow(ti), beta[:nT])
		}
		beta, sigma, err = fitRidge(m.design(t, vals, trend), ys, scales)
		if err != nil {
			return fmt.Errorf("fit multiplicative stage: %w", err)
		}
	}

	m.beta = beta
	m.sigma = sigma
	m.z = distuv.UnitNormal.Quantile(0.5 + m.opts.IntervalWidth/2)
	m.fitted = true
	return nil
}

// Predict returns one prediction per row of future, which must be indexed
// by "ds" and carry every registered regressor. A "y" column is ignored.
func (m *Model) Predict(future *model.Frame) ([]model.Prediction, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if future.Index() != indexName {
		return nil, fmt.Errorf("future must be indexed by %q, got %q", indexName, future.Index())
	}
	vals, err := m.columnValues(future)
	if err != nil {
		return nil, err
	}
	dates := future.Dates()
	t := m.scaledTime(dates)
	nT := m.trendWidth()
	half := m.z * m.sigma * m.yScale

	out := make([]model.Prediction, len(dates))
	for i, ti := range t {
		trend := dot(m.trendRow(ti), m.beta[:nT]) * m.yScale
		p := model.Prediction{DS: dates[i], Trend: trend, TrendLower: trend, TrendUpper: trend}
		for j, c := range m.columns {
			eff := vals[j][i] * m.beta[nT+j]
			if c.mode == Additive {
				eff *= m.yScale
				p.AdditiveTerms += eff
			} else {
				p.MultiplicativeTerms += eff
			}
			switch {
			case c.group == groupYearly:
				p.Yearly += eff
			case c.group == groupWeekly:
				p.Weekly += eff
			case c.mode == Additive:
				p.ExtraRegressorsAdditive += eff
			default:
				p.ExtraRegressorsMultiplicative += eff
			}
		}
		p.YHat = trend*(1+p.MultiplicativeTerms) + p.AdditiveTerms
		p.YHatLower = p.YHat - half
		p.YHatUpper = p.YHat + half
		out[i] = p
	}
	return out, nil
}

func sortByDate(f *model.Frame) *model.Frame {
	dates := f.Dates()
	idx := make([]int, len(dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dates[idx[a]].Before(dates[idx[b]]) })
	return f.Take(idx)
}

func (m *Model) initRegressors(history *model.Frame) error {
	for _, r := range m.regressors {
		x, ok := history.Column(r.name)
		if !ok {
			return fmt.Errorf("regressor %q missing from history", r.name)
		}
		standardize := true
		if r.standardize != nil {
			standardize = *r.standardize
		} else {
			uniq := make(map[float64]bool)
			for _, v := range x {
				uniq[v] = true
				if len(uniq) > 2 {
					break
				}
			}
			if len(uniq) < 2 || (len(uniq) == 2 && uniq[0] && uniq[1]) {
				standardize = false
			}
		}
		r.mu, r.std = 0, 1
		if standardize {
			mu, std := stat.MeanStdDev(x, nil)
			if std == 0 || math.IsNaN(std) {
				std = 1
			}
			r.mu, r.std = mu, std
		}
	}
	return nil
}

func (m *Model) buildColumns() []column {
	var cols []column
	fourier := func(group string, period float64, order int) {
		for k := 1; k <= order; k++ {
			for _, cos := range []bool{false, true} {
				cols = append(cols, column{
					name:   fmt.Sprintf("%s_delim_%d", group, len(cols)+1),
					group:  group,
					mode:   m.opts.SeasonalityMode,
					prior:  m.opts.SeasonalityPriorScale,
					period: period,
					order:  k,
					cos:    cos,
				})
			}
		}
	}
	if m.opts.YearlySeasonality {
		fourier(groupYearly, yearlyPeriod, m.opts.YearlyOrder)
	}
	if m.opts.WeeklySeasonality {
		fourier(groupWeekly, weeklyPeriod, m.opts.WeeklyOrder)
	}
	for _, r := range m.regressors {
		cols = append(cols, column{name: r.name, group: groupRegressors, mode: r.mode, prior: r.priorScale, reg: r})
	}
	return cols
}

// columnValues evaluates every design column on the rows of f.
func (m *Model) columnValues(f *model.Frame) ([][]float64, error) {
	dates := f.Dates()
	vals := make([][]float64, len(m.columns))
	for j, c := range m.columns {
		v := make([]float64, len(dates))
		if c.reg != nil {
			x, ok := f.Column(c.name)
			if !ok {
				return nil, fmt.Errorf("regressor %q missing from dataframe", c.name)
			}
			for i, xi := range x {
				if math.IsNaN(xi) {
					return nil, fmt.Errorf("found NaN in column %q", c.name)
				}
				v[i] = (xi - c.reg.mu) / c.reg.std
			}
		} else {
			for i, d := range dates {
				days := float64(d.Unix()) / 86400
				arg := 2 * math.Pi * float64(c.order) * days / c.period
				if c.cos {
					v[i] = math.Cos(arg)
				} else {
					v[i] = math.Sin(arg)
				}
			}
		}
		vals[j] = v
	}
	return vals, nil
}

func (m *Model) priorScales() []float64 {
	scales := []float64{trendPrior, trendPrior}
	for range m.changepoints {
		scales = append(scales, m.opts.ChangepointPriorScale)
	}
	for _, c := range m.columns {
		scales = append(scales, c.prior)
	}
	return scales
}

func (m *Model) hasMultiplicative() bool {
	for _, c := range m.columns {
		if c.mode == Multiplicative {
			return true
		}
	}
	return false
}

func (m *Model) trendWidth() int { return 2 + len(m.changepoints) }

func (m *Model) scaledTime(dates []time.Time) []float64 {
	t := make([]float64, len(dates))
	for i, d := range dates {
		t[i] = d.Sub(m.start).Hours() / 24 / m.tScale
	}
	return t
}

// trendRow is [1, t, (t-s1)+, (t-s2)+, ...].
func (m *Model) trendRow(t float64) []float64 {
	row := make([]float64, 0, m.trendWidth())
	row = append(row, 1, t)
	for _, s := range m.changepoints {
		row = append(row, math.Max(0, t-s))
	}
	return row
}

// design lays out the trend columns followed by m.columns. When trend is
// non-nil, multiplicative columns are scaled by it row by row.
func (m *Model) design(t []float64, vals [][]float64, trend []float64) *mat.Dense {
	nT := m.trendWidth()
	x := mat.NewDense(len(t), nT+len(m.columns), nil)
	for i, ti := range t {
		for j, v := range m.trendRow(ti) {
			x.Set(i, j, v)
		}
		for j, c := range m.columns {
			v := vals[j][i]
			if trend != nil && c.mode == Multiplicative {
				v *= trend[i]
			}
			x.Set(i, nT+j, v)
		}
	}
	return x
}

// changepoints places up to n changepoints uniformly over the first
// cpRange share of the scaled times.
func changepoints(t []float64, n int, cpRange float64) []float64 {
	histSize := int(math.Floor(float64(len(t)) * cpRange))
	if n+1 > histSize {
		n = histSize - 1
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		idx := int(math.Round(float64(i) * float64(histSize-1) / float64(n)))
		out = append(out, t[idx])
	}
	return out
}

// fitRidge alternates between the ridge solve and the noise estimate, so
// each penalty is sigma^2 / prior^2.
func fitRidge(x *mat.Dense, y, scales []float64) ([]float64, float64, error) {
	sigma2 := 1.0
	lambda := make([]float64, len(scales))
	var beta []float64
	for pass := 0; pass < noisePasses; pass++ {
		for j, s := range scales {
			lambda[j] = sigma2 / (s * s)
		}
		var (
			lev []float64
			err error
		)
		beta, lev, err = ridge(x, y, lambda)
		if err != nil {
			return nil, 0, err
		}
		sigma2 = math.Max(noiseVariance(x, y, beta, lev), 1e-12)
	}
	return beta, math.Sqrt(sigma2), nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
