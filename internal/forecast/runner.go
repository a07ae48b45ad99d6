// Package forecast runs the full pipeline for one instrument: load bars,
// build lag features, fit the model on history and predict the placeholder
// row.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"NextClose/internal/model"
	"NextClose/internal/prophet"
)

// ErrModelBuild is returned when the model could not be configured.
var ErrModelBuild = errors.New("model construction failed")

// Stage is the last pipeline step a run reached. A run that fails while
// loading stays Uninitialized; one that fails building lags stays DatasetBuilt.
type Stage int

const (
	Uninitialized Stage = iota
	DatasetBuilt
	FeaturesBuilt
	ModelBuilt
	Forecasted
)

func (s Stage) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DatasetBuilt:
		return "dataset_built"
	case FeaturesBuilt:
		return "features_built"
	case ModelBuilt:
		return "model_built"
	case Forecasted:
		return "forecasted"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// FeatureSource produces the feature table of one instrument in two steps,
// so the runner can mark the dataset stage before features exist.
type FeatureSource interface {
	LoadDataset(ctx context.Context) (*model.Frame, error)
	Features(table *model.Frame) (*model.Frame, error)
	Ticker() string
}

// StageObserver receives stage timings.
type StageObserver interface {
	ObserveStage(stage string, seconds float64)
}

// ModelConfig holds the model settings the runner applies.
type ModelConfig struct {
	YearlySeasonality bool
	WeeklySeasonality bool
	SeasonalityMode   string
	IntervalWidth     float64
	NChangepoints     int
}

// DefaultModelConfig is yearly and weekly seasonality, additive.
func DefaultModelConfig() ModelConfig {
	o := prophet.DefaultOptions()
	return ModelConfig{
		YearlySeasonality: true,
		WeeklySeasonality: true,
		SeasonalityMode:   string(prophet.Additive),
		IntervalWidth:     o.IntervalWidth,
		NChangepoints:     o.NChangepoints,
	}
}

func (c ModelConfig) options() (prophet.Options, error) {
	o := prophet.DefaultOptions()
	mode, err := prophet.ParseMode(c.SeasonalityMode)
	if err != nil {
		return o, err
	}
	o.YearlySeasonality = c.YearlySeasonality
	o.WeeklySeasonality = c.WeeklySeasonality
	o.SeasonalityMode = mode
	if c.IntervalWidth > 0 {
		o.IntervalWidth = c.IntervalWidth
	}
	if c.NChangepoints >= 0 {
		o.NChangepoints = c.NChangepoints
	}
	return o, nil
}

// Runner drives the pipeline. It is not safe for concurrent use.
type Runner struct {
	builder FeatureSource
	cfg     ModelConfig
	obs     StageObserver
	now     func() time.Time
	stage   Stage
	runID   string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver reports stage durations to obs.
func WithObserver(obs StageObserver) RunnerOption {
	return func(r *Runner) { r.obs = obs }
}

// WithNow sets the clock used to stamp results.
func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner over builder.
func NewRunner(builder FeatureSource, cfg ModelConfig, opts ...RunnerOption) *Runner {
	r := &Runner{builder: builder, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ticker returns the instrument the runner forecasts.
func (r *Runner) Ticker() string { return r.builder.Ticker() }

// Stage returns the last stage reached by the current or previous run.
func (r *Runner) Stage() Stage { return r.stage }

// RunID returns the id of the current or previous run.
func (r *Runner) RunID() string { return r.runID }

// LagColumns returns the columns of features whose name contains "lag".
func LagColumns(features *model.Frame) []string {
	var out []string
	for _, c := range features.Columns() {
		if strings.Contains(c, "lag") {
			out = append(out, c)
		}
	}
	return out
}

// BuildModel configures a model with every lag column as an extra
// regressor. Errors are logged and reported as ok=false.
func (r *Runner) BuildModel(features *model.Frame) (*prophet.Model, bool) {
	m, err := r.buildModel(features)
	if err != nil {
		log.Error().Err(err).Str("ticker", r.Ticker()).Str("stage", "model").Msg("model construction failed")
		return nil, false
	}
	return m, true
}

func (r *Runner) buildModel(features *model.Frame) (*prophet.Model, error) {
	if features == nil {
		return nil, errors.New("no feature table")
	}
	opts, err := r.cfg.options()
	if err != nil {
		return nil, err
	}
	m, err := prophet.New(opts)
	if err != nil {
		return nil, err
	}
	lags := LagColumns(features)
	for _, c := range lags {
		if err := m.AddRegressor(c); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("ticker", r.Ticker()).Int("regressors", len(lags)).Msg("model configured")
	return m, nil
}

// TrainAndForecast fits m on every row but the last and predicts the last.
func (r *Runner) TrainAndForecast(m *prophet.Model, features *model.Frame) (*model.Forecast, error) {
	if m == nil {
		return nil, errors.New("train: model is nil")
	}
	if features == nil || features.Len() < 3 {
		return nil, errors.New("train: need at least two history rows and a placeholder")
	}
	if !features.Has(model.ColClose) {
		return nil, fmt.Errorf("train: feature table has no %q column", model.ColClose)
	}
	n := features.Len()
	index := features.Index()

	history := features.Slice(0, n-1).Rename(map[string]string{index: "ds", model.ColClose: "y"})
	if err := m.Fit(history); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	future := features.Tail(1).Drop(model.ColClose).Rename(map[string]string{index: "ds"})
	preds, err := m.Predict(future)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	closes, _ := features.Column(model.ColClose)
	dates := features.Dates()
	return &model.Forecast{
		Ticker:       r.Ticker(),
		PresentDate:  dates[n-2],
		ForecastDate: dates[n-1],
		TrainingRows: n - 1,
		LastClose:    closes[n-2],
		Prediction:   preds[0],
		CreatedAt:    r.now().UTC(),
	}, nil
}

// Forecast loads the dataset, builds features, then runs BuildModel and
// TrainAndForecast in order.
// Any failure stops the run and no partial result is returned.
func (r *Runner) Forecast(ctx context.Context) (*model.Forecast, error) {
	r.stage = Uninitialized
	r.runID = uuid.NewString()
	logger := log.With().Str("ticker", r.Ticker()).Str("run_id", r.runID).Logger()

	start := time.Now()
	table, err := r.builder.LoadDataset(ctx)
	r.observe("dataset", start)
	if err != nil {
		return nil, err
	}
	r.stage = DatasetBuilt
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	features, err := r.builder.Features(table)
	r.observe("features", start)
	if err != nil {
		return nil, err
	}
	r.stage = FeaturesBuilt
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	m, ok := r.BuildModel(features)
	r.observe("model", start)
	if !ok {
		return nil, fmt.Errorf("%s: %w", r.Ticker(), ErrModelBuild)
	}
	r.stage = ModelBuilt
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	fc, err := r.TrainAndForecast(m, features)
	r.observe("train_predict", start)
	if err != nil {
		logger.Error().Err(err).Str("stage", "train").Msg("forecast failed")
		return nil, err
	}
	fc.RunID = r.runID
	r.stage = Forecasted

	logger.Info().
		Time("forecast_date", fc.ForecastDate).
		Float64("yhat", fc.Prediction.YHat).
		Float64("yhat_lower", fc.Prediction.YHatLower).
		Float64("yhat_upper", fc.Prediction.YHatUpper).
		Msg("forecast ready")
	return fc, nil
}

func (r *Runner) observe(stage string, start time.Time) {
	if r.obs != nil {
		r.obs.ObserveStage(stage, time.Since(start).Seconds())
	}
}
