package forecast

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NextClose/internal/collector"
	"NextClose/internal/dataset"
	"NextClose/internal/feature"
	"NextClose/internal/model"
)

var wednesday = time.Date(2024, 3, 6, 16, 0, 0, 0, time.UTC)

func runnerFor(f collector.Fetcher, cfg ModelConfig, opts ...RunnerOption) *Runner {
	loader := dataset.NewLoader(f, "TEST", dataset.WithClock(func() time.Time { return wednesday }))
	return NewRunner(feature.NewBuilder(loader, 12), cfg, opts...)
}

type stageLog struct {
	mu     sync.Mutex
	stages []string
}

func (s *stageLog) ObserveStage(stage string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
}

func TestForecast_EndToEnd(t *testing.T) {
	obs := &stageLog{}
	f := &collector.MockFetcher{Price: 100, Days: 400, End: wednesday}
	r := runnerFor(f, DefaultModelConfig(), WithObserver(obs), WithNow(func() time.Time { return wednesday }))

	fc, err := r.Forecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Forecasted, r.Stage())
	_, err = uuid.Parse(fc.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "TEST", fc.Ticker)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), fc.PresentDate)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), fc.ForecastDate)
	assert.Equal(t, fc.ForecastDate, fc.Prediction.DS)
	assert.Equal(t, 400, fc.TrainingRows)
	assert.Equal(t, wednesday, fc.CreatedAt)

	assert.InEpsilon(t, fc.LastClose, fc.Prediction.YHat, 0.03)
	assert.LessOrEqual(t, fc.Prediction.YHatLower, fc.Prediction.YHat)
	assert.GreaterOrEqual(t, fc.Prediction.YHatUpper, fc.Prediction.YHat)
	assert.Equal(t, fc.Prediction.Trend, fc.Prediction.TrendLower)
	assert.Equal(t, []string{"dataset", "features", "model", "train_predict"}, obs.stages)
}

func TestForecast_RunsAreIndependent(t *testing.T) {
	f := &collector.MockFetcher{Price: 50, Days: 120, End: wednesday}
	r := runnerFor(f, DefaultModelConfig())

	a, err := r.Forecast(context.Background())
	require.NoError(t, err)
	b, err := r.Forecast(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.InDelta(t, a.Prediction.YHat, b.Prediction.YHat, 1e-9)
	assert.Equal(t, 2, f.Calls)
}

func TestForecast_ShortNoisyHistoryInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bars := collector.GenerateBars(100, 20, wednesday)
	price := 100.0
	for i := range bars {
		price += rng.NormFloat64()
		bars[i].Open = price + 0.3*rng.NormFloat64()
		bars[i].High = price + 1
		bars[i].Low = price - 1
		bars[i].Close = price
		bars[i].AdjClose = price
	}
	r := runnerFor(&collector.MockFetcher{Bars: map[string][]model.RawBar{"TEST": bars}}, DefaultModelConfig())

	fc, err := r.Forecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, fc.TrainingRows)
	assert.Greater(t, fc.Prediction.YHatUpper-fc.Prediction.YHatLower, 0.5)
}

func TestForecast_DatasetFailures(t *testing.T) {
	tests := []struct {
		name    string
		fetcher collector.Fetcher
	}{
		{"fetch error", &collector.MockFetcher{Err: errors.New("network down")}},
		{"empty history", &collector.MockFetcher{Bars: map[string][]model.RawBar{"TEST": {}}}},
		{"symbol missing", &collector.MockFetcher{Bars: map[string][]model.RawBar{}}},
		{"breaker", collector.NewGuardedFetcher(&collector.MockFetcher{Err: errors.New("503")}, collector.GuardConfig{RPS: 1000, Burst: 10})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runnerFor(tt.fetcher, DefaultModelConfig())
			fc, err := r.Forecast(context.Background())
			require.Error(t, err)
			assert.Nil(t, fc)
			assert.ErrorIs(t, err, feature.ErrDatasetBuild)
			assert.Equal(t, Uninitialized, r.Stage())
		})
	}
}

func TestForecast_ModelBuildFailureAborts(t *testing.T) {
	cfg := DefaultModelConfig()
	cfg.SeasonalityMode = "sideways"
	r := runnerFor(&collector.MockFetcher{Price: 10, Days: 60, End: wednesday}, cfg)

	fc, err := r.Forecast(context.Background())
	require.Error(t, err)
	assert.Nil(t, fc)
	assert.ErrorIs(t, err, ErrModelBuild)
	assert.Equal(t, FeaturesBuilt, r.Stage())
}

func TestForecast_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := runnerFor(&collector.MockFetcher{Price: 10, Days: 60, End: wednesday}, DefaultModelConfig())

	_, err := r.Forecast(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DatasetBuilt, r.Stage())
}

type brokenFeatures struct{}

func (brokenFeatures) LoadDataset(context.Context) (*model.Frame, error) {
	return model.NewFrame(model.ColDate, nil), nil
}

func (brokenFeatures) Features(*model.Frame) (*model.Frame, error) {
	return nil, errors.New("lag failure")
}

func (brokenFeatures) Ticker() string { return "BROKEN" }

func TestForecast_FeatureStageFailure(t *testing.T) {
	r := NewRunner(brokenFeatures{}, DefaultModelConfig())
	_, err := r.Forecast(context.Background())
	require.Error(t, err)
	assert.Equal(t, DatasetBuilt, r.Stage())
}

// stageSpy records the runner's stage when features are requested.
type stageSpy struct {
	*feature.Builder
	runner *Runner
	seen   Stage
}

func (s *stageSpy) Features(table *model.Frame) (*model.Frame, error) {
	s.seen = s.runner.Stage()
	return s.Builder.Features(table)
}

func TestForecast_DatasetStageOnSuccess(t *testing.T) {
	loader := dataset.NewLoader(&collector.MockFetcher{Price: 10, Days: 60, End: wednesday}, "TEST",
		dataset.WithClock(func() time.Time { return wednesday }))
	spy := &stageSpy{Builder: feature.NewBuilder(loader, 12)}
	r := NewRunner(spy, DefaultModelConfig())
	spy.runner = r

	_, err := r.Forecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DatasetBuilt, spy.seen)
	assert.Equal(t, Forecasted, r.Stage())
}

func TestBuildModel_RegistersLagRegressors(t *testing.T) {
	r := runnerFor(&collector.MockFetcher{Price: 10, Days: 30, End: wednesday}, DefaultModelConfig())
	features, err := r.builder.(*feature.Builder).CreateFeatures(context.Background())
	require.NoError(t, err)

	m, ok := r.BuildModel(features)
	require.True(t, ok)
	assert.Len(t, m.Regressors(), 48)
	assert.Equal(t, LagColumns(features), m.Regressors())

	_, ok = r.BuildModel(nil)
	assert.False(t, ok)
}

func TestTrainAndForecast_Guards(t *testing.T) {
	r := runnerFor(&collector.MockFetcher{Price: 10, Days: 30, End: wednesday}, DefaultModelConfig())
	features, err := r.builder.(*feature.Builder).CreateFeatures(context.Background())
	require.NoError(t, err)

	_, err = r.TrainAndForecast(nil, features)
	assert.Error(t, err)

	m, ok := r.BuildModel(features)
	require.True(t, ok)
	_, err = r.TrainAndForecast(m, features.Slice(0, 2))
	assert.Error(t, err)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "model_built", ModelBuilt.String())
	assert.Equal(t, "forecasted", Forecasted.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
