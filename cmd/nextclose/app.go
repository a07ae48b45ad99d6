package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"NextClose/internal/collector"
	"NextClose/internal/config"
	"NextClose/internal/dataset"
	"NextClose/internal/feature"
	"NextClose/internal/forecast"
	"NextClose/internal/metrics"
	"NextClose/internal/notifier"
	"NextClose/internal/recorder"
	"NextClose/internal/scheduler"
)

// app is the wired pipeline plus its side channels.
type app struct {
	cfg      *config.Config
	runner   *forecast.Runner
	metrics  *metrics.Recorder
	recorder recorder.Recorder
	telegram *notifier.TelegramNotifier // nil when not configured
}

func newFetcher(cfg *config.Config) (collector.Fetcher, error) {
	start, err := cfg.Start()
	if err != nil {
		return nil, err
	}
	var f collector.Fetcher
	switch cfg.DataSource.Provider {
	case "yahoo":
		f = collector.NewYahooFetcher(cfg.Proxy, start)
	case "rest":
		f = collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "csv":
		f = collector.NewCSVFetcher(cfg.DataSource.CSVDir)
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.DataSource.Provider)
	}
	return collector.NewGuardedFetcher(f, collector.GuardConfig{
		RPS:                 cfg.DataSource.RPS,
		Burst:               cfg.DataSource.Burst,
		ConsecutiveFailures: cfg.DataSource.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.DataSource.Breaker.OpenTimeout,
	}), nil
}

func newApp(cfg *config.Config) (*app, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	log.Info().Str("source", fetcher.Name()).Str("ticker", cfg.Ticker).Msg("data source ready")

	start, _ := cfg.Start()
	loader := dataset.NewLoader(fetcher, cfg.Ticker,
		dataset.WithStart(start),
		dataset.WithAdjust(cfg.DataSource.Adjust),
	)
	builder := feature.NewBuilder(loader, cfg.Model.LagPeriods)

	for _, o := range cfg.ModelOverrides() {
		log.Warn().Str("setting", o).Msg("model deviates from the yearly+weekly additive setup")
	}

	m := metrics.New()
	runner := forecast.NewRunner(builder, forecast.ModelConfig{
		YearlySeasonality: cfg.Model.YearlySeasonality,
		WeeklySeasonality: cfg.Model.WeeklySeasonality,
		SeasonalityMode:   cfg.Model.SeasonalityMode,
		IntervalWidth:     cfg.Model.IntervalWidth,
		NChangepoints:     cfg.Model.Changepoints,
	}, forecast.WithObserver(m))

	a := &app{cfg: cfg, runner: runner, metrics: m}

	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			a.recorder = recorder.NewNoopRecorder()
		} else {
			a.recorder = sr
		}
	} else {
		a.recorder = recorder.NewNoopRecorder()
	}

	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	}
	return a, nil
}

// sender returns the notifier, or a nil interface when disabled.
func (a *app) sender(enabled bool) scheduler.Sender {
	if !enabled || a.telegram == nil {
		return nil
	}
	return a.telegram
}

func (a *app) newScheduler(ctx context.Context, notify bool) *scheduler.Scheduler {
	return scheduler.NewScheduler(ctx, a.runner, a.sender(notify), a.recorder, a.metrics, a.cfg.Metrics.TextfilePath)
}

func (a *app) Close() error {
	return a.recorder.Close()
}
