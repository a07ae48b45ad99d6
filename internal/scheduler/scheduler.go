package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"NextClose/internal/forecast"
	"NextClose/internal/metrics"
	"NextClose/internal/model"
	"NextClose/internal/notifier"
	"NextClose/internal/recorder"
)

// Forecaster is the pipeline the scheduler triggers.
type Forecaster interface {
	Forecast(ctx context.Context) (*model.Forecast, error)
	Ticker() string
	Stage() forecast.Stage
	RunID() string
}

// Sender delivers reports.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs forecasts on a cron schedule and on command.
type Scheduler struct {
	Cron        *cron.Cron
	Runner      Forecaster
	Notifier    Sender // nil disables notifications
	Recorder    recorder.Recorder
	Metrics     *metrics.Recorder // nil disables metrics
	MetricsPath string
	Ctx         context.Context

	mu sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Forecaster, tn Sender, rec recorder.Recorder, m *metrics.Recorder, metricsPath string) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	logger := cronLogger{}
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds(), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		Runner:      runner,
		Notifier:    tn,
		Recorder:    rec,
		Metrics:     m,
		MetricsPath: metricsPath,
		Ctx:         ctx,
	}
}

// RegisterAll registers the daily forecast task.
func (s *Scheduler) RegisterAll(forecastCron string) error {
	if _, err := s.Cron.AddFunc(forecastCron, s.forecastTask); err != nil {
		return fmt.Errorf("register forecast task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunNow executes one forecast immediately and notifies the chat.
func (s *Scheduler) RunNow() (*model.Forecast, error) {
	return s.Run(s.Ctx, true)
}

func (s *Scheduler) forecastTask() {
	log.Info().Str("ticker", s.Runner.Ticker()).Msg("running forecast task")
	if _, err := s.Run(s.Ctx, true); err != nil {
		log.Error().Err(err).Msg("forecast task failed")
	}
}

// ErrBusy is returned when a run is already in progress.
var ErrBusy = errors.New("a forecast run is already in progress")

// StageError is a failed run together with the last stage it reached.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Run executes one forecast, records it and, when notify is set, sends the
// report. Overlapping runs fail with ErrBusy; any other failure is a
// *StageError.
func (s *Scheduler) Run(ctx context.Context, notify bool) (*model.Forecast, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	ticker := s.Runner.Ticker()
	fc, err := s.Runner.Forecast(ctx)
	now := time.Now()
	if err != nil {
		stage := s.Runner.Stage().String()
		if rerr := s.Recorder.RecordFailure(&recorder.FailureEvent{
			RunID: s.Runner.RunID(), Ticker: ticker, Stage: stage, Error: err.Error(), At: now,
		}); rerr != nil {
			log.Error().Err(rerr).Msg("record failure")
		}
		s.recordMetrics(ticker, "failure", now, nil)
		if notify {
			s.trySend(ctx, notifier.FormatFailure(ticker, stage, err))
		}
		return nil, &StageError{Stage: stage, Err: err}
	}

	if err := s.Recorder.RecordForecast(fc); err != nil {
		log.Error().Err(err).Msg("record forecast")
	}
	s.recordMetrics(ticker, "success", now, fc)
	if notify {
		s.trySend(ctx, notifier.FormatForecast(fc))
	}
	return fc, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	// Commands may carry a bot suffix in group chats, e.g. /forecast@my_bot.
	cmd, _, _ := strings.Cut(fields[0], "@")
	switch cmd {
	case "/forecast":
		fc, err := s.Run(ctx, false)
		if errors.Is(err, ErrBusy) {
			return notifier.FormatBusy(s.Runner.Ticker())
		}
		var se *StageError
		if errors.As(err, &se) {
			return notifier.FormatFailure(s.Runner.Ticker(), se.Stage, se.Err)
		}
		if err != nil {
			return notifier.FormatFailure(s.Runner.Ticker(), "unknown", err)
		}
		return notifier.FormatForecast(fc)
	case "/history":
		history, err := s.Recorder.Recent(s.Runner.Ticker(), 10)
		if err != nil {
			log.Error().Err(err).Msg("load history")
			return "Could not load history."
		}
		return notifier.FormatHistory(s.Runner.Ticker(), history)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) recordMetrics(ticker, result string, at time.Time, fc *model.Forecast) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.RecordRun(ticker, result, float64(at.Unix()))
	if fc != nil {
		s.Metrics.RecordPrediction(ticker, fc.Prediction.YHat, fc.Prediction.YHatLower, fc.Prediction.YHatUpper)
	}
	if err := s.Metrics.WriteTextfile(s.MetricsPath); err != nil {
		log.Error().Err(err).Msg("write metrics")
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
