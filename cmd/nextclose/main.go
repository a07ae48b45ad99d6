package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"NextClose/internal/config"
	"NextClose/internal/logging"
	"NextClose/internal/model"
	"NextClose/internal/scheduler"
)

const appName = "nextclose"

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
	)
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Forecast the next trading day's close of an instrument",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "Path to the YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	// load reads config, applies flag overrides and installs the logger.
	load := func(ticker string) (*config.Config, io.Closer, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		if ticker != "" {
			cfg.Ticker = ticker
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		closer, err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
		if err != nil {
			return nil, nil, err
		}
		return cfg, closer, nil
	}

	root.AddCommand(newForecastCmd(load), newScheduleCmd(load), newVersionCmd())
	return root
}

type loadFunc func(ticker string) (*config.Config, io.Closer, error)

func newForecastCmd(load loadFunc) *cobra.Command {
	var (
		ticker string
		asJSON bool
		notify bool
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Run the pipeline once and print the prediction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := load(ticker)
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fc, err := a.newScheduler(ctx, notify).Run(ctx, notify)
			if err != nil {
				ev := log.Error().Err(err)
				var se *scheduler.StageError
				if errors.As(err, &se) {
					ev = ev.Str("stage", se.Stage)
				}
				ev.Msg("forecast failed")
				return err
			}
			return printForecast(cmd.OutOrStdout(), fc, asJSON)
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "Instrument to forecast (overrides config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the forecast as JSON")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send the report to Telegram")
	return cmd
}

func newScheduleCmd(load loadFunc) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run forecasts on the configured cron schedule and answer Telegram commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := load("")
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := a.newScheduler(ctx, true)
			if err := sched.RegisterAll(cfg.Schedule.ForecastCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if a.telegram != nil {
				go a.telegram.StartPolling(ctx, sched.HandleCommand)
				log.Info().Msg("telegram polling started")
			} else {
				log.Warn().Msg("telegram not configured, reports are only logged")
			}

			if runOnStart {
				go func() {
					if _, err := sched.RunNow(); err != nil {
						log.Error().Err(err).Msg("initial run failed")
					}
				}()
			}

			log.Info().Str("cron", cfg.Schedule.ForecastCron).Str("ticker", cfg.Ticker).Msg("nextclose is running, press Ctrl+C to stop")
			<-ctx.Done()
			log.Info().Msg("shutdown signal received, stopping")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "Run one forecast immediately")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}

func printForecast(w io.Writer, fc *model.Forecast, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(fc)
	}
	p := fc.Prediction
	_, err := fmt.Fprintf(w, "%s %s  yhat=%.4f  [%.4f, %.4f]  last_close=%.4f (%s)  change=%+.2f%%\n",
		fc.Ticker, fc.ForecastDate.Format("2006-01-02"), p.YHat, p.YHatLower, p.YHatUpper,
		fc.LastClose, fc.PresentDate.Format("2006-01-02"), fc.Change())
	return err
}
