package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Ticker     string     `yaml:"ticker" default:"AAPL" validate:"required"`
	DataSource DataSource `yaml:"data_source"`
	Model      Model      `yaml:"model"`
	Schedule   Schedule   `yaml:"schedule"`
	Telegram   Telegram   `yaml:"telegram"`
	Database   Database   `yaml:"database"`
	Metrics    Metrics    `yaml:"metrics"`
	Log        Log        `yaml:"log"`
	Proxy      string     `yaml:"proxy"`
}

type DataSource struct {
	Provider  string  `yaml:"provider" default:"yahoo" validate:"oneof=yahoo rest csv"`
	BaseURL   string  `yaml:"base_url" validate:"required_if=Provider rest"`
	APIKey    string  `yaml:"api_key"`
	CSVDir    string  `yaml:"csv_dir" validate:"required_if=Provider csv"`
	Adjust    bool    `yaml:"adjust" default:"true"`
	StartDate string  `yaml:"start_date" default:"2010-01-01" validate:"datetime=2006-01-02"`
	RPS       float64 `yaml:"rps" default:"1" validate:"gt=0"`
	Burst     int     `yaml:"burst" default:"1" validate:"min=1"`
	Breaker   Breaker `yaml:"breaker"`
}

type Breaker struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"3" validate:"min=1"`
	OpenTimeout         time.Duration `yaml:"open_timeout" default:"60s"`
}

type Model struct {
	YearlySeasonality bool    `yaml:"yearly_seasonality" default:"true"`
	WeeklySeasonality bool    `yaml:"weekly_seasonality" default:"true"`
	SeasonalityMode   string  `yaml:"seasonality_mode" default:"additive" validate:"oneof=additive multiplicative"`
	LagPeriods        int     `yaml:"lag_periods" default:"12" validate:"min=1,max=60"`
	IntervalWidth     float64 `yaml:"interval_width" default:"0.8" validate:"gt=0,lt=1"`
	Changepoints      int     `yaml:"changepoints" default:"25" validate:"min=0"`
}

type Schedule struct {
	ForecastCron string `yaml:"forecast_cron" default:"0 30 22 * * 1-5" validate:"required"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type Database struct {
	SQLitePath string `yaml:"sqlite_path" default:"data/nextclose.db"`
}

type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"auto" validate:"oneof=auto console json"`
	Output string `yaml:"output" default:"stderr"`
}

var validate = validator.New()

// Load reads an optional .env file and the YAML file at path, then applies
// environment variable overrides. A missing YAML file leaves the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"NEXTCLOSE_TICKER":   &c.Ticker,
		"DATA_PROVIDER":      &c.DataSource.Provider,
		"DATA_BASE_URL":      &c.DataSource.BaseURL,
		"DATA_API_KEY":       &c.DataSource.APIKey,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"CRON_FORECAST":      &c.Schedule.ForecastCron,
		"LOG_LEVEL":          &c.Log.Level,
		"METRICS_TEXTFILE":   &c.Metrics.TextfilePath,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("LAG_PERIODS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LAG_PERIODS: %w", err)
		}
		c.Model.LagPeriods = n
	}
	c.Ticker = strings.TrimSpace(c.Ticker)
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("config %s: failed %q validation (value %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ModelOverrides lists the model keys set away from the standard yearly,
// weekly and additive setup.
func (c *Config) ModelOverrides() []string {
	var out []string
	if !c.Model.YearlySeasonality {
		out = append(out, "yearly_seasonality=false")
	}
	if !c.Model.WeeklySeasonality {
		out = append(out, "weekly_seasonality=false")
	}
	if c.Model.SeasonalityMode != "additive" {
		out = append(out, "seasonality_mode="+c.Model.SeasonalityMode)
	}
	return out
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Start parses the first date of the history window.
func (c *Config) Start() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.DataSource.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("data_source.start_date: %w", err)
	}
	return t, nil
}
