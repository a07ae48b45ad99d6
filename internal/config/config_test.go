package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "AAPL", cfg.Ticker)
	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.True(t, cfg.DataSource.Adjust)
	assert.Equal(t, 60*time.Second, cfg.DataSource.Breaker.OpenTimeout)
	assert.Equal(t, uint32(3), cfg.DataSource.Breaker.ConsecutiveFailures)
	assert.True(t, cfg.Model.YearlySeasonality)
	assert.Equal(t, 12, cfg.Model.LagPeriods)
	assert.Equal(t, 0.8, cfg.Model.IntervalWidth)
	assert.Equal(t, "0 30 22 * * 1-5", cfg.Schedule.ForecastCron)
	assert.False(t, cfg.TelegramEnabled())

	start, err := cfg.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
ticker: MSFT
data_source:
  provider: csv
  csv_dir: ./data
  adjust: false
  breaker:
    open_timeout: 5s
model:
  weekly_seasonality: false
  seasonality_mode: multiplicative
  lag_periods: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "MSFT", cfg.Ticker)
	assert.Equal(t, "csv", cfg.DataSource.Provider)
	assert.False(t, cfg.DataSource.Adjust)
	assert.Equal(t, 5*time.Second, cfg.DataSource.Breaker.OpenTimeout)
	assert.False(t, cfg.Model.WeeklySeasonality)
	assert.True(t, cfg.Model.YearlySeasonality)
	assert.Equal(t, "multiplicative", cfg.Model.SeasonalityMode)
	assert.Equal(t, 5, cfg.Model.LagPeriods)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEXTCLOSE_TICKER", " ^GSPC ")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("LAG_PERIODS", "3")

	cfg, err := Load(writeConfig(t, "ticker: MSFT\n"))
	require.NoError(t, err)
	assert.Equal(t, "^GSPC", cfg.Ticker)
	assert.True(t, cfg.TelegramEnabled())
	assert.Equal(t, "/tmp/x.db", cfg.Database.SQLitePath)
	assert.Equal(t, 3, cfg.Model.LagPeriods)

	t.Setenv("LAG_PERIODS", "many")
	_, err = Load(writeConfig(t, ""))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "ticker: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "ftp" }},
		{"rest without base url", func(c *Config) { c.DataSource.Provider = "rest" }},
		{"csv without dir", func(c *Config) { c.DataSource.Provider = "csv" }},
		{"bad mode", func(c *Config) { c.Model.SeasonalityMode = "both" }},
		{"interval width", func(c *Config) { c.Model.IntervalWidth = 1.5 }},
		{"no lags", func(c *Config) { c.Model.LagPeriods = 0 }},
		{"empty ticker", func(c *Config) { c.Ticker = "" }},
		{"bad start", func(c *Config) { c.DataSource.StartDate = "01/01/2010" }},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModelOverrides(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.ModelOverrides())

	cfg.Model.WeeklySeasonality = false
	cfg.Model.SeasonalityMode = "multiplicative"
	assert.Equal(t, []string{"weekly_seasonality=false", "seasonality_mode=multiplicative"}, cfg.ModelOverrides())
}
