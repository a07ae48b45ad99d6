package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"NextClose/internal/model"
)

const dateLayout = "2006-01-02 (Mon)"

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatForecast formats one forecast into a Telegram message.
func FormatForecast(fc *model.Forecast) string {
	var b strings.Builder
	p := fc.Prediction

	b.WriteString(fmt.Sprintf("🔮 <b>%s next close</b> | %s\n\n", html.EscapeString(fc.Ticker), fc.ForecastDate.Format(dateLayout)))
	b.WriteString(fmt.Sprintf("Last close (%s): %s\n", fc.PresentDate.Format("2006-01-02"), price(fc.LastClose)))

	arrow := "▲"
	change := decimal.NewFromFloat(fc.Change()).Round(2)
	if change.IsNegative() {
		arrow = "▼"
	}
	b.WriteString(fmt.Sprintf("Forecast: <b>%s</b> %s %s%%\n", price(p.YHat), arrow, change.Abs().StringFixed(2)))
	b.WriteString(fmt.Sprintf("Interval: %s – %s\n\n", price(p.YHatLower), price(p.YHatUpper)))

	b.WriteString("📈 <b>Components:</b>\n")
	b.WriteString(fmt.Sprintf("  trend: %s\n", price(p.Trend)))
	if p.Yearly != 0 {
		b.WriteString(fmt.Sprintf("  yearly: %+.3f\n", p.Yearly))
	}
	if p.Weekly != 0 {
		b.WriteString(fmt.Sprintf("  weekly: %+.3f\n", p.Weekly))
	}
	if r := p.ExtraRegressorsAdditive + p.ExtraRegressorsMultiplicative; r != 0 {
		b.WriteString(fmt.Sprintf("  lags: %+.3f\n", r))
	}
	b.WriteString(fmt.Sprintf("\nTrained on %d rows", fc.TrainingRows))
	if fc.RunID != "" {
		b.WriteString(fmt.Sprintf(" | run <code>%s</code>", shortID(fc.RunID)))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatFailure formats a failed run.
func FormatFailure(ticker, stage string, err error) string {
	return fmt.Sprintf("⚠️ <b>%s forecast failed</b>\nstage: %s\nerror: %s\n",
		html.EscapeString(ticker), stage, html.EscapeString(err.Error()))
}

// FormatHistory lists recent forecasts, newest first.
func FormatHistory(ticker string, history []model.Forecast) string {
	if len(history) == 0 {
		return fmt.Sprintf("No forecasts recorded for %s yet.", html.EscapeString(ticker))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>%s recent forecasts</b>\n\n", html.EscapeString(ticker)))
	for _, fc := range history {
		b.WriteString(fmt.Sprintf("%s: %s (%s – %s)\n",
			fc.ForecastDate.Format("2006-01-02"),
			price(fc.Prediction.YHat), price(fc.Prediction.YHatLower), price(fc.Prediction.YHatUpper)))
	}
	return b.String()
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Commands:\n/forecast: run a forecast now\n/history: recent forecasts\n/help: this message"
}

// FormatBusy is the reply when a run is already in progress.
func FormatBusy(ticker string) string {
	return fmt.Sprintf("A forecast for <b>%s</b> is already running, try again shortly.", html.EscapeString(ticker))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
