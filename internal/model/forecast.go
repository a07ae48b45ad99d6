package model

import "time"

// Prediction is one predicted row with its model components, all in the
// units of the target column.
type Prediction struct {
	DS                            time.Time `json:"ds"`
	Trend                         float64   `json:"trend"`
	TrendLower                    float64   `json:"trend_lower"`
	TrendUpper                    float64   `json:"trend_upper"`
	YHatLower                     float64   `json:"yhat_lower"`
	YHatUpper                     float64   `json:"yhat_upper"`
	AdditiveTerms                 float64   `json:"additive_terms"`
	MultiplicativeTerms           float64   `json:"multiplicative_terms"`
	Yearly                        float64   `json:"yearly"`
	Weekly                        float64   `json:"weekly"`
	ExtraRegressorsAdditive       float64   `json:"extra_regressors_additive"`
	ExtraRegressorsMultiplicative float64   `json:"extra_regressors_multiplicative"`
	YHat                          float64   `json:"yhat"`
}

// Forecast is the result of one pipeline run for a single instrument.
type Forecast struct {
	RunID        string     `json:"run_id"`
	Ticker       string     `json:"ticker"`
	PresentDate  time.Time  `json:"present_date"`
	ForecastDate time.Time  `json:"forecast_date"`
	TrainingRows int        `json:"training_rows"`
	LastClose    float64    `json:"last_close"`
	Prediction   Prediction `json:"prediction"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Change returns the predicted move from the last observed close, in percent.
func (f *Forecast) Change() float64 {
	if f.LastClose == 0 {
		return 0
	}
	return (f.Prediction.YHat - f.LastClose) / f.LastClose * 100
}
