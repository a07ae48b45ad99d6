package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveStage("features", 0.2)
	r.RecordRun("AAPL", "success", 1700000000)
	r.RecordPrediction("AAPL", 101.5, 99, 104)

	path := filepath.Join(t.TempDir(), "nextclose.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `nextclose_forecast_runs_total{result="success",ticker="AAPL"} 1`)
	assert.Contains(t, out, `nextclose_forecast_price{bound="yhat",ticker="AAPL"} 101.5`)
	assert.Contains(t, out, `nextclose_stage_duration_seconds_count{stage="features"} 1`)
	assert.Contains(t, out, `nextclose_last_run_timestamp_seconds{ticker="AAPL"} 1.7e+09`)
}

func TestRecorder_EmptyPath(t *testing.T) {
	assert.NoError(t, New().WriteTextfile(""))
}

func TestRecorder_Gather(t *testing.T) {
	r := New()
	r.RecordRun("X", "failure", 1)
	r.RecordRun("X", "failure", 2)
	families, err := r.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() == "nextclose_forecast_runs_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, total)
}
