package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yahooBody = `{"chart":{"result":[{"meta":{"gmtoffset":-18000},
"timestamp":[1709649000,1709562600,1709735400],
"indicators":{"quote":[{"open":[11,10,null],"high":[12,11,null],"low":[10,9,null],"close":[11,10,null],"volume":[200,100,null]}],
"adjclose":[{"adjclose":[5.5,5,null]}]}}],"error":null}}`

func TestYahooFetcher_Download(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, yahooBody)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
	f.BaseURL = srv.URL

	out, err := f.Download(context.Background(), []string{"SPX"}, false)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)

	bars := out["SPX"]
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-03-04", bars[0].Date)
	assert.Equal(t, "2024-03-05", bars[1].Date)
	assert.Equal(t, 10.0, bars[0].Close)
	assert.Equal(t, 1000.0, bars[0].Value)
	assert.Equal(t, 10.0, bars[1].Yesterday)
	assert.Equal(t, 0.0, bars[0].Yesterday)
}

func TestYahooFetcher_Adjusted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, yahooBody)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Time{})
	f.BaseURL = srv.URL
	out, err := f.Download(context.Background(), []string{"X"}, true)
	require.NoError(t, err)
	bars := out["X"]
	require.Len(t, bars, 2)
	assert.InDelta(t, 5.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 5.5, bars[0].High, 1e-9)
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Time{})
	f.BaseURL = srv.URL
	_, err := f.Download(context.Background(), []string{"NOPE"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestRESTFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		assert.Equal(t, "FOLD1", r.URL.Query().Get("symbol"))
		assert.Equal(t, "true", r.URL.Query().Get("adjust"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		fmt.Fprint(w, `[{"date":"2024-03-04","open":1,"high":2,"low":0.5,"adjClose":1.5,"value":10,"volume":5,"count":3,"yesterday":1.2,"close":1.5}]`)
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, "k", "")
	out, err := f.Download(context.Background(), []string{"FOLD1"}, true)
	require.NoError(t, err)
	require.Len(t, out["FOLD1"], 1)
	b := out["FOLD1"][0]
	assert.Equal(t, "2024-03-04", b.Date)
	assert.Equal(t, 3.0, b.Count)
	assert.Equal(t, 1.2, b.Yesterday)
}

func TestRESTFetcher_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRESTFetcher(srv.URL, "", "").Download(context.Background(), []string{"A"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestCSVFetcher_Download(t *testing.T) {
	dir := t.TempDir()
	data := "date,open,high,low,close,extra\n2024-03-04,1,2,0.5,1.5,x\nnot-a-date,1,1,1,1,y\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ABC.csv"), []byte(data), 0o644))

	out, err := NewCSVFetcher(dir).Download(context.Background(), []string{"ABC"}, true)
	require.NoError(t, err)
	bars := out["ABC"]
	require.Len(t, bars, 2)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, 0.0, bars[0].Volume)
	assert.Equal(t, "not-a-date", bars[1].Date)

	_, err = NewCSVFetcher(dir).Download(context.Background(), []string{"MISSING"}, true)
	assert.Error(t, err)
}

func TestGuardedFetcher_TripsBreaker(t *testing.T) {
	inner := &MockFetcher{Err: errors.New("down")}
	g := NewGuardedFetcher(inner, GuardConfig{RPS: 1000, Burst: 10, ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := g.Download(context.Background(), []string{"A"}, true)
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Download(context.Background(), []string{"A"}, true)
	require.Error(t, err)
	assert.Equal(t, 2, inner.Calls)
}

func TestGuardedFetcher_PassesThrough(t *testing.T) {
	inner := &MockFetcher{Price: 100, Days: 5, End: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)}
	g := NewGuardedFetcher(inner, GuardConfig{RPS: 1000, Burst: 10})
	out, err := g.Download(context.Background(), []string{"A"}, true)
	require.NoError(t, err)
	require.Len(t, out["A"], 5)
	assert.Equal(t, "2024-03-04", out["A"][0].Date)
	assert.Equal(t, "2024-03-08", out["A"][4].Date)
}

func TestGuardedFetcher_ContextErrorsDoNotTrip(t *testing.T) {
	inner := &MockFetcher{Err: fmt.Errorf("get chart: %w", context.Canceled)}
	g := NewGuardedFetcher(inner, GuardConfig{RPS: 1000, Burst: 10, ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := g.Download(context.Background(), []string{"A"}, true)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", g.State())
	assert.Equal(t, 3, inner.Calls)

	inner.Err = fmt.Errorf("get chart: %w", context.DeadlineExceeded)
	_, err := g.Download(context.Background(), []string{"A"}, true)
	require.Error(t, err)
	assert.Equal(t, "closed", g.State())
}
