package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"NextClose/internal/model"
)

// RESTFetcher implements Fetcher against a history endpoint that serves
// bars with the price table's field names.
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string) *RESTFetcher {
	return &RESTFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// Download fetches the full adjusted or raw history of every symbol.
func (f *RESTFetcher) Download(ctx context.Context, symbols []string, adjust bool) (map[string][]model.RawBar, error) {
	out := make(map[string][]model.RawBar, len(symbols))
	for _, s := range symbols {
		q := url.Values{}
		q.Set("symbol", s)
		q.Set("adjust", strconv.FormatBool(adjust))
		bars, err := f.fetchBars(ctx, f.BaseURL+"/api/v1/history?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s, err)
		}
		out[s] = bars
	}
	return out, nil
}

func (f *RESTFetcher) fetchBars(ctx context.Context, endpoint string) ([]model.RawBar, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, string(body))
	}
	var bars []model.RawBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	return bars, nil
}
