package collector

import (
	"context"

	"NextClose/internal/model"
)

// Fetcher downloads historical daily bars. The result is keyed by symbol,
// one entry per requested symbol.
type Fetcher interface {
	Download(ctx context.Context, symbols []string, adjust bool) (map[string][]model.RawBar, error)
	Name() string
}
