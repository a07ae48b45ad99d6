package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"NextClose/internal/model"
)

// GuardConfig tunes the rate limiter and circuit breaker around a Fetcher.
type GuardConfig struct {
	RPS                 float64
	Burst               int
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// GuardedFetcher rate-limits and circuit-breaks calls to another Fetcher.
type GuardedFetcher struct {
	next    Fetcher
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedFetcher wraps next. Zero config values fall back to 1 rps,
// burst 1, 3 consecutive failures and a 60s open state.
func NewGuardedFetcher(next Fetcher, cfg GuardConfig) *GuardedFetcher {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	failures := cfg.ConsecutiveFailures
	return &GuardedFetcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			// A canceled or expired caller says nothing about the provider.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("fetcher", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		}),
	}
}

func (g *GuardedFetcher) Name() string { return g.next.Name() }

// State reports the breaker state, e.g. "closed" or "open".
func (g *GuardedFetcher) State() string { return g.breaker.State().String() }

func (g *GuardedFetcher) Download(ctx context.Context, symbols []string, adjust bool) (map[string][]model.RawBar, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Download(ctx, symbols, adjust)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string][]model.RawBar), nil
}
