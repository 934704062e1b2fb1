package models

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerConfig configures BreakerUpstream. Zero values fall back to defaults.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// BreakerUpstream guards stream opens of another Upstream with a circuit
// breaker. Once the inner upstream keeps failing to open, Stream fails fast
// with ErrUpstreamUnavailable until the breaker half-opens again.
type BreakerUpstream struct {
	inner   Upstream
	breaker *gobreaker.CircuitBreaker[<-chan UpstreamEvent]
	Logger  *log.Logger
}

func NewBreakerUpstream(name string, inner Upstream, cfg BreakerConfig) *BreakerUpstream {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	b := &BreakerUpstream{
		inner:  inner,
		Logger: log.New(os.Stdout, "[BREAKER] ", log.LstdFlags),
	}
	b.breaker = gobreaker.NewCircuitBreaker[<-chan UpstreamEvent](gobreaker.Settings{
		Name:        "upstream:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.Logger.Printf("circuit %s: %s -> %s", name, from, to)
		},
		// A rejected key or an exhausted balance says nothing about the
		// health of the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrInsufficientBalance) ||
				errors.Is(err, context.Canceled)
		},
	})
	return b
}

// Stream implements Upstream.
func (b *BreakerUpstream) Stream(ctx context.Context, req UpstreamRequest) (<-chan UpstreamEvent, error) {
	events, err := b.breaker.Execute(func() (<-chan UpstreamEvent, error) {
		return b.inner.Stream(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return events, err
}

// State reports the breaker state, mostly for health output.
func (b *BreakerUpstream) State() string {
	return b.breaker.State().String()
}
