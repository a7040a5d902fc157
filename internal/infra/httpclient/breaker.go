package httpclient

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while an upstream's breaker rejects calls.
var ErrCircuitOpen = errors.New("upstream circuit open")

// Observer receives upstream call outcomes.
type Observer interface {
	RecordUpstream(upstream string, err error, duration time.Duration)
	SetBreakerState(upstream string, state int)
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before a trial call.
	Timeout time.Duration
}

// Breaker guards calls to one upstream.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
	obs  Observer
}

// NewBreaker creates a breaker named after its upstream. obs may be nil.
func NewBreaker(name string, cfg BreakerConfig, obs Observer) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	b := &Breaker{name: name, obs: obs}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if b.obs != nil {
				b.obs.SetBreakerState(name, int(to))
			}
		},
	})
	return b
}

// Name returns the upstream name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Call runs fn through the breaker and records the outcome.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errors.Join(ErrCircuitOpen, err)
	}
	if b.obs != nil {
		b.obs.RecordUpstream(b.name, err, time.Since(start))
	}

	var zero T
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}
