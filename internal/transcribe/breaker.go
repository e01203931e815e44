package transcribe

import (
	"sync"
	"time"
)

// BreakerState is the current disposition of the transcription breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the breaker tuning.
type BreakerConfig struct {
	// FailureThreshold consecutive failures trip the breaker open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenSuccesses required before the breaker closes again.
	HalfOpenSuccesses int
}

// DefaultBreakerConfig trips after 3 consecutive failures and probes
// again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  3,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// Breaker guards the transcription backend. When the backend fails
// repeatedly the breaker opens and subsequent clips are skipped instead
// of queueing behind a dead service.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	cfg       BreakerConfig
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 1
	}
	return &Breaker{state: BreakerClosed, cfg: cfg}
}

// Allow reports whether a transcription attempt should proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) > b.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			b.successes = 0
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a completed transcription.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.state = BreakerClosed
		}
		return
	}
	b.state = BreakerClosed
}

// Failure records a failed transcription.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.openedAt = time.Now()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		return
	}
	if b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
