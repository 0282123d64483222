package settings

import (
	"fmt"
	"sync"
	"time"
)

// Strategy identifies a credential selection algorithm.
type Strategy string

const (
	// StrategyRoundRobin advances a per-profile cursor through the
	// eligible credentials.
	StrategyRoundRobin Strategy = "round-robin"

	// StrategyRandom picks uniformly among eligible credentials.
	StrategyRandom Strategy = "random"

	// StrategyLeastConnections picks the eligible credential with the
	// fewest in-flight requests.
	StrategyLeastConnections Strategy = "least-connections"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyRandom, StrategyLeastConnections:
		return true
	}
	return false
}

// Snapshot is one consistent view of the tuning knobs. The pool and
// orchestrator take a Snapshot per request and never hold one longer.
type Snapshot struct {
	// KeyRotationRequestCount is the number of consecutive successful
	// requests after which a credential is rested for one rotation
	// cycle. Zero disables forced rotation.
	KeyRotationRequestCount int

	// MaxFailureCount is the consecutive non-rate-limit failure count
	// that deactivates a credential.
	MaxFailureCount int

	// RateLimitCooldown is how long a rate-limited credential stays
	// excluded before lazy re-admission.
	RateLimitCooldown time.Duration

	// LoadBalancingStrategy selects the pool's selection algorithm.
	LoadBalancingStrategy Strategy

	// MaxRetries is the total attempt budget per inbound request.
	MaxRetries int

	// RequestRateLimit is the per-profile inbound requests-per-second
	// ceiling. Zero disables inbound rate limiting.
	RequestRateLimit int
}

// Default returns the snapshot used when no settings file is present.
func Default() Snapshot {
	return Snapshot{
		KeyRotationRequestCount: 10,
		MaxFailureCount:         3,
		RateLimitCooldown:       5 * time.Minute,
		LoadBalancingStrategy:   StrategyRoundRobin,
		MaxRetries:              3,
		RequestRateLimit:        0,
	}
}

// Validate checks a snapshot for values the pool cannot operate with.
func (s Snapshot) Validate() error {
	if s.MaxFailureCount < 1 {
		return fmt.Errorf("maxFailureCount must be >= 1, got %d", s.MaxFailureCount)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("maxRetries must be >= 1, got %d", s.MaxRetries)
	}
	if s.RateLimitCooldown < 0 {
		return fmt.Errorf("rateLimitCooldown must not be negative, got %s", s.RateLimitCooldown)
	}
	if s.KeyRotationRequestCount < 0 {
		return fmt.Errorf("keyRotationRequestCount must not be negative, got %d", s.KeyRotationRequestCount)
	}
	if s.RequestRateLimit < 0 {
		return fmt.Errorf("requestRateLimit must not be negative, got %d", s.RequestRateLimit)
	}
	if !s.LoadBalancingStrategy.Valid() {
		return fmt.Errorf("unknown load balancing strategy %q", s.LoadBalancingStrategy)
	}
	return nil
}

// Provider supplies the current settings snapshot.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Read returns the current snapshot.
	Read() Snapshot
}

// Static is a Provider that always returns the same snapshot.
// It is the default wiring for tests and for deployments without a
// settings file.
type Static struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatic creates a Static provider with the given snapshot.
func NewStatic(snap Snapshot) *Static {
	return &Static{snap: snap}
}

// Read returns the stored snapshot.
func (s *Static) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Set replaces the stored snapshot. Used by tests to retune mid-flight.
func (s *Static) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}
