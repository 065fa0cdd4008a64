package health

import (
	"time"

	"github.com/northbound/edgeproxy/circuit"
)

// BreakerConfig configures the per-backend-server circuit breaker derived
// from a backend's consecutive-failure count.
type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	IdleTTL          time.Duration
}

// DefaultBreakerConfig opens a breaker after 5 consecutive failures and
// keeps it open for 10 seconds before probing again.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
		IdleTTL:          time.Hour,
	}
}

// BreakerRegistry hands out a circuit.Breaker per backend server address,
// wrapping circuit.Registry's consecutive-failure breaker so every server
// trips independently: requests to one backend never open another's
// breaker. Half-open requests are fixed at 3, so a breaker closes only
// after three successes in half-open: gobreaker closes a two-step breaker
// once MaxRequests successes land in half-open and reopens it on any
// half-open failure. This is independent of the passive tracker's
// SuccessThreshold (default 2).
type BreakerRegistry struct {
	cfg      BreakerConfig
	registry *circuit.Registry
}

func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		cfg: cfg,
		registry: circuit.NewRegistry(circuit.Options{
			Defaults: circuit.BreakerSettings{
				Type:             circuit.ConsecutiveFailures,
				Failures:         cfg.FailureThreshold,
				Timeout:          cfg.OpenTimeout,
				HalfOpenRequests: 3,
				IdleTTL:          cfg.IdleTTL,
			},
			IdleTTL: cfg.IdleTTL,
		}),
	}
}

// Allow checks whether a request to serverAddress may proceed, and returns
// a callback to report its outcome. The callback must be invoked exactly
// once when ok is true.
func (r *BreakerRegistry) Allow(serverAddress string) (report func(success bool), ok bool) {
	b := r.registry.Get(circuit.BreakerSettings{Host: serverAddress})
	if b == nil {
		return func(bool) {}, true
	}
	return b.Allow()
}
