package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerRegistryOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 3
	cfg.OpenTimeout = time.Hour
	reg := NewBreakerRegistry(cfg)

	for i := 0; i < 3; i++ {
		report, ok := reg.Allow("backend-a:8080")
		require.True(t, ok)
		report(false)
	}

	_, ok := reg.Allow("backend-a:8080")
	assert.False(t, ok)
}

func TestBreakerRegistryIsolatesBackends(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Hour
	reg := NewBreakerRegistry(cfg)

	for i := 0; i < 2; i++ {
		report, _ := reg.Allow("backend-a:8080")
		report(false)
	}

	_, aOK := reg.Allow("backend-a:8080")
	bReport, bOK := reg.Allow("backend-b:8080")
	require.True(t, bOK)
	bReport(true)

	assert.False(t, aOK)
	assert.True(t, bOK)
}

func TestBreakerRegistryClosesAfterHalfOpenSuccesses(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 1
	cfg.OpenTimeout = 10 * time.Millisecond
	reg := NewBreakerRegistry(cfg)

	report, ok := reg.Allow("backend-c:8080")
	require.True(t, ok)
	report(false)

	_, ok = reg.Allow("backend-c:8080")
	require.False(t, ok)

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		report, ok = reg.Allow("backend-c:8080")
		require.True(t, ok)
		report(true)
	}

	_, ok = reg.Allow("backend-c:8080")
	assert.True(t, ok)
}
