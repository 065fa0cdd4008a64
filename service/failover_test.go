package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeFailoverConfig() Config {
	return Config{Name: "fo", Kind: FailoverKind, Primary: "primary-service", Fallback: "fallback-service"}
}

func TestFailoverDefaultUsesPrimary(t *testing.T) {
	f := newFailoverService(makeFailoverConfig())
	assert.Equal(t, "primary-service", f.ActiveService())
	assert.True(t, f.IsUsingPrimary())
}

func TestFailoverToFallback(t *testing.T) {
	f := newFailoverService(makeFailoverConfig())
	f.MarkPrimaryUnhealthy()
	assert.Equal(t, "fallback-service", f.ActiveService())
	assert.False(t, f.IsUsingPrimary())
}

func TestFailoverRecoveryToPrimary(t *testing.T) {
	f := newFailoverService(makeFailoverConfig())
	f.MarkPrimaryUnhealthy()
	f.MarkPrimaryHealthy()
	assert.Equal(t, "primary-service", f.ActiveService())
	assert.True(t, f.IsUsingPrimary())
}

func TestFailoverServiceNames(t *testing.T) {
	f := newFailoverService(makeFailoverConfig())
	primary, fallback := f.ServiceNames()
	assert.Equal(t, "primary-service", primary)
	assert.Equal(t, "fallback-service", fallback)
}
