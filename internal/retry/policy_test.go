package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyDelaySequence(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 60 * time.Second}

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	var prev time.Duration
	for i, expected := range want {
		got := p.Delay(i + 1)
		require.Equal(t, expected, got, "attempt %d", i+1)
		require.GreaterOrEqual(t, got, prev, "delays must be non-decreasing")
		prev = got
	}
}

func TestPolicyDelayEdgeCases(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 60 * time.Second}
	require.Equal(t, time.Duration(0), p.Delay(0))
	require.Equal(t, time.Duration(0), p.Delay(-1))
	// Huge attempt counts must not overflow past the cap.
	require.Equal(t, 60*time.Second, p.Delay(100))
}

func TestNewPolicyFallbacks(t *testing.T) {
	p := NewPolicy(0, 0)
	require.Equal(t, DefaultPolicy(), p)

	p = NewPolicy(2*time.Minute, 30*time.Second)
	require.Equal(t, 30*time.Second, p.Initial, "initial clamped to max")
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	require.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: 0}.Validate())
	require.Error(t, Policy{Initial: time.Minute, Max: time.Second}.Validate())
}
