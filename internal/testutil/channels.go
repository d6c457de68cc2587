// Package testutil provides shared test utilities for automarker.
// These helpers reduce duplication across test files and keep async tests
// on consistent timeouts.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second

	// LongTestTimeout is for operations that may take longer (CI environments).
	LongTestTimeout = 30 * time.Second

	// PollInterval is how often WaitFor re-evaluates its condition.
	PollInterval = 5 * time.Millisecond
)

// WaitForChannel waits for a signal on the channel or fails after timeout.
// Use this for waiting on done channels, job completion signals, etc.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// WaitForValue receives one value from ch or fails after timeout.
func WaitForValue[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
	var zero T
	return zero
}

// WaitFor polls cond until it returns true or fails the test after timeout.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, timeout, PollInterval, msg)
}
