package testutils

import (
	"testing"
	"time"
)

// DefaultWait bounds how long a test waits for a background event.
const DefaultWait = 5 * time.Second

// WaitFor receives one value from ch or fails the test after DefaultWait.
func WaitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(DefaultWait):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

// Eventually polls cond every few milliseconds until it holds or fails the test after DefaultWait.
func Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultWait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never held")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
