package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_EmptyAddrIsNoop(t *testing.T) {
	m := New()
	err := m.Server(context.Background(), "")
	assert.NoError(t, err)
}

func TestServer_ServesMetricsUntilCanceled(t *testing.T) {
	m := New()
	m.TrackedWindows.Set(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Server(ctx, "127.0.0.1:0") }()

	// Server binds an ephemeral port; give the goroutine a moment to
	// start before canceling. This test only exercises the
	// cancel-triggers-shutdown path, not reachability on the bound port.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Server did not shut down after context cancellation")
	}
}

func TestGauges_AreIndependentAndSettable(t *testing.T) {
	m := New()
	m.TrackedWindows.Set(2)
	m.ActiveSubscriptions.Set(5)
	m.PendingReplies.Set(1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TrackedWindows))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.ActiveSubscriptions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PendingReplies))
}
