package mempool

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

// TestEngineRun_LeavesNoGoroutinesBehind exercises the shutdown discipline
// called out in spec.md §9: every timer and background loop the engine
// starts must be cancellable, and canceling the Run context must be
// sufficient to unwind them all.
func TestEngineRun_LeavesNoGoroutinesBehind(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := &mockAdapter{
		listFunc: func(context.Context) ([]string, error) { return nil, nil },
		infoFunc: func(context.Context) (upstream.Info, error) { return upstream.Info{}, nil },
	}

	e, err := New(adapter, WithRefreshRate(5*time.Millisecond), WithRateWindow(1))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
