package mempool

import (
	"testing"
	"time"
)

func TestFlushLatch_ArmsOnRatioBreach(t *testing.T) {
	l := newFlushLatch(20000, 0.80, time.Hour)

	state, forced := l.ObserveAndAdvance(30000, 1000)
	if state != LatchArmed || !forced {
		t.Fatalf("state=%v forced=%v, want Armed/true", state, forced)
	}

	// Re-triggering while Armed is a no-op.
	state, forced = l.ObserveAndAdvance(30000, 1000)
	if state != LatchArmed || forced {
		t.Fatalf("state=%v forced=%v on re-trigger, want Armed/false", state, forced)
	}
	l.Stop()
}

func TestFlushLatch_DoesNotArmBelowMinSize(t *testing.T) {
	l := newFlushLatch(20000, 0.80, time.Hour)
	state, forced := l.ObserveAndAdvance(100, 1)
	if state != LatchIdle || forced {
		t.Fatalf("state=%v forced=%v, want Idle/false below min size", state, forced)
	}
}

func TestFlushLatch_CoolingTransitionsToIdleOnNextObserve(t *testing.T) {
	l := newFlushLatch(20000, 0.80, 10*time.Millisecond)
	l.ObserveAndAdvance(30000, 1000)

	time.Sleep(30 * time.Millisecond)
	if l.State() != LatchCooling {
		t.Fatalf("state = %v, want Cooling after timer fires", l.State())
	}

	state, forced := l.ObserveAndAdvance(30000, 30000)
	if state != LatchIdle || forced {
		t.Fatalf("state=%v forced=%v, want Idle/false on the pass after Cooling", state, forced)
	}
	l.Stop()
}
