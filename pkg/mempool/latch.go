package mempool

import (
	"sync"
	"time"
)

// LatchState is the flush-protection latch's three-state machine.
type LatchState int

const (
	LatchIdle LatchState = iota
	LatchArmed
	LatchCooling
)

// flushLatch suppresses deletion propagation for one cooldown period when
// the upstream reports an implausibly small pool (a node restart
// transiently publishing a near-empty mempool). See spec.md §4.5/§4.6.
type flushLatch struct {
	mu             sync.Mutex
	state          LatchState
	cooldown       time.Duration
	timer          *time.Timer
	minBeforeSize  int
	ratioThreshold float64
}

func newFlushLatch(minBeforeSize int, ratioThreshold float64, cooldown time.Duration) *flushLatch {
	return &flushLatch{
		state:          LatchIdle,
		cooldown:       cooldown,
		minBeforeSize:  minBeforeSize,
		ratioThreshold: ratioThreshold,
	}
}

// ObserveAndAdvance runs the Cooling->Idle transition if due (evaluated at
// the start of the pass that observes Cooling, per spec.md §4.6), then
// evaluates the Idle->Armed trigger against the pre-pass cache size and
// this pass's upstream listing size. Returns the latch state to use for
// this pass's classification step, and whether SyncFlag must be forced
// false as a side effect of newly arming.
func (f *flushLatch) ObserveAndAdvance(beforeSize, upstreamSize int) (state LatchState, forceOutOfSync bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == LatchCooling {
		f.state = LatchIdle
	}

	if f.state == LatchIdle &&
		beforeSize > f.minBeforeSize &&
		float64(upstreamSize)/float64(beforeSize) <= f.ratioThreshold {
		f.state = LatchArmed
		f.armTimerLocked()
		return LatchArmed, true
	}

	return f.state, false
}

// armTimerLocked schedules the Armed->Cooling transition. Caller holds mu.
func (f *flushLatch) armTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cooldown, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.state == LatchArmed {
			f.state = LatchCooling
		}
	})
}

// Stop cancels the flush-protection timer. Part of the engine's shutdown
// discipline (spec.md §9: "timers... must be cancellable on shutdown").
func (f *flushLatch) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
}

// State returns the current state without advancing it.
func (f *flushLatch) State() LatchState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
