package mempool

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// rateSample is a single vsize arrival sample; count-stream samples are
// stored as bare timestamps in rateTracker.counts.
type rateSample struct {
	atMs  int64
	vsize float64
}

// rateTracker maintains two append-only sample buffers (arrival count and
// arrival vsize) and exposes a smoothed rate over a configured window.
// Safe for concurrent use; writes happen on ingest, the Tick read-modify-
// write happens once a second, reads happen on every API request.
type rateTracker struct {
	mu            sync.Mutex
	windowSeconds int
	counts        []int64
	vsizes        []rateSample
	current       Rate
}

func newRateTracker(windowSeconds int) *rateTracker {
	return &rateTracker{windowSeconds: windowSeconds}
}

// Record appends a sample for a newly ingested transaction. The engine
// only calls this while SyncFlag is true (spec.md §4.2's rate-gating
// invariant); rateTracker itself is agnostic to that gate.
func (r *rateTracker) Record(atMs int64, vsize *uint256.Int) {
	v, _ := new(big.Float).SetInt(vsize.ToBig()).Float64()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, atMs)
	r.vsizes = append(r.vsizes, rateSample{atMs: atMs, vsize: v})
}

// Tick drops stale samples and recomputes the smoothed rate. Intended to
// be called once a second by the engine's owned ticker.
func (r *rateTracker) Tick(nowMs int64) {
	cutoff := nowMs - int64(r.windowSeconds)*1000

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts = dropOlder(r.counts, cutoff)
	r.vsizes = dropOlderSamples(r.vsizes, cutoff)

	var txPerSecond float64
	if len(r.counts) > 0 {
		txPerSecond = float64(len(r.counts)) / float64(r.windowSeconds)
	}

	var vsizeSum float64
	for _, s := range r.vsizes {
		vsizeSum += s.vsize
	}
	var vBytesPerSecond float64
	if len(r.vsizes) > 0 {
		vBytesPerSecond = math.Round(vsizeSum / float64(r.windowSeconds))
	}

	r.current = Rate{TxPerSecond: txPerSecond, VBytesPerSecond: vBytesPerSecond}
}

// Current returns the most recently computed rate.
func (r *rateTracker) Current() Rate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func dropOlder(samples []int64, cutoff int64) []int64 {
	i := 0
	for i < len(samples) && samples[i] < cutoff {
		i++
	}
	if i == 0 {
		return samples
	}
	return append([]int64(nil), samples[i:]...)
}

func dropOlderSamples(samples []rateSample, cutoff int64) []rateSample {
	i := 0
	for i < len(samples) && samples[i].atMs < cutoff {
		i++
	}
	if i == 0 {
		return samples
	}
	return append([]rateSample(nil), samples[i:]...)
}

// nowMs is overridable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }
