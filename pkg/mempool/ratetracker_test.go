package mempool

import (
	"testing"

	"github.com/holiman/uint256"
)

// S5 — rate math: 600 transactions ingested uniformly over 60s with a
// 60s window should read 10 tx/s at the tick right after second 60.
func TestRateTracker_SteadyStateMath(t *testing.T) {
	rt := newRateTracker(60)

	const base int64 = 1_000_000_000
	for i := 0; i < 600; i++ {
		at := base + int64(i)*100 // spread across 60000ms
		rt.Record(at, uint256.NewInt(200))
	}

	rt.Tick(base + 60_000)

	rate := rt.Current()
	if rate.TxPerSecond != 10 {
		t.Errorf("TxPerSecond = %v, want 10", rate.TxPerSecond)
	}
	wantVBytes := float64(600*200) / 60
	if rate.VBytesPerSecond != wantVBytes {
		t.Errorf("VBytesPerSecond = %v, want %v", rate.VBytesPerSecond, wantVBytes)
	}
}

func TestRateTracker_DropsStaleSamples(t *testing.T) {
	rt := newRateTracker(10)

	rt.Record(0, uint256.NewInt(100))
	rt.Tick(5_000)
	if rt.Current().TxPerSecond == 0 {
		t.Fatal("expected a non-zero rate immediately after recording")
	}

	// Past the 10s window: sample should drop out.
	rt.Tick(20_000)
	if rt.Current().TxPerSecond != 0 {
		t.Errorf("TxPerSecond = %v, want 0 after window expiry", rt.Current().TxPerSecond)
	}
}

func TestRateTracker_EmptyIsZero(t *testing.T) {
	rt := newRateTracker(150)
	rt.Tick(0)
	rate := rt.Current()
	if rate.TxPerSecond != 0 || rate.VBytesPerSecond != 0 {
		t.Errorf("rate = %+v, want zero value", rate)
	}
}
