package mempool

import "context"

// SnapshotReader exposes read-only cache access. Implemented by Engine;
// consumers (HTTP handlers, the broadcaster) should depend on this
// interface rather than *Engine directly.
type SnapshotReader interface {
	GetSnapshot() *Snapshot
}

// RateReader exposes the smoothed arrival rate.
type RateReader interface {
	GetRate() Rate
}

// LatestReader exposes the latest-arrivals ring.
type LatestReader interface {
	GetLatest() []any
}

// InfoReader exposes the upstream pool summary.
type InfoReader interface {
	GetInfo() Info
	RefreshInfo(ctx context.Context) error
}

// ReadinessChecker is implemented by Engine for health probes.
type ReadinessChecker interface {
	Ready() bool
}

// Verify interface compliance at compile time.
var (
	_ SnapshotReader   = (*Engine)(nil)
	_ RateReader       = (*Engine)(nil)
	_ LatestReader     = (*Engine)(nil)
	_ InfoReader       = (*Engine)(nil)
	_ ReadinessChecker = (*Engine)(nil)
)
