package mempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

// MetricsRecorder is an optional observability hook: ObservePass is invoked
// at the end of every completed pass (not for aborted ones), ObserveRate on
// every rate tick. Implementations must not block.
type MetricsRecorder interface {
	ObservePass(cacheSize int, added, removed int, duration time.Duration, latch LatchState)
	ObserveRate(rate Rate)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRefreshRate sets the nominal pass period; the pass budget (the
// worst-case duration of a single RunOnce) is derived as 10x this value.
func WithRefreshRate(d time.Duration) Option {
	return func(e *Engine) { e.refreshRate = d }
}

// WithRateWindow sets the rate-smoothing window (typical 150s).
func WithRateWindow(seconds int) Option {
	return func(e *Engine) { e.rateWindowSeconds = seconds }
}

// WithFlushProtection overrides the flush-protection thresholds.
func WithFlushProtection(minBeforeSize int, ratioThreshold float64, cooldown time.Duration) Option {
	return func(e *Engine) {
		e.flushMinBeforeSize = minBeforeSize
		e.flushRatioThreshold = ratioThreshold
		e.flushCooldown = cooldown
	}
}

// WithLatestCapacity sets the latest-arrivals ring capacity (default 6).
func WithLatestCapacity(n int) Option {
	return func(e *Engine) { e.latestCapacity = n }
}

// WithStripper overrides the latest-arrivals projection function.
func WithStripper(s Stripper) Option {
	return func(e *Engine) { e.stripper = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics registers an observability hook.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine orchestrates reconciliation passes against an upstream adapter.
// It is a constructible instance, not a package-level singleton: a
// supervisor may run one Engine per network.
type Engine struct {
	adapter upstream.Adapter
	logger  *slog.Logger
	metrics MetricsRecorder

	refreshRate         time.Duration
	rateWindowSeconds   int
	latestCapacity      int
	flushMinBeforeSize  int
	flushRatioThreshold float64
	flushCooldown       time.Duration
	stripper            Stripper

	// passMu serializes the flush-protection-through-publish portion of a
	// pass (spec.md §5: the mutex must not be held across upstream I/O).
	passMu sync.Mutex

	snapshot   atomic.Pointer[Snapshot]
	info       atomic.Pointer[Info]
	inSync     atomic.Bool
	passesDone atomic.Uint64

	latch      *flushLatch
	rate       *rateTracker
	latest     *latestArrivals
	dispatcher *dispatcher
}

// New creates an Engine backed by the given upstream adapter.
func New(adapter upstream.Adapter, opts ...Option) (*Engine, error) {
	e := &Engine{
		adapter:             adapter,
		logger:              slog.Default(),
		refreshRate:         2 * time.Second,
		rateWindowSeconds:   150,
		latestCapacity:      6,
		flushMinBeforeSize:  20000,
		flushRatioThreshold: 0.80,
		flushCooldown:       120 * time.Second,
		stripper:            DefaultStripper,
		dispatcher:          &dispatcher{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.refreshRate <= 0 {
		return nil, errors.New("mempool: refresh rate must be positive")
	}
	if e.rateWindowSeconds <= 0 {
		return nil, errors.New("mempool: rate window must be positive")
	}
	if e.latestCapacity <= 0 {
		return nil, errors.New("mempool: latest capacity must be positive")
	}

	e.logger = e.logger.With("component", "mempool")
	e.snapshot.Store(emptySnapshot())
	e.info.Store(&Info{})
	e.latch = newFlushLatch(e.flushMinBeforeSize, e.flushRatioThreshold, e.flushCooldown)
	e.rate = newRateTracker(e.rateWindowSeconds)
	e.latest = newLatestArrivals(e.latestCapacity)

	return e, nil
}

// passBudget is the worst-case duration of a single RunOnce ingest loop:
// 10x the nominal refresh rate.
func (e *Engine) passBudget() time.Duration {
	return 10 * e.refreshRate
}

// RunOnce executes one reconciliation pass (spec.md §4.5).
func (e *Engine) RunOnce(ctx context.Context) error {
	start := time.Now()

	before := e.snapshot.Load()
	beforeSize := before.size()

	// --- 1. Snapshot phase ---
	upstreamIDs, err := e.adapter.ListPendingIDs(ctx)
	if err != nil {
		e.logger.Warn("list pending ids failed", "error", err)
		return fmt.Errorf("listing pending ids: %w", err)
	}
	upstreamSet := mapset.NewThreadUnsafeSet(upstreamIDs...)
	upstreamSize := upstreamSet.Cardinality()

	budget := e.passBudget()
	wasInSync := e.inSync.Load()

	// --- 2. Ingest phase ---
	afterIngest := make(map[string]*TransactionExtended, beforeSize+len(upstreamIDs))
	for k, v := range before.Transactions {
		afterIngest[k] = v
	}

	var added []string
	var addedTxs []*TransactionExtended

ingest:
	for _, txid := range upstreamIDs {
		if _, exists := afterIngest[txid]; exists {
			continue
		}

		tx, err := e.adapter.GetTransaction(ctx, txid)
		if err != nil {
			if errors.Is(err, upstream.ErrNotFound) {
				// Evicted between list and fetch; skip, not an error.
				continue
			}
			e.logger.Warn("fetch transaction failed, aborting pass", "txid", txid, "error", err)
			return fmt.Errorf("fetching transaction %s: %w", txid, err)
		}

		te := newTransactionExtended(tx, time.Now())
		afterIngest[txid] = te
		added = append(added, txid)
		addedTxs = append(addedTxs, te)

		if wasInSync {
			e.rate.Record(nowMs(), te.Vsize)
		}

		if time.Since(start) > budget {
			break ingest
		}
	}

	// --- 3, 4, 5, 6, 7: serialize the mutating tail of the pass. ---
	e.passMu.Lock()
	defer e.passMu.Unlock()

	latch, forceOutOfSync := e.latch.ObserveAndAdvance(beforeSize, upstreamSize)
	if forceOutOfSync {
		e.inSync.Store(false)
	}

	var newCacheMap map[string]*TransactionExtended
	var removed []string

	if latch == LatchArmed {
		newCacheMap = afterIngest
		removed = nil
	} else {
		newCacheMap = make(map[string]*TransactionExtended, len(afterIngest))
		for k, v := range afterIngest {
			if upstreamSet.ContainsOne(k) {
				newCacheMap[k] = v
			} else {
				removed = append(removed, k)
			}
		}
	}

	e.latest.Push(addedTxs, e.stripper)

	if !e.inSync.Load() && upstreamSize == len(newCacheMap) {
		e.inSync.Store(true)
	}

	newSnapshot := &Snapshot{Transactions: newCacheMap}
	e.snapshot.Store(newSnapshot)

	if len(added) > 0 || len(removed) > 0 {
		e.dispatcher.Notify(newSnapshot, added, removed)
	}

	e.passesDone.Add(1)

	if e.metrics != nil {
		e.metrics.ObservePass(len(newCacheMap), len(added), len(removed), time.Since(start), latch)
	}

	return nil
}

// TickRate recomputes the smoothed arrival rate. Intended to be called
// once a second by the owning supervisor or by Run's internal ticker.
func (e *Engine) TickRate() {
	e.rate.Tick(nowMs())
	if e.metrics != nil {
		e.metrics.ObserveRate(e.rate.Current())
	}
}

// infoRefreshInterval is the cadence for GetMempoolInfo polling. It is
// deliberately decoupled from refreshRate: the pool summary is cheap,
// low-churn metadata, not part of the reconciliation pass itself.
const infoRefreshInterval = 5 * time.Second

// Run drives RunOnce at refreshRate cadence, the rate tracker at 1Hz, and
// the upstream pool-summary refresh at infoRefreshInterval, until ctx is
// canceled. All timers are owned here and stopped on exit.
func (e *Engine) Run(ctx context.Context) error {
	passTicker := time.NewTicker(e.refreshRate)
	defer passTicker.Stop()

	rateTicker := time.NewTicker(time.Second)
	defer rateTicker.Stop()

	infoTicker := time.NewTicker(infoRefreshInterval)
	defer infoTicker.Stop()

	defer e.latch.Stop()

	if err := e.RefreshInfo(ctx); err != nil {
		e.logger.Warn("initial mempool info refresh failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-passTicker.C:
			if err := e.RunOnce(ctx); err != nil {
				e.logger.Warn("pass aborted", "error", err)
			}
		case <-rateTicker.C:
			e.TickRate()
		case <-infoTicker.C:
			if err := e.RefreshInfo(ctx); err != nil {
				e.logger.Warn("mempool info refresh failed", "error", err)
			}
		}
	}
}

// GetSnapshot returns the current cache reference. Consumers must treat
// it as read-only until the next observer callback.
func (e *Engine) GetSnapshot() *Snapshot {
	return e.snapshot.Load()
}

// SetSnapshot replaces the cache atomically (used to rehydrate from an
// external persistence layer) and fires the empty-diff seeding callback.
func (e *Engine) SetSnapshot(snap *Snapshot) {
	if snap == nil {
		snap = emptySnapshot()
	}
	e.snapshot.Store(snap)
	e.dispatcher.Notify(snap, nil, nil)
}

// SetObserver registers the single change observer, firing an immediate
// empty-diff seeding callback so it can initialize itself.
func (e *Engine) SetObserver(fn Observer) {
	e.dispatcher.Set(fn, e.snapshot.Load())
}

// GetInfo returns the last-fetched upstream pool summary.
func (e *Engine) GetInfo() Info {
	if info := e.info.Load(); info != nil {
		return *info
	}
	return Info{}
}

// RefreshInfo fetches and stores the upstream pool summary.
func (e *Engine) RefreshInfo(ctx context.Context) error {
	info, err := e.adapter.GetMempoolInfo(ctx)
	if err != nil {
		return fmt.Errorf("refreshing mempool info: %w", err)
	}
	mapped := Info{Size: info.Size, Bytes: info.Bytes}
	e.info.Store(&mapped)
	return nil
}

// GetRate returns the current smoothed arrival rate.
func (e *Engine) GetRate() Rate {
	return e.rate.Current()
}

// GetLatest returns the stripped latest-arrivals list, newest first.
func (e *Engine) GetLatest() []any {
	return e.latest.Snapshot()
}

// FirstSeenOf returns a parallel array of local first-seen unix-millis
// timestamps for the given txids; 0 for unknown ids.
func (e *Engine) FirstSeenOf(ids []string) []int64 {
	snap := e.snapshot.Load()
	out := make([]int64, len(ids))
	for i, id := range ids {
		if tx, ok := snap.Transactions[id]; ok {
			out[i] = tx.FirstSeen.UnixMilli()
		}
	}
	return out
}

// IsInSync reports whether the local cache size has matched the upstream
// listing size on some prior pass (and hasn't since been forced false by
// the flush-protection latch).
func (e *Engine) IsInSync() bool {
	return e.inSync.Load()
}

// HasCompletedOnePass reports whether at least one reconciliation pass has
// run. Used by readiness probes as a looser bar than IsInSync.
func (e *Engine) HasCompletedOnePass() bool {
	return e.passesDone.Load() > 0
}

// Ready implements pkg/health's ReadinessChecker.
func (e *Engine) Ready() bool {
	return e.HasCompletedOnePass()
}
