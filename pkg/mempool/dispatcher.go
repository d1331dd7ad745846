package mempool

import "sync"

// Observer is the single callback invoked at the end of a pass. snapshot
// must be treated as read-only; added and removed are disjoint sets of
// txids for this pass.
type Observer func(snapshot *Snapshot, added, removed []string)

// dispatcher holds exactly one registered observer, by design (spec.md
// §9: "if multiple consumers are needed, a fan-out collaborator owns the
// multiplexing" — see internal/broadcaster.Hub).
type dispatcher struct {
	mu       sync.Mutex
	observer Observer
}

// Set replaces the registered observer and immediately fires an
// empty-diff seeding callback with the given snapshot, so the new
// observer can initialize its own state. This is the sole case of an
// empty-diff callback besides SetSnapshot.
func (d *dispatcher) Set(observer Observer, seed *Snapshot) {
	d.mu.Lock()
	d.observer = observer
	d.mu.Unlock()

	if observer != nil {
		observer(seed, nil, nil)
	}
}

// Notify invokes the registered observer, if any, with the given diff.
// Callers are responsible for only calling this when added or removed is
// non-empty (step 7 of the reconciliation pass) or when seeding.
func (d *dispatcher) Notify(snapshot *Snapshot, added, removed []string) {
	d.mu.Lock()
	observer := d.observer
	d.mu.Unlock()

	if observer != nil {
		observer(snapshot, added, removed)
	}
}

// Registered reports whether an observer is currently set.
func (d *dispatcher) Registered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observer != nil
}
