package mempool

import "testing"

func TestDispatcher_SeedsOnSet(t *testing.T) {
	d := &dispatcher{}
	seed := emptySnapshot()

	var calls int
	d.Set(func(snap *Snapshot, added, removed []string) {
		calls++
		if snap != seed || added != nil || removed != nil {
			t.Errorf("seeding callback got snap=%v added=%v removed=%v", snap, added, removed)
		}
	}, seed)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDispatcher_NotifyOnlyInvokesRegisteredObserver(t *testing.T) {
	d := &dispatcher{}
	d.Notify(emptySnapshot(), []string{"A"}, nil) // no observer registered, must not panic

	var got []string
	d.Set(func(snap *Snapshot, added, removed []string) { got = added }, emptySnapshot())
	got = nil

	d.Notify(emptySnapshot(), []string{"A", "B"}, nil)
	if len(got) != 2 {
		t.Fatalf("got = %v, want 2 entries", got)
	}
}

func TestDispatcher_Registered(t *testing.T) {
	d := &dispatcher{}
	if d.Registered() {
		t.Fatal("Registered() = true before Set")
	}
	d.Set(func(*Snapshot, []string, []string) {}, emptySnapshot())
	if !d.Registered() {
		t.Fatal("Registered() = false after Set")
	}
}
