package mempool

import "testing"

func TestLatestArrivals_PrependAndTruncate(t *testing.T) {
	ring := newLatestArrivals(3)

	ring.Push([]*TransactionExtended{{TxID: "A"}, {TxID: "B"}}, DefaultStripper)
	snap := ring.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(snap) = %d, want 2", len(snap))
	}
	if got := snap[0].(StrippedTransaction).TxID; got != "A" {
		t.Errorf("snap[0].TxID = %q, want A", got)
	}
	if got := snap[1].(StrippedTransaction).TxID; got != "B" {
		t.Errorf("snap[1].TxID = %q, want B", got)
	}

	ring.Push([]*TransactionExtended{{TxID: "C"}, {TxID: "D"}}, DefaultStripper)
	snap = ring.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3 (ring must truncate to capacity)", len(snap))
	}
	if got := snap[0].(StrippedTransaction).TxID; got != "C" {
		t.Errorf("snap[0].TxID = %q, want C", got)
	}
	if got := snap[1].(StrippedTransaction).TxID; got != "D" {
		t.Errorf("snap[1].TxID = %q, want D", got)
	}
	if got := snap[2].(StrippedTransaction).TxID; got != "A" {
		t.Errorf("snap[2].TxID = %q, want A", got)
	}
}

func TestLatestArrivals_EmptyPushIsNoop(t *testing.T) {
	ring := newLatestArrivals(6)
	ring.Push(nil, DefaultStripper)
	if snap := ring.Snapshot(); len(snap) != 0 {
		t.Errorf("len(snap) = %d, want 0", len(snap))
	}
}
