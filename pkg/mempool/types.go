// Package mempool implements the mempool synchronization engine: a
// reconciliation loop that turns a stateless "list pending ids" + "fetch
// transaction" upstream contract into a bounded-latency local replica with
// arrival-rate statistics, a latest-arrivals ring, and protection against
// spurious upstream flushes.
package mempool

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

// TransactionExtended is the cached, immutable-after-insertion view of a
// single mempool transaction. Vsize and FeePerVsize are computed exactly
// once at ingest and never recomputed.
type TransactionExtended struct {
	TxID        string
	Weight      *uint256.Int
	Fee         *uint256.Int // nil when the upstream reported no fee
	Vsize       *uint256.Int // Weight / 4
	FeePerVsize float64      // Fee / Vsize as a ratio; 0 when Fee is nil or Vsize is 0
	FirstSeen   time.Time    // local ingest wall-clock time, not from upstream
	Payload     []byte       // opaque upstream payload, passed through unexamined
}

func newTransactionExtended(tx *upstream.Transaction, now time.Time) *TransactionExtended {
	vsize := new(uint256.Int).Div(tx.Weight, uint256.NewInt(4))

	te := &TransactionExtended{
		TxID:      tx.TxID,
		Weight:    tx.Weight,
		Fee:       tx.Fee,
		Vsize:     vsize,
		FirstSeen: now,
		Payload:   []byte(tx.Payload),
	}
	te.FeePerVsize = feePerVsize(tx.Fee, vsize)
	return te
}

// feePerVsize is the Open Question from spec.md §9: defined as 0 when fee
// is absent or vsize is zero, reproduced as specified.
func feePerVsize(fee, vsize *uint256.Int) float64 {
	if fee == nil || vsize == nil || vsize.IsZero() {
		return 0
	}
	ratio := new(big.Float).Quo(
		new(big.Float).SetInt(fee.ToBig()),
		new(big.Float).SetInt(vsize.ToBig()),
	)
	f, _ := ratio.Float64()
	return f
}

// Info is the upstream's self-reported pool summary, refreshed atomically
// and independent of the transaction cache.
type Info struct {
	Size  int
	Bytes int
}

// Snapshot is an immutable view of the mempool cache handed to consumers.
// Consumers MUST treat it as read-only until the next observer callback.
type Snapshot struct {
	Transactions map[string]*TransactionExtended
}

func emptySnapshot() *Snapshot {
	return &Snapshot{Transactions: make(map[string]*TransactionExtended)}
}

func (s *Snapshot) size() int {
	if s == nil {
		return 0
	}
	return len(s.Transactions)
}

// Stripper produces the stripped projection of a transaction kept in the
// latest-arrivals ring. The engine does not know or care about the
// stripped shape; a typical stripper keeps only txid, fee, and vsize.
type Stripper interface {
	Strip(tx *TransactionExtended) any
}

// StripperFunc adapts a plain function to the Stripper interface.
type StripperFunc func(tx *TransactionExtended) any

// Strip calls fn.
func (fn StripperFunc) Strip(tx *TransactionExtended) any { return fn(tx) }

// StrippedTransaction is the default Stripper's projection.
type StrippedTransaction struct {
	TxID        string
	Fee         *uint256.Int
	Vsize       *uint256.Int
	FeePerVsize float64
	FirstSeen   time.Time
}

// DefaultStripper keeps the fields consumers of a block explorer frontend
// typically need to render a "recent transactions" list.
var DefaultStripper = StripperFunc(func(tx *TransactionExtended) any {
	return StrippedTransaction{
		TxID:        tx.TxID,
		Fee:         tx.Fee,
		Vsize:       tx.Vsize,
		FeePerVsize: tx.FeePerVsize,
		FirstSeen:   tx.FirstSeen,
	}
})

// Rate is the smoothed arrival-rate pair exposed to consumers.
type Rate struct {
	TxPerSecond     float64
	VBytesPerSecond float64
}
