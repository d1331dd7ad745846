package mempool

import (
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

func TestNewTransactionExtended_DerivedFields(t *testing.T) {
	tx := &upstream.Transaction{
		TxID:   "A",
		Weight: uint256.NewInt(1200),
		Fee:    uint256.NewInt(600),
	}
	te := newTransactionExtended(tx, time.Unix(100, 0))

	if te.Vsize.Uint64() != 300 {
		t.Errorf("Vsize = %d, want 300", te.Vsize.Uint64())
	}
	if te.FeePerVsize != 2.0 {
		t.Errorf("FeePerVsize = %v, want 2.0", te.FeePerVsize)
	}
	if !te.FirstSeen.Equal(time.Unix(100, 0)) {
		t.Errorf("FirstSeen = %v, want 100", te.FirstSeen)
	}
}

func TestNewTransactionExtended_NoFeeIsZeroDensity(t *testing.T) {
	tx := &upstream.Transaction{TxID: "A", Weight: uint256.NewInt(400)}
	te := newTransactionExtended(tx, time.Now())

	if te.FeePerVsize != 0 {
		t.Errorf("FeePerVsize = %v, want 0 when fee is absent", te.FeePerVsize)
	}
}

func TestNewTransactionExtended_ZeroWeightIsZeroDensity(t *testing.T) {
	tx := &upstream.Transaction{TxID: "A", Weight: uint256.NewInt(0), Fee: uint256.NewInt(50)}
	te := newTransactionExtended(tx, time.Now())

	if te.Vsize.Uint64() != 0 {
		t.Errorf("Vsize = %d, want 0", te.Vsize.Uint64())
	}
	if te.FeePerVsize != 0 {
		t.Errorf("FeePerVsize = %v, want 0 when vsize is 0", te.FeePerVsize)
	}
}
