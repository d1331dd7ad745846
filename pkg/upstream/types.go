// Package upstream provides the node adapter consumed by the mempool
// synchronization engine: listing pending transaction ids, fetching a
// single transaction, and reading the node's self-reported pool summary.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrNotFound signals that a transaction id was evicted from the upstream
// mempool between the listing call and the fetch call. The engine treats
// this as a skip, not a pass failure.
var ErrNotFound = errors.New("upstream: transaction not found")

// Info is the upstream node's self-reported pool summary.
type Info struct {
	Size  int
	Bytes int
}

// Transaction is the subset of an upstream mempool entry the engine needs
// to derive vsize and fee density. Weight and Fee are represented as
// uint256 so an adversarial or corrupted upstream value can never overflow
// silently; Payload carries the opaque upstream fields through to
// consumers unexamined.
type Transaction struct {
	TxID    string
	Weight  *uint256.Int
	Fee     *uint256.Int // nil when the upstream omits a fee (e.g. unknown ancestor fee)
	Payload json.RawMessage
}

// rpcMempoolEntry mirrors Bitcoin-Core-style getmempoolentry output for the
// fields this engine cares about.
type rpcMempoolEntry struct {
	VSize  uint64  `json:"vsize"`
	Weight uint64  `json:"weight"`
	Fees   rpcFees `json:"fees"`
}

type rpcFees struct {
	Base string `json:"base"` // decimal BTC string, e.g. "0.00001000"
}

type rpcMempoolInfo struct {
	Size  int `json:"size"`
	Bytes int `json:"bytes"`
}

func (e *rpcMempoolEntry) weightUint256() *uint256.Int {
	if e.Weight > 0 {
		return uint256.NewInt(e.Weight)
	}
	// Fall back to vsize*4 when the node only reports vsize.
	return uint256.NewInt(e.VSize * 4)
}

func (e *rpcMempoolEntry) feeUint256() (*uint256.Int, error) {
	if e.Fees.Base == "" {
		return nil, nil
	}
	sats, err := btcStringToSats(e.Fees.Base)
	if err != nil {
		return nil, fmt.Errorf("parsing fee %q: %w", e.Fees.Base, err)
	}
	return uint256.NewInt(sats), nil
}

// btcStringToSats converts a decimal BTC amount (up to 8 fraction digits,
// as returned by Bitcoin Core JSON-RPC) into satoshis.
func btcStringToSats(s string) (uint64, error) {
	var whole, frac string
	for i, c := range s {
		if c == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}
	if frac == "" {
		whole = s
	}
	for len(frac) < 8 {
		frac += "0"
	}
	frac = frac[:8]

	var wholeVal, fracVal uint64
	if whole != "" {
		if _, err := fmt.Sscanf(whole, "%d", &wholeVal); err != nil {
			return 0, err
		}
	}
	if _, err := fmt.Sscanf(frac, "%d", &fracVal); err != nil {
		return 0, err
	}
	return wholeVal*100_000_000 + fracVal, nil
}
