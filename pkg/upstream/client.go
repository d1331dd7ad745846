package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// Adapter is the contract the sync engine consumes. All three operations
// may fail; ListPendingIDs failures and GetTransaction errors other than
// ErrNotFound are fatal to the current pass, GetTransaction's ErrNotFound
// is not. GetMempoolInfo is polled outside the pass, so its failures leave
// the pass unaffected.
type Adapter interface {
	ListPendingIDs(ctx context.Context) ([]string, error)
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
	GetMempoolInfo(ctx context.Context) (Info, error)
}

// Client talks to a Bitcoin-Core-style JSON-RPC node.
type Client struct {
	url        string
	user, pass string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewClient creates a new upstream RPC client.
func NewClient(url, user, pass string) *Client {
	return &Client{
		url:  url,
		user: user,
		pass: pass,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 256,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ListPendingIDs returns the current set of pending transaction ids as an
// unordered sequence (getrawmempool, non-verbose).
func (c *Client) ListPendingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.call(ctx, "getrawmempool", []any{false}, &ids); err != nil {
		return nil, fmt.Errorf("getrawmempool: %w", err)
	}
	return ids, nil
}

// GetTransaction fetches a single mempool entry's fee/weight fields plus
// its opaque raw-transaction payload. Returns ErrNotFound when the node no
// longer has the transaction (evicted between listing and fetch).
func (c *Client) GetTransaction(ctx context.Context, txid string) (*Transaction, error) {
	var entry rpcMempoolEntry
	if err := c.call(ctx, "getmempoolentry", []any{txid}, &entry); err != nil {
		if isNotFoundRPCError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getmempoolentry %s: %w", txid, err)
	}

	fee, err := entry.feeUint256()
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.call(ctx, "getrawtransaction", []any{txid, false}, &raw); err != nil {
		if isNotFoundRPCError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}

	return &Transaction{
		TxID:    txid,
		Weight:  entry.weightUint256(),
		Fee:     fee,
		Payload: raw,
	}, nil
}

// GetMempoolInfo returns the node's self-reported pool size/bytes summary.
func (c *Client) GetMempoolInfo(ctx context.Context) (Info, error) {
	var info rpcMempoolInfo
	if err := c.call(ctx, "getmempoolinfo", nil, &info); err != nil {
		return Info{}, fmt.Errorf("getmempoolinfo: %w", err)
	}
	return Info{Size: info.Size, Bytes: info.Bytes}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// rpcRequest/rpcResponse mirror the teacher's JSON-RPC envelope, reused
// verbatim since both protocols are JSON-RPC 2.0 over HTTP.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// isNotFoundRPCError reports whether err is Bitcoin Core's "No such
// mempool or blockchain transaction" error (RPC_INVALID_ADDRESS_OR_KEY,
// code -5).
func isNotFoundRPCError(err error) bool {
	rpcErr, ok := err.(*rpcError)
	return ok && rpcErr.Code == -5
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshaling result: %w", err)
		}
	}

	return nil
}

// Verify interface compliance at compile time.
var _ Adapter = (*Client)(nil)
