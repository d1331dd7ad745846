package mempool

import (
	"context"

	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

type mockAdapter struct {
	listFunc   func(ctx context.Context) ([]string, error)
	getFunc    func(ctx context.Context, txid string) (*upstream.Transaction, error)
	infoFunc   func(ctx context.Context) (upstream.Info, error)
}

func (m *mockAdapter) ListPendingIDs(ctx context.Context) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockAdapter) GetTransaction(ctx context.Context, txid string) (*upstream.Transaction, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, txid)
	}
	return nil, upstream.ErrNotFound
}

func (m *mockAdapter) GetMempoolInfo(ctx context.Context) (upstream.Info, error) {
	if m.infoFunc != nil {
		return m.infoFunc(ctx)
	}
	return upstream.Info{}, nil
}

var _ upstream.Adapter = (*mockAdapter)(nil)
