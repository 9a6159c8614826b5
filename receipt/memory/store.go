package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lxpay/receipt-store/query"
	"github.com/lxpay/receipt-store/receipt"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*receipt.Row
}

func NewInMemory() receipt.Store {
	return &InMemoryStore{
		rows: map[string]*receipt.Row{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[string]*receipt.Row)
}

func (s *InMemoryStore) Apply(ctx context.Context, row *receipt.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rows[row.TransactionID]
	if ok {
		return receipt.ErrExists
	}

	s.rows[row.TransactionID] = row.Clone()

	return nil
}

func (s *InMemoryStore) QueryFamily(ctx context.Context, productFamily string, opts ...query.Option) ([]*receipt.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*receipt.Row
	for _, row := range s.rows {
		if row.ProductFamily == productFamily {
			rows = append(rows, row.Clone())
		}
	}
	return applyQueryOptions(rows, opts), nil
}

func (s *InMemoryStore) QueryAll(ctx context.Context, opts ...query.Option) ([]*receipt.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*receipt.Row, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row.Clone())
	}
	return applyQueryOptions(rows, opts), nil
}

func applyQueryOptions(rows []*receipt.Row, opts []query.Option) []*receipt.Row {
	applied := query.ApplyOptions(opts...)

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			if applied.Order == query.Desc {
				return a.PurchaseDate.After(b.PurchaseDate)
			}
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		if applied.Order == query.Desc {
			return a.TransactionID > b.TransactionID
		}
		return a.TransactionID < b.TransactionID
	})

	if applied.Limit > 0 && len(rows) > applied.Limit {
		rows = rows[:applied.Limit]
	}
	return rows
}
