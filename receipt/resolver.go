package receipt

import (
	"context"
	"time"

	"github.com/lxpay/receipt-store/query"
)

// Resolver is the read-only query layer over the store.
type Resolver struct {
	store Store
	exec  *executor
	now   func() time.Time
}

func newResolver(store Store, exec *executor, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, exec: exec, now: now}
}

// LatestActiveSubscription returns the active receipt for a product family
// as of now. The winner is the row with the maximum expiry; expiry order is
// not assumed to follow purchase order, since out-of-order delivery is
// possible. A family with no future expiry resolves to ErrNoSubscription,
// which is an expected outcome, not a fault.
func (r *Resolver) LatestActiveSubscription(ctx context.Context, productFamily string) (*Row, *PurchaseInfo, error) {
	var rows []*Row
	err := r.exec.do(ctx, func() error {
		var queryErr error
		rows, queryErr = r.store.QueryFamily(context.Background(), productFamily)
		return queryErr
	})
	if err != nil {
		return nil, nil, err
	}

	var best *Row
	for _, row := range rows {
		if row.ExpiresDate == nil {
			continue
		}
		if best == nil || row.ExpiresDate.After(*best.ExpiresDate) {
			best = row
			continue
		}
		// Rows sharing the maximum expiry resolve to the greatest
		// transaction id. Arbitrary, but stable across runs.
		if row.ExpiresDate.Equal(*best.ExpiresDate) && row.TransactionID > best.TransactionID {
			best = row
		}
	}

	if best == nil || !best.ExpiresDate.After(r.now()) {
		return nil, nil, ErrNoSubscription
	}
	return best, best.PurchaseInfo(), nil
}

// Subscriptions lists every subscription row recorded for a family, newest
// purchase first. Non-expiring rows are excluded.
func (r *Resolver) Subscriptions(ctx context.Context, productFamily string) ([]*Row, error) {
	var rows []*Row
	err := r.exec.do(ctx, func() error {
		var queryErr error
		rows, queryErr = r.store.QueryFamily(context.Background(), productFamily, query.WithDescending())
		return queryErr
	})
	if err != nil {
		return nil, err
	}

	subscriptions := rows[:0]
	for _, row := range rows {
		if row.ExpiresDate != nil {
			subscriptions = append(subscriptions, row)
		}
	}
	return subscriptions, nil
}
