package receipt

import (
	"context"
	"errors"

	"github.com/lxpay/receipt-store/query"
)

var (
	ErrExists   = errors.New("receipt row already exists")
	ErrNotFound = errors.New("receipt row not found")
)

// Store is the durable table of receipt rows. Implementations must treat
// Apply as insert-if-absent: re-applying a transaction already present
// returns ErrExists without touching the existing row.
//
// Store implementations are safe for concurrent use, but every call made by
// this package flows through the owning Service's serialized executor, so an
// implementation never sees overlapping mutations from here.
type Store interface {
	Apply(ctx context.Context, row *Row) error
	QueryFamily(ctx context.Context, productFamily string, opts ...query.Option) ([]*Row, error)
	QueryAll(ctx context.Context, opts ...query.Option) ([]*Row, error)
}
