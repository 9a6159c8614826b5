// Package payment defines the payment-queue collaborator boundary: the
// upstream queue that originates purchase and restore events and must be
// explicitly told when a transaction is finished.
package payment

import (
	"time"
)

// State mirrors the upstream payment lifecycle. Terminal states are reported
// by the queue, never computed locally.
type State uint8

const (
	StatePurchasing State = iota
	StatePurchased
	StateFailed
	StateRestored
	StateDeferred
)

func (s State) String() string {
	switch s {
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	case StateRestored:
		return "restored"
	case StateDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Terminal reports whether the queue will emit no further updates for a
// transaction in this state. Deferred is a waiting state, not terminal.
func (s State) Terminal() bool {
	return s == StatePurchased || s == StateFailed || s == StateRestored
}

// Payment is a request to purchase a product.
type Payment struct {
	ProductID string
	Quantity  int64
}

// Transaction is a single purchase or restore event with its own identity.
// It is transient ledger-side state; only rows derived from it persist.
type Transaction struct {
	// ID is unique per transaction. Empty until the queue assigns one, which
	// happens no later than the first terminal update.
	ID string

	// OriginalID is the identity of the first transaction in the renewal
	// chain. Equals ID for a first purchase.
	OriginalID string

	Payment Payment
	State   State

	// Err is set when State is StateFailed.
	Err error

	PurchaseDate  time.Time
	ExpiresDate   *time.Time
	IsTrialPeriod bool

	// Receipt is the opaque receipt blob accompanying the transaction.
	Receipt []byte
}

func (t *Transaction) Clone() *Transaction {
	cloned := *t
	if t.ExpiresDate != nil {
		expires := *t.ExpiresDate
		cloned.ExpiresDate = &expires
	}
	cloned.Receipt = append([]byte(nil), t.Receipt...)
	return &cloned
}

// Observer receives queue events. Callbacks for a single queue are invoked
// sequentially, in delivery order.
type Observer interface {
	// OnTransactionsUpdated is invoked for every state change, including
	// unsolicited purchased/restored transactions not tied to an active
	// AddPayment call.
	OnTransactionsUpdated(txs []*Transaction)

	// OnRestoreCompleted is invoked once the queue reports end-of-restoration.
	// err is the queue's own restore failure, if any; per-transaction
	// failures arrive through OnTransactionsUpdated.
	OnRestoreCompleted(err error)
}

// Queue is the platform payment queue.
type Queue interface {
	SetObserver(o Observer)

	AddPayment(p Payment) error
	RestoreCompletedTransactions() error

	// FinishTransaction acknowledges a transaction so the queue stops
	// redelivering it. Finishing the same transaction twice is harmless.
	FinishTransaction(tx *Transaction) error
}
