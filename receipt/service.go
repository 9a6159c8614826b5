// Package receipt implements a local, durable, concurrency-safe cache of
// in-app-purchase receipts and the logic that derives whether a subscription
// is currently active.
package receipt

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lxpay/receipt-store/event"
	"github.com/lxpay/receipt-store/payment"
)

// Service is the process-wide entry point. It composes the ledger, the
// validation coordinator and the resolver over one store, and owns the single
// serialized execution context through which every store access flows.
//
// Construct exactly one Service per store file and inject it where needed;
// there is no global default instance.
type Service struct {
	log   *zap.Logger
	store Store
	queue payment.Queue
	exec  *executor

	ledger      *Ledger
	coordinator *Coordinator
	resolver    *Resolver
}

type Option func(*serviceOptions)

type serviceOptions struct {
	familyFor FamilyFunc
	now       func() time.Time
}

// WithFamilyFunc sets how product ids map to product families. The default
// treats every product as its own family.
func WithFamilyFunc(familyFor FamilyFunc) Option {
	return func(o *serviceOptions) {
		if familyFor != nil {
			o.familyFor = familyFor
		}
	}
}

// WithClock overrides the time source used to decide whether a subscription
// is still active.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		o.now = now
	}
}

func NewService(
	log *zap.Logger,
	store Store,
	queue payment.Queue,
	validator Validator,
	opts ...Option,
) *Service {
	applied := serviceOptions{familyFor: IdentityFamily}
	for _, opt := range opts {
		opt(&applied)
	}

	exec := newExecutor()
	s := &Service{
		log:         log,
		store:       store,
		queue:       queue,
		exec:        exec,
		ledger:      newLedger(log, store, exec, queue, applied.familyFor),
		coordinator: newCoordinator(log, store, exec, validator, applied.familyFor),
		resolver:    newResolver(store, exec, applied.now),
	}

	queue.SetObserver(s.ledger)

	return s
}

// AddPayment submits a payment and resolves once the queue reports a terminal
// or deferred state for it.
func (s *Service) AddPayment(ctx context.Context, p payment.Payment) (*payment.Transaction, error) {
	return s.ledger.AddPayment(ctx, p)
}

// RestoreCompletedTransactions replays completed purchases from the queue,
// aggregating per-transaction failures into one error while the rest are
// still applied.
func (s *Service) RestoreCompletedTransactions(ctx context.Context) error {
	return s.ledger.RestoreCompletedTransactions(ctx)
}

// InsertTransactionReceipt validates a raw receipt blob and persists the
// resulting row.
func (s *Service) InsertTransactionReceipt(ctx context.Context, blob []byte) (*Row, *PurchaseInfo, error) {
	return s.coordinator.InsertReceipt(ctx, blob)
}

// LatestActiveSubscription resolves the active receipt for a product family
// as of now. ErrNoSubscription is the expected no-match result.
func (s *Service) LatestActiveSubscription(ctx context.Context, productFamily string) (*Row, *PurchaseInfo, error) {
	return s.resolver.LatestActiveSubscription(ctx, productFamily)
}

// Subscriptions lists every subscription row recorded for a family.
func (s *Service) Subscriptions(ctx context.Context, productFamily string) ([]*Row, error) {
	return s.resolver.Subscriptions(ctx, productFamily)
}

// TransactionUpdates exposes processed transaction updates, keyed by
// transaction id. Unsolicited purchases and renewals surface here.
func (s *Service) TransactionUpdates() *event.Bus[string, *payment.Transaction] {
	return s.ledger.Updates()
}

// Close detaches from the payment queue and stops the serialized execution
// context after draining submitted work.
func (s *Service) Close() {
	s.queue.SetObserver(nil)
	s.exec.close()
}
