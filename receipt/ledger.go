package receipt

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lxpay/receipt-store/event"
	"github.com/lxpay/receipt-store/payment"
)

// pendingPayment is a caller waiting on a terminal (or deferred) state for a
// payment it submitted. The queue reports transactions by product, so waiters
// are matched FIFO per product id.
type pendingPayment struct {
	productID string
	ch        chan paymentResult
}

type paymentResult struct {
	tx  *payment.Transaction
	err error
}

type restoreState struct {
	failures []error
	done     chan error
}

// Ledger translates payment-queue events into store mutations, at most once
// per transaction identity, and decides when to signal "finished" back to
// the queue.
type Ledger struct {
	log       *zap.Logger
	store     Store
	exec      *executor
	queue     payment.Queue
	familyFor FamilyFunc

	updates *event.Bus[string, *payment.Transaction]

	mu      sync.Mutex
	pending []*pendingPayment
	restore *restoreState
}

func newLedger(log *zap.Logger, store Store, exec *executor, queue payment.Queue, familyFor FamilyFunc) *Ledger {
	return &Ledger{
		log:       log,
		store:     store,
		exec:      exec,
		queue:     queue,
		familyFor: familyFor,
		updates:   event.NewBus[string, *payment.Transaction](),
	}
}

// AddPayment submits p to the payment queue and waits for the queue to report
// a terminal or deferred state. A deferred transaction is returned with nil
// error; its terminal state arrives later as an unsolicited update.
func (l *Ledger) AddPayment(ctx context.Context, p payment.Payment) (*payment.Transaction, error) {
	waiter := &pendingPayment{
		productID: p.ProductID,
		ch:        make(chan paymentResult, 1),
	}

	l.mu.Lock()
	l.pending = append(l.pending, waiter)
	l.mu.Unlock()

	if err := l.queue.AddPayment(p); err != nil {
		l.removeWaiter(waiter)
		return nil, WrapError(CodeFailsToAddPayment, err)
	}

	select {
	case res := <-waiter.ch:
		return res.tx, res.err
	case <-ctx.Done():
		l.removeWaiter(waiter)
		return nil, ctx.Err()
	}
}

// RestoreCompletedTransactions triggers the queue's restore flow and waits
// for end-of-restoration. Per-transaction failures are collected and surfaced
// as one aggregate error; they never abort the remaining restores.
func (l *Ledger) RestoreCompletedTransactions(ctx context.Context) error {
	st := &restoreState{done: make(chan error, 1)}

	l.mu.Lock()
	if l.restore != nil {
		l.mu.Unlock()
		return newError(CodeFailsToRestoreCompletedTransactions, "restore already in progress")
	}
	l.restore = st
	l.mu.Unlock()

	if err := l.queue.RestoreCompletedTransactions(); err != nil {
		l.clearRestore(st)
		return WrapError(CodeFailsToRestoreCompletedTransactions, err)
	}

	select {
	case err := <-st.done:
		return err
	case <-ctx.Done():
		l.clearRestore(st)
		return ctx.Err()
	}
}

// Updates is the bus on which every processed transaction update is
// published, keyed by transaction id. Unsolicited purchases and renewals are
// observable here.
func (l *Ledger) Updates() *event.Bus[string, *payment.Transaction] {
	return l.updates
}

// OnTransactionsUpdated implements payment.Observer.
func (l *Ledger) OnTransactionsUpdated(txs []*payment.Transaction) {
	for _, tx := range txs {
		l.processTransaction(tx.Clone())
	}
}

func (l *Ledger) processTransaction(tx *payment.Transaction) {
	log := l.log.With(
		zap.String("transaction_id", tx.ID),
		zap.String("product_id", tx.Payment.ProductID),
		zap.Stringer("state", tx.State),
	)

	switch tx.State {
	case payment.StatePurchasing:
		// Still waiting on the queue; nothing to record.

	case payment.StateDeferred:
		log.Debug("Transaction deferred")
		l.resolveWaiter(tx, nil)
		l.updates.OnEvent(tx.ID, tx)

	case payment.StateFailed:
		log.Debug("Transaction failed", zap.Error(tx.Err))
		// No row is written, but the queue is still released so the failed
		// transaction does not re-block it.
		if err := l.queue.FinishTransaction(tx); err != nil {
			log.Warn("Failed to finish failed transaction", zap.Error(err))
		}
		failure := WrapError(CodeFailsToAddPayment, tx.Err)
		l.recordRestoreFailure(failure)
		l.resolveWaiter(tx, failure)
		l.updates.OnEvent(tx.ID, tx)

	case payment.StatePurchased, payment.StateRestored:
		// The store mutation re-enters the serialized context as a new task;
		// the queue callback never holds the store.
		l.exec.submit(func() {
			l.applyTransaction(log, tx)
		})

	default:
		log.Warn("Ignoring transaction in unknown state")
	}
}

func (l *Ledger) applyTransaction(log *zap.Logger, tx *payment.Transaction) {
	row := rowFromTransaction(tx, l.familyFor)

	err := l.store.Apply(context.Background(), row)
	if err == ErrExists {
		// Redelivery of an already-applied transaction. Not an error; the
		// queue still gets its completion signal below.
		log.Debug("Transaction already applied")
		err = nil
	}

	if err != nil {
		log.Warn("Failed to apply transaction", zap.Error(err))
		if tx.State == payment.StateRestored {
			l.recordRestoreFailure(err)
		}
		l.resolveWaiter(tx, err)
		l.updates.OnEvent(tx.ID, tx)
		return
	}

	if finishErr := l.queue.FinishTransaction(tx); finishErr != nil {
		log.Warn("Failed to finish transaction", zap.Error(finishErr))
	}

	l.resolveWaiter(tx, nil)
	l.updates.OnEvent(tx.ID, tx)
}

// OnRestoreCompleted implements payment.Observer.
func (l *Ledger) OnRestoreCompleted(queueErr error) {
	// Completion re-enters the serialized context behind any restored
	// transactions still being applied, so aggregation observes every
	// per-transaction outcome.
	l.exec.submit(func() {
		l.mu.Lock()
		st := l.restore
		l.restore = nil
		l.mu.Unlock()

		if st == nil {
			if queueErr != nil {
				l.log.Warn("Restore completed with error but no restore in progress", zap.Error(queueErr))
			}
			return
		}

		errs := st.failures
		if queueErr != nil {
			errs = append(errs, queueErr)
		}
		if combined := multierr.Combine(errs...); combined != nil {
			st.done <- WrapError(CodeFailsToRestoreCompletedTransactions, combined)
			return
		}
		st.done <- nil
	})
}

func (l *Ledger) resolveWaiter(tx *payment.Transaction, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, waiter := range l.pending {
		if waiter.productID != tx.Payment.ProductID {
			continue
		}
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
		waiter.ch <- paymentResult{tx: tx, err: err}
		return
	}
}

func (l *Ledger) removeWaiter(target *pendingPayment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, waiter := range l.pending {
		if waiter == target {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

func (l *Ledger) recordRestoreFailure(err error) {
	l.mu.Lock()
	if l.restore != nil {
		l.restore.failures = append(l.restore.failures, err)
	}
	l.mu.Unlock()
}

func (l *Ledger) clearRestore(st *restoreState) {
	l.mu.Lock()
	if l.restore == st {
		l.restore = nil
	}
	l.mu.Unlock()
}

func rowFromTransaction(tx *payment.Transaction, familyFor FamilyFunc) *Row {
	originalID := tx.OriginalID
	if originalID == "" {
		originalID = tx.ID
	}

	row := &Row{
		TransactionID:         tx.ID,
		OriginalTransactionID: originalID,
		ProductID:             tx.Payment.ProductID,
		ProductFamily:         familyFor(tx.Payment.ProductID),
		PurchaseDate:          tx.PurchaseDate,
		IsTrialPeriod:         tx.IsTrialPeriod,
		RawReceiptData:        append([]byte(nil), tx.Receipt...),
	}
	if tx.ExpiresDate != nil {
		expires := *tx.ExpiresDate
		row.ExpiresDate = &expires
	}
	return row
}
