package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lxpay/receipt-store/payment"
)

// Queue is an in-memory payment queue. It mimics the platform queue closely
// enough to exercise the ledger: state updates are delivered asynchronously
// but in order, completed purchases are redelivered on restore, and
// transactions stay in the queue until finished.
type Queue struct {
	mu       sync.Mutex
	observer payment.Observer
	history  []*payment.Transaction
	finishes map[string]int

	failNext   error
	deferNext  bool
	restoreErr error

	// BuildTransaction overrides how a terminal transaction is produced for
	// a payment. Tests set this to control dates, receipts and identities.
	BuildTransaction func(p payment.Payment) *payment.Transaction

	dispatch chan func()
	done     chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{
		finishes: make(map[string]int),
		dispatch: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	for f := range q.dispatch {
		f()
	}
	close(q.done)
}

// Close stops the delivery loop after draining queued events.
func (q *Queue) Close() {
	close(q.dispatch)
	<-q.done
}

func (q *Queue) SetObserver(o payment.Observer) {
	q.mu.Lock()
	q.observer = o
	q.mu.Unlock()
}

// FailNextPayment makes the next AddPayment end in StateFailed with err.
func (q *Queue) FailNextPayment(err error) {
	q.mu.Lock()
	q.failNext = err
	q.mu.Unlock()
}

// DeferNextPayment makes the next AddPayment report StateDeferred and stop.
func (q *Queue) DeferNextPayment() {
	q.mu.Lock()
	q.deferNext = true
	q.mu.Unlock()
}

// FailRestore makes RestoreCompletedTransactions report a queue-level
// restore failure after delivering whatever history it has.
func (q *Queue) FailRestore(err error) {
	q.mu.Lock()
	q.restoreErr = err
	q.mu.Unlock()
}

// SeedHistory preloads completed transactions that a restore will redeliver.
func (q *Queue) SeedHistory(txs ...*payment.Transaction) {
	q.mu.Lock()
	for _, tx := range txs {
		q.history = append(q.history, tx.Clone())
	}
	q.mu.Unlock()
}

// Deliver injects unsolicited transaction updates, as the platform queue does
// for renewals and purchases completed on other devices.
func (q *Queue) Deliver(txs ...*payment.Transaction) {
	cloned := make([]*payment.Transaction, len(txs))
	for i, tx := range txs {
		cloned[i] = tx.Clone()
	}
	q.emit(func(o payment.Observer) {
		o.OnTransactionsUpdated(cloned)
	})
}

// FinishCount reports how many times a transaction has been finished.
func (q *Queue) FinishCount(transactionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finishes[transactionID]
}

func (q *Queue) emit(f func(o payment.Observer)) {
	q.dispatch <- func() {
		q.mu.Lock()
		o := q.observer
		q.mu.Unlock()
		if o != nil {
			f(o)
		}
	}
}

func (q *Queue) AddPayment(p payment.Payment) error {
	q.mu.Lock()
	failErr := q.failNext
	deferred := q.deferNext
	build := q.BuildTransaction
	q.failNext = nil
	q.deferNext = false
	q.mu.Unlock()

	pending := &payment.Transaction{Payment: p, State: payment.StatePurchasing}
	q.emit(func(o payment.Observer) {
		o.OnTransactionsUpdated([]*payment.Transaction{pending.Clone()})
	})

	var terminal *payment.Transaction
	switch {
	case failErr != nil:
		terminal = &payment.Transaction{
			ID:      uuid.NewString(),
			Payment: p,
			State:   payment.StateFailed,
			Err:     failErr,
		}
		terminal.OriginalID = terminal.ID
	case deferred:
		terminal = &payment.Transaction{Payment: p, State: payment.StateDeferred}
	case build != nil:
		terminal = build(p)
	default:
		terminal = &payment.Transaction{
			ID:           uuid.NewString(),
			Payment:      p,
			State:        payment.StatePurchased,
			PurchaseDate: time.Now(),
		}
		terminal.OriginalID = terminal.ID
	}

	if terminal.State == payment.StatePurchased {
		q.mu.Lock()
		q.history = append(q.history, terminal.Clone())
		q.mu.Unlock()
	}

	q.emit(func(o payment.Observer) {
		o.OnTransactionsUpdated([]*payment.Transaction{terminal.Clone()})
	})
	return nil
}

func (q *Queue) RestoreCompletedTransactions() error {
	q.mu.Lock()
	restoreErr := q.restoreErr
	q.restoreErr = nil
	restored := make([]*payment.Transaction, 0, len(q.history))
	for _, tx := range q.history {
		r := tx.Clone()
		r.State = payment.StateRestored
		restored = append(restored, r)
	}
	q.mu.Unlock()

	if len(restored) > 0 {
		q.emit(func(o payment.Observer) {
			o.OnTransactionsUpdated(restored)
		})
	}
	q.emit(func(o payment.Observer) {
		o.OnRestoreCompleted(restoreErr)
	})
	return nil
}

func (q *Queue) FinishTransaction(tx *payment.Transaction) error {
	q.mu.Lock()
	q.finishes[tx.ID]++
	q.mu.Unlock()
	return nil
}
