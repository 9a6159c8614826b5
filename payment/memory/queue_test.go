package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lxpay/receipt-store/payment"
)

type recordingObserver struct {
	mu       sync.Mutex
	updates  []*payment.Transaction
	restores []error
}

func (o *recordingObserver) OnTransactionsUpdated(txs []*payment.Transaction) {
	o.mu.Lock()
	o.updates = append(o.updates, txs...)
	o.mu.Unlock()
}

func (o *recordingObserver) OnRestoreCompleted(err error) {
	o.mu.Lock()
	o.restores = append(o.restores, err)
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() ([]*payment.Transaction, []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*payment.Transaction(nil), o.updates...), append([]error(nil), o.restores...)
}

func TestQueue_AddPaymentLifecycle(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	observer := &recordingObserver{}
	q.SetObserver(observer)

	require.NoError(t, q.AddPayment(payment.Payment{ProductID: "app.pro.monthly"}))

	require.Eventually(t, func() bool {
		updates, _ := observer.snapshot()
		return len(updates) == 2
	}, 5*time.Second, 10*time.Millisecond)

	updates, _ := observer.snapshot()
	require.Equal(t, payment.StatePurchasing, updates[0].State)
	require.Equal(t, payment.StatePurchased, updates[1].State)
	require.NotEmpty(t, updates[1].ID)
	require.Equal(t, updates[1].ID, updates[1].OriginalID)
}

func TestQueue_FailAndDefer(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	observer := &recordingObserver{}
	q.SetObserver(observer)

	cause := errors.New("card declined")
	q.FailNextPayment(cause)
	require.NoError(t, q.AddPayment(payment.Payment{ProductID: "app.pro.monthly"}))

	q.DeferNextPayment()
	require.NoError(t, q.AddPayment(payment.Payment{ProductID: "app.pro.monthly"}))

	require.Eventually(t, func() bool {
		updates, _ := observer.snapshot()
		return len(updates) == 4
	}, 5*time.Second, 10*time.Millisecond)

	updates, _ := observer.snapshot()
	require.Equal(t, payment.StateFailed, updates[1].State)
	require.Equal(t, cause, updates[1].Err)
	require.Equal(t, payment.StateDeferred, updates[3].State)
}

func TestQueue_RestoreRedeliversHistory(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	observer := &recordingObserver{}
	q.SetObserver(observer)

	require.NoError(t, q.AddPayment(payment.Payment{ProductID: "app.pro.monthly"}))
	require.NoError(t, q.RestoreCompletedTransactions())

	require.Eventually(t, func() bool {
		_, restores := observer.snapshot()
		return len(restores) == 1
	}, 5*time.Second, 10*time.Millisecond)

	updates, restores := observer.snapshot()
	require.NoError(t, restores[0])

	var restored *payment.Transaction
	for _, tx := range updates {
		if tx.State == payment.StateRestored {
			restored = tx
		}
	}
	require.NotNil(t, restored)
	require.Equal(t, "app.pro.monthly", restored.Payment.ProductID)
}

func TestQueue_FinishCounts(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	tx := &payment.Transaction{ID: "1000"}
	require.NoError(t, q.FinishTransaction(tx))
	require.NoError(t, q.FinishTransaction(tx))
	require.Equal(t, 2, q.FinishCount("1000"))
	require.Equal(t, 0, q.FinishCount("2000"))
}
