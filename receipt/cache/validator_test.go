package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lxpay/receipt-store/receipt"
)

type countingValidator struct {
	calls int32
	fail  bool
}

func (v *countingValidator) Validate(ctx context.Context, blob []byte) (*receipt.PurchaseInfo, error) {
	atomic.AddInt32(&v.calls, 1)
	if v.fail {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, "rejected")
	}
	return &receipt.PurchaseInfo{
		ProductID:     "app.pro.monthly",
		TransactionID: "1000",
		PurchaseDate:  time.Now(),
	}, nil
}

func TestReceipt_CacheValidatorMemoizesSuccess(t *testing.T) {
	underlying := &countingValidator{}
	validator := NewValidator(underlying, time.Minute)
	ctx := context.Background()

	blob := []byte("receipt")

	first, err := validator.Validate(ctx, blob)
	require.NoError(t, err)
	second, err := validator.Validate(ctx, blob)
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&underlying.calls))
	require.Equal(t, first.TransactionID, second.TransactionID)

	// Callers get independent copies.
	second.TransactionID = "mutated"
	third, err := validator.Validate(ctx, blob)
	require.NoError(t, err)
	require.Equal(t, "1000", third.TransactionID)

	// A different blob misses the cache.
	_, err = validator.Validate(ctx, []byte("other receipt"))
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&underlying.calls))
}

func TestReceipt_CacheValidatorDoesNotCacheRejections(t *testing.T) {
	underlying := &countingValidator{fail: true}
	validator := NewValidator(underlying, time.Minute)
	ctx := context.Background()

	blob := []byte("receipt")

	_, err := validator.Validate(ctx, blob)
	require.True(t, errors.Is(err, receipt.ErrInvalidReceipt))
	_, err = validator.Validate(ctx, blob)
	require.True(t, errors.Is(err, receipt.ErrInvalidReceipt))

	require.Equal(t, int32(2), atomic.LoadInt32(&underlying.calls))
}
