package apple

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lxpay/receipt-store/receipt"
)

// Valid receipts are signed by Apple and can only be produced by a device or
// the sandbox, so only the rejection paths are covered here.
func TestReceipt_AppleValidatorRejects(t *testing.T) {
	validator := NewValidator("com.lxpay.app")
	ctx := context.Background()

	_, err := validator.Validate(ctx, []byte("not base64 pkcs7"))
	require.True(t, errors.Is(err, receipt.ErrInvalidReceipt))

	_, err = validator.Validate(ctx, []byte(""))
	require.True(t, errors.Is(err, receipt.ErrInvalidReceipt))
}
