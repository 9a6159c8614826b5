package receipt

import (
	"context"
	"time"
)

// PurchaseInfo is the validator's structured view of a receipt. It may carry
// fields callers need for display that are not retained in the persisted row.
type PurchaseInfo struct {
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	PurchaseDate          time.Time
	ExpiresDate           *time.Time
	IsTrialPeriod         bool

	// BundleID identifies the app the receipt was issued for, when the
	// validator can recover it.
	BundleID string

	Quantity int64
}

// Validator turns a raw receipt blob into structured purchase fields.
//
// A rejection (malformed blob, signature mismatch, or the validator's own
// transport error) is reported by wrapping ErrInvalidReceipt. Validators do
// not retry; retry policy belongs to the caller.
type Validator interface {
	Validate(ctx context.Context, receipt []byte) (*PurchaseInfo, error)
}
