package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Row is one persisted purchase record. Rows are immutable once written;
// corrections happen by inserting a row for a later transaction, never by
// rewriting history.
type Row struct {
	// TransactionID is unique across all rows and comes from the originating
	// payment event.
	TransactionID string

	// OriginalTransactionID links renewals to their root purchase. It equals
	// TransactionID for a first purchase.
	OriginalTransactionID string

	ProductID     string
	ProductFamily string

	PurchaseDate time.Time

	// ExpiresDate is nil for non-expiring (non-subscription) products.
	ExpiresDate *time.Time

	IsTrialPeriod bool

	// RawReceiptData is the opaque blob as received, retained for
	// re-validation and audit.
	RawReceiptData []byte
}

func (r *Row) Clone() *Row {
	cloned := *r
	if r.ExpiresDate != nil {
		expires := *r.ExpiresDate
		cloned.ExpiresDate = &expires
	}
	cloned.RawReceiptData = append([]byte(nil), r.RawReceiptData...)
	return &cloned
}

// Validate reports whether the row carries the minimum set of fields required
// for persistence.
func (r *Row) Validate() error {
	if r.TransactionID == "" {
		return newError(CodeInvalidReceiptTableRow, "missing transaction id")
	}
	if r.OriginalTransactionID == "" {
		return newError(CodeInvalidReceiptTableRow, "missing original transaction id")
	}
	if r.ProductID == "" {
		return newError(CodeInvalidReceiptTableRow, "missing product id")
	}
	if r.PurchaseDate.IsZero() {
		return newError(CodeInvalidReceiptTableRow, "missing purchase date")
	}
	return nil
}

// PurchaseInfo returns the structured purchase fields for this row, in the
// same shape the validator reports them.
func (r *Row) PurchaseInfo() *PurchaseInfo {
	info := &PurchaseInfo{
		ProductID:             r.ProductID,
		TransactionID:         r.TransactionID,
		OriginalTransactionID: r.OriginalTransactionID,
		PurchaseDate:          r.PurchaseDate,
		IsTrialPeriod:         r.IsTrialPeriod,
	}
	if r.ExpiresDate != nil {
		expires := *r.ExpiresDate
		info.ExpiresDate = &expires
	}
	return info
}

// ReceiptID derives a stable identifier for a raw receipt blob.
func ReceiptID(receipt []byte) string {
	hasher := sha256.New()
	hasher.Write(receipt)
	return hex.EncodeToString(hasher.Sum(nil))
}

// FamilyFunc maps a product identifier to its product family, the grouping
// key for mutually-exclusive subscription tiers.
type FamilyFunc func(productID string) string

// IdentityFamily treats every product as its own family.
func IdentityFamily(productID string) string { return productID }
