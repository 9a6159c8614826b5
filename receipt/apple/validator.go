package apple

import (
	"context"

	"github.com/devsisters/go-applereceipt"
	"github.com/devsisters/go-applereceipt/applepki"
	"github.com/pkg/errors"

	"github.com/lxpay/receipt-store/receipt"
)

// Validator decodes and verifies Apple PKCS7 receipt blobs against Apple's
// root certificates, entirely offline.
type Validator struct {
	// bundleID is the app the receipt must have been issued for, e.g.
	// "com.lxpay.app".
	bundleID string
}

func NewValidator(bundleID string) receipt.Validator {
	return &Validator{bundleID: bundleID}
}

func (v *Validator) Validate(ctx context.Context, blob []byte) (*receipt.PurchaseInfo, error) {
	decoded, err := applereceipt.DecodeBase64(string(blob), applepki.CertPool())
	if err != nil {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, err.Error())
	}

	if decoded.BundleIdentifier != v.bundleID {
		return nil, errors.Wrapf(receipt.ErrInvalidReceipt, "receipt is for bundle %q", decoded.BundleIdentifier)
	}

	if len(decoded.InAppPurchaseReceipts) == 0 {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, "receipt contains no purchases")
	}

	// The primary purchase is the most recent one; a receipt may embed the
	// whole purchase history.
	primary := decoded.InAppPurchaseReceipts[0]
	for _, purchase := range decoded.InAppPurchaseReceipts[1:] {
		if purchase.PurchaseDate.After(primary.PurchaseDate) {
			primary = purchase
		}
	}

	info := &receipt.PurchaseInfo{
		ProductID:             primary.ProductIdentifier,
		TransactionID:         primary.TransactionIdentifier,
		OriginalTransactionID: primary.OriginalTransactionIdentifier,
		PurchaseDate:          primary.PurchaseDate,
		BundleID:              decoded.BundleIdentifier,
		Quantity:              int64(primary.Quantity),
	}
	if info.OriginalTransactionID == "" {
		info.OriginalTransactionID = info.TransactionID
	}
	if !primary.SubscriptionExpirationDate.IsZero() {
		expires := primary.SubscriptionExpirationDate
		info.ExpiresDate = &expires
	}
	return info, nil
}
