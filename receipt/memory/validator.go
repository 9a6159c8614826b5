package memory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lxpay/receipt-store/receipt"
)

// Validator is an in-memory receipt validator that checks an ed25519
// signature on the receipt. The "receipt" is a signed JSON payload carrying
// the purchase fields a real validator would recover from the platform blob.
type Validator struct {
	publicKey ed25519.PublicKey
}

// payload is the signed body of an in-memory receipt.
type payload struct {
	ProductID             string     `json:"product_id"`
	TransactionID         string     `json:"transaction_id"`
	OriginalTransactionID string     `json:"original_transaction_id"`
	PurchaseDate          time.Time  `json:"purchase_date"`
	ExpiresDate           *time.Time `json:"expires_date,omitempty"`
	IsTrialPeriod         bool       `json:"is_trial_period"`
	BundleID              string     `json:"bundle_id"`
	Quantity              int64      `json:"quantity"`
}

func NewValidator(pubKey ed25519.PublicKey) receipt.Validator {
	return &Validator{publicKey: pubKey}
}

func (v *Validator) Validate(ctx context.Context, blob []byte) (*receipt.PurchaseInfo, error) {
	// The receipt format is: base64(signature)|json(payload)

	signature, message, err := parseReceipt(blob)
	if err != nil {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, err.Error())
	}

	if !ed25519.Verify(v.publicKey, message, signature) {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, "signature mismatch")
	}

	var p payload
	if err := json.Unmarshal(message, &p); err != nil {
		return nil, errors.Wrap(receipt.ErrInvalidReceipt, err.Error())
	}

	info := &receipt.PurchaseInfo{
		ProductID:             p.ProductID,
		TransactionID:         p.TransactionID,
		OriginalTransactionID: p.OriginalTransactionID,
		PurchaseDate:          p.PurchaseDate,
		ExpiresDate:           p.ExpiresDate,
		IsTrialPeriod:         p.IsTrialPeriod,
		BundleID:              p.BundleID,
		Quantity:              p.Quantity,
	}
	if info.OriginalTransactionID == "" {
		info.OriginalTransactionID = info.TransactionID
	}
	return info, nil
}

// GenerateKeyPair returns a fresh signing key pair for tests.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SignReceipt builds a valid in-memory receipt blob for the given purchase.
func SignReceipt(owner ed25519.PrivateKey, info *receipt.PurchaseInfo) []byte {
	message, err := json.Marshal(payload{
		ProductID:             info.ProductID,
		TransactionID:         info.TransactionID,
		OriginalTransactionID: info.OriginalTransactionID,
		PurchaseDate:          info.PurchaseDate,
		ExpiresDate:           info.ExpiresDate,
		IsTrialPeriod:         info.IsTrialPeriod,
		BundleID:              info.BundleID,
		Quantity:              info.Quantity,
	})
	if err != nil {
		panic(err)
	}

	signature := ed25519.Sign(owner, message)
	return []byte(base64.StdEncoding.EncodeToString(signature) + "|" + string(message))
}

func parseReceipt(blob []byte) (signature []byte, message []byte, err error) {
	parts := strings.SplitN(string(blob), "|", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid receipt format")
	}

	signature, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("error decoding signature: %w", err)
	}

	message = []byte(parts[1])
	return signature, message, nil
}
