package receipt

import (
	"context"

	"go.uber.org/zap"
)

// Coordinator turns raw receipt blobs into persisted rows. The validator is
// consumed as an opaque capability; its rejection is surfaced unchanged and
// never retried here, since retrying a cryptographic validation call without
// backoff risks service throttling.
type Coordinator struct {
	log       *zap.Logger
	store     Store
	exec      *executor
	validator Validator
	familyFor FamilyFunc
}

func newCoordinator(log *zap.Logger, store Store, exec *executor, validator Validator, familyFor FamilyFunc) *Coordinator {
	return &Coordinator{
		log:       log,
		store:     store,
		exec:      exec,
		validator: validator,
		familyFor: familyFor,
	}
}

// InsertReceipt validates blob and applies the resulting row. The validator's
// structured output is returned alongside the row; it may carry fields not
// retained in the row. Re-validating an already-applied receipt succeeds
// without inserting a second row.
func (c *Coordinator) InsertReceipt(ctx context.Context, blob []byte) (*Row, *PurchaseInfo, error) {
	log := c.log.With(zap.String("receipt_id", ReceiptID(blob)))

	// The validator runs off the serialized context; only the resulting
	// mutation re-enters it.
	info, err := c.validator.Validate(ctx, blob)
	if err != nil {
		log.Debug("Receipt failed validation", zap.Error(err))
		return nil, nil, err
	}

	row := rowFromPurchaseInfo(info, blob, c.familyFor)
	if err := row.Validate(); err != nil {
		log.Warn("Validator produced an unstorable row", zap.Error(err))
		return nil, nil, err
	}

	err = c.exec.do(ctx, func() error {
		applyErr := c.store.Apply(context.Background(), row)
		if applyErr == ErrExists {
			log.Debug("Receipt already applied")
			return nil
		}
		return applyErr
	})
	if err != nil {
		return nil, nil, err
	}

	return row, info, nil
}

func rowFromPurchaseInfo(info *PurchaseInfo, blob []byte, familyFor FamilyFunc) *Row {
	originalID := info.OriginalTransactionID
	if originalID == "" {
		originalID = info.TransactionID
	}

	row := &Row{
		TransactionID:         info.TransactionID,
		OriginalTransactionID: originalID,
		ProductID:             info.ProductID,
		ProductFamily:         familyFor(info.ProductID),
		PurchaseDate:          info.PurchaseDate,
		IsTrialPeriod:         info.IsTrialPeriod,
		RawReceiptData:        append([]byte(nil), blob...),
	}
	if info.ExpiresDate != nil {
		expires := *info.ExpiresDate
		row.ExpiresDate = &expires
	}
	return row
}
