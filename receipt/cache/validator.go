package cache

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/lxpay/receipt-store/receipt"
)

// Validator memoizes successful validations by receipt blob so repeated
// submissions of the same receipt skip the external validation call.
// Rejections are not cached; a transient validator outage should not pin a
// receipt as invalid.
type Validator struct {
	validator receipt.Validator
	cache     *ttlcache.Cache
}

func NewValidator(validator receipt.Validator, ttl time.Duration) receipt.Validator {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Validator{
		validator: validator,
		cache:     cache,
	}
}

func (c *Validator) Validate(ctx context.Context, blob []byte) (*receipt.PurchaseInfo, error) {
	cacheKey := receipt.ReceiptID(blob)

	cached, ok := c.cache.Get(cacheKey)
	if !ok {
		info, err := c.validator.Validate(ctx, blob)
		if err != nil {
			return nil, err
		}

		copied := *info
		c.cache.Set(cacheKey, &copied)

		return info, nil
	}

	copied := *cached.(*receipt.PurchaseInfo)
	return &copied, nil
}
