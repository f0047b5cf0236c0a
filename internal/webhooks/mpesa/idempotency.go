package mpesawebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hiddengems/hiddengems-backend/pkg/redis"
)

// DefaultScope namespaces STK callback keys in redis.
const DefaultScope = "mpesa-callback"

// IdempotencyGuard remembers which checkout ids already had a callback
// processed so Safaricom retries are acknowledged without touching the DB.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether checkoutRequestID was seen before and marks it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, checkoutRequestID string) (bool, error) {
	if checkoutRequestID == "" {
		return false, errors.New("checkout request id is required")
	}
	key := g.store.IdempotencyKey(g.scope, checkoutRequestID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so a failed processing attempt can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, checkoutRequestID string) error {
	if checkoutRequestID == "" {
		return errors.New("checkout request id is required")
	}
	key := g.store.IdempotencyKey(g.scope, checkoutRequestID)
	return g.store.Del(ctx, key)
}
