// Package idempotency keeps Pub/Sub consumers from handling a redelivered
// event twice. Each consumer claims an event ID in Redis before acting on it.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type keyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims event IDs for one consumer. Claims expire after ttl; a zero
// ttl keeps them forever.
type Guard struct {
	store keyStore
	scope string
	ttl   time.Duration
}

func NewGuard(store keyStore, consumer string, ttl time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store required")
	case consumer == "":
		return nil, errors.New("consumer name required")
	case ttl < 0:
		return nil, errors.New("ttl must not be negative")
	}
	return &Guard{store: store, scope: "evt:" + consumer, ttl: ttl}, nil
}

// Claim reports whether this call is the first to see eventID. A false
// result with a nil error means the event was already handled.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id required")
	}
	return g.store.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim so a redelivery can try again. Consumers call it when
// handling fails after a successful Claim.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID uuid.UUID) string {
	return g.store.IdempotencyKey(g.scope, eventID.String())
}
