package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
)

const (
	ledgerKeyPrefix    = "ledger:"
	defaultLedgerTTL   = 7 * 24 * time.Hour
	defaultLedgerLease = time.Minute

	pendingMark = "pending"
	doneMark    = "done"
)

// Ledger is a processed-message ledger backed by SETNX. A claim starts as a
// pending lease that expires on its own if the holder dies; Complete turns it
// into a done mark that outlives any realistic redelivery window.
type Ledger struct {
	client redis.UniversalClient
	ttl    time.Duration
	lease  time.Duration
}

func NewLedger(client redis.UniversalClient, ttl, lease time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	if lease <= 0 {
		lease = defaultLedgerLease
	}
	return &Ledger{client: client, ttl: ttl, lease: lease}
}

func (l *Ledger) Claim(ctx context.Context, key string) (domoutbox.Claim, error) {
	ok, err := l.client.SetNX(ctx, ledgerKeyPrefix+key, pendingMark, l.lease).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledger: claim %s: %w", key, err)
	}
	if ok {
		return domoutbox.ClaimAcquired, nil
	}

	mark, err := l.client.Get(ctx, ledgerKeyPrefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// the lease expired between the two calls; the next delivery takes it
		return domoutbox.ClaimHeld, nil
	case err != nil:
		return 0, fmt.Errorf("redis ledger: read %s: %w", key, err)
	case mark == doneMark:
		return domoutbox.ClaimDone, nil
	default:
		return domoutbox.ClaimHeld, nil
	}
}

func (l *Ledger) Complete(ctx context.Context, key string) error {
	if err := l.client.Set(ctx, ledgerKeyPrefix+key, doneMark, l.ttl).Err(); err != nil {
		return fmt.Errorf("redis ledger: complete %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, ledgerKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis ledger: release %s: %w", key, err)
	}
	return nil
}
