package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
)

const defaultLease = time.Minute

type ledgerEntry struct {
	done bool
	at   time.Time
}

// Ledger is an in-process idempotency ledger with two-phase claims: a pending
// lease that expires after lease, then a done mark kept for ttl (zero keeps it forever).
type Ledger struct {
	mu      sync.Mutex
	ttl     time.Duration
	lease   time.Duration
	now     func() time.Time
	entries map[string]ledgerEntry
}

type LedgerOption func(*Ledger)

// WithLease bounds how long an unfinished claim blocks other deliveries.
func WithLease(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.lease = d
		}
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(ttl time.Duration, opts ...LedgerOption) *Ledger {
	l := &Ledger{ttl: ttl, lease: defaultLease, now: time.Now, entries: make(map[string]ledgerEntry)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Claim(ctx context.Context, key string) (outbox.Claim, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[key]; ok {
		switch {
		case e.done && (l.ttl == 0 || now.Sub(e.at) < l.ttl):
			return outbox.ClaimDone, nil
		case !e.done && now.Sub(e.at) < l.lease:
			return outbox.ClaimHeld, nil
		}
	}
	l.entries[key] = ledgerEntry{at: now}
	return outbox.ClaimAcquired, nil
}

func (l *Ledger) Complete(ctx context.Context, key string) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = ledgerEntry{done: true, at: l.now()}
	return nil
}

func (l *Ledger) Release(ctx context.Context, key string) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}

// VersionGate tracks the highest applied version per product.
type VersionGate struct {
	mu       sync.Mutex
	versions map[string]int64
}

func NewVersionGate() *VersionGate {
	return &VersionGate{versions: make(map[string]int64)}
}

func (g *VersionGate) Current(ctx context.Context, productID string) (int64, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.versions[productID], nil
}

// Advance stores version if it is newer and reports whether it did.
func (g *VersionGate) Advance(ctx context.Context, productID string, version int64) (bool, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	if version <= g.versions[productID] {
		return false, nil
	}
	g.versions[productID] = version
	return true, nil
}
