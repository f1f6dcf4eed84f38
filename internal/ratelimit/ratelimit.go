package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
)

// ErrRateLimited is returned when a transfer is refused before reaching the ledger.
var ErrRateLimited = errors.New("rate limited")

// MapLimiter applies a token bucket per string key and periodically evicts idle entries.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a key-based limiter; returns nil if args are invalid.
// A nil *MapLimiter allows everything.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Allow reports whether one token can be consumed for the key at now.
func (l *MapLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		l.evict(now)
	}

	return allowed
}

func (l *MapLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.byKey {
		if v.lastSeen.Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}

// Len reports how many keys are currently tracked.
func (l *MapLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

// Transferer limits transfers per source account.
type Transferer struct {
	next    ledger.Transferer
	limiter *MapLimiter
	now     func() time.Time
}

func NewTransferer(next ledger.Transferer, limiter *MapLimiter) *Transferer {
	return &Transferer{next: next, limiter: limiter, now: time.Now}
}

func (t *Transferer) Transfer(ctx context.Context, from, to *ledger.Account, amount decimal.Decimal) error {
	// Invalid arguments are the ledger's to report.
	if from != nil && !t.limiter.Allow(from.ID().String(), t.now()) {
		return fmt.Errorf("transfer from %s: %w", from.ID(), ErrRateLimited)
	}
	return t.next.Transfer(ctx, from, to, amount)
}

var _ ledger.Transferer = (*Transferer)(nil)
