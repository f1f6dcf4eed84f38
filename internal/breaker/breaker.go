// Package breaker guards a ledger.Transferer with a circuit breaker.
//
// Only retryable failures (lock timeouts) count against the breaker. Business
// outcomes such as insufficient funds mean the ledger answered correctly and
// are treated as successes.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
)

// ErrUnavailable is returned without calling the wrapped Transferer while the
// breaker is open or probing.
var ErrUnavailable = errors.New("ledger unavailable")

// Config holds the breaker thresholds.
type Config struct {
	Name                string
	MaxRequests         uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state window for resetting counts
	Timeout             time.Duration // how long the breaker stays open
	ConsecutiveFailures uint32
}

// DefaultConfig trips after five consecutive lock timeouts.
func DefaultConfig() Config {
	return Config{
		Name:                "ledger",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             5 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type Transferer struct {
	next   ledger.Transferer
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func New(next ledger.Transferer, cfg Config, logger *zap.Logger) *Transferer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}

	t := &Transferer{next: next, logger: logger}
	t.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !ledger.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return t
}

func (t *Transferer) Transfer(ctx context.Context, from, to *ledger.Account, amount decimal.Decimal) error {
	_, err := t.cb.Execute(func() (any, error) {
		return nil, t.next.Transfer(ctx, from, to, amount)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (t *Transferer) State() gobreaker.State {
	return t.cb.State()
}

var _ ledger.Transferer = (*Transferer)(nil)
