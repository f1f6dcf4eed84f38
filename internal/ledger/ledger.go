package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/concurrent-ledger/internal/interfaces"
	"github.com/sheikh-saqib/concurrent-ledger/internal/models/events"
)

// Transferer moves amount from one account to another atomically.
// *Ledger implements it, and so do the decorators that wrap it.
type Transferer interface {
	Transfer(ctx context.Context, from, to *Account, amount decimal.Decimal) error
}

// Ledger coordinates transfers between accounts it does not own.
// It holds configuration only; every field is fixed after NewLedger.
type Ledger struct {
	lockTimeout time.Duration
	logger      *zap.Logger
	publisher   interfaces.EventPublisher // optional, nil disables events
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLockTimeout bounds how long a transfer waits for both guards together.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPublisher emits a TransferCompleted event after every successful transfer.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger is a constructor function that creates a new Ledger instance
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		lockTimeout: DefaultLockTimeout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Transfer debits from and credits to by amount, or does nothing at all.
//
// Both guards are taken in ascending id order, so two transfers crossing the
// same pair of accounts in opposite directions always contend on the same
// guard first and cannot wait on each other in a cycle.
func (l *Ledger) Transfer(ctx context.Context, from, to *Account, amount decimal.Decimal) error {
	if err := validateTransfer(from, to, amount); err != nil {
		l.logger.Debug("transfer rejected", zap.Error(err))
		return err
	}

	first, second := from, to
	if compareAccounts(from, to) > 0 {
		first, second = to, from
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	if err := first.guard.acquire(lockCtx); err != nil {
		return l.fail(from, to, amount, err)
	}
	if err := second.guard.acquire(lockCtx); err != nil {
		first.guard.release()
		return l.fail(from, to, amount, err)
	}

	err := move(from, to, amount)

	second.guard.release()
	first.guard.release()

	if err != nil {
		return l.fail(from, to, amount, err)
	}

	l.publish(ctx, from, to, amount)
	return nil
}

// move runs with both guards held.
func move(from, to *Account, amount decimal.Decimal) error {
	if err := from.debit(amount); err != nil {
		return err
	}
	if err := to.credit(amount); err != nil {
		// Put the debited value back so the transfer stays all-or-nothing.
		_ = from.credit(amount)
		return err
	}
	return nil
}

func validateTransfer(from, to *Account, amount decimal.Decimal) error {
	switch {
	case from == nil || to == nil:
		return fmt.Errorf("transfer: missing account: %w", ErrInvalidArgument)
	case from == to || from.id == to.id:
		return fmt.Errorf("transfer %s: self transfer: %w", from.id, ErrInvalidArgument)
	case !amount.IsPositive():
		return fmt.Errorf("transfer %s -> %s: amount %s must be positive: %w", from.id, to.id, amount, ErrInvalidArgument)
	}
	return nil
}

func (l *Ledger) fail(from, to *Account, amount decimal.Decimal, err error) error {
	err = fmt.Errorf("transfer %s -> %s: %w", from.id, to.id, err)
	l.logger.Debug("transfer failed",
		zap.Stringer("from", from.id),
		zap.Stringer("to", to.id),
		zap.Stringer("amount", amount),
		zap.Stringer("kind", KindOf(err)),
		zap.Error(err),
	)
	return err
}

// publish runs after the guards are released. The transfer has already
// committed, so a delivery failure is logged and not returned.
func (l *Ledger) publish(ctx context.Context, from, to *Account, amount decimal.Decimal) {
	if l.publisher == nil {
		return
	}

	event := events.TransferCompleted{
		TransferID:  uuid.New(),
		FromAccount: from.id,
		ToAccount:   to.id,
		Amount:      amount,
		OccurredAt:  l.now(),
	}
	if err := l.publisher.Publish(ctx, from.id.String(), event); err != nil {
		l.logger.Warn("publish transfer completed",
			zap.Stringer("transfer_id", event.TransferID),
			zap.Error(err),
		)
	}
}

// Balances reads all accounts under their guards at once, so the result is a
// state that existed between transfers. Results follow the order of accounts.
func (l *Ledger) Balances(ctx context.Context, accounts ...*Account) ([]decimal.Decimal, error) {
	ordered, err := distinct(accounts)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()

	held := 0
	defer func() {
		for i := held - 1; i >= 0; i-- {
			ordered[i].guard.release()
		}
	}()
	for _, a := range ordered {
		if err := a.guard.acquire(lockCtx); err != nil {
			return nil, fmt.Errorf("balances %s: %w", a.id, err)
		}
		held++
	}

	out := make([]decimal.Decimal, len(accounts))
	for i, a := range accounts {
		out[i] = a.balance
	}
	return out, nil
}

// Total sums a consistent snapshot of the given accounts, counting each once.
func (l *Ledger) Total(ctx context.Context, accounts ...*Account) (decimal.Decimal, error) {
	ordered, err := distinct(accounts)
	if err != nil {
		return decimal.Zero, err
	}

	balances, err := l.Balances(ctx, ordered...)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, balances...), nil
}

// distinct returns the accounts without repeats, sorted in lock order.
func distinct(accounts []*Account) ([]*Account, error) {
	ordered := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		if a == nil {
			return nil, fmt.Errorf("balances: missing account: %w", ErrInvalidArgument)
		}
		if !slices.Contains(ordered, a) {
			ordered = append(ordered, a)
		}
	}
	slices.SortFunc(ordered, compareAccounts)

	for i := 1; i < len(ordered); i++ {
		if compareAccounts(ordered[i-1], ordered[i]) == 0 {
			return nil, fmt.Errorf("balances: duplicate account id %s: %w", ordered[i].id, ErrInvalidArgument)
		}
	}
	return ordered, nil
}

// Compile-time check: ensure Ledger implements Transferer
var _ Transferer = (*Ledger)(nil)
