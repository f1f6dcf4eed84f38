package ledger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLockTimeout bounds every guard acquisition unless overridden.
const DefaultLockTimeout = time.Second

// Account owns a single non-negative balance and the guard protecting it.
// Accounts must be created with NewAccount.
type Account struct {
	id          uuid.UUID
	lockTimeout time.Duration
	guard       guard

	// balance is only read or written while guard is held.
	balance decimal.Decimal
}

// AccountOption configures an Account at construction.
type AccountOption func(*Account)

// WithAccountLockTimeout bounds how long Credit, Debit and Balance wait for
// the account's guard. Non-positive values are ignored.
func WithAccountLockTimeout(d time.Duration) AccountOption {
	return func(a *Account) {
		if d > 0 {
			a.lockTimeout = d
		}
	}
}

// NewAccount creates an account holding initial. Id uniqueness is the
// caller's responsibility; Transfer orders guards by id.
func NewAccount(id uuid.UUID, initial decimal.Decimal, opts ...AccountOption) (*Account, error) {
	if initial.IsNegative() {
		return nil, fmt.Errorf("new account %s: initial balance %s: %w", id, initial, ErrInvalidAmount)
	}

	a := &Account{
		id:          id,
		lockTimeout: DefaultLockTimeout,
		guard:       newGuard(),
		balance:     initial,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Account) ID() uuid.UUID {
	return a.id
}

// Credit adds amount to the balance.
func (a *Account) Credit(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: amount %s: %w", a.id, amount, ErrInvalidAmount)
	}
	if err := a.lock(ctx); err != nil {
		return fmt.Errorf("credit %s: %w", a.id, err)
	}
	defer a.guard.release()

	return a.credit(amount)
}

// Debit subtracts amount from the balance. The balance is left unchanged when
// it does not cover amount.
func (a *Account) Debit(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: amount %s: %w", a.id, amount, ErrInvalidAmount)
	}
	if err := a.lock(ctx); err != nil {
		return fmt.Errorf("debit %s: %w", a.id, err)
	}
	defer a.guard.release()

	return a.debit(amount)
}

// Balance returns the latest committed balance.
func (a *Account) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := a.lock(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", a.id, err)
	}
	defer a.guard.release()

	return a.balance, nil
}

func (a *Account) lock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.lockTimeout)
	defer cancel()

	return a.guard.acquire(ctx)
}

// credit and debit require the guard to be held by the caller.

func (a *Account) credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: amount %s: %w", a.id, amount, ErrInvalidAmount)
	}
	a.balance = a.balance.Add(amount)
	return nil
}

func (a *Account) debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: amount %s: %w", a.id, amount, ErrInvalidAmount)
	}
	if a.balance.LessThan(amount) {
		return fmt.Errorf("debit %s: balance %s below %s: %w", a.id, a.balance, amount, ErrInsufficientFunds)
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

// compareAccounts orders accounts by the bytes of their ids.
func compareAccounts(x, y *Account) int {
	return bytes.Compare(x.id[:], y.id[:])
}
