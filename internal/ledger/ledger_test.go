package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/concurrent-ledger/internal/models/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []events.TransferCompleted
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, key)
	p.events = append(p.events, event.(events.TransferCompleted))
	return p.err
}

func requireTotal(t *testing.T, l *Ledger, want string, accounts ...*Account) {
	t.Helper()

	got, err := l.Total(context.Background(), accounts...)
	require.NoError(t, err)
	assert.Truef(t, dec(want).Equal(got), "total = %s, want %s", got, want)
}

func TestTransfer_MovesFunds(t *testing.T) {
	l := NewLedger()
	from := newTestAccount(t, "100")
	to := newTestAccount(t, "0")

	require.NoError(t, l.Transfer(context.Background(), from, to, dec("50")))

	requireBalance(t, from, "50")
	requireBalance(t, to, "50")
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	l := NewLedger()
	from := newTestAccount(t, "100")
	to := newTestAccount(t, "50")

	err := l.Transfer(context.Background(), from, to, dec("200"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, IsRetryable(err))
	requireBalance(t, from, "100")
	requireBalance(t, to, "50")
}

func TestTransfer_RejectedArguments(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "100")
	b := newTestAccount(t, "100")
	twin, err := NewAccount(a.ID(), dec("100"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to *Account
		amount   string
	}{
		{name: "zero amount", from: a, to: b, amount: "0"},
		{name: "negative amount", from: a, to: b, amount: "-100"},
		{name: "nil from", from: nil, to: b, amount: "10"},
		{name: "nil to", from: a, to: nil, amount: "10"},
		{name: "nil both", from: nil, to: nil, amount: "10"},
		{name: "self transfer", from: a, to: a, amount: "10"},
		{name: "same id", from: a, to: twin, amount: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Transfer(context.Background(), tt.from, tt.to, dec(tt.amount))

			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, KindInvalidArgument, KindOf(err))
			requireBalance(t, a, "100")
			requireBalance(t, b, "100")
			requireBalance(t, twin, "100")
		})
	}
}

func TestTransfer_ZeroValueAmountRejected(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "100")
	b := newTestAccount(t, "100")

	var amount decimal.Decimal
	assert.ErrorIs(t, l.Transfer(context.Background(), a, b, amount), ErrInvalidArgument)
}

func TestTransfer_LockTimeoutLeavesBothUntouched(t *testing.T) {
	l := NewLedger(WithLockTimeout(20 * time.Millisecond))
	from := newTestAccount(t, "100")
	to := newTestAccount(t, "100")

	// Hold the second guard in lock order so the first is taken and must be
	// given back.
	second := to
	if compareAccounts(from, to) > 0 {
		second = from
	}
	require.NoError(t, second.guard.acquire(context.Background()))

	err := l.Transfer(context.Background(), from, to, dec("10"))
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, KindLockTimeout, KindOf(err))
	assert.True(t, IsRetryable(err))

	second.guard.release()
	requireBalance(t, from, "100")
	requireBalance(t, to, "100")

	require.NoError(t, l.Transfer(context.Background(), from, to, dec("10")))
	requireBalance(t, from, "90")
	requireBalance(t, to, "110")
}

func TestTransfer_PublishesCompletedEvent(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	l := NewLedger(WithPublisher(pub), WithClock(func() time.Time { return at }))
	from := newTestAccount(t, "100")
	to := newTestAccount(t, "0")

	require.NoError(t, l.Transfer(context.Background(), from, to, dec("12.5")))
	require.ErrorIs(t, l.Transfer(context.Background(), from, to, dec("1000")), ErrInsufficientFunds)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.NotEqual(t, uuid.Nil, ev.TransferID)
	assert.Equal(t, from.ID(), ev.FromAccount)
	assert.Equal(t, to.ID(), ev.ToAccount)
	assert.True(t, dec("12.5").Equal(ev.Amount))
	assert.Equal(t, at, ev.OccurredAt)
	assert.Equal(t, []string{from.ID().String()}, pub.keys)
}

func TestTransfer_PublishFailureKeepsOutcome(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := NewLedger(WithPublisher(pub))
	from := newTestAccount(t, "100")
	to := newTestAccount(t, "0")

	require.NoError(t, l.Transfer(context.Background(), from, to, dec("40")))

	requireBalance(t, from, "60")
	requireBalance(t, to, "40")
	assert.Len(t, pub.events, 1)
}

func TestBalances_ConsistentSnapshot(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "1")
	b := newTestAccount(t, "2")
	c := newTestAccount(t, "3")

	got, err := l.Balances(context.Background(), c, a, b, a)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, dec("3").Equal(got[0]))
	assert.True(t, dec("1").Equal(got[1]))
	assert.True(t, dec("2").Equal(got[2]))
	assert.True(t, dec("1").Equal(got[3]))

	requireTotal(t, l, "6", a, b, c, a)
}

func TestBalances_RejectsBadInput(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "1")
	twin, err := NewAccount(a.ID(), dec("1"))
	require.NoError(t, err)

	_, err = l.Balances(context.Background(), a, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = l.Balances(context.Background(), a, twin)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBalances_LockTimeoutReleasesHeldGuards(t *testing.T) {
	l := NewLedger(WithLockTimeout(20 * time.Millisecond))
	a := newTestAccount(t, "1")
	b := newTestAccount(t, "2")

	last := b
	if compareAccounts(a, b) > 0 {
		last = a
	}
	require.NoError(t, last.guard.acquire(context.Background()))

	_, err := l.Balances(context.Background(), a, b)
	assert.ErrorIs(t, err, ErrLockTimeout)

	last.guard.release()
	requireTotal(t, l, "3", a, b)
}

func TestTransfer_CycleConservesAndCompletes(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "1000")
	b := newTestAccount(t, "1000")
	c := newTestAccount(t, "1000")

	pairs := [][2]*Account{{a, b}, {b, c}, {c, a}}

	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		for _, p := range pairs {
			g.Go(func() error {
				for range 100 {
					if err := l.Transfer(context.Background(), p[0], p[1], dec("5")); err != nil {
						return err
					}
				}
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("cyclic transfers did not complete")
	}

	requireTotal(t, l, "3000", a, b, c)
	requireBalance(t, a, "1000")
	requireBalance(t, b, "1000")
	requireBalance(t, c, "1000")
}

func TestTransfer_CrossedTransfersDoNotDeadlock(t *testing.T) {
	l := NewLedger()
	a := newTestAccount(t, "100")
	b := newTestAccount(t, "100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observed := make(chan error, 1)
	go func() {
		for ctx.Err() == nil {
			total, err := l.Total(ctx, a, b)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				observed <- err
				return
			}
			if !total.Equal(dec("200")) {
				observed <- errors.New("observed total " + total.String())
				return
			}
		}
		observed <- nil
	}()

	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		for _, p := range [][2]*Account{{a, b}, {b, a}} {
			g.Go(func() error {
				for range 10000 {
					err := l.Transfer(context.Background(), p[0], p[1], dec("1"))
					if err != nil && !errors.Is(err, ErrInsufficientFunds) {
						return err
					}
				}
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("crossed transfers did not complete")
	}

	cancel()
	require.NoError(t, <-observed)
	requireTotal(t, l, "200", a, b)
}

func TestTransfer_ManyAccountsConserveValue(t *testing.T) {
	l := NewLedger()
	accounts := make([]*Account, 8)
	for i := range accounts {
		accounts[i] = newTestAccount(t, "250.25")
	}

	var g errgroup.Group
	for w := range 16 {
		g.Go(func() error {
			for i := range 500 {
				from := accounts[(w+i)%len(accounts)]
				to := accounts[(w*3+i*5+1)%len(accounts)]
				err := l.Transfer(context.Background(), from, to, dec("0.75"))
				switch {
				case err == nil,
					errors.Is(err, ErrInsufficientFunds),
					errors.Is(err, ErrInvalidArgument):
				default:
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	requireTotal(t, l, "2002", accounts...)
	for _, a := range accounts {
		bal, err := a.Balance(context.Background())
		require.NoError(t, err)
		assert.False(t, bal.IsNegative())
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, "insufficient_funds", KindInsufficientFunds.String())
	assert.Equal(t, "lock_timeout", KindOf(ErrLockTimeout).String())
}
