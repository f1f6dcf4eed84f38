package memory

import (
	"bytes"
	"errors"
	"slices"
	"sync" // standard Go package for concurrency primitives like RWMutex

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountStore is an in-memory directory of accounts keyed by id.
// Accounts are never removed, so a reference handed out stays valid for any
// transfer that uses it.
type AccountStore struct {
	mu       sync.RWMutex                  // protects the accounts map, not the balances
	accounts map[uuid.UUID]*ledger.Account // every account created through this store
	opts     []ledger.AccountOption        // applied to every new account
}

// NewAccountStore creates and returns a new AccountStore instance
func NewAccountStore(opts ...ledger.AccountOption) *AccountStore {
	return &AccountStore{
		accounts: make(map[uuid.UUID]*ledger.Account),
		opts:     opts,
	}
}

// Create opens an account with a fresh random id and the given balance.
func (m *AccountStore) Create(initial decimal.Decimal) (*ledger.Account, error) {
	account, err := ledger.NewAccount(uuid.New(), initial, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()         // lock the map for writing
	defer m.mu.Unlock() // unlock automatically when function exits

	m.accounts[account.ID()] = account
	return account, nil
}

func (m *AccountStore) Get(id uuid.UUID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// List returns every account ordered by id.
func (m *AccountStore) List() []*ledger.Account {
	m.mu.RLock()
	out := make([]*ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(x, y *ledger.Account) int {
		xid, yid := x.ID(), y.ID()
		return bytes.Compare(xid[:], yid[:])
	})
	return out
}
