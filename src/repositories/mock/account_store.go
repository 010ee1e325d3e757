package mock

import (
	"context"
	"sync"

	"github.com/linq/waitlist/src/models"
	"github.com/linq/waitlist/src/repositories"
)

// AccountStore is an in-memory implementation of repositories.AccountStore.
// Stub funcs, when set, replace the in-memory behaviour so tests can inject
// store failures.
type AccountStore struct {
	// Function stubs that can be overridden in tests
	GetFunc    func(ctx context.Context, username string) (*models.AdminAccount, error)
	CreateFunc func(ctx context.Context, account *models.AdminAccount) (bool, error)
	UpdateFunc func(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error)
	PingFunc   func(ctx context.Context) error

	// Call tracking
	Calls map[string][]interface{}

	mu       sync.Mutex
	accounts map[string]models.AdminAccount
}

// NewAccountStore creates a new in-memory account store
func NewAccountStore() *AccountStore {
	return &AccountStore{
		Calls:    make(map[string][]interface{}),
		accounts: make(map[string]models.AdminAccount),
	}
}

func (m *AccountStore) track(name string, arg interface{}) {
	m.mu.Lock()
	m.Calls[name] = append(m.Calls[name], arg)
	m.mu.Unlock()
}

// CallCount returns how many times the named method was invoked
func (m *AccountStore) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls[name])
}

// Put stores an account directly, bypassing Create
func (m *AccountStore) Put(account models.AdminAccount) {
	m.mu.Lock()
	m.accounts[account.Username] = account
	m.mu.Unlock()
}

func (m *AccountStore) Get(ctx context.Context, username string) (*models.AdminAccount, error) {
	m.track("Get", username)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, username)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[username]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &account, nil
}

func (m *AccountStore) Create(ctx context.Context, account *models.AdminAccount) (bool, error) {
	m.track("Create", account.Username)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Username]; ok {
		return false, nil
	}
	m.accounts[account.Username] = *account
	return true, nil
}

func (m *AccountStore) Update(ctx context.Context, username string, mutate repositories.AccountMutation) (*models.AdminAccount, error) {
	m.track("Update", username)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, username, mutate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[username]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if account.LockedUntil != nil {
		lockedUntil := *account.LockedUntil
		account.LockedUntil = &lockedUntil
	}
	if err := mutate(&account); err != nil {
		return nil, err
	}
	account.Username = username
	m.accounts[username] = account
	updated := account
	return &updated, nil
}

func (m *AccountStore) Ping(ctx context.Context) error {
	m.track("Ping", nil)
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Ensure AccountStore implements the interface
var _ repositories.AccountStore = (*AccountStore)(nil)
