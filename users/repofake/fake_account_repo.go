package fakeuserrepo

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/users"
)

var _ users.AccountRepo = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	accounts    map[string]*users.Account
	emailIds    map[string]string // email to account id
	externalIds map[string]string // provider subject to account id
	lock        sync.RWMutex
}

func NewFakeAccountRepo() users.AccountRepo {
	return &FakeAccountRepo{
		accounts:    make(map[string]*users.Account),
		emailIds:    make(map[string]string),
		externalIds: make(map[string]string),
	}
}

func (ur *FakeAccountRepo) Upsert(account *users.Account) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if existing, ok := ur.accounts[account.ID]; ok {
		delete(ur.emailIds, strings.ToLower(existing.Email))
		if sub := utils.Value(existing.ExternalProviderID); sub != "" {
			delete(ur.externalIds, sub)
		}
	}
	stored := *account
	ur.accounts[account.ID] = &stored
	ur.emailIds[strings.ToLower(account.Email)] = account.ID
	if sub := utils.Value(account.ExternalProviderID); sub != "" {
		ur.externalIds[sub] = account.ID
	}
	return nil
}

func (ur *FakeAccountRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	account, ok := ur.accounts[id]
	if !ok {
		return sessionerrors.ErrNotFound
	}
	delete(ur.emailIds, strings.ToLower(account.Email))
	if sub := utils.Value(account.ExternalProviderID); sub != "" {
		delete(ur.externalIds, sub)
	}
	delete(ur.accounts, id)
	return nil
}

func (ur *FakeAccountRepo) GetByEmail(email string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, sessionerrors.ErrNotFound
	}
	return ur.copyOf(id), nil
}

func (ur *FakeAccountRepo) GetByID(id string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	if _, ok := ur.accounts[id]; !ok {
		return nil, sessionerrors.ErrNotFound
	}
	return ur.copyOf(id), nil
}

func (ur *FakeAccountRepo) GetByExternalID(sub string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.externalIds[sub]
	if !ok {
		return nil, sessionerrors.ErrNotFound
	}
	return ur.copyOf(id), nil
}

func (ur *FakeAccountRepo) List(offset, limit int) ([]*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	accounts := make([]*users.Account, 0, len(ur.accounts))
	for _, v := range ur.accounts {
		cp := *v
		accounts = append(accounts, &cp)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	if offset >= len(accounts) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(accounts) {
		end = len(accounts)
	}
	return accounts[offset:end], nil
}

// copyOf returns a copy so callers cannot mutate stored accounts without Upsert.
func (ur *FakeAccountRepo) copyOf(id string) *users.Account {
	cp := *ur.accounts[id]
	return &cp
}
