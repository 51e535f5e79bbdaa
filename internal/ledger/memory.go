package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development.
// It mirrors the Postgres locking discipline: one mutex per account row, so
// concurrent mutations on the same account serialize while different
// accounts proceed independently.
type MemoryStore struct {
	mu       sync.RWMutex
	holders  map[string]*models.Holder // by login
	accounts map[uuid.UUID]*memAccount
}

type memAccount struct {
	mu   sync.Mutex
	acct models.BankAccount
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		holders:  make(map[string]*models.Holder),
		accounts: make(map[uuid.UUID]*memAccount),
	}
}

func (s *MemoryStore) CreateHolder(ctx context.Context, holder *models.Holder, account *models.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	h := *holder
	h.CreatedAt = now
	s.holders[h.Login] = &h
	holder.CreatedAt = now

	a := *account
	a.CreatedAt = now
	a.UpdatedAt = now
	s.accounts[a.ID] = &memAccount{acct: a}
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

func (s *MemoryStore) HolderByLogin(ctx context.Context, login string) (*models.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holders[login]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	out := *h
	return &out, nil
}

func (s *MemoryStore) AccountsByLogin(ctx context.Context, login string) ([]models.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holders[login]
	if !ok {
		return nil, nil
	}
	var accounts []models.BankAccount
	for _, slot := range s.accounts {
		slot.mu.Lock()
		if slot.acct.HolderID == h.ID {
			accounts = append(accounts, slot.acct)
		}
		slot.mu.Unlock()
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, ref AccountRef, apply func(acct *models.BankAccount) error) (*models.BankAccount, error) {
	slot, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	working := slot.acct
	if err := apply(&working); err != nil {
		return nil, err
	}
	working.Version++
	working.UpdatedAt = time.Now()
	slot.acct = working

	out := working
	return &out, nil
}

func (s *MemoryStore) resolve(ref AccountRef) (*memAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref.AccountID != nil {
		slot, ok := s.accounts[*ref.AccountID]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		return slot, nil
	}

	h, ok := s.holders[ref.Login]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	var primary *memAccount
	for _, slot := range s.accounts {
		if slot.acct.HolderID != h.ID {
			continue
		}
		if primary == nil || slot.acct.CreatedAt.Before(primary.acct.CreatedAt) {
			primary = slot
		}
	}
	if primary == nil {
		return nil, domain.ErrAccountNotFound
	}
	return primary, nil
}
