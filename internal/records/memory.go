package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	byToken map[string]*models.OperationRecord
	byID    map[uuid.UUID]*models.OperationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken: make(map[string]*models.OperationRecord),
		byID:    make(map[uuid.UUID]*models.OperationRecord),
	}
}

func (s *MemoryStore) Begin(ctx context.Context, intent Intent) (*models.OperationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byToken[intent.Token]; ok {
		out := *rec
		return &out, true, nil
	}

	now := time.Now()
	rec := &models.OperationRecord{
		ID:            uuid.New(),
		Token:         intent.Token,
		Kind:          intent.Kind,
		Type:          intent.Type,
		SourceAccount: intent.SourceAccount,
		DestAccount:   intent.DestAccount,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Status:        domain.OpStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byToken[rec.Token] = rec
	s.byID[rec.ID] = rec

	out := *rec
	return &out, false, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.finish(id, domain.OpStatusDone, "")
}

func (s *MemoryStore) Fail(ctx context.Context, id uuid.UUID, outcome string) error {
	return s.finish(id, domain.OpStatusFailed, outcome)
}

func (s *MemoryStore) finish(id uuid.UUID, status, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Terminal() {
		if rec.Status == status && rec.Outcome == outcome {
			return nil
		}
		return ErrTerminalConflict
	}
	rec.Status = status
	rec.Outcome = outcome
	rec.Version++
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) StalePending(ctx context.Context, olderThan time.Duration) ([]models.OperationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var out []models.OperationRecord
	for _, rec := range s.byID {
		if rec.Status == domain.OpStatusPending && rec.UpdatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ByToken(ctx context.Context, token string) (*models.OperationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// Len reports the number of records; used by orchestrator tests to assert
// that blocked transfers never create a record.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
