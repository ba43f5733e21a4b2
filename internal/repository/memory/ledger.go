package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type LedgerRepository struct{ s *Store }

func sameSubject(a, b model.LedgerEntry) bool {
	if a.EngagementID != nil && b.EngagementID != nil {
		return *a.EngagementID == *b.EngagementID
	}
	if a.OccupantID != nil && b.OccupantID != nil {
		return *a.OccupantID == *b.OccupantID
	}
	return false
}

func (r *LedgerRepository) Create(ctx context.Context, e *model.LedgerEntry) error {
	defer r.s.lock(ctx)()
	if (e.EngagementID == nil) == (e.OccupantID == nil) {
		return fmt.Errorf("create ledger entry: exactly one subject must be set")
	}
	for _, other := range r.s.data.ledger {
		if other.ID == e.ID {
			return fmt.Errorf("create ledger entry: %w", model.ErrDuplicate)
		}
		if e.Status != model.LedgerFailed && other.Status != model.LedgerFailed && sameSubject(*e, other) {
			return fmt.Errorf("create ledger entry: %w", model.ErrDuplicate)
		}
	}
	e.CreatedAt = r.s.clock()
	r.s.data.ledger[e.ID] = *e
	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	defer r.s.lock(ctx)()
	e, ok := r.s.data.ledger[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *LedgerRepository) find(match func(e model.LedgerEntry) bool) *model.LedgerEntry {
	for _, e := range r.s.data.ledger {
		if e.Status != model.LedgerFailed && match(e) {
			return ptr(e)
		}
	}
	return nil
}

func (r *LedgerRepository) GetByEngagement(ctx context.Context, engagementID uuid.UUID) (*model.LedgerEntry, error) {
	defer r.s.lock(ctx)()
	return r.find(func(e model.LedgerEntry) bool {
		return e.EngagementID != nil && *e.EngagementID == engagementID
	}), nil
}

func (r *LedgerRepository) GetByOccupant(ctx context.Context, occupantID uuid.UUID) (*model.LedgerEntry, error) {
	defer r.s.lock(ctx)()
	return r.find(func(e model.LedgerEntry) bool {
		return e.OccupantID != nil && *e.OccupantID == occupantID
	}), nil
}

// Count возвращает число записей по субъекту, включая FAILED
func (r *LedgerRepository) Count(subject model.LedgerSubject) int {
	defer r.s.lock(context.Background())()
	n := 0
	probe := model.LedgerEntry{EngagementID: subject.EngagementID, OccupantID: subject.OccupantID}
	for _, e := range r.s.data.ledger {
		if sameSubject(probe, e) {
			n++
		}
	}
	return n
}

func (r *LedgerRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.LedgerStatus, payeeID *uuid.UUID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()
	e, ok := r.s.data.ledger[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	if payeeID != nil {
		e.PayeeID = payeeID
	}
	e.SettledAt = &at
	r.s.data.ledger[id] = e
	return true, nil
}
