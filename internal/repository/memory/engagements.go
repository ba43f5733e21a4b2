package memory

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type EngagementRepository struct{ s *Store }

func isOpenSession(e model.Engagement) bool {
	return e.Kind == model.EngagementSession &&
		(e.Status == model.EngagementScheduled || e.Status == model.EngagementInProgress)
}

func (r *EngagementRepository) Create(ctx context.Context, e *model.Engagement) error {
	defer r.s.lock(ctx)()
	for _, other := range r.s.data.engagements {
		if other.ID == e.ID {
			return fmt.Errorf("create engagement: %w", model.ErrDuplicate)
		}
		if isOpenSession(*e) && isOpenSession(other) && e.UnitID != nil && other.UnitID != nil && *e.UnitID == *other.UnitID {
			return fmt.Errorf("create engagement: %w", model.ErrDuplicate)
		}
		if e.RequestID != nil && other.RequestID != nil && *e.RequestID == *other.RequestID {
			return fmt.Errorf("create engagement: %w", model.ErrDuplicate)
		}
	}
	e.CreatedAt = r.s.clock()
	r.s.data.engagements[e.ID] = *e
	return nil
}

func (r *EngagementRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	defer r.s.lock(ctx)()
	e, ok := r.s.data.engagements[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *EngagementRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	return r.GetByID(ctx, id)
}

func (r *EngagementRepository) Update(ctx context.Context, e *model.Engagement) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.engagements[e.ID]
	if !ok {
		return fmt.Errorf("update engagement: engagement %s not found", e.ID)
	}
	stored.Status = e.Status
	stored.ProviderCompletedAt = e.ProviderCompletedAt
	stored.StartedAt = e.StartedAt
	stored.CompletedAt = e.CompletedAt
	stored.CancelledAt = e.CancelledAt
	r.s.data.engagements[e.ID] = stored
	return nil
}

func (r *EngagementRepository) FindOpenSessionByUnit(ctx context.Context, unitID uuid.UUID) (*model.Engagement, error) {
	defer r.s.lock(ctx)()
	for _, e := range r.s.data.engagements {
		if isOpenSession(e) && e.UnitID != nil && *e.UnitID == unitID {
			return ptr(e), nil
		}
	}
	return nil, nil
}
