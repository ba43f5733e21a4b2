package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type OccupantRepository struct{ s *Store }

func (r *OccupantRepository) list(match func(o model.Occupant) bool, limit int) []*model.Occupant {
	var out []*model.Occupant
	for _, o := range r.s.data.occupants {
		if match(o) {
			out = append(out, ptr(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *OccupantRepository) update(id uuid.UUID, fn func(o *model.Occupant)) {
	o, ok := r.s.data.occupants[id]
	if !ok {
		return
	}
	fn(&o)
	r.s.data.occupants[id] = o
}

func (r *OccupantRepository) Create(ctx context.Context, o *model.Occupant) error {
	defer r.s.lock(ctx)()
	for _, other := range r.s.data.occupants {
		if other.ID == o.ID || (other.EngagementID == o.EngagementID && other.UserID == o.UserID) {
			return fmt.Errorf("create occupant: %w", model.ErrDuplicate)
		}
		if o.OneToOne && other.OneToOne && o.Status == model.OccupantReserved && other.Status == model.OccupantReserved &&
			o.UnitID != nil && other.UnitID != nil && *o.UnitID == *other.UnitID {
			return fmt.Errorf("create occupant: %w", model.ErrDuplicate)
		}
	}
	o.CreatedAt = r.s.clock()
	r.s.data.occupants[o.ID] = *o
	return nil
}

func (r *OccupantRepository) Reactivate(ctx context.Context, o *model.Occupant) error {
	defer r.s.lock(ctx)()
	current, ok := r.s.data.occupants[o.ID]
	if !ok || current.Status == model.OccupantReserved {
		return fmt.Errorf("reactivate occupant: %w", model.ErrDuplicate)
	}
	for _, other := range r.s.data.occupants {
		if other.ID != o.ID && o.OneToOne && other.OneToOne && other.Status == model.OccupantReserved &&
			o.UnitID != nil && other.UnitID != nil && *o.UnitID == *other.UnitID {
			return fmt.Errorf("reactivate occupant: %w", model.ErrDuplicate)
		}
	}
	current.Status = model.OccupantReserved
	current.UnitID = o.UnitID
	current.OneToOne = o.OneToOne
	current.Price = o.Price
	current.PaidAt, current.JoinedAt, current.LeftAt = nil, nil, nil
	current.CreatedAt = r.s.clock()
	r.s.data.occupants[o.ID] = current
	*o = current
	return nil
}

func (r *OccupantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error) {
	defer r.s.lock(ctx)()
	o, ok := r.s.data.occupants[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OccupantRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error) {
	return r.GetByID(ctx, id)
}

func (r *OccupantRepository) GetByEngagementAndUser(ctx context.Context, engagementID, userID uuid.UUID) (*model.Occupant, error) {
	defer r.s.lock(ctx)()
	for _, o := range r.s.data.occupants {
		if o.EngagementID == engagementID && o.UserID == userID {
			return ptr(o), nil
		}
	}
	return nil, nil
}

func (r *OccupantRepository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*model.Occupant, error) {
	defer r.s.lock(ctx)()
	return r.list(func(o model.Occupant) bool { return o.EngagementID == engagementID }, 0), nil
}

func (r *OccupantRepository) CountReservedByUnit(ctx context.Context, unitID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()
	return len(r.list(func(o model.Occupant) bool {
		return o.UnitID != nil && *o.UnitID == unitID && o.Status == model.OccupantReserved
	}, 0)), nil
}

func (r *OccupantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OccupantStatus) error {
	defer r.s.lock(ctx)()
	r.update(id, func(o *model.Occupant) { o.Status = status })
	return nil
}

func (r *OccupantRepository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()
	r.update(id, func(o *model.Occupant) {
		if o.PaidAt == nil {
			o.PaidAt = &at
		}
	})
	return nil
}

func (r *OccupantRepository) MarkJoined(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()
	r.update(id, func(o *model.Occupant) {
		if o.JoinedAt == nil {
			o.JoinedAt = &at
		}
		o.LeftAt = nil
	})
	return nil
}

func (r *OccupantRepository) MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()
	r.update(id, func(o *model.Occupant) { o.LeftAt = &at })
	return nil
}

func (r *OccupantRepository) ListUnpaidBefore(ctx context.Context, before time.Time, limit int) ([]*model.Occupant, error) {
	defer r.s.lock(ctx)()
	return r.list(func(o model.Occupant) bool {
		return o.Status == model.OccupantReserved && o.PaidAt == nil && o.CreatedAt.Before(before)
	}, limit), nil
}
