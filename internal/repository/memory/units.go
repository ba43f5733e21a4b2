package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type UnitRepository struct{ s *Store }

func (r *UnitRepository) reserved(unitID uuid.UUID) int {
	n := 0
	for _, o := range r.s.data.occupants {
		if o.UnitID != nil && *o.UnitID == unitID && o.Status == model.OccupantReserved {
			n++
		}
	}
	return n
}

func (r *UnitRepository) withCount(u model.ReservableUnit) *model.ReservableUnit {
	u.ReservedCount = r.reserved(u.ID)
	return &u
}

func (r *UnitRepository) list(match func(u model.ReservableUnit) bool) []*model.ReservableUnit {
	var out []*model.ReservableUnit
	for _, u := range r.s.data.units {
		if match(u) {
			out = append(out, r.withCount(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Window.Date != out[j].Window.Date {
			return out[i].Window.Date < out[j].Window.Date
		}
		return out[i].Window.StartTime < out[j].Window.StartTime
	})
	return out
}

func (r *UnitRepository) Create(ctx context.Context, unit *model.ReservableUnit) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.data.units[unit.ID]; exists {
		return fmt.Errorf("create unit: %w", model.ErrDuplicate)
	}
	unit.CreatedAt = r.s.clock()
	unit.UpdatedAt = unit.CreatedAt
	stored := *unit
	stored.ReservedCount = 0
	r.s.data.units[unit.ID] = stored
	return nil
}

func (r *UnitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.data.units[id]
	if !ok {
		return nil, nil
	}
	return r.withCount(u), nil
}

// LockByID в памяти эквивалентен GetByID: транзакция уже держит блокировку хранилища
func (r *UnitRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error) {
	return r.GetByID(ctx, id)
}

func (r *UnitRepository) LockOwner(ctx context.Context, ownerID uuid.UUID) error {
	return nil
}

func (r *UnitRepository) ListByOwnerDate(ctx context.Context, ownerID uuid.UUID, date string) ([]*model.ReservableUnit, error) {
	defer r.s.lock(ctx)()
	return r.list(func(u model.ReservableUnit) bool {
		return u.Window.OwnerID == ownerID && u.Window.Date == date
	}), nil
}

func (r *UnitRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, fromDate string) ([]*model.ReservableUnit, error) {
	defer r.s.lock(ctx)()
	return r.list(func(u model.ReservableUnit) bool {
		return u.Window.OwnerID == ownerID && u.Window.Date >= fromDate
	}), nil
}

func (r *UnitRepository) ListDiscoverable(ctx context.Context, fromDate string, ownerID *uuid.UUID) ([]*model.ReservableUnit, error) {
	defer r.s.lock(ctx)()
	return r.list(func(u model.ReservableUnit) bool {
		if u.Window.Date < fromDate || (ownerID != nil && u.Window.OwnerID != *ownerID) {
			return false
		}
		return r.reserved(u.ID) < u.MaxOccupants
	}), nil
}

func (r *UnitRepository) UpdateWindow(ctx context.Context, unit *model.ReservableUnit) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.units[unit.ID]
	if !ok {
		return fmt.Errorf("update unit: unit %s not found", unit.ID)
	}
	stored.Title = unit.Title
	stored.Window = unit.Window
	stored.CapacityMode = unit.CapacityMode
	stored.MaxOccupants = unit.MaxOccupants
	stored.UpdatedAt = r.s.clock()
	unit.UpdatedAt = stored.UpdatedAt
	r.s.data.units[unit.ID] = stored
	return nil
}

func (r *UnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(ctx)()
	delete(r.s.data.units, id)
	// ON DELETE SET NULL
	for oid, o := range r.s.data.occupants {
		if o.UnitID != nil && *o.UnitID == id {
			o.UnitID = nil
			r.s.data.occupants[oid] = o
		}
	}
	for eid, e := range r.s.data.engagements {
		if e.UnitID != nil && *e.UnitID == id {
			e.UnitID = nil
			r.s.data.engagements[eid] = e
		}
	}
	return nil
}

func (r *UnitRepository) ListPastUnoccupied(ctx context.Context, before time.Time, limit int) ([]*model.ReservableUnit, error) {
	defer r.s.lock(ctx)()
	day := before.Format("2006-01-02")
	out := r.list(func(u model.ReservableUnit) bool {
		return u.Window.Date < day && r.reserved(u.ID) == 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
