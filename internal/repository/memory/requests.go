package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type RequestRepository struct{ s *Store }

func (r *RequestRepository) list(match func(req model.WorkRequest) bool, limit int) []*model.WorkRequest {
	var out []*model.WorkRequest
	for _, req := range r.s.data.requests {
		if match(req) {
			out = append(out, ptr(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *RequestRepository) Create(ctx context.Context, req *model.WorkRequest) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.data.requests[req.ID]; exists {
		return fmt.Errorf("create request: %w", model.ErrDuplicate)
	}
	req.CreatedAt = r.s.clock()
	req.UpdatedAt = req.CreatedAt
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *RequestRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *RequestRepository) Update(ctx context.Context, req *model.WorkRequest) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.requests[req.ID]
	if !ok {
		return fmt.Errorf("update request: request %s not found", req.ID)
	}
	req.CreatedAt = stored.CreatedAt
	req.UpdatedAt = r.s.clock()
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *RequestRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	return r.list(func(req model.WorkRequest) bool { return req.ClientID == clientID }, 0), nil
}

func (r *RequestRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	return r.list(func(req model.WorkRequest) bool {
		return req.TargetProviderID != nil && *req.TargetProviderID == providerID
	}, 0), nil
}

func (r *RequestRepository) ListPublic(ctx context.Context) ([]*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	return r.list(func(req model.WorkRequest) bool { return req.Status == model.RequestStatusPublic }, 0), nil
}

func (r *RequestRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	return r.list(func(req model.WorkRequest) bool {
		return req.Status == model.RequestStatusPending && req.ResponseDeadline != nil && req.ResponseDeadline.Before(now)
	}, limit), nil
}

func (r *RequestRepository) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*model.WorkRequest, error) {
	defer r.s.lock(ctx)()
	return r.list(func(req model.WorkRequest) bool {
		return req.Status == model.RequestStatusDraft && req.CreatedAt.Before(before)
	}, limit), nil
}
