package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type ProposalRepository struct{ s *Store }

func (r *ProposalRepository) Create(ctx context.Context, p *model.Proposal) error {
	defer r.s.lock(ctx)()
	for _, other := range r.s.data.proposals {
		if other.RequestID == p.RequestID &&
			(other.ProviderID == p.ProviderID ||
				(p.Status == model.ProposalStatusAccepted && other.Status == model.ProposalStatusAccepted)) {
			return fmt.Errorf("create proposal: %w", model.ErrDuplicate)
		}
	}
	p.CreatedAt = r.s.clock()
	r.s.data.proposals[p.ID] = *p
	return nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Proposal, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.proposals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProposalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Proposal, error) {
	defer r.s.lock(ctx)()
	var out []*model.Proposal
	for _, p := range r.s.data.proposals {
		if p.RequestID == requestID {
			out = append(out, ptr(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProposalStatus) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.proposals[id]
	if !ok {
		return nil
	}
	if status == model.ProposalStatusAccepted {
		for oid, other := range r.s.data.proposals {
			if oid != id && other.RequestID == p.RequestID && other.Status == model.ProposalStatusAccepted {
				return fmt.Errorf("update proposal status: %w", model.ErrDuplicate)
			}
		}
	}
	p.Status = status
	r.s.data.proposals[id] = p
	return nil
}

func (r *ProposalRepository) RejectOthers(ctx context.Context, requestID, keepID uuid.UUID) error {
	defer r.s.lock(ctx)()
	for id, p := range r.s.data.proposals {
		if p.RequestID == requestID && id != keepID && p.Status == model.ProposalStatusSubmitted {
			p.Status = model.ProposalStatusRejected
			r.s.data.proposals[id] = p
		}
	}
	return nil
}
