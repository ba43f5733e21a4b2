package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const proposalColumns = `id, request_id, provider_id, amount, cover_letter, status, auto, created_at`

type ProposalRepository struct {
	*base.Repository
}

func NewProposalRepository(pool base.Querier) *ProposalRepository {
	return &ProposalRepository{Repository: base.NewRepository(pool)}
}

func scanProposal(row rowScanner) (*model.Proposal, error) {
	var p model.Proposal
	err := row.Scan(&p.ID, &p.RequestID, &p.ProviderID, &p.Amount, &p.CoverLetter, &p.Status, &p.Auto, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create создаёт предложение
func (r *ProposalRepository) Create(ctx context.Context, p *model.Proposal) error {
	query := `
		INSERT INTO proposals (id, request_id, provider_id, amount, cover_letter, status, auto)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(ctx, query,
		p.ID, p.RequestID, p.ProviderID, p.Amount, p.CoverLetter, p.Status, p.Auto,
	).Scan(&p.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create proposal: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create proposal: %w", err)
	}

	return nil
}

// GetByID получает предложение по ID
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Proposal, error) {
	p, err := scanProposal(r.Conn(ctx).QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get proposal by id: %w", err)
	}
	return p, nil
}

// ListByRequest получает предложения по запросу
func (r *ProposalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Proposal, error) {
	rows, err := r.Conn(ctx).Query(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}

	return proposals, nil
}

// UpdateStatus обновляет статус предложения
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProposalStatus) error {
	_, err := r.Conn(ctx).Exec(ctx, `UPDATE proposals SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("update proposal status: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("update proposal status: %w", err)
	}
	return nil
}

// RejectOthers отклоняет все поданные предложения по запросу, кроме keepID
func (r *ProposalRepository) RejectOthers(ctx context.Context, requestID, keepID uuid.UUID) error {
	query := `UPDATE proposals SET status = 'REJECTED' WHERE request_id = $1 AND id <> $2 AND status = 'SUBMITTED'`
	if _, err := r.Conn(ctx).Exec(ctx, query, requestID, keepID); err != nil {
		return fmt.Errorf("reject other proposals: %w", err)
	}
	return nil
}
