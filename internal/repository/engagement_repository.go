package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const engagementColumns = `
	id, kind, unit_id, request_id, initiator_id, responder_id, provider_id, status, amount,
	provider_completed_at, created_at, started_at, completed_at, cancelled_at
`

type EngagementRepository struct {
	*base.Repository
}

func NewEngagementRepository(pool base.Querier) *EngagementRepository {
	return &EngagementRepository{Repository: base.NewRepository(pool)}
}

func scanEngagement(row rowScanner) (*model.Engagement, error) {
	var e model.Engagement
	err := row.Scan(
		&e.ID,
		&e.Kind,
		&e.UnitID,
		&e.RequestID,
		&e.InitiatorID,
		&e.ResponderID,
		&e.ProviderID,
		&e.Status,
		&e.Amount,
		&e.ProviderCompletedAt,
		&e.CreatedAt,
		&e.StartedAt,
		&e.CompletedAt,
		&e.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create создаёт работу
func (r *EngagementRepository) Create(ctx context.Context, e *model.Engagement) error {
	query := `
		INSERT INTO engagements (id, kind, unit_id, request_id, initiator_id, responder_id, provider_id, status, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		e.ID,
		e.Kind,
		e.UnitID,
		e.RequestID,
		e.InitiatorID,
		e.ResponderID,
		e.ProviderID,
		e.Status,
		e.Amount,
	).Scan(&e.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create engagement: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create engagement: %w", err)
	}

	return nil
}

// GetByID получает работу по ID
func (r *EngagementRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	e, err := scanEngagement(r.Conn(ctx).QueryRow(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get engagement by id: %w", err)
	}
	return e, nil
}

// LockByID блокирует работу до конца транзакции
func (r *EngagementRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	e, err := scanEngagement(r.Conn(ctx).QueryRow(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock engagement: %w", err)
	}
	return e, nil
}

// Update сохраняет статус и временные метки работы
func (r *EngagementRepository) Update(ctx context.Context, e *model.Engagement) error {
	query := `
		UPDATE engagements
		SET status = $2, provider_completed_at = $3, started_at = $4, completed_at = $5, cancelled_at = $6
		WHERE id = $1
	`

	tag, err := r.Conn(ctx).Exec(ctx, query, e.ID, e.Status, e.ProviderCompletedAt, e.StartedAt, e.CompletedAt, e.CancelledAt)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update engagement: engagement %s not found", e.ID)
	}

	return nil
}

// FindOpenSessionByUnit получает запланированное или идущее занятие по слоту
func (r *EngagementRepository) FindOpenSessionByUnit(ctx context.Context, unitID uuid.UUID) (*model.Engagement, error) {
	query := `SELECT ` + engagementColumns + `
		FROM engagements
		WHERE unit_id = $1 AND kind = 'SESSION' AND status IN ('SCHEDULED', 'IN_PROGRESS')
	`

	e, err := scanEngagement(r.Conn(ctx).QueryRow(ctx, query, unitID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return e, nil
}
