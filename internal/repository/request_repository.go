package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const requestColumns = `
	id, client_id, target_provider_id, title, description, from_budget, to_budget,
	payment_method, status, response_deadline, fallback_to_public, engagement_id, created_at, updated_at
`

type RequestRepository struct {
	*base.Repository
}

func NewRequestRepository(pool base.Querier) *RequestRepository {
	return &RequestRepository{Repository: base.NewRepository(pool)}
}

func scanRequest(row rowScanner) (*model.WorkRequest, error) {
	var req model.WorkRequest
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.TargetProviderID,
		&req.Title,
		&req.Description,
		&req.FromBudget,
		&req.ToBudget,
		&req.PaymentMethod,
		&req.Status,
		&req.ResponseDeadline,
		&req.FallbackToPublic,
		&req.EngagementID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) queryRequests(ctx context.Context, op, query string, args ...any) ([]*model.WorkRequest, error) {
	rows, err := r.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var requests []*model.WorkRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return requests, nil
}

// Create создаёт запрос
func (r *RequestRepository) Create(ctx context.Context, req *model.WorkRequest) error {
	query := `
		INSERT INTO work_requests (id, client_id, target_provider_id, title, description, from_budget, to_budget,
		                           payment_method, status, response_deadline, fallback_to_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		req.ID,
		req.ClientID,
		req.TargetProviderID,
		req.Title,
		req.Description,
		req.FromBudget,
		req.ToBudget,
		req.PaymentMethod,
		req.Status,
		req.ResponseDeadline,
		req.FallbackToPublic,
	).Scan(&req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return nil
}

// GetByID получает запрос по ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error) {
	req, err := scanRequest(r.Conn(ctx).QueryRow(ctx, `SELECT `+requestColumns+` FROM work_requests WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}
	return req, nil
}

// LockByID блокирует запрос до конца транзакции
func (r *RequestRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error) {
	req, err := scanRequest(r.Conn(ctx).QueryRow(ctx, `SELECT `+requestColumns+` FROM work_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}
	return req, nil
}

// Update сохраняет изменяемые поля запроса
func (r *RequestRepository) Update(ctx context.Context, req *model.WorkRequest) error {
	query := `
		UPDATE work_requests
		SET target_provider_id = $2, title = $3, description = $4, from_budget = $5, to_budget = $6,
		    payment_method = $7, status = $8, response_deadline = $9, fallback_to_public = $10,
		    engagement_id = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		req.ID,
		req.TargetProviderID,
		req.Title,
		req.Description,
		req.FromBudget,
		req.ToBudget,
		req.PaymentMethod,
		req.Status,
		req.ResponseDeadline,
		req.FallbackToPublic,
		req.EngagementID,
	).Scan(&req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	return nil
}

// ListByClient получает запросы клиента
func (r *RequestRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*model.WorkRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM work_requests WHERE client_id = $1 ORDER BY created_at DESC`
	return r.queryRequests(ctx, "list requests by client", query, clientID)
}

// ListByProvider получает прямые запросы провайдеру
func (r *RequestRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.WorkRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM work_requests WHERE target_provider_id = $1 ORDER BY created_at DESC`
	return r.queryRequests(ctx, "list requests by provider", query, providerID)
}

// ListPublic получает открытые публичные запросы
func (r *RequestRepository) ListPublic(ctx context.Context) ([]*model.WorkRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM work_requests WHERE status = 'PUBLIC' ORDER BY created_at DESC`
	return r.queryRequests(ctx, "list public requests", query)
}

// ListOverduePending получает PENDING запросы с истёкшим сроком ответа
func (r *RequestRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.WorkRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM work_requests
		WHERE status = 'PENDING' AND response_deadline < $1
		ORDER BY response_deadline
		LIMIT $2
	`
	return r.queryRequests(ctx, "list overdue requests", query, now, limit)
}

// ListStaleDrafts получает черновики, созданные до before
func (r *RequestRepository) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*model.WorkRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM work_requests
		WHERE status = 'DRAFT' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	return r.queryRequests(ctx, "list stale drafts", query, before, limit)
}
