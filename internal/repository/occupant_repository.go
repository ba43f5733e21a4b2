package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const occupantColumns = `
	id, engagement_id, unit_id, user_id, status, one_to_one, price, paid_at, joined_at, left_at, created_at
`

type OccupantRepository struct {
	*base.Repository
}

func NewOccupantRepository(pool base.Querier) *OccupantRepository {
	return &OccupantRepository{Repository: base.NewRepository(pool)}
}

func scanOccupant(row rowScanner) (*model.Occupant, error) {
	var o model.Occupant
	err := row.Scan(
		&o.ID,
		&o.EngagementID,
		&o.UnitID,
		&o.UserID,
		&o.Status,
		&o.OneToOne,
		&o.Price,
		&o.PaidAt,
		&o.JoinedAt,
		&o.LeftAt,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OccupantRepository) queryOccupants(ctx context.Context, op, query string, args ...any) ([]*model.Occupant, error) {
	rows, err := r.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var occupants []*model.Occupant
	for rows.Next() {
		o, err := scanOccupant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occupant: %w", err)
		}
		occupants = append(occupants, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return occupants, nil
}

func (r *OccupantRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Occupant, error) {
	o, err := scanOccupant(r.Conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

func (r *OccupantRepository) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.Conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Create создаёт бронь участника
func (r *OccupantRepository) Create(ctx context.Context, o *model.Occupant) error {
	query := `
		INSERT INTO occupants (id, engagement_id, unit_id, user_id, status, one_to_one, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(ctx, query,
		o.ID, o.EngagementID, o.UnitID, o.UserID, o.Status, o.OneToOne, o.Price,
	).Scan(&o.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create occupant: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create occupant: %w", err)
	}

	return nil
}

// GetByID получает участника по ID
func (r *OccupantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error) {
	return r.getOne(ctx, "get occupant by id", `SELECT `+occupantColumns+` FROM occupants WHERE id = $1`, id)
}

// LockByID блокирует участника до конца транзакции
func (r *OccupantRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error) {
	return r.getOne(ctx, "lock occupant", `SELECT `+occupantColumns+` FROM occupants WHERE id = $1 FOR UPDATE`, id)
}

// GetByEngagementAndUser получает участника занятия по пользователю
func (r *OccupantRepository) GetByEngagementAndUser(ctx context.Context, engagementID, userID uuid.UUID) (*model.Occupant, error) {
	query := `SELECT ` + occupantColumns + ` FROM occupants WHERE engagement_id = $1 AND user_id = $2`
	return r.getOne(ctx, "get occupant by user", query, engagementID, userID)
}

// ListByEngagement получает всех участников занятия
func (r *OccupantRepository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*model.Occupant, error) {
	query := `SELECT ` + occupantColumns + ` FROM occupants WHERE engagement_id = $1 ORDER BY created_at`
	return r.queryOccupants(ctx, "list occupants", query, engagementID)
}

// CountReservedByUnit считает активные брони слота
func (r *OccupantRepository) CountReservedByUnit(ctx context.Context, unitID uuid.UUID) (int, error) {
	var count int
	err := r.Conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM occupants WHERE unit_id = $1 AND status = 'RESERVED'`, unitID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reserved occupants: %w", err)
	}
	return count, nil
}

// UpdateStatus обновляет статус участника
func (r *OccupantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OccupantStatus) error {
	return r.exec(ctx, "update occupant status", `UPDATE occupants SET status = $2 WHERE id = $1`, id, status)
}

// Reactivate возвращает в RESERVED отменённую бронь, удержание по которой так и не открылось.
// Срок оплаты отсчитывается заново от created_at.
func (r *OccupantRepository) Reactivate(ctx context.Context, o *model.Occupant) error {
	query := `
		UPDATE occupants
		SET status = 'RESERVED', unit_id = $2, one_to_one = $3, price = $4,
		    paid_at = NULL, joined_at = NULL, left_at = NULL, created_at = NOW()
		WHERE id = $1 AND status <> 'RESERVED'
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(ctx, query, o.ID, o.UnitID, o.OneToOne, o.Price).Scan(&o.CreatedAt)
	if err != nil {
		// Строка уже RESERVED или слот занят
		if base.IsNotFound(err) || base.IsUniqueViolation(err) {
			return fmt.Errorf("reactivate occupant: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("reactivate occupant: %w", err)
	}

	o.Status = model.OccupantReserved
	o.PaidAt, o.JoinedAt, o.LeftAt = nil, nil, nil
	return nil
}

// MarkPaid отмечает подтверждение оплаты
func (r *OccupantRepository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, "mark occupant paid", `UPDATE occupants SET paid_at = COALESCE(paid_at, $2) WHERE id = $1`, id, at)
}

// MarkJoined отмечает первое подключение к занятию
func (r *OccupantRepository) MarkJoined(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, "mark occupant joined", `UPDATE occupants SET joined_at = COALESCE(joined_at, $2), left_at = NULL WHERE id = $1`, id, at)
}

// MarkLeft отмечает выход из занятия
func (r *OccupantRepository) MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, "mark occupant left", `UPDATE occupants SET left_at = $2 WHERE id = $1`, id, at)
}

// ListUnpaidBefore получает активные брони без подтверждённой оплаты, созданные до before
func (r *OccupantRepository) ListUnpaidBefore(ctx context.Context, before time.Time, limit int) ([]*model.Occupant, error) {
	query := `SELECT ` + occupantColumns + `
		FROM occupants
		WHERE status = 'RESERVED' AND paid_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	return r.queryOccupants(ctx, "list unpaid occupants", query, before, limit)
}
