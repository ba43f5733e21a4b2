package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const unitColumns = `
	u.id, u.owner_id, u.title, u.date, u.start_time, u.end_time, u.timezone,
	u.capacity_mode, u.max_occupants, u.created_at, u.updated_at,
	(SELECT COUNT(*) FROM occupants o WHERE o.unit_id = u.id AND o.status = 'RESERVED') AS reserved_count
`

type UnitRepository struct {
	*base.Repository
}

func NewUnitRepository(pool base.Querier) *UnitRepository {
	return &UnitRepository{Repository: base.NewRepository(pool)}
}

func scanUnit(row rowScanner) (*model.ReservableUnit, error) {
	var unit model.ReservableUnit
	err := row.Scan(
		&unit.ID,
		&unit.Window.OwnerID,
		&unit.Title,
		&unit.Window.Date,
		&unit.Window.StartTime,
		&unit.Window.EndTime,
		&unit.Window.Timezone,
		&unit.CapacityMode,
		&unit.MaxOccupants,
		&unit.CreatedAt,
		&unit.UpdatedAt,
		&unit.ReservedCount,
	)
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *UnitRepository) queryUnits(ctx context.Context, op, query string, args ...any) ([]*model.ReservableUnit, error) {
	rows, err := r.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var units []*model.ReservableUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return units, nil
}

// Create создаёт новый слот
func (r *UnitRepository) Create(ctx context.Context, unit *model.ReservableUnit) error {
	query := `
		INSERT INTO reservable_units (id, owner_id, title, date, start_time, end_time, timezone, capacity_mode, max_occupants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		unit.ID,
		unit.Window.OwnerID,
		unit.Title,
		unit.Window.Date,
		unit.Window.StartTime,
		unit.Window.EndTime,
		unit.Window.Timezone,
		unit.CapacityMode,
		unit.MaxOccupants,
	).Scan(&unit.CreatedAt, &unit.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create unit: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create unit: %w", err)
	}

	return nil
}

// GetByID получает слот по ID вместе с числом активных броней
func (r *UnitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM reservable_units u WHERE u.id = $1`

	unit, err := scanUnit(r.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unit by id: %w", err)
	}

	return unit, nil
}

// LockByID блокирует строку слота до конца транзакции
func (r *UnitRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM reservable_units u WHERE u.id = $1 FOR UPDATE OF u`

	unit, err := scanUnit(r.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock unit: %w", err)
	}

	return unit, nil
}

// LockOwner берёт advisory-блокировку владельца на время транзакции (проверка пересечений)
func (r *UnitRepository) LockOwner(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.Conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, ownerID.String())
	if err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

// ListByOwnerDate получает слоты владельца на дату
func (r *UnitRepository) ListByOwnerDate(ctx context.Context, ownerID uuid.UUID, date string) ([]*model.ReservableUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM reservable_units u
		WHERE u.owner_id = $1 AND u.date = $2
		ORDER BY u.start_time
	`
	return r.queryUnits(ctx, "list units by owner date", query, ownerID, date)
}

// ListByOwner получает все слоты владельца начиная с даты
func (r *UnitRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, fromDate string) ([]*model.ReservableUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM reservable_units u
		WHERE u.owner_id = $1 AND u.date >= $2
		ORDER BY u.date, u.start_time
	`
	return r.queryUnits(ctx, "list units by owner", query, ownerID, fromDate)
}

// ListDiscoverable получает слоты со свободными местами начиная с даты
func (r *UnitRepository) ListDiscoverable(ctx context.Context, fromDate string, ownerID *uuid.UUID) ([]*model.ReservableUnit, error) {
	query := `SELECT * FROM (SELECT ` + unitColumns + `
		FROM reservable_units u
		WHERE u.date >= $1 AND ($2::uuid IS NULL OR u.owner_id = $2)
	) s
	WHERE s.reserved_count < s.max_occupants
	ORDER BY s.date, s.start_time
	`
	return r.queryUnits(ctx, "list discoverable units", query, fromDate, ownerID)
}

// UpdateWindow обновляет окно и параметры слота
func (r *UnitRepository) UpdateWindow(ctx context.Context, unit *model.ReservableUnit) error {
	query := `
		UPDATE reservable_units
		SET title = $2, date = $3, start_time = $4, end_time = $5, timezone = $6,
		    capacity_mode = $7, max_occupants = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		unit.ID,
		unit.Title,
		unit.Window.Date,
		unit.Window.StartTime,
		unit.Window.EndTime,
		unit.Window.Timezone,
		unit.CapacityMode,
		unit.MaxOccupants,
	).Scan(&unit.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *UnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.Conn(ctx).Exec(ctx, `DELETE FROM reservable_units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return nil
}

// ListPastUnoccupied получает прошедшие слоты без активных броней
func (r *UnitRepository) ListPastUnoccupied(ctx context.Context, before time.Time, limit int) ([]*model.ReservableUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM reservable_units u
		WHERE u.date < $1
		  AND NOT EXISTS (SELECT 1 FROM occupants o WHERE o.unit_id = u.id AND o.status = 'RESERVED')
		ORDER BY u.date
		LIMIT $2
	`
	return r.queryUnits(ctx, "list past unoccupied units", query, before.Format("2006-01-02"), limit)
}
