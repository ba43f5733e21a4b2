package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/availability"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnitInput параметры слота
type UnitInput struct {
	Title        string
	Date         string // YYYY-MM-DD
	StartTime    string // HH:MM
	EndTime      string // HH:MM
	Timezone     string
	CapacityMode model.CapacityMode
	MaxOccupants int
}

// WeeklyPattern шаблон повторяющихся слотов: дни недели × время начала
type WeeklyPattern struct {
	Title           string
	Weekdays        []time.Weekday
	StartTimes      []string // HH:MM
	DurationMinutes int
	Weeks           int // 0 = до горизонта бронирования
	Timezone        string
	CapacityMode    model.CapacityMode
	MaxOccupants    int
}

// UnitResult результат создания одного слота в пакете
type UnitResult struct {
	Index int
	Unit  *model.ReservableUnit
	Err   error
}

type UnitService struct {
	tx          Transactor
	units       UnitStore
	occupants   OccupantStore
	engagements EngagementStore
	identity    IdentityLookup
	settings    Settings
	logger      *zap.Logger
	now         func() time.Time
}

func NewUnitService(
	tx Transactor,
	units UnitStore,
	occupants OccupantStore,
	engagements EngagementStore,
	identity IdentityLookup,
	settings Settings,
	logger *zap.Logger,
) *UnitService {
	return &UnitService{
		tx:          tx,
		units:       units,
		occupants:   occupants,
		engagements: engagements,
		identity:    identity,
		settings:    settings,
		logger:      logger,
		now:         time.Now,
	}
}

func (in UnitInput) window(ownerID uuid.UUID) model.TimeWindow {
	return model.TimeWindow{
		OwnerID:   ownerID,
		Date:      in.Date,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Timezone:  in.Timezone,
	}
}

// CreateUnit создаёт слот провайдера без пересечений с его другими слотами
func (s *UnitService) CreateUnit(ctx context.Context, p model.Principal, in UnitInput) (*model.ReservableUnit, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, provider.ID, in)
}

// CreateUnits создаёт несколько слотов; ошибка одного не прерывает остальные
func (s *UnitService) CreateUnits(ctx context.Context, p model.Principal, inputs []UnitInput) ([]UnitResult, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}

	results := make([]UnitResult, 0, len(inputs))
	created := 0
	for i, in := range inputs {
		unit, err := s.create(ctx, provider.ID, in)
		if err == nil {
			created++
		}
		results = append(results, UnitResult{Index: i, Unit: unit, Err: err})
	}

	s.logger.Info("Units created in batch",
		zap.String("owner_id", provider.ID.String()),
		zap.Int("requested", len(inputs)),
		zap.Int("created", created))

	return results, nil
}

// CreateWeeklyUnits разворачивает недельный шаблон в слоты до горизонта бронирования.
// Уже прошедшие окна пропускаются.
func (s *UnitService) CreateWeeklyUnits(ctx context.Context, p model.Principal, pattern WeeklyPattern) ([]UnitResult, error) {
	inputs, err := s.expand(pattern)
	if err != nil {
		return nil, err
	}
	return s.CreateUnits(ctx, p, inputs)
}

func (s *UnitService) expand(pattern WeeklyPattern) ([]UnitInput, error) {
	if pattern.DurationMinutes <= 0 {
		return nil, apperror.Validation("duration must be positive")
	}
	if len(pattern.Weekdays) == 0 || len(pattern.StartTimes) == 0 {
		return nil, apperror.Validation("pattern needs at least one weekday and one start time")
	}

	location := time.UTC
	if pattern.Timezone != "" {
		loc, err := time.LoadLocation(pattern.Timezone)
		if err != nil {
			return nil, apperror.Validation("unknown timezone %q", pattern.Timezone)
		}
		location = loc
	}

	days := pattern.Weeks * 7
	if days <= 0 {
		days = int(s.settings.MaxLeadTime / (24 * time.Hour))
	}

	weekdays := make(map[time.Weekday]bool, len(pattern.Weekdays))
	for _, wd := range pattern.Weekdays {
		weekdays[wd] = true
	}

	now := s.now().In(location)
	var inputs []UnitInput
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, i)
		if !weekdays[date.Weekday()] {
			continue
		}
		for _, startTime := range pattern.StartTimes {
			startMin, err := availability.ParseClock(startTime)
			if err != nil {
				return nil, err
			}
			endMin := startMin + pattern.DurationMinutes
			// Окно не может переходить через полночь
			if endMin >= 24*60 {
				return nil, apperror.Validation("slot starting %s with %d minutes crosses midnight", startTime, pattern.DurationMinutes)
			}

			start := time.Date(date.Year(), date.Month(), date.Day(), startMin/60, startMin%60, 0, 0, location)
			// Пропускаем прошедшие слоты
			if !start.After(now) {
				continue
			}

			inputs = append(inputs, UnitInput{
				Title:        pattern.Title,
				Date:         date.Format(dateLayout),
				StartTime:    startTime,
				EndTime:      fmt.Sprintf("%02d:%02d", endMin/60, endMin%60),
				Timezone:     pattern.Timezone,
				CapacityMode: pattern.CapacityMode,
				MaxOccupants: pattern.MaxOccupants,
			})
		}
	}
	return inputs, nil
}

func (s *UnitService) create(ctx context.Context, ownerID uuid.UUID, in UnitInput) (*model.ReservableUnit, error) {
	window := in.window(ownerID)
	if err := availability.CheckHorizon(window, s.now(), s.settings.MaxLeadTime); err != nil {
		return nil, err
	}
	maxOccupants, err := availability.NormalizeCapacity(in.CapacityMode, in.MaxOccupants)
	if err != nil {
		return nil, err
	}

	unit := &model.ReservableUnit{
		ID:           uuid.New(),
		Title:        in.Title,
		Window:       window,
		CapacityMode: in.CapacityMode,
		MaxOccupants: maxOccupants,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, unit); err != nil {
			return err
		}
		if err := s.units.Create(ctx, unit); err != nil {
			return conflictOnDuplicate(err, "unit already exists")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Unit created",
		zap.String("unit_id", unit.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.String("date", window.Date),
		zap.String("start_time", window.StartTime),
		zap.String("end_time", window.EndTime),
		zap.String("capacity_mode", string(unit.CapacityMode)))

	return unit, nil
}

// checkOverlap под advisory-блокировкой владельца сверяет окно с остальными слотами того же дня
func (s *UnitService) checkOverlap(ctx context.Context, unit *model.ReservableUnit) error {
	if err := s.units.LockOwner(ctx, unit.OwnerID()); err != nil {
		return err
	}
	existing, err := s.units.ListByOwnerDate(ctx, unit.OwnerID(), unit.Window.Date)
	if err != nil {
		return err
	}

	windows := make([]model.TimeWindow, 0, len(existing))
	for _, other := range existing {
		if other.ID == unit.ID {
			continue
		}
		windows = append(windows, other.Window)
	}

	ok, err := availability.IsAdmissible(unit.Window, windows)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Conflict("window %s %s-%s overlaps an existing unit",
			unit.Window.Date, unit.Window.StartTime, unit.Window.EndTime)
	}
	return nil
}

// lockOwned блокирует слот и проверяет что его можно менять: владелец, будущее окно, нет броней
func (s *UnitService) lockOwned(ctx context.Context, providerID, unitID uuid.UUID) (*model.ReservableUnit, error) {
	unit, err := s.units.LockByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apperror.NotFound("unit", unitID)
	}
	if unit.OwnerID() != providerID {
		return nil, apperror.Conflict("only the owner can modify a unit")
	}
	if !availability.IsFuture(unit.Window, s.now()) {
		return nil, apperror.Conflict("unit has already started")
	}

	reserved, err := s.occupants.CountReservedByUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if reserved > 0 {
		return nil, apperror.Conflict("unit has %d active reservations", reserved)
	}
	return unit, nil
}

// UpdateUnitWindow переносит свободный слот на новое окно
func (s *UnitService) UpdateUnitWindow(ctx context.Context, p model.Principal, unitID uuid.UUID, in UnitInput) (*model.ReservableUnit, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}

	window := in.window(provider.ID)
	if err := availability.CheckHorizon(window, s.now(), s.settings.MaxLeadTime); err != nil {
		return nil, err
	}
	maxOccupants, err := availability.NormalizeCapacity(in.CapacityMode, in.MaxOccupants)
	if err != nil {
		return nil, err
	}

	var unit *model.ReservableUnit
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		unit, err = s.lockOwned(ctx, provider.ID, unitID)
		if err != nil {
			return err
		}

		unit.Title = in.Title
		unit.Window = window
		unit.CapacityMode = in.CapacityMode
		unit.MaxOccupants = maxOccupants

		if err := s.checkOverlap(ctx, unit); err != nil {
			return err
		}
		return s.units.UpdateWindow(ctx, unit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Unit window updated",
		zap.String("unit_id", unitID.String()),
		zap.String("date", window.Date),
		zap.String("start_time", window.StartTime),
		zap.String("end_time", window.EndTime))

	return unit, nil
}

// DeleteUnit удаляет свободный слот; пустое запланированное занятие по нему отменяется
func (s *UnitService) DeleteUnit(ctx context.Context, p model.Principal, unitID uuid.UUID) error {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockOwned(ctx, provider.ID, unitID); err != nil {
			return err
		}
		return s.remove(ctx, unitID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Unit deleted",
		zap.String("unit_id", unitID.String()),
		zap.String("owner_id", provider.ID.String()))

	return nil
}

func (s *UnitService) remove(ctx context.Context, unitID uuid.UUID) error {
	session, err := s.engagements.FindOpenSessionByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if session != nil && session.Status == model.EngagementScheduled {
		session.Apply(model.EngagementCancelled, s.now())
		if err := s.engagements.Update(ctx, session); err != nil {
			return err
		}
	}
	return s.units.Delete(ctx, unitID)
}

// removePast удаляет прошедший слот без броней (для фоновой очистки)
func (s *UnitService) removePast(ctx context.Context, unitID uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		unit, err := s.units.LockByID(ctx, unitID)
		if err != nil || unit == nil {
			return err
		}
		reserved, err := s.occupants.CountReservedByUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if reserved > 0 {
			return nil
		}
		return s.remove(ctx, unitID)
	})
}

// ListOwnerUnits слоты провайдера начиная со вчерашнего дня
func (s *UnitService) ListOwnerUnits(ctx context.Context, p model.Principal) ([]*model.ReservableUnit, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	// День назад покрывает часовые пояса впереди UTC
	from := s.now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	return s.units.ListByOwner(ctx, provider.ID, from)
}

// ListDiscoverableUnits будущие слоты со свободными местами, опционально одного провайдера
func (s *UnitService) ListDiscoverableUnits(ctx context.Context, ownerID *uuid.UUID) ([]*model.ReservableUnit, error) {
	now := s.now()
	units, err := s.units.ListDiscoverable(ctx, now.UTC().AddDate(0, 0, -1).Format(dateLayout), ownerID)
	if err != nil {
		return nil, err
	}

	result := make([]*model.ReservableUnit, 0, len(units))
	for _, unit := range units {
		if availability.IsFuture(unit.Window, now) {
			result = append(result, unit)
		}
	}
	return result, nil
}
