package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"go.uber.org/zap"
)

// SweepReport итог одного прохода очистки
type SweepReport struct {
	PromotedToPublic int
	ExpiredRequests  int
	ExpiredDrafts    int
	LapsedOccupants  int
	RemovedUnits     int
	Failed           int
}

// ExpiryService фоновая обработка истёкших сроков
type ExpiryService struct {
	requests  RequestStore
	occupants OccupantStore
	units     UnitStore
	requestSv *RequestService
	sessionSv *SessionService
	unitSv    *UnitService
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

func NewExpiryService(
	requests RequestStore,
	occupants OccupantStore,
	units UnitStore,
	requestSv *RequestService,
	sessionSv *SessionService,
	unitSv *UnitService,
	settings Settings,
	logger *zap.Logger,
) *ExpiryService {
	return &ExpiryService{
		requests:  requests,
		occupants: occupants,
		units:     units,
		requestSv: requestSv,
		sessionSv: sessionSv,
		unitSv:    unitSv,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ExpiryService) batch() int {
	if s.settings.SweepBatch <= 0 {
		return 100
	}
	return s.settings.SweepBatch
}

// Sweep обрабатывает просроченные запросы, черновики, неоплаченные брони и прошедшие слоты.
// Каждый элемент в своей транзакции: ошибка логируется, проход продолжается.
func (s *ExpiryService) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		errs   []error
	)
	now := s.now()

	overdue, err := s.requests.ListOverduePending(ctx, now, s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list overdue requests: %w", err))
	}
	for _, req := range overdue {
		status, err := s.requestSv.expireOverdue(ctx, req.ID)
		if err != nil {
			s.fail(&report, "request", req.ID.String(), err)
			continue
		}
		switch status {
		case model.RequestStatusPublic:
			report.PromotedToPublic++
		case model.RequestStatusExpired:
			report.ExpiredRequests++
		}
	}

	drafts, err := s.requests.ListStaleDrafts(ctx, now.Add(-s.settings.DraftTTL), s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list stale drafts: %w", err))
	}
	for _, req := range drafts {
		expired, err := s.requestSv.expireDraft(ctx, req.ID)
		if err != nil {
			s.fail(&report, "draft", req.ID.String(), err)
			continue
		}
		if expired {
			report.ExpiredDrafts++
		}
	}

	unpaid, err := s.occupants.ListUnpaidBefore(ctx, now.Add(-s.settings.HoldTTL), s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list unpaid occupants: %w", err))
	}
	for _, o := range unpaid {
		lapsed, err := s.sessionSv.lapse(ctx, o)
		if err != nil {
			s.fail(&report, "occupant", o.ID.String(), err)
			continue
		}
		if lapsed {
			report.LapsedOccupants++
		}
	}

	// Сутки запаса покрывают часовые пояса слотов
	past, err := s.units.ListPastUnoccupied(ctx, now.Add(-24*time.Hour), s.batch())
	if err != nil {
		errs = append(errs, fmt.Errorf("list past units: %w", err))
	}
	for _, unit := range past {
		if err := s.unitSv.removePast(ctx, unit.ID); err != nil {
			s.fail(&report, "unit", unit.ID.String(), err)
			continue
		}
		report.RemovedUnits++
	}

	if report != (SweepReport{}) {
		s.logger.Info("Sweep finished",
			zap.Int("promoted_to_public", report.PromotedToPublic),
			zap.Int("expired_requests", report.ExpiredRequests),
			zap.Int("expired_drafts", report.ExpiredDrafts),
			zap.Int("lapsed_occupants", report.LapsedOccupants),
			zap.Int("removed_units", report.RemovedUnits),
			zap.Int("failed", report.Failed))
	}

	return report, errors.Join(errs...)
}

func (s *ExpiryService) fail(report *SweepReport, kind, id string, err error) {
	report.Failed++
	s.logger.Warn("Sweep item failed",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Error(err))
}
