package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/availability"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestInput параметры запроса клиента
type RequestInput struct {
	TargetProviderID *uuid.UUID // nil = публичный запрос
	Title            string
	Description      string
	FromBudget       *model.Money
	ToBudget         *model.Money
	PaymentMethod    string
	Draft            bool
	FallbackToPublic *bool // по умолчанию true
}

type RequestService struct {
	tx        Transactor
	requests  RequestStore
	proposals ProposalStore
	projects  *ProjectService
	identity  IdentityLookup
	notifier  Notifier
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

func NewRequestService(
	tx Transactor,
	requests RequestStore,
	proposals ProposalStore,
	projects *ProjectService,
	identity IdentityLookup,
	notifier Notifier,
	settings Settings,
	logger *zap.Logger,
) *RequestService {
	return &RequestService{
		tx:        tx,
		requests:  requests,
		proposals: proposals,
		projects:  projects,
		identity:  identity,
		notifier:  notifier,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// route выбирает статус отправленного запроса: PENDING с дедлайном для прямого, PUBLIC иначе
func (s *RequestService) route(req *model.WorkRequest) {
	if req.IsDirect() {
		deadline := s.now().Add(s.settings.ResponseWindow)
		req.Status = model.RequestStatusPending
		req.ResponseDeadline = &deadline
		return
	}
	req.Status = model.RequestStatusPublic
	req.ResponseDeadline = nil
}

func validateBudget(from, to *model.Money) error {
	if from != nil && *from < 0 {
		return apperror.Validation("budget cannot be negative")
	}
	if from != nil && to != nil && *from > *to {
		return apperror.Validation("budget from %s is greater than to %s", *from, *to)
	}
	return nil
}

// CreateRequest создаёт запрос клиента: черновик, прямой провайдеру или публичный
func (s *RequestService) CreateRequest(ctx context.Context, p model.Principal, in RequestInput) (*model.WorkRequest, error) {
	if err := requireClient(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperror.Validation("title is required")
	}
	if err := validateBudget(in.FromBudget, in.ToBudget); err != nil {
		return nil, err
	}

	var target *model.ProviderProfile
	if in.TargetProviderID != nil {
		provider, err := s.identity.Provider(ctx, *in.TargetProviderID)
		if err != nil {
			return nil, fmt.Errorf("get provider: %w", err)
		}
		if provider == nil {
			return nil, apperror.NotFound("provider", *in.TargetProviderID)
		}
		if provider.UserID == p.UserID {
			return nil, apperror.Validation("cannot send a request to yourself")
		}
		target = provider
	}

	fallback := true
	if in.FallbackToPublic != nil {
		fallback = *in.FallbackToPublic
	}

	req := &model.WorkRequest{
		ID:               uuid.New(),
		ClientID:         p.UserID,
		TargetProviderID: in.TargetProviderID,
		Title:            in.Title,
		Description:      in.Description,
		FromBudget:       in.FromBudget,
		ToBudget:         in.ToBudget,
		PaymentMethod:    in.PaymentMethod,
		Status:           model.RequestStatusDraft,
		FallbackToPublic: fallback,
	}
	if !in.Draft {
		s.route(req)
	}

	if err := s.requests.Create(ctx, req); err != nil {
		s.logger.Error("Failed to create request",
			zap.String("client_id", p.UserID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("Request created",
		zap.String("request_id", req.ID.String()),
		zap.String("client_id", p.UserID.String()),
		zap.String("status", string(req.Status)))

	if req.Status == model.RequestStatusPending && target != nil {
		s.notifyTarget(target, req)
	}
	return req, nil
}

func (s *RequestService) notifyTarget(target *model.ProviderProfile, req *model.WorkRequest) {
	send(s.notifier, target.UserID, notify.EventRequestReceived, req.ID,
		"Новый запрос",
		fmt.Sprintf("Вам пришёл запрос «%s». Ответьте до %s", req.Title, req.ResponseDeadline.Format("02.01 15:04")))
}

// lockOwn блокирует запрос и проверяет что он принадлежит клиенту
func (s *RequestService) lockOwn(ctx context.Context, p model.Principal, id uuid.UUID) (*model.WorkRequest, error) {
	req, err := s.requests.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperror.NotFound("request", id)
	}
	if req.ClientID != p.UserID {
		return nil, apperror.Conflict("only the requesting client can do this")
	}
	return req, nil
}

// SubmitRequest отправляет черновик
func (s *RequestService) SubmitRequest(ctx context.Context, p model.Principal, id uuid.UUID) (*model.WorkRequest, error) {
	var req *model.WorkRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.lockOwn(ctx, p, id)
		if err != nil {
			return err
		}
		if req.Status != model.RequestStatusDraft {
			return apperror.Transition("request", req.Status, model.RequestStatusPending)
		}
		s.route(req)
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request submitted",
		zap.String("request_id", id.String()),
		zap.String("status", string(req.Status)))

	if req.Status == model.RequestStatusPending {
		if target, err := s.identity.Provider(ctx, *req.TargetProviderID); err == nil && target != nil {
			s.notifyTarget(target, req)
		}
	}
	return req, nil
}

// AcceptRequest принимает прямой запрос: сумма = середина бюджета, проект с удержанием
func (s *RequestService) AcceptRequest(ctx context.Context, p model.Principal, id uuid.UUID) (*ProjectOpened, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, apperror.NotFound("request", id)
	}
	if !req.IsDirect() || *req.TargetProviderID != provider.ID {
		return nil, apperror.Conflict("only the target provider can accept a request")
	}
	if req.Status != model.RequestStatusPending {
		return nil, apperror.Transition("request", req.Status, model.RequestStatusAccepted)
	}
	if err := deadlinePassed(req, s.now()); err != nil {
		return nil, err
	}

	amount, err := availability.BudgetMidpoint(req.FromBudget, req.ToBudget)
	if err != nil {
		return nil, err
	}

	return s.projects.open(ctx, openProject{
		request:  req,
		provider: provider,
		amount:   amount,
		expected: model.RequestStatusPending,
	})
}

// RejectRequest отклоняет прямой запрос
func (s *RequestService) RejectRequest(ctx context.Context, p model.Principal, id uuid.UUID) (*model.WorkRequest, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}

	var req *model.WorkRequest
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err = s.requests.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NotFound("request", id)
		}
		if !req.IsDirect() || *req.TargetProviderID != provider.ID {
			return apperror.Conflict("only the target provider can reject a request")
		}
		if req.Status != model.RequestStatusPending {
			return apperror.Transition("request", req.Status, model.RequestStatusRejected)
		}
		if err := deadlinePassed(req, s.now()); err != nil {
			return err
		}
		req.Status = model.RequestStatusRejected
		req.ResponseDeadline = nil
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request rejected",
		zap.String("request_id", id.String()),
		zap.String("provider_id", provider.ID.String()))

	send(s.notifier, req.ClientID, notify.EventRequestRejected, req.ID,
		"Запрос отклонён",
		fmt.Sprintf("%s отклонил(а) запрос «%s»", provider.DisplayName, req.Title))
	return req, nil
}

// CancelRequest отменяет запрос клиентом; после принятия отменяется проект, а не запрос
func (s *RequestService) CancelRequest(ctx context.Context, p model.Principal, id uuid.UUID) (*model.WorkRequest, error) {
	var req *model.WorkRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.lockOwn(ctx, p, id)
		if err != nil {
			return err
		}
		if req.Status == model.RequestStatusAccepted {
			return apperror.Conflict("request is already accepted, cancel the project instead")
		}
		if !req.Status.CanTransition(model.RequestStatusCancelled) {
			return apperror.Transition("request", req.Status, model.RequestStatusCancelled)
		}
		req.Status = model.RequestStatusCancelled
		req.ResponseDeadline = nil
		if err := s.requests.Update(ctx, req); err != nil {
			return err
		}
		return s.proposals.RejectOthers(ctx, req.ID, uuid.Nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request cancelled", zap.String("request_id", id.String()))
	return req, nil
}

// SubmitProposal предложение провайдера по публичному запросу
func (s *RequestService) SubmitProposal(ctx context.Context, p model.Principal, requestID uuid.UUID, amount model.Money, coverLetter string) (*model.Proposal, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, apperror.Validation("proposal amount must be positive, got %s", amount)
	}

	var req *model.WorkRequest
	proposal := &model.Proposal{
		ID:          uuid.New(),
		RequestID:   requestID,
		ProviderID:  provider.ID,
		Amount:      amount,
		CoverLetter: coverLetter,
		Status:      model.ProposalStatusSubmitted,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err = s.requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NotFound("request", requestID)
		}
		if req.Status != model.RequestStatusPublic {
			return apperror.Conflict("request is %s, proposals are accepted only for %s", req.Status, model.RequestStatusPublic)
		}
		if req.ClientID == p.UserID {
			return apperror.Validation("cannot propose on your own request")
		}
		if err := s.proposals.Create(ctx, proposal); err != nil {
			return conflictOnDuplicate(err, "provider already proposed on this request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proposal submitted",
		zap.String("proposal_id", proposal.ID.String()),
		zap.String("request_id", requestID.String()),
		zap.String("provider_id", provider.ID.String()),
		zap.Stringer("amount", amount))

	send(s.notifier, req.ClientID, notify.EventProposalReceived, req.ID,
		"Новое предложение",
		fmt.Sprintf("%s предлагает выполнить «%s» за %s", provider.DisplayName, req.Title, amount))
	return proposal, nil
}

// WithdrawProposal отзывает своё предложение
func (s *RequestService) WithdrawProposal(ctx context.Context, p model.Principal, proposalID uuid.UUID) error {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		proposal, err := s.proposals.GetByID(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal == nil {
			return apperror.NotFound("proposal", proposalID)
		}
		if proposal.ProviderID != provider.ID {
			return apperror.Conflict("only the author can withdraw a proposal")
		}
		if proposal.Status != model.ProposalStatusSubmitted {
			return apperror.Transition("proposal", proposal.Status, model.ProposalStatusWithdrawn)
		}
		return s.proposals.UpdateStatus(ctx, proposalID, model.ProposalStatusWithdrawn)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Proposal withdrawn", zap.String("proposal_id", proposalID.String()))
	return nil
}

// AcceptProposal клиент принимает предложение: проект на сумму предложения, остальные отклоняются
func (s *RequestService) AcceptProposal(ctx context.Context, p model.Principal, proposalID uuid.UUID) (*ProjectOpened, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if proposal == nil {
		return nil, apperror.NotFound("proposal", proposalID)
	}

	req, err := s.requests.GetByID(ctx, proposal.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, apperror.NotFound("request", proposal.RequestID)
	}
	if req.ClientID != p.UserID {
		return nil, apperror.Conflict("only the requesting client can accept a proposal")
	}
	if req.Status != model.RequestStatusPublic {
		return nil, apperror.Transition("request", req.Status, model.RequestStatusAccepted)
	}
	if proposal.Status != model.ProposalStatusSubmitted {
		return nil, apperror.Transition("proposal", proposal.Status, model.ProposalStatusAccepted)
	}

	provider, err := s.identity.Provider(ctx, proposal.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if provider == nil {
		return nil, apperror.NotFound("provider", proposal.ProviderID)
	}

	return s.projects.open(ctx, openProject{
		request:  req,
		provider: provider,
		amount:   proposal.Amount,
		proposal: proposal,
		expected: model.RequestStatusPublic,
	})
}

// ListProposals предложения по запросу (только для автора запроса)
func (s *RequestService) ListProposals(ctx context.Context, p model.Principal, requestID uuid.UUID) ([]*model.Proposal, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil || req.ClientID != p.UserID {
		return nil, apperror.NotFound("request", requestID)
	}
	return s.proposals.ListByRequest(ctx, requestID)
}

// ListMyRequests запросы клиента
func (s *RequestService) ListMyRequests(ctx context.Context, p model.Principal) ([]*model.WorkRequest, error) {
	return s.requests.ListByClient(ctx, p.UserID)
}

// ListIncomingRequests прямые запросы провайдеру
func (s *RequestService) ListIncomingRequests(ctx context.Context, p model.Principal) ([]*model.WorkRequest, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	return s.requests.ListByProvider(ctx, provider.ID)
}

func (s *RequestService) ListPublicRequests(ctx context.Context) ([]*model.WorkRequest, error) {
	return s.requests.ListPublic(ctx)
}

// expireOverdue переводит просроченный прямой запрос в PUBLIC или EXPIRED
func (s *RequestService) expireOverdue(ctx context.Context, id uuid.UUID) (model.RequestStatus, error) {
	var req *model.WorkRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.LockByID(ctx, id)
		if err != nil || req == nil {
			return err
		}
		now := s.now()
		if req.Status != model.RequestStatusPending || req.ResponseDeadline == nil || !req.ResponseDeadline.Before(now) {
			req = nil
			return nil
		}
		if req.FallbackToPublic {
			req.Status = model.RequestStatusPublic
		} else {
			req.Status = model.RequestStatusExpired
		}
		req.ResponseDeadline = nil
		return s.requests.Update(ctx, req)
	})
	if err != nil || req == nil {
		return "", err
	}

	s.logger.Info("Pending request timed out",
		zap.String("request_id", id.String()),
		zap.String("status", string(req.Status)))

	body := fmt.Sprintf("Провайдер не ответил на запрос «%s», он опубликован для всех", req.Title)
	if req.Status == model.RequestStatusExpired {
		body = fmt.Sprintf("Провайдер не ответил на запрос «%s», срок запроса истёк", req.Title)
	}
	send(s.notifier, req.ClientID, notify.EventRequestExpired, req.ID, "Нет ответа на запрос", body)
	return req.Status, nil
}

// expireDraft закрывает забытый черновик
func (s *RequestService) expireDraft(ctx context.Context, id uuid.UUID) (bool, error) {
	expired := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.LockByID(ctx, id)
		if err != nil || req == nil || req.Status != model.RequestStatusDraft {
			return err
		}
		req.Status = model.RequestStatusExpired
		expired = true
		return s.requests.Update(ctx, req)
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.logger.Info("Draft request expired", zap.String("request_id", id.String()))
	}
	return expired, nil
}
