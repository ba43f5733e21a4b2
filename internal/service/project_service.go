package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectOpened результат создания проекта
type ProjectOpened struct {
	Engagement   *model.Engagement
	Proposal     *model.Proposal
	LedgerEntry  *model.LedgerEntry
	ClientSecret string // для подтверждения оплаты на стороне клиента
}

// openProject параметры создания проекта по запросу
type openProject struct {
	request  *model.WorkRequest
	provider *model.ProviderProfile
	amount   model.Money
	proposal *model.Proposal     // nil = автоматическое предложение
	expected model.RequestStatus // статус запроса, из которого разрешено принятие
}

type ProjectService struct {
	tx          Transactor
	requests    RequestStore
	proposals   ProposalStore
	engagements EngagementStore
	escrow      Escrow
	identity    IdentityLookup
	notifier    Notifier
	chat        ConversationStarter
	logger      *zap.Logger
	now         func() time.Time
}

func NewProjectService(
	tx Transactor,
	requests RequestStore,
	proposals ProposalStore,
	engagements EngagementStore,
	escrow Escrow,
	identity IdentityLookup,
	notifier Notifier,
	chat ConversationStarter,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		tx:          tx,
		requests:    requests,
		proposals:   proposals,
		engagements: engagements,
		escrow:      escrow,
		identity:    identity,
		notifier:    notifier,
		chat:        chat,
		logger:      logger,
		now:         time.Now,
	}
}

// open удерживает сумму у процессора, затем одной транзакцией пишет проект, предложение,
// статус запроса и запись журнала. При ошибке транзакции удержание отменяется.
func (s *ProjectService) open(ctx context.Context, in openProject) (*ProjectOpened, error) {
	engagementID := uuid.New()
	hold, err := s.escrow.Authorize(ctx, settlement.HoldParams{
		Subject:       settlement.ForEngagement(engagementID),
		PayerID:       in.request.ClientID,
		PayeeID:       &in.provider.ID,
		Amount:        in.amount,
		PaymentMethod: in.request.PaymentMethod,
		Description:   in.request.Title,
	})
	if err != nil {
		return nil, err
	}

	result := &ProjectOpened{ClientSecret: hold.ClientSecret}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.LockByID(ctx, in.request.ID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperror.NotFound("request", in.request.ID)
		}
		if req.Status != in.expected {
			return apperror.Transition("request", req.Status, model.RequestStatusAccepted)
		}
		if err := deadlinePassed(req, s.now()); err != nil {
			return err
		}

		responderID := in.provider.UserID
		engagement := &model.Engagement{
			ID:          engagementID,
			Kind:        model.EngagementProject,
			RequestID:   &req.ID,
			InitiatorID: req.ClientID,
			ResponderID: &responderID,
			ProviderID:  in.provider.ID,
			Status:      model.EngagementCreated,
			Amount:      in.amount,
		}
		if err := s.engagements.Create(ctx, engagement); err != nil {
			return conflictOnDuplicate(err, "request already has a project")
		}

		proposal := in.proposal
		if proposal == nil {
			proposal = &model.Proposal{
				ID:         uuid.New(),
				RequestID:  req.ID,
				ProviderID: in.provider.ID,
				Amount:     in.amount,
				Status:     model.ProposalStatusAccepted,
				Auto:       true,
			}
			if err := s.proposals.Create(ctx, proposal); err != nil {
				return conflictOnDuplicate(err, "request already has an accepted proposal")
			}
		} else {
			current, err := s.proposals.GetByID(ctx, proposal.ID)
			if err != nil {
				return err
			}
			if current == nil || current.Status != model.ProposalStatusSubmitted {
				return apperror.Conflict("proposal is no longer open")
			}
			if err := s.proposals.UpdateStatus(ctx, proposal.ID, model.ProposalStatusAccepted); err != nil {
				return conflictOnDuplicate(err, "request already has an accepted proposal")
			}
			proposal = current
			proposal.Status = model.ProposalStatusAccepted
		}
		if err := s.proposals.RejectOthers(ctx, req.ID, proposal.ID); err != nil {
			return err
		}

		req.Status = model.RequestStatusAccepted
		req.EngagementID = &engagementID
		req.ResponseDeadline = nil
		if err := s.requests.Update(ctx, req); err != nil {
			return err
		}

		entry, err := s.escrow.Record(ctx, hold)
		if err != nil {
			return err
		}

		result.Engagement = engagement
		result.Proposal = proposal
		result.LedgerEntry = entry
		return nil
	})
	if err != nil {
		s.logger.Warn("Project creation failed, voiding hold",
			zap.String("request_id", in.request.ID.String()),
			zap.String("hold_ref", hold.Ref),
			zap.Error(err))
		s.escrow.Void(ctx, hold)
		return nil, err
	}

	s.logger.Info("Project opened",
		zap.String("engagement_id", engagementID.String()),
		zap.String("request_id", in.request.ID.String()),
		zap.String("provider_id", in.provider.ID.String()),
		zap.Stringer("amount", in.amount))

	send(s.notifier, in.request.ClientID, notify.EventRequestAccepted, engagementID,
		"Запрос принят",
		fmt.Sprintf("%s принял(а) запрос «%s». Сумма: %s", in.provider.DisplayName, in.request.Title, in.amount))
	startConversation(ctx, s.chat, s.logger, engagementID, in.request.ClientID, in.provider.UserID)

	return result, nil
}

// project загружает проект и проверяет вид
func (s *ProjectService) project(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	e, err := s.engagements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if e == nil || e.Kind != model.EngagementProject {
		return nil, apperror.NotFound("project", id)
	}
	return e, nil
}

func (s *ProjectService) asClient(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Engagement, error) {
	e, err := s.project(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.InitiatorID != p.UserID {
		return nil, apperror.Conflict("only the client of the project can do this")
	}
	return e, nil
}

func (s *ProjectService) asProvider(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Engagement, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	e, err := s.project(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ProviderID != provider.ID {
		return nil, apperror.Conflict("only the provider of the project can do this")
	}
	return e, nil
}

// transition под блокировкой строки переводит проект в новый статус
func (s *ProjectService) transition(ctx context.Context, id uuid.UUID, to model.EngagementStatus) (*model.Engagement, error) {
	e, err := s.engagements.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperror.NotFound("project", id)
	}
	if !e.CanTransition(to) {
		return nil, apperror.Transition("project", e.Status, to)
	}
	e.Apply(to, s.now())
	if err := s.engagements.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get возвращает проект участнику
func (s *ProjectService) Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Engagement, error) {
	e, err := s.project(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.InitiatorID != p.UserID && (e.ResponderID == nil || *e.ResponderID != p.UserID) {
		return nil, apperror.NotFound("project", id)
	}
	return e, nil
}

// ConfirmFunding подтверждает оплату клиентом и запускает работу
func (s *ProjectService) ConfirmFunding(ctx context.Context, p model.Principal, projectID uuid.UUID, paymentRef string) (*model.Engagement, error) {
	e, err := s.asClient(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if !e.CanTransition(model.EngagementInProgress) {
		return nil, apperror.Transition("project", e.Status, model.EngagementInProgress)
	}

	entry, err := s.escrow.EntryForEngagement(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status != model.LedgerHolding {
		return nil, apperror.Conflict("project has no funds on hold")
	}
	if entry.ProcessorRef != paymentRef {
		return nil, apperror.Validation("payment reference does not match the hold")
	}

	var updated *model.Engagement
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		updated, err = s.transition(ctx, projectID, model.EngagementInProgress)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project funded",
		zap.String("engagement_id", projectID.String()),
		zap.String("ledger_entry_id", entry.ID.String()))

	if e.ResponderID != nil {
		send(s.notifier, *e.ResponderID, notify.EventProjectFunded, projectID,
			"Проект оплачен", "Клиент подтвердил оплату, можно начинать работу")
	}
	return updated, nil
}

// MarkComplete отмечает что провайдер сдал работу; повторный вызов ничего не меняет
func (s *ProjectService) MarkComplete(ctx context.Context, p model.Principal, projectID uuid.UUID) (*model.Engagement, error) {
	e, err := s.asProvider(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EngagementInProgress {
		return nil, apperror.Conflict("project must be %s to mark complete, is %s", model.EngagementInProgress, e.Status).
			With("current", string(e.Status))
	}
	if e.ProviderCompletedAt != nil {
		return e, nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.engagements.LockByID(ctx, projectID)
		if err != nil {
			return err
		}
		if locked.Status != model.EngagementInProgress {
			return apperror.Conflict("project must be %s to mark complete, is %s", model.EngagementInProgress, locked.Status)
		}
		if locked.ProviderCompletedAt == nil {
			at := s.now()
			locked.ProviderCompletedAt = &at
			if err := s.engagements.Update(ctx, locked); err != nil {
				return err
			}
		}
		e = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Project delivered by provider",
		zap.String("engagement_id", projectID.String()))

	send(s.notifier, e.InitiatorID, notify.EventProjectDelivered, projectID,
		"Работа сдана", "Провайдер отметил проект выполненным. Подтвердите завершение, чтобы перевести оплату")
	return e, nil
}

// ConfirmComplete подтверждает завершение: выплата провайдеру и COMPLETED в одной транзакции
func (s *ProjectService) ConfirmComplete(ctx context.Context, p model.Principal, projectID uuid.UUID) (*model.Engagement, error) {
	e, err := s.asClient(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EngagementCompleted {
		return e, nil
	}
	if e.Status != model.EngagementInProgress {
		return nil, apperror.Transition("project", e.Status, model.EngagementCompleted)
	}
	if e.ProviderCompletedAt == nil {
		return nil, apperror.Conflict("provider has not marked the project complete")
	}

	entry, err := s.escrow.EntryForEngagement(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperror.Conflict("project has no ledger entry")
	}

	var updated *model.Engagement
	err = s.escrow.Release(ctx, entry.ID, e.ProviderID, func(ctx context.Context) error {
		updated, err = s.transition(ctx, projectID, model.EngagementCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// запись уже была выплачена ранее
		if updated, err = s.project(ctx, projectID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Project completed",
		zap.String("engagement_id", projectID.String()),
		zap.String("ledger_entry_id", entry.ID.String()))

	if e.ResponderID != nil {
		send(s.notifier, *e.ResponderID, notify.EventProjectCompleted, projectID,
			"Проект завершён", fmt.Sprintf("Клиент подтвердил завершение. К выплате: %s", e.Amount))
	}
	return updated, nil
}

// Cancel отменяет проект клиентом с возвратом удержанных средств
func (s *ProjectService) Cancel(ctx context.Context, p model.Principal, projectID uuid.UUID) (*model.Engagement, error) {
	e, err := s.asClient(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EngagementCancelled {
		return e, nil
	}
	if !e.CanTransition(model.EngagementCancelled) {
		return nil, apperror.Transition("project", e.Status, model.EngagementCancelled)
	}

	entry, err := s.escrow.EntryForEngagement(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var updated *model.Engagement
	cancel := func(ctx context.Context) error {
		updated, err = s.transition(ctx, projectID, model.EngagementCancelled)
		return err
	}

	switch {
	case entry == nil:
		err = s.tx.WithinTx(ctx, cancel)
	case entry.Status == model.LedgerReleased:
		return nil, apperror.Conflict("project funds were already released")
	default:
		err = s.escrow.Refund(ctx, entry.ID, cancel)
		if err == nil && updated == nil {
			// возврат уже был сделан, отменяем сам проект
			err = s.tx.WithinTx(ctx, cancel)
		}
	}
	if err != nil {
		if apperror.IsKind(err, apperror.KindConflict) {
			if current, getErr := s.project(ctx, projectID); getErr == nil && current.Status == model.EngagementCancelled {
				return current, nil
			}
		}
		return nil, err
	}

	s.logger.Info("Project cancelled",
		zap.String("engagement_id", projectID.String()))

	if e.ResponderID != nil {
		send(s.notifier, *e.ResponderID, notify.EventProjectCancelled, projectID,
			"Проект отменён", "Клиент отменил проект, удержанные средства возвращены")
	}
	return updated, nil
}
