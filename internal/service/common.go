package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// callerProvider возвращает профиль провайдера, от имени которого действует пользователь
func callerProvider(ctx context.Context, identity IdentityLookup, p model.Principal) (*model.ProviderProfile, error) {
	if !p.Has(model.RoleProvider) {
		return nil, apperror.Conflict("caller is not a provider")
	}
	provider, err := identity.ProviderForUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("get provider profile: %w", err)
	}
	if provider == nil {
		return nil, apperror.Conflict("caller has no provider profile")
	}
	return provider, nil
}

// deadlinePassed прямой запрос, срок ответа на который истёк
func deadlinePassed(req *model.WorkRequest, now time.Time) error {
	if req.ResponseDeadline != nil && !req.ResponseDeadline.After(now) {
		return apperror.Conflict("response deadline passed at %s", req.ResponseDeadline.Format(time.RFC3339))
	}
	return nil
}

func requireClient(p model.Principal) error {
	if !p.Has(model.RoleClient) {
		return apperror.Conflict("caller is not a client")
	}
	return nil
}

// conflictOnDuplicate превращает нарушение уникальности в ConflictError
func conflictOnDuplicate(err error, format string, args ...any) error {
	if errors.Is(err, model.ErrDuplicate) {
		return apperror.Conflict(format, args...)
	}
	return err
}

func send(n Notifier, userID uuid.UUID, event notify.Event, subject uuid.UUID, title, body string) {
	if n == nil {
		return
	}
	n.Notify(notify.Message{
		UserID:  userID,
		Event:   event,
		Subject: subject.String(),
		Title:   title,
		Body:    body,
	})
}

// startConversation открывает переписку; ошибка только логируется
func startConversation(ctx context.Context, chat ConversationStarter, logger *zap.Logger, engagementID uuid.UUID, members ...uuid.UUID) {
	if chat == nil {
		return
	}
	if err := chat.StartConversation(ctx, engagementID, members...); err != nil {
		logger.Warn("Failed to start conversation",
			zap.String("engagement_id", engagementID.String()),
			zap.Error(apperror.SideEffect(err, "start conversation")))
	}
}
