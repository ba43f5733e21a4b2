package memory

import (
	"context"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type IdentityRepository struct{ s *Store }

func (r *IdentityRepository) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *IdentityRepository) Provider(ctx context.Context, id uuid.UUID) (*model.ProviderProfile, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.data.providers[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *IdentityRepository) ProviderForUser(ctx context.Context, userID uuid.UUID) (*model.ProviderProfile, error) {
	defer r.s.lock(ctx)()
	for _, p := range r.s.data.providers {
		if p.UserID == userID {
			return ptr(p), nil
		}
	}
	return nil, nil
}

func (r *IdentityRepository) LinkTelegramChat(ctx context.Context, userID uuid.UUID, chatID int64) (bool, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.data.users[userID]
	if !ok {
		return false, nil
	}
	u.TelegramChatID = &chatID
	r.s.data.users[userID] = u
	return true, nil
}
