package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// IdentitySource источник пользователей и профилей
type IdentitySource interface {
	User(ctx context.Context, id uuid.UUID) (*model.User, error)
	Provider(ctx context.Context, id uuid.UUID) (*model.ProviderProfile, error)
	ProviderForUser(ctx context.Context, userID uuid.UUID) (*model.ProviderProfile, error)
}

// CachedIdentity кэширует найденные профили в памяти. Отсутствующие записи не кэшируются.
type CachedIdentity struct {
	source IdentitySource
	store  *cache.Cache
}

func NewCachedIdentity(source IdentitySource, ttl time.Duration) *CachedIdentity {
	return &CachedIdentity{
		source: source,
		store:  cache.New(ttl, 2*ttl),
	}
}

func (c *CachedIdentity) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	key := "user:" + id.String()
	if v, found := c.store.Get(key); found {
		return v.(*model.User), nil
	}

	user, err := c.source.User(ctx, id)
	if err != nil || user == nil {
		return user, err
	}
	c.store.SetDefault(key, user)
	return user, nil
}

func (c *CachedIdentity) Provider(ctx context.Context, id uuid.UUID) (*model.ProviderProfile, error) {
	key := "provider:" + id.String()
	if v, found := c.store.Get(key); found {
		return v.(*model.ProviderProfile), nil
	}

	p, err := c.source.Provider(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	c.store.SetDefault(key, p)
	c.store.SetDefault("provider-user:"+p.UserID.String(), p)
	return p, nil
}

func (c *CachedIdentity) ProviderForUser(ctx context.Context, userID uuid.UUID) (*model.ProviderProfile, error) {
	key := "provider-user:" + userID.String()
	if v, found := c.store.Get(key); found {
		return v.(*model.ProviderProfile), nil
	}

	p, err := c.source.ProviderForUser(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}
	c.store.SetDefault(key, p)
	c.store.SetDefault("provider:"+p.ID.String(), p)
	return p, nil
}

// Forget сбрасывает кэш пользователя и его профиля
func (c *CachedIdentity) Forget(userID uuid.UUID) {
	if v, found := c.store.Get("provider-user:" + userID.String()); found {
		c.store.Delete("provider:" + v.(*model.ProviderProfile).ID.String())
	}
	c.store.Delete("provider-user:" + userID.String())
	c.store.Delete("user:" + userID.String())
}
