package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

// IdentityRepository пользователи и профили провайдеров
type IdentityRepository struct {
	*base.Repository
}

func NewIdentityRepository(pool base.Querier) *IdentityRepository {
	return &IdentityRepository{Repository: base.NewRepository(pool)}
}

// CreateUser создаёт нового пользователя
func (r *IdentityRepository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, display_name, telegram_chat_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(ctx, query, user.ID, user.DisplayName, user.TelegramChatID).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// CreateProvider создаёт профиль провайдера
func (r *IdentityRepository) CreateProvider(ctx context.Context, p *model.ProviderProfile) error {
	query := `
		INSERT INTO provider_profiles (id, user_id, display_name, hourly_rate)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(ctx, query, p.ID, p.UserID, p.DisplayName, p.HourlyRate).Scan(&p.CreatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create provider: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create provider: %w", err)
	}

	return nil
}

// User получает пользователя по ID
func (r *IdentityRepository) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, display_name, telegram_chat_id, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := r.Conn(ctx).QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.TelegramChatID,
		&user.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return &user, nil
}

func (r *IdentityRepository) provider(ctx context.Context, op, where string, arg uuid.UUID) (*model.ProviderProfile, error) {
	query := `
		SELECT id, user_id, display_name, hourly_rate, created_at
		FROM provider_profiles
		WHERE ` + where

	var p model.ProviderProfile
	err := r.Conn(ctx).QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.UserID,
		&p.DisplayName,
		&p.HourlyRate,
		&p.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

// Provider получает профиль провайдера по ID
func (r *IdentityRepository) Provider(ctx context.Context, id uuid.UUID) (*model.ProviderProfile, error) {
	return r.provider(ctx, "get provider by id", "id = $1", id)
}

// ProviderForUser получает профиль провайдера пользователя
func (r *IdentityRepository) ProviderForUser(ctx context.Context, userID uuid.UUID) (*model.ProviderProfile, error) {
	return r.provider(ctx, "get provider by user", "user_id = $1", userID)
}

// LinkTelegramChat привязывает чат Telegram к пользователю
func (r *IdentityRepository) LinkTelegramChat(ctx context.Context, userID uuid.UUID, chatID int64) (bool, error) {
	query := `
		UPDATE users
		SET telegram_chat_id = $2
		WHERE id = $1
	`

	affected, err := r.ExecAffected(ctx, query, userID, chatID)
	if err != nil {
		return false, fmt.Errorf("link telegram chat: %w", err)
	}

	return affected > 0, nil
}
