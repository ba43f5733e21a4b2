package chat

import (
	"context"
	"fmt"

	stream_chat "github.com/GetStream/stream-chat-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type channelCreator interface {
	UpsertUsers(ctx context.Context, users ...*stream_chat.User) (*stream_chat.UsersResponse, error)
	CreateChannelWithMembers(ctx context.Context, chanType, chanID, userID string, memberIDs ...string) (*stream_chat.CreateChannelResponse, error)
}

// StreamStarter открывает канал переписки для каждой работы
type StreamStarter struct {
	client channelCreator
	logger *zap.Logger
}

func NewStreamStarter(apiKey, apiSecret string, logger *zap.Logger) (*StreamStarter, error) {
	client, err := stream_chat.NewClient(apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("create stream client: %w", err)
	}
	return &StreamStarter{client: client, logger: logger}, nil
}

// ChannelID имя канала работы
func ChannelID(engagementID uuid.UUID) string {
	return "engagement-" + engagementID.String()
}

// StartConversation создаёт канал; первый участник считается создателем
func (s *StreamStarter) StartConversation(ctx context.Context, engagementID uuid.UUID, members ...uuid.UUID) error {
	if len(members) == 0 {
		return fmt.Errorf("start conversation: no members")
	}

	ids := make([]string, 0, len(members))
	users := make([]*stream_chat.User, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.String())
		users = append(users, &stream_chat.User{ID: m.String()})
	}

	if _, err := s.client.UpsertUsers(ctx, users...); err != nil {
		return fmt.Errorf("upsert chat users: %w", err)
	}

	if _, err := s.client.CreateChannelWithMembers(ctx, "messaging", ChannelID(engagementID), ids[0], ids...); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	s.logger.Info("Conversation started",
		zap.String("engagement_id", engagementID.String()),
		zap.Int("members", len(ids)))

	return nil
}
