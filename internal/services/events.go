package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studia-backend/internal/models"
)

// Events fans live updates out to the WebSocket hub via Redis pub/sub.
type Events struct {
	redis *redis.Client
}

func NewEvents(redisClient *redis.Client) *Events {
	return &Events{redis: redisClient}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (e *Events) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	e.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", userID.String()), string(data))
}
