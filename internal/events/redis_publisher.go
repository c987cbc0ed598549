package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans events out to a Redis channel so live dashboards can
// subscribe without polling the API.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates the publisher.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// RegisterHandlers subscribes the publisher to every scheduler event.
func (p *RedisPublisher) RegisterHandlers(dispatcher Dispatcher) {
	if p == nil || p.client == nil || dispatcher == nil {
		return
	}
	for _, eventType := range []EventType{
		EventChatCreated,
		EventChatAssigned,
		EventChatReleased,
		EventChatStatusChanged,
		EventChatGraceGranted,
		EventChatDeadlineExtended,
		EventChatMessageAdded,
	} {
		dispatcher.Subscribe(eventType, p.handle)
	}
}

func (p *RedisPublisher) handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.logger.Warn("redis publish failed",
			zap.String("channel", p.channel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
