package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/models"
)

// ChangeFeedRepository fans change events out over Redis Pub/Sub.
type ChangeFeedRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewChangeFeedRepository constructs the feed. A nil client disables publishing.
func NewChangeFeedRepository(client *redis.Client, logger *zap.Logger) *ChangeFeedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeedRepository{client: client, logger: logger}
}

// Publish sends the event on each of its channels.
func (r *ChangeFeedRepository) Publish(ctx context.Context, event models.ChangeEvent) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	for _, channel := range event.Channels() {
		if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", channel, err)
		}
	}
	return nil
}

// Subscribe listens on the channels until ctx is done. The returned channel is closed on exit.
func (r *ChangeFeedRepository) Subscribe(ctx context.Context, channels ...string) (<-chan models.ChangeEvent, error) {
	out := make(chan models.ChangeEvent)
	if r.client == nil {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Warn("ignoring malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
