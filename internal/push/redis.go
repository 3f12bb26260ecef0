// Package push broadcasts user-facing events over redis pub/sub. Delivery
// is best effort: subscribers that are offline simply miss the message, and
// no caller waits on the result for correctness.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avelio/flightdesk/config"
	"github.com/redis/go-redis/v9"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, userID int64, event any) error
}

type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(cfg config.RedisConfig) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
	}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, userID int64, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, userChannel(userID), payload).Err()
}

func userChannel(userID int64) string {
	return fmt.Sprintf("events:user:%d", userID)
}

var _ Broadcaster = (*RedisBroadcaster)(nil)
