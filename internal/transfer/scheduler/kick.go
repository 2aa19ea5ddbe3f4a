package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// KickBus carries "work is due" signals between gateway instances.
type KickBus interface {
	Publish(ctx context.Context) error
	// Subscribe calls wake for every kick from another instance and blocks
	// until ctx is done.
	Subscribe(ctx context.Context, wake func()) error
}

// RedisKickBus is a KickBus over Redis pub/sub. Messages carry the sender's
// instance id so an instance ignores its own kicks.
type RedisKickBus struct {
	client   goredis.UniversalClient
	channel  string
	instance string
}

func NewRedisKickBus(client goredis.UniversalClient, channel string) *RedisKickBus {
	return &RedisKickBus{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
	}
}

func (b *RedisKickBus) Publish(ctx context.Context) error {
	if err := b.client.Publish(ctx, b.channel, b.instance).Err(); err != nil {
		return fmt.Errorf("publish kick: %w", err)
	}
	return nil
}

func (b *RedisKickBus) Subscribe(ctx context.Context, wake func()) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload != b.instance {
				wake()
			}
		}
	}
}
