package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/redis"
)

const defaultChannel = "realtime:notifications"

// Broadcaster publishes realtime messages to every API instance.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message) error
}

// RedisBroadcaster fans messages out over Redis pub/sub.
type RedisBroadcaster struct {
	client  redis.Publisher
	channel string
}

func NewRedisBroadcaster(client redis.Publisher, channel string) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, errors.New("redis publisher required")
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisBroadcaster{client: client, channel: client.ChannelName(channel)}, nil
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("publish realtime message: %w", err)
	}
	return nil
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error)
	ChannelName(name string) string
}

// Bridge relays Redis pub/sub messages into the local hub.
type Bridge struct {
	hub     *Hub
	sub     subscriber
	channel string
	logg    *logger.Logger
}

func NewBridge(hub *Hub, sub subscriber, channel string, logg *logger.Logger) (*Bridge, error) {
	if hub == nil {
		return nil, errors.New("hub required")
	}
	if sub == nil {
		return nil, errors.New("redis subscriber required")
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &Bridge{hub: hub, sub: sub, channel: sub.ChannelName(channel), logg: logg}, nil
}

// Run subscribes and relays until ctx is canceled, resubscribing after a
// dropped connection.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.relay(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.logg != nil {
			b.logg.Error(ctx, "realtime subscription dropped", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (b *Bridge) relay(ctx context.Context) error {
	ps, err := b.sub.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer ps.Close()
	if b.logg != nil {
		b.logg.Info(b.logg.WithField(ctx, "channel", b.channel), "realtime bridge subscribed")
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return errors.New("redis pubsub channel closed")
			}
			b.handle(ctx, []byte(m.Payload))
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte) {
	msg, err := decodeMessage(payload)
	if err != nil {
		if b.logg != nil {
			b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()), "dropping malformed realtime message")
		}
		return
	}
	b.hub.Deliver(ctx, msg)
}

// LocalBroadcaster delivers straight to an in-process hub. It serves single
// instance deployments and tests.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Broadcast(ctx context.Context, msg Message) error {
	b.hub.Deliver(ctx, msg)
	return nil
}
