package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/logging"
)

// DefaultChannel is the Redis pub/sub channel for invalidation events.
const DefaultChannel = "dashboard:cache:invalidation"

// envelope is the message exchanged between instances.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RemoteSink applies events received from other instances.
// *Engine implements it with QueueRemote.
type RemoteSink interface {
	QueueRemote(ev Event) error
}

// RedisBroadcaster fans invalidation events out to every instance sharing a
// Redis server. Each instance ignores its own messages.
type RedisBroadcaster struct {
	client   *redis.Client
	channel  string
	instance string
	logger   zerolog.Logger
}

// NewRedisBroadcaster creates a broadcaster on channel. An empty channel
// uses DefaultChannel.
func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	instance := uuid.NewString()
	return &RedisBroadcaster{
		client:   client,
		channel:  channel,
		instance: instance,
		logger: logging.NewLogger(logging.ComponentBroadcast).With().
			Str("instance", instance).
			Logger(),
	}
}

// SetLogger replaces the broadcaster logger.
func (b *RedisBroadcaster) SetLogger(logger zerolog.Logger) {
	b.logger = logger.With().Str("instance", b.instance).Logger()
}

// InstanceID returns the id this broadcaster tags its messages with.
func (b *RedisBroadcaster) InstanceID() string {
	return b.instance
}

// Publish sends ev to the other instances.
func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(envelope{Origin: b.instance, Event: ev})
	if err != nil {
		invalidationBroadcastsTotal.WithLabelValues("sent", "error").Inc()
		return fmt.Errorf("encode invalidation event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		invalidationBroadcastsTotal.WithLabelValues("sent", "error").Inc()
		return fmt.Errorf("publish invalidation event: %w", err)
	}
	invalidationBroadcastsTotal.WithLabelValues("sent", "ok").Inc()
	return nil
}

// Run subscribes to the channel and hands events from other instances to
// sink until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context, sink RemoteSink) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("Listening for invalidation events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.handle(sink, []byte(msg.Payload)); err != nil {
				b.logger.Warn().Err(err).Msg("Dropped invalidation message")
			}
		}
	}
}

// handle decodes one message and queues it unless this instance sent it.
func (b *RedisBroadcaster) handle(sink RemoteSink, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		invalidationBroadcastsTotal.WithLabelValues("received", "error").Inc()
		return fmt.Errorf("decode invalidation message: %w", err)
	}
	if env.Origin == b.instance {
		invalidationBroadcastsTotal.WithLabelValues("received", "skipped").Inc()
		return nil
	}
	if err := sink.QueueRemote(env.Event); err != nil {
		invalidationBroadcastsTotal.WithLabelValues("received", "error").Inc()
		return fmt.Errorf("queue remote event from %s: %w", env.Origin, err)
	}

	invalidationBroadcastsTotal.WithLabelValues("received", "ok").Inc()
	b.logger.Debug().
		Str("origin", env.Origin).
		Str("event", env.Event.Key()).
		Msg("Received invalidation event")
	return nil
}
