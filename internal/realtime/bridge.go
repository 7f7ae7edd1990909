package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fanportal/portal-service/internal/events"
)

const channelPrefix = "verify."

// Bridge fans verification-completed events out across server instances:
// local events are published to redis, and every instance relays redis
// messages to its own hub, so the one client holding the subscription is
// reached no matter which instance handled the confirm.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

// NewBridge wires the hub to a shared redis client.
func NewBridge(client *redis.Client, hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{client: client, hub: hub, logger: logger}
}

// Register subscribes the bridge to local verification events.
func (b *Bridge) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventEmailVerified, b.handleEmailVerified)
}

func (b *Bridge) handleEmailVerified(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EmailVerifiedPayload)
	if !ok {
		b.logger.Warn("unexpected payload type", zap.String("event_id", event.ID))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+payload.EncryptedID, body).Err()
}

// Run relays redis messages to the local hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			channel := strings.TrimPrefix(msg.Channel, channelPrefix)
			b.hub.Deliver(channel, []byte(msg.Payload))
		}
	}
}
