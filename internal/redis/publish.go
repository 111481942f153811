package redisclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mindhaven/provider-calendar/internal/calendar"
)

// EventPublisher forwards committed calendar events to a Redis channel
// per provider, where notification collaborators pick them up. It is a
// Bus subscriber: publish failures are logged and never affect the
// already committed mutation.
type EventPublisher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewEventPublisher(client *redis.Client, channelPrefix string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, channel: channelPrefix, log: logger}
}

// Attach subscribes the publisher to the bus.
func (p *EventPublisher) Attach(bus *calendar.Bus) {
	bus.Subscribe(p.publish)
}

func (p *EventPublisher) publish(ev calendar.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal calendar event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	channel := p.channel + ":" + ev.ProviderID
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Error("publish calendar event",
			zap.String("type", ev.Type),
			zap.String("provider_id", ev.ProviderID),
			zap.Error(err))
	}
}
