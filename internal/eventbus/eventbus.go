// Package eventbus provides the in-process, per-topic publish/subscribe
// fan-out described in spec §4.2/§9. It wraps watermill's gochannel
// pub/sub, grounded on the teacher's
// internal/architecture/cqrs/eventbus/watermill_adapter.go, generalized
// from per-aggregate-type topics to the fixed named topics §6 lists.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Topic names used by the core (spec §4.2).
const (
	TopicOrders             = "orders"
	TopicPausesNonPartial   = "pauses-non-partial"
	TopicFabricacionParcial = "fabricacion-parcial"
	TopicBottleCounter      = "bottle-counter"
	TopicActiveOrder        = "active-order"
)

// OrderTopic returns the per-order topic orders/{idOrder}.
func OrderTopic(idOrder string) string { return "orders/" + idOrder }

// BottleCounterTopic returns the per-order topic bottle-counter/{idOrder}.
func BottleCounterTopic(idOrder string) string { return TopicBottleCounter + "/" + idOrder }

// Event types emitted by the core (spec §6).
const (
	EventOrderCreated            = "ORDER_CREATED"
	EventOrderStateChanged       = "ORDER_STATE_CHANGED"
	EventPauseCreated            = "PAUSE_CREATED"
	EventPauseFinished           = "PAUSE_FINISHED"
	EventFabricacionParcial      = "FABRICACION_PARCIAL_UPDATE"
	EventPausesNonPartialUpdate  = "PAUSES_NON_PARTIAL_UPDATE"
	EventBottleCounterUpdate     = "BOTTLE_COUNTER_UPDATE"
	EventActiveOrderChanged      = "ACTIVE_ORDER_CHANGED"
	EventOrderDeleted            = "ORDER_DELETED"
)

// Event is the envelope published on the bus (spec §6).
type Event struct {
	EventType string      `json:"eventType"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler processes an Event delivered on a topic. Handlers must not
// call back into engines synchronously (spec §5); they should hand off
// to their own goroutine/worker pool if they need to mutate state.
type Handler func(ctx context.Context, event Event) error

// Bus is the publish/subscribe capability engines depend on. Publish
// must only ever be called after the triggering transaction has
// committed (spec §4.2); a publish failure is logged and swallowed,
// never propagated to the caller in a way that could suggest rollback.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *zap.Logger
}

// New creates a Bus backed by an in-process watermill gochannel,
// matching the "in-process fan-out" requirement of spec §4.2/§9 (no
// external broker is wired — see SPEC_FULL.md for why NATS was dropped).
func New(logger *zap.Logger) *Bus {
	wmLogger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1024,
			Persistent:          false,
		},
		wmLogger,
	)
	return &Bus{publisher: pubSub, subscriber: pubSub, logger: logger}
}

// Publish publishes event on topic. Per spec §4.2 this is never called
// from inside a Store transaction. Failures are logged and swallowed.
func (b *Bus) Publish(topic string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	if err := b.publisher.Publish(topic, msg); err != nil {
		b.logger.Error("failed to publish event",
			zap.String("topic", topic),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// Subscribe registers handler for all events on topic. Per-topic
// delivery order is preserved for a single publisher (spec §4.2); there
// is no cross-topic ordering guarantee.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.Error("failed to unmarshal event", zap.String("topic", topic), zap.Error(err))
				msg.Nack()
				continue
			}
			if err := handler(ctx, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("topic", topic),
					zap.String("event_type", event.EventType),
					zap.Error(err))
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close releases the underlying pub/sub resources.
func (b *Bus) Close() error {
	if closer, ok := b.subscriber.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
