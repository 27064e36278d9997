// Package events moves integration events across process boundaries: the JSON
// codec shared by every bus, and the delivery policy (retry, dead letter).
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
)

var (
	ErrUnknownTopic = errors.New("events: unknown topic")
	ErrMalformed    = errors.New("events: malformed payload")
)

const (
	HeaderEventID    = "event-id"
	HeaderTopic      = "event-topic"
	HeaderOccurredAt = "occurred-at"
)

// Envelope is an encoded event as it travels on a bus.
type Envelope struct {
	Topic      string
	Key        string
	EventID    string
	Payload    []byte
	OccurredAt time.Time
	// Trace holds the producer's propagated trace context (traceparent, baggage).
	Trace map[string]string
}

type decodeFunc func(payload []byte) (domoutbox.Event, error)

// Codec maps topics to typed events.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]decodeFunc
}

// NewCodec returns a codec that knows every topic this service produces.
func NewCodec() *Codec {
	c := &Codec{decoders: make(map[string]decodeFunc)}
	Register[domcart.ItemAddedEvent](c, domcart.TopicCartItemAdded)
	Register[domorder.OrderCreatedEvent](c, domorder.TopicOrderCreated)
	Register[domproduct.ProductUpdatedEvent](c, domproduct.TopicProductUpdated)
	return c
}

// Register teaches c to decode topic into T.
func Register[T domoutbox.Event](c *Codec, topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[topic] = func(payload []byte) (domoutbox.Event, error) {
		var evt T
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, topic, err)
		}
		return evt, nil
	}
}

func (c *Codec) Encode(e domoutbox.Event) (Envelope, error) {
	if e == nil {
		return Envelope{}, fmt.Errorf("events: nil event")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s: %w", e.EventName(), err)
	}
	return Envelope{
		Topic:      e.EventName(),
		Key:        domoutbox.KeyOf(e),
		EventID:    uuid.NewString(),
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}, nil
}

func (c *Codec) Decode(env Envelope) (domoutbox.Event, error) {
	c.mu.RLock()
	decode, ok := c.decoders[env.Topic]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, env.Topic)
	}
	return decode(env.Payload)
}
