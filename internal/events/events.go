// Package events publishes order lifecycle events to Kafka for the worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"codform/internal/logger"
)

const (
	TypeOrderCreated = "order.created"
	TypeOrderBlocked = "order.blocked"
)

// Event is the message envelope on the order topic.
type Event struct {
	Type      string          `json:"type"`
	Shop      string          `json:"shop"`
	OrderID   string          `json:"order_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BlockedData is the payload of order.blocked.
type BlockedData struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
	Value  string `json:"value"`
}

// NewEvent builds an event with data encoded as JSON.
func NewEvent(typ, shop, orderID string, data interface{}) (Event, error) {
	ev := Event{Type: typ, Shop: shop, OrderID: orderID, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s data: %w", typ, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	// Inline reports that no consumer will see published events, so work
	// the worker would do has to happen in the caller.
	Inline() bool
	Close() error
}

// KafkaPublisher writes events keyed by shop so a shop's events stay
// ordered within one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Shop),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.logger.Debug("Published %s for %s", ev.Type, ev.Shop)
	return nil
}

func (p *KafkaPublisher) Inline() bool { return false }

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Inline() bool                         { return true }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory. It stands in for a broker
// unless NoConsumer is set.
type Recorder struct {
	mu         sync.Mutex
	Events     []Event
	NoConsumer bool
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}

func (r *Recorder) Inline() bool { return r.NoConsumer }

func (r *Recorder) Close() error { return nil }
