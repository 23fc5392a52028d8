// Package events moves domain events from the API to the analytics worker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"careercatalyst/internal/domain"
)

const (
	Exchange = "career_events"
	// Queue is the durable queue read by the analytics worker.
	Queue = "career_analytics"
)

// Publisher sends domain events.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }

// AMQPPublisher publishes JSON events to the topic exchange, routed by
// event type.
type AMQPPublisher struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	ch     *amqp.Channel
	logger zerolog.Logger
}

func Dial(url string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, logger: logger}, nil
}

func declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("events: declare exchange: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := Encode(evt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Publish(Exchange, evt.Type, false, false, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", evt.Type, err)
	}
	p.logger.Debug().Str("type", evt.Type).Str("user_id", evt.UserID).Msg("events: published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

// Encode builds the AMQP message for evt.
func Encode(evt domain.Event) (amqp.Publishing, error) {
	if evt.Type == "" {
		return amqp.Publishing{}, errors.New("events: event type is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("events: encode: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.Timestamp,
		Type:         evt.Type,
		Body:         body,
	}, nil
}

// Decode parses a message body produced by Encode.
func Decode(body []byte) (domain.Event, error) {
	var evt domain.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return domain.Event{}, fmt.Errorf("events: decode: %w", err)
	}
	if evt.Type == "" {
		return domain.Event{}, errors.New("events: event type is required")
	}
	return evt, nil
}

// Delta converts one event into the daily counters it increments. ok is
// false for events that do not touch analytics.
func Delta(evt domain.Event) (delta domain.AnalyticsDaily, ok bool) {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	delta.Day = ts.UTC().Truncate(24 * time.Hour)
	switch evt.Type {
	case domain.EventUserSignedUp:
		delta.Signups = 1
	case domain.EventModuleCompleted:
		if !evt.Module.Valid() {
			return domain.AnalyticsDaily{}, false
		}
		delta.ModuleRuns = map[domain.Module]int{evt.Module: 1}
	case domain.EventSubscriptionChanged:
		if !evt.Package.Paid() {
			return domain.AnalyticsDaily{}, false
		}
		delta.Upgrades = 1
		if evt.Package == domain.PackageUltimate {
			delta.UltimateSales = 1
		}
	default:
		return domain.AnalyticsDaily{}, false
	}
	return delta, true
}
