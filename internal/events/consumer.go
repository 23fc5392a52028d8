package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"careercatalyst/internal/domain"
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, evt domain.Event) error

// Consumer reads the analytics queue.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger zerolog.Logger
}

// DialConsumer declares the exchange and the durable analytics queue bound
// to every routing key.
func DialConsumer(url string, prefetch int, logger zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: channel: %w", err)
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := declareExchange(ch); err != nil {
		return fail(err)
	}
	if _, err := ch.QueueDeclare(Queue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("events: declare queue: %w", err))
	}
	if err := ch.QueueBind(Queue, "#", Exchange, false, nil); err != nil {
		return fail(fmt.Errorf("events: bind queue: %w", err))
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("events: qos: %w", err))
		}
	}
	return &Consumer{conn: conn, ch: ch, logger: logger}, nil
}

// Run consumes with a fixed number of workers until ctx is cancelled or the
// broker closes the channel.
func (c *Consumer) Run(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	deliveries, err := c.ch.Consume(Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("events: consume: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i + 1
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return errors.New("events: delivery channel closed")
					}
					c.process(ctx, worker, d, handle)
				}
			}
		})
	}
	return g.Wait()
}

// Acknowledger is the subset of amqp.Delivery used to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) process(ctx context.Context, worker int, d amqp.Delivery, handle Handler) {
	settle(ctx, c.logger.With().Int("worker", worker).Logger(), d.Body, d.Redelivered, &d, handle)
}

// settle decodes body, runs handle and acks or nacks. A failed event is
// requeued once and dropped after its second failure.
func settle(ctx context.Context, logger zerolog.Logger, body []byte, redelivered bool, ack Acknowledger, handle Handler) {
	evt, err := Decode(body)
	if err != nil {
		logger.Warn().Err(err).Msg("events: dropping malformed message")
		_ = ack.Nack(false, false)
		return
	}
	if err := handle(ctx, evt); err != nil {
		logger.Error().Err(err).Str("type", evt.Type).Bool("redelivered", redelivered).Msg("events: handler failed")
		_ = ack.Nack(false, !redelivered)
		return
	}
	_ = ack.Ack(false)
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
