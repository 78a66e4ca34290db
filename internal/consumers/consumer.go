// Package consumers attaches the broker work to this instance: lobby
// events, countdown triggers, keystroke replication and game cleanup.
package consumers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/broker"
	"github.com/typephoon/backend/internal/typerr"
)

// Handler processes one delivery. A VALIDATION_ERROR means the message is
// garbage: it is acked and dropped. Any other error nacks for redelivery.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}

// Consumer drives one queue subscription through a Handler.
type Consumer struct {
	name     string
	queue    string
	prefetch int
	handler  Handler
	log      *logrus.Logger

	ch  *amqp.Channel
	tag string
}

func New(name, queue string, prefetch int, handler Handler, log *logrus.Logger) *Consumer {
	return &Consumer{name: name, queue: queue, prefetch: prefetch, handler: handler, log: log}
}

// Start opens a dedicated channel and spawns the delivery loop. The loop
// exits when ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context, br *broker.Broker) error {
	ch, err := br.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return err
	}

	c.tag = fmt.Sprintf("%s.%s", c.name, c.queue)
	deliveries, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}
	c.ch = ch

	go c.loop(ctx, deliveries)
	c.log.WithFields(logrus.Fields{"consumer": c.name, "queue": c.queue}).Info("consumer started")
	return nil
}

func (c *Consumer) Stop() {
	if c.ch == nil {
		return
	}
	c.ch.Cancel(c.tag, false)
	c.ch.Close()
	c.log.WithField("consumer", c.name).Info("consumer stopped")
}

func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handler.Handle(ctx, d)
	switch {
	case err == nil:
		d.Ack(false)
	case typerr.Is(err, typerr.CodeValidationError):
		c.log.WithField("consumer", c.name).WithError(err).Warn("dropping bad message")
		d.Ack(false)
	default:
		c.log.WithField("consumer", c.name).WithError(err).Error("process failed, requeueing")
		d.Nack(false, true)
	}
}
