package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/typerr"
)

// Publisher publishes JSON messages. Services depend on this interface so
// tests can record publishes without a broker.
type Publisher interface {
	// Publish sends body to exchange with the routing key and waits for the
	// broker's ack.
	Publish(ctx context.Context, exchange, key string, body interface{}, headers amqp.Table) error
	// PublishWait parks body on a TTL queue; after ttl the broker deadletters
	// it into dlx with dlKey.
	PublishWait(ctx context.Context, base string, ttl time.Duration, dlx, dlKey string, body interface{}) error
}

// ConfirmPublisher serializes publishes over one confirm-mode channel, so
// each publish can be matched to its confirmation.
type ConfirmPublisher struct {
	br *Broker

	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func NewConfirmPublisher(br *Broker) (*ConfirmPublisher, error) {
	ch, err := br.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	return &ConfirmPublisher{
		br:       br,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *ConfirmPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

func (p *ConfirmPublisher) Publish(ctx context.Context, exchange, key string, body interface{}, headers amqp.Table) error {
	data, err := json.Marshal(body)
	if err != nil {
		return typerr.Wrap(typerr.CodeValidationError, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return typerr.Wrap(typerr.CodeAMQPNotReady, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case conf := <-p.confirms:
		if !conf.Ack {
			return typerr.New(typerr.CodePublishNotAcknowledged, "broker rejected publish")
		}
		return nil
	}
}

func (p *ConfirmPublisher) PublishWait(ctx context.Context, base string, ttl time.Duration, dlx, dlKey string, body interface{}) error {
	name, err := p.br.declareWaitQueue(base, ttl, dlx, dlKey)
	if err != nil {
		return typerr.Wrap(typerr.CodeAMQPNotReady, err)
	}
	// the default exchange routes by queue name
	return p.Publish(ctx, "", name, body, nil)
}
