// Package broker owns the AMQP topology: fan-out exchanges for realtime
// events and TTL wait queues that act as durable distributed timers.
package broker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/typephoon/backend/internal/config"
)

type Broker struct {
	cfg config.AMQPConfig
	log *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection

	// wait queues already declared on this connection; declarations are
	// immutable, so each (base, args) pair is declared once
	declared map[string]struct{}
}

func Dial(cfg config.AMQPConfig, log *logrus.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	return &Broker{
		cfg:      cfg,
		log:      log,
		conn:     conn,
		declared: map[string]struct{}{},
	}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}

// Channel opens a fresh channel on the shared connection.
func (b *Broker) Channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Channel()
}

// Ready reports whether the broker answers within the probe window. Used by
// the readiness endpoint.
func (b *Broker) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, err := b.Channel()
		if err == nil {
			ch.Close()
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// DeclareTopology declares every exchange, active queue and binding the
// instance consumes from. Wait queues are declared lazily at publish time
// because their arguments depend on the countdown in effect.
func (b *Broker) DeclareTopology() error {
	ch, err := b.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	cfg := b.cfg

	exchanges := []struct {
		name string
		kind string
	}{
		{cfg.LobbyNotifyExchange, "fanout"},
		{cfg.LobbyCountdownExchange, "direct"},
		{cfg.GameStartExchange, "fanout"},
		{cfg.GameKeystrokeExchange, "fanout"},
		{cfg.GameCleanupExchange, "direct"},
	}
	for _, e := range exchanges {
		if err := ch.ExchangeDeclare(e.name, e.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", e.name, err)
		}
	}

	// instance-scoped queues deleted with the instance; shared queues durable
	queues := []struct {
		name       string
		exchange   string
		routingKey string
		autoDelete bool
	}{
		{cfg.LobbyNotifyQueue, cfg.LobbyNotifyExchange, "", true},
		{cfg.GameStartQueue, cfg.GameStartExchange, "", true},
		{cfg.GameKeystrokeQueue, cfg.GameKeystrokeExchange, "", true},
		{cfg.LobbyCountdownQueue, cfg.LobbyCountdownExchange, cfg.LobbyCountdownRoutKey, false},
		{cfg.GameCleanupQueue, cfg.GameCleanupExchange, cfg.GameCleanupRoutKey, false},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, !q.autoDelete, q.autoDelete, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.routingKey, q.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.name, err)
		}
	}

	b.log.Info("amqp topology declared")
	return nil
}

// WaitQueueName derives a stable queue name from the base and the declare
// arguments. Queue arguments cannot change after declaration, so a different
// TTL or deadletter target yields a different queue.
func WaitQueueName(base string, args amqp.Table) string {
	raw, _ := json.Marshal(args)
	sum := md5.Sum(raw)
	return base + "." + hex.EncodeToString(sum[:])[:8]
}

func waitQueueArgs(ttl time.Duration, dlx, dlKey string) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             ttl.Milliseconds(),
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": dlKey,
	}
}

// declareWaitQueue declares the TTL queue on a fresh channel and returns its
// name. Expired messages deadletter into dlx with dlKey.
func (b *Broker) declareWaitQueue(base string, ttl time.Duration, dlx, dlKey string) (string, error) {
	args := waitQueueArgs(ttl, dlx, dlKey)
	name := WaitQueueName(base, args)

	b.mu.Lock()
	_, ok := b.declared[name]
	b.mu.Unlock()
	if ok {
		return name, nil
	}

	ch, err := b.Channel()
	if err != nil {
		return "", err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return "", fmt.Errorf("declare wait queue %s: %w", name, err)
	}

	b.mu.Lock()
	b.declared[name] = struct{}{}
	b.mu.Unlock()
	return name, nil
}
