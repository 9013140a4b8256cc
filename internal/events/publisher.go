// Package events publishes engine events to an AMQP exchange for the
// external recommendation-ranking service. Publishing is best-effort:
// the connection heals itself in the background and callers treat
// failures as droppable.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campus_quest_engine/pkg/logger"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

type Config struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Publisher struct {
	cfg Config

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	ready   bool

	closed chan struct{}
}

// NewPublisher starts the background connect loop and returns
// immediately; messages sent before the first connect are dropped.
func NewPublisher(cfg Config) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		closed: make(chan struct{}),
	}
	go p.connectLoop()
	return p
}

func (p *Publisher) connectLoop() {
	log := logger.Logger()
	for {
		select {
		case <-p.closed:
			return
		default:
		}

		conn, err := amqp.Dial(p.cfg.URL)
		if err != nil {
			log.Warn("amqp dial failed, retrying", zap.Error(err))
			time.Sleep(reconnectDelay)
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			time.Sleep(reconnectDelay)
			continue
		}

		if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			log.Warn("amqp exchange declare failed", zap.Error(err))
			time.Sleep(reconnectDelay)
			continue
		}

		p.mu.Lock()
		p.conn = conn
		p.channel = ch
		p.ready = true
		p.mu.Unlock()

		log.Info("amqp publisher connected", zap.String("exchange", p.cfg.Exchange))

		select {
		case <-conn.NotifyClose(make(chan *amqp.Error)):
			p.mu.Lock()
			p.ready = false
			p.mu.Unlock()
			log.Warn("amqp connection lost, reconnecting")
		case <-p.closed:
			conn.Close()
			return
		}
	}
}

// Publish sends data as JSON to the configured exchange under the given
// routing key.
func (p *Publisher) Publish(ctx context.Context, topic string, data interface{}) error {
	p.mu.RLock()
	ch, ready := p.channel, p.ready
	p.mu.RUnlock()

	if !ready {
		return fmt.Errorf("amqp publisher not connected")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return ch.PublishWithContext(ctx, p.cfg.Exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (p *Publisher) Close() {
	close(p.closed)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
	}
}
