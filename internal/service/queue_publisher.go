// Package service holds outbound integrations used by the allocation
// engine.  EventPublisher sends reservation lifecycle events to RabbitMQ.
// Publishing never fails a request: errors are returned so the engine can
// log them, and the connection is re-dialled on the next publish.
package service

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    q "github.com/iliyamo/haunted-house-queue/internal/queue"
)

// publishTimeout bounds a single publish including a reconnect.
const publishTimeout = 3 * time.Second

// EventPublisher publishes reservation events on the events exchange.  It
// keeps one connection and channel open and is safe for concurrent use.
type EventPublisher struct {
    url string
    log logrus.FieldLogger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewEventPublisher returns a publisher for the broker at url.  No
// connection is made until the first publish.
func NewEventPublisher(url string, log logrus.FieldLogger) *EventPublisher {
    return &EventPublisher{url: url, log: log}
}

// channel returns the open channel, dialling when needed.  p.mu must be held.
func (p *EventPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.closeLocked()
    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(publishTimeout)})
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    if err := q.DeclareTopology(ch); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// PublishReservationEvent publishes ev as a persistent JSON message routed
// by its kind.
func (p *EventPublisher) PublishReservationEvent(ctx context.Context, ev q.ReservationEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    // The request may already be finishing; the event outlives it.
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
    defer cancel()

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        p.log.WithError(err).Warn("rabbitmq: connect failed")
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        MessageId:    ev.ReservationID + ":" + string(ev.Kind),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, q.EventsExchange, string(ev.Kind), false, false, pub); err != nil {
        p.closeLocked()
        return err
    }
    p.log.WithFields(logrus.Fields{"event": ev.Kind, "reservation_id": ev.ReservationID}).Debug("rabbitmq: event published")
    return nil
}

// Close releases the broker connection.
func (p *EventPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.closeLocked()
    return nil
}

func (p *EventPublisher) closeLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}
