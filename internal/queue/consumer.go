package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

const (
    // EventsExchange is the topic exchange reservation events are published to.
    EventsExchange = "haunted.reservations"
    // AuditQueue receives every reservation event for the audit log.
    AuditQueue = "reservations.audit"
)

// DeclareTopology declares the durable events exchange and the audit queue
// bound to every reservation routing key.  Publisher and consumer both call
// it so either may start first.
func DeclareTopology(ch *amqp.Channel) error {
    if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(AuditQueue, "reservation.*", EventsExchange, false, nil); err != nil {
        return fmt.Errorf("queue bind: %w", err)
    }
    return nil
}

// AuditConsumer appends every reservation event to a log file, one line
// per event.
type AuditConsumer struct {
    URL     string
    LogPath string
    Log     logrus.FieldLogger
}

// NewAuditConsumer returns a consumer writing to logs/reservations.log.
func NewAuditConsumer(url string, log logrus.FieldLogger) *AuditConsumer {
    return &AuditConsumer{URL: url, LogPath: filepath.Join("logs", "reservations.log"), Log: log}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialled with exponential backoff capped at 30s.
func (c *AuditConsumer) Run(ctx context.Context) error {
    wait := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.WithError(err).Warnf("audit-consumer: dial failed, retrying in %s", wait)
            if !sleep(ctx, wait) {
                return ctx.Err()
            }
            if wait < 30*time.Second {
                wait *= 2
            }
            continue
        }
        wait = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.WithError(err).Warn("audit-consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.WithError(err).Warn("audit-consumer: set QoS failed")
    }
    if err := DeclareTopology(ch); err != nil {
        return err
    }
    msgs, err := ch.Consume(AuditQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                c.Log.WithError(err).Error("audit-consumer: handle message failed")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends it to the audit log.
func (c *AuditConsumer) Handle(body []byte) error {
    var ev ReservationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Kind == "" || ev.ReservationID == "" {
        return errors.New("event without kind or reservation id")
    }
    if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    return WriteAuditLine(f, ev)
}

// WriteAuditLine renders ev as a single human readable line.
func WriteAuditLine(w io.Writer, ev ReservationEvent) error {
    _, err := fmt.Fprintf(w, "[%s] %s | reservation_id=%s | code=%s | queue_id=%s | representative=%s | spots=%d/%d | status=%s | expires_at=%s\n",
        ev.OccurredAt, ev.Kind, ev.ReservationID, ev.Code, ev.QueueID, ev.RepresentativeCustomerID,
        ev.CurrentSpots, ev.MaxSpots, ev.Status, ev.ExpiresAt)
    if err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
