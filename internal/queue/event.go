// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import (
    "time"

    "github.com/iliyamo/haunted-house-queue/internal/model"
)

// ReservationEventKind names a reservation lifecycle transition.  The kind
// doubles as the routing key on the events exchange.
type ReservationEventKind string

const (
    ReservationCreated   ReservationEventKind = "reservation.created"
    ReservationCompleted ReservationEventKind = "reservation.completed"
    ReservationCancelled ReservationEventKind = "reservation.cancelled"
    ReservationExpired   ReservationEventKind = "reservation.expired"
    // ReservationFinalized is emitted by the sweep once the spots of a
    // filled reservation have become ordinary occupied spots.
    ReservationFinalized ReservationEventKind = "reservation.finalized"
)

// ReservationEvent is published after a reservation changes state.  It
// carries enough of the reservation for consumers to log or notify
// without querying the primary database.
type ReservationEvent struct {
    Kind                     ReservationEventKind `json:"kind"`
    ReservationID            string               `json:"reservation_id"`
    QueueID                  string               `json:"queue_id"`
    Code                     string               `json:"code"`
    RepresentativeCustomerID string               `json:"representative_customer_id"`
    MaxSpots                 uint32               `json:"max_spots"`
    CurrentSpots             uint32               `json:"current_spots"`
    Status                   string               `json:"status"`
    ExpiresAt                string               `json:"expires_at"`
    OccurredAt               string               `json:"occurred_at"`
}

// NewReservationEvent snapshots r as an event of the given kind.
func NewReservationEvent(kind ReservationEventKind, r model.Reservation, at time.Time) ReservationEvent {
    return ReservationEvent{
        Kind:                     kind,
        ReservationID:            r.ID,
        QueueID:                  r.QueueID,
        Code:                     r.Code,
        RepresentativeCustomerID: r.RepresentativeCustomerID,
        MaxSpots:                 r.MaxSpots,
        CurrentSpots:             r.CurrentSpots,
        Status:                   string(r.Status),
        ExpiresAt:                r.ExpiresAt.UTC().Format(time.RFC3339),
        OccurredAt:               at.UTC().Format(time.RFC3339),
    }
}
