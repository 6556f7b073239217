package model

import "time"

// ReservationStatus is the lifecycle state of a group reservation.
type ReservationStatus string

const (
    ReservationActive    ReservationStatus = "active"
    ReservationCompleted ReservationStatus = "completed"
    ReservationExpired   ReservationStatus = "expired"
    ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a time limited group hold over several spots of one
// queue.  Other customers join it with the shareable Code until
// CurrentSpots reaches MaxSpots or ExpiresAt passes.
//
// Fields:
//  ID                       – generated identifier (uuid).
//  QueueID                  – queue the spots belong to.
//  Code                     – six character join code, globally unique.
//  RepresentativeCustomerID – student id of the creator.
//  MaxSpots                 – group size (2–10).
//  CurrentSpots             – members that have joined, creator included.
//  ExpiresAt                – deadline for filling the group.
//  Status                   – active, completed, expired or cancelled.
type Reservation struct {
    ID                       string            `json:"id"`                         // reservations.id
    QueueID                  string            `json:"queue_id"`                   // reservations.queue_id
    Code                     string            `json:"code"`                       // reservations.code
    RepresentativeCustomerID string            `json:"representative_customer_id"` // reservations.representative_customer_id
    MaxSpots                 uint32            `json:"max_spots"`                  // reservations.max_spots
    CurrentSpots             uint32            `json:"current_spots"`              // reservations.current_spots
    ExpiresAt                time.Time         `json:"expires_at"`                 // reservations.expires_at
    Status                   ReservationStatus `json:"status"`                     // reservations.status
    CreatedAt                time.Time         `json:"created_at"`                 // reservations.created_at
    UpdatedAt                time.Time         `json:"updated_at"`                 // reservations.updated_at
}

// Filled reports whether every spot of the reservation has a member.
func (r Reservation) Filled() bool { return r.CurrentSpots >= r.MaxSpots }
