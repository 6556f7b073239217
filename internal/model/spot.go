package model

import "time"

// SpotStatus is the allocation state of a single spot.
type SpotStatus string

const (
    SpotAvailable SpotStatus = "available"
    SpotOccupied  SpotStatus = "occupied"
    SpotReserved  SpotStatus = "reserved"
)

// Spot is one claimable unit of capacity within a queue.
//
// An available spot has neither CustomerID nor ReservationID.  A
// reserved spot always carries a ReservationID and carries a CustomerID
// once a member of the reservation has claimed it.  An occupied spot
// carries a CustomerID and no ReservationID.
type Spot struct {
    ID            string     `json:"id"`                       // spots.id
    QueueID       string     `json:"queue_id"`                 // spots.queue_id
    SpotNumber    uint32     `json:"spot_number"`              // spots.spot_number
    Status        SpotStatus `json:"status"`                   // spots.status
    CustomerID    *string    `json:"customer_id,omitempty"`    // spots.customer_id (nullable)
    ReservationID *string    `json:"reservation_id,omitempty"` // spots.reservation_id (nullable)
    OccupiedAt    *time.Time `json:"occupied_at,omitempty"`    // spots.occupied_at (nullable)
}

// Claimed reports whether a customer currently holds the spot.
func (s Spot) Claimed() bool { return s.CustomerID != nil }
