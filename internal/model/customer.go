package model

import "time"

// MaxReservationAttempts is the number of unfilled reservations a
// customer may let expire before losing the right to create new ones.
const MaxReservationAttempts = 2

// Customer is a queue participant keyed by the stable student id.
type Customer struct {
    StudentID           string    `json:"student_id"`           // customers.student_id
    Name                string    `json:"name"`                 // customers.name
    Email               string    `json:"email"`                // customers.email
    Homeroom            string    `json:"homeroom"`             // customers.homeroom
    TicketType          string    `json:"ticket_type"`          // customers.ticket_type
    ReservationAttempts uint32    `json:"reservation_attempts"` // customers.reservation_attempts
    CreatedAt           time.Time `json:"created_at"`           // customers.created_at
    UpdatedAt           time.Time `json:"updated_at"`           // customers.updated_at
}
