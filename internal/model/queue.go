package model

import "time"

// Queue is a scheduled time slot inside a haunted house.  A queue owns
// exactly MaxCustomers spots at steady state; the pool is created with
// the queue and resized when MaxCustomers changes.
//
// Fields:
//  ID             – generated identifier (uuid).
//  HouseName      – owning house.
//  QueueNumber    – number of the queue, unique per house.
//  MaxCustomers   – target spot count.
//  QueueStartTime – when the slot opens.
//  QueueEndTime   – when the slot closes.
type Queue struct {
    ID             string    `json:"id"`               // queues.id
    HouseName      string    `json:"house_name"`       // queues.house_name
    QueueNumber    uint32    `json:"queue_number"`     // queues.queue_number
    MaxCustomers   uint32    `json:"max_customers"`    // queues.max_customers
    QueueStartTime time.Time `json:"queue_start_time"` // queues.queue_start_time
    QueueEndTime   time.Time `json:"queue_end_time"`   // queues.queue_end_time
    CreatedAt      time.Time `json:"created_at"`       // queues.created_at
    UpdatedAt      time.Time `json:"updated_at"`       // queues.updated_at
}
