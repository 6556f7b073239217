package model

import "time"

// HauntedHouse represents an attraction that runs one or more queues.
// Houses are identified by their unique name; the slug is derived from
// the name and used as the URL key.
//
// Fields:
//  Name              – unique display name.
//  Slug              – URL-safe form of Name.
//  Duration          – default run length of a queue in minutes.
//  BreakTimePerQueue – pause between two queues in minutes.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type HauntedHouse struct {
    Name              string    `json:"name"`                 // haunted_houses.name
    Slug              string    `json:"slug"`                 // haunted_houses.slug
    Duration          uint32    `json:"duration"`             // haunted_houses.duration
    BreakTimePerQueue uint32    `json:"break_time_per_queue"` // haunted_houses.break_time_per_queue
    CreatedAt         time.Time `json:"created_at"`           // haunted_houses.created_at
    UpdatedAt         time.Time `json:"updated_at"`           // haunted_houses.updated_at
}
