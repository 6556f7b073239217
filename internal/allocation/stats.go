package allocation

import "github.com/iliyamo/haunted-house-queue/internal/model"

// Stats summarises the state of a spot pool.
type Stats struct {
	AvailableSpots     int `json:"available_spots"`
	OccupiedSpots      int `json:"occupied_spots"`
	ReservedSpots      int `json:"reserved_spots"`
	TotalSpots         int `json:"total_spots"`
	ActiveReservations int `json:"active_reservations"`
}

// Project counts spots by status.  ActiveReservations is left zero;
// callers fill it from the reservation table.
func Project(spots []model.Spot) Stats {
	var s Stats
	for _, sp := range spots {
		switch sp.Status {
		case model.SpotAvailable:
			s.AvailableSpots++
		case model.SpotOccupied:
			s.OccupiedSpots++
		case model.SpotReserved:
			s.ReservedSpots++
		}
	}
	s.TotalSpots = len(spots)
	return s
}
