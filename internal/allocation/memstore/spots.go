package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

type spots struct{ st *state }

func (s spots) filter(keep func(model.Spot) bool) []model.Spot {
	out := make([]model.Spot, 0)
	for _, sp := range s.st.spots {
		if keep(sp) {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueID != out[j].QueueID {
			return out[i].QueueID < out[j].QueueID
		}
		return out[i].SpotNumber < out[j].SpotNumber
	})
	return out
}

// customerTaken mirrors the unique index on spots.customer_id.
func (s spots) customerTaken(studentID string) bool {
	for _, sp := range s.st.spots {
		if sp.CustomerID != nil && *sp.CustomerID == studentID {
			return true
		}
	}
	return false
}

func (s spots) ByCustomer(_ context.Context, studentID string) (*model.Spot, error) {
	for _, sp := range s.st.spots {
		if sp.CustomerID != nil && *sp.CustomerID == studentID {
			return &sp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s spots) ListByQueue(_ context.Context, queueID string) ([]model.Spot, error) {
	return s.filter(func(sp model.Spot) bool { return sp.QueueID == queueID }), nil
}

func (s spots) ListByQueues(_ context.Context, queueIDs []string) (map[string][]model.Spot, error) {
	want := make(map[string]bool, len(queueIDs))
	for _, id := range queueIDs {
		want[id] = true
	}
	out := make(map[string][]model.Spot, len(queueIDs))
	for _, sp := range s.filter(func(sp model.Spot) bool { return want[sp.QueueID] }) {
		out[sp.QueueID] = append(out[sp.QueueID], sp)
	}
	return out, nil
}

func (s spots) ListByReservation(_ context.Context, reservationID string) ([]model.Spot, error) {
	return s.filter(func(sp model.Spot) bool {
		return sp.ReservationID != nil && *sp.ReservationID == reservationID
	}), nil
}

func (s spots) LockUnclaimedHeld(_ context.Context, reservationID string) (*model.Spot, error) {
	free := s.filter(func(sp model.Spot) bool {
		return sp.ReservationID != nil && *sp.ReservationID == reservationID &&
			sp.Status == model.SpotReserved && sp.CustomerID == nil
	})
	if len(free) == 0 {
		return nil, repository.ErrNotFound
	}
	return &free[0], nil
}

func (s spots) LockAvailable(_ context.Context, queueID string, limit int) ([]model.Spot, error) {
	free := s.filter(func(sp model.Spot) bool { return sp.QueueID == queueID && sp.Status == model.SpotAvailable })
	if len(free) > limit {
		free = free[:limit]
	}
	return free, nil
}

func (s spots) CountAvailable(_ context.Context, queueID string) (int, error) {
	return len(s.filter(func(sp model.Spot) bool { return sp.QueueID == queueID && sp.Status == model.SpotAvailable })), nil
}

func (s spots) CreateBulk(_ context.Context, fresh []model.Spot) error {
	taken := map[string]map[uint32]bool{}
	for _, sp := range s.st.spots {
		if taken[sp.QueueID] == nil {
			taken[sp.QueueID] = map[uint32]bool{}
		}
		taken[sp.QueueID][sp.SpotNumber] = true
	}
	for _, sp := range fresh {
		if _, ok := s.st.spots[sp.ID]; ok || taken[sp.QueueID][sp.SpotNumber] {
			return repository.ErrDuplicate
		}
		if taken[sp.QueueID] == nil {
			taken[sp.QueueID] = map[uint32]bool{}
		}
		taken[sp.QueueID][sp.SpotNumber] = true
	}
	for _, sp := range fresh {
		s.st.spots[sp.ID] = sp
	}
	return nil
}

func (s spots) DeleteAvailable(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if sp, ok := s.st.spots[id]; ok && sp.Status == model.SpotAvailable {
			delete(s.st.spots, id)
			n++
		}
	}
	return n, nil
}

func (s spots) DeleteByQueue(_ context.Context, queueID string) error {
	for id, sp := range s.st.spots {
		if sp.QueueID == queueID {
			delete(s.st.spots, id)
		}
	}
	return nil
}

func (s spots) Claim(_ context.Context, spotID, studentID string, at time.Time) error {
	sp, ok := s.st.spots[spotID]
	if !ok || sp.Status != model.SpotAvailable || sp.CustomerID != nil {
		return repository.ErrConflict
	}
	if s.customerTaken(studentID) {
		return repository.ErrDuplicate
	}
	id, t := studentID, at.UTC()
	sp.Status, sp.CustomerID, sp.OccupiedAt = model.SpotOccupied, &id, &t
	s.st.spots[spotID] = sp
	return nil
}

func (s spots) Hold(_ context.Context, spotIDs []string, reservationID string) error {
	for _, id := range spotIDs {
		if sp, ok := s.st.spots[id]; !ok || sp.Status != model.SpotAvailable {
			return repository.ErrConflict
		}
	}
	for _, id := range spotIDs {
		sp := s.st.spots[id]
		rid := reservationID
		sp.Status, sp.ReservationID = model.SpotReserved, &rid
		s.st.spots[id] = sp
	}
	return nil
}

func (s spots) ClaimHeld(_ context.Context, spotID, reservationID, studentID string, at time.Time) error {
	sp, ok := s.st.spots[spotID]
	if !ok || sp.Status != model.SpotReserved || sp.CustomerID != nil ||
		sp.ReservationID == nil || *sp.ReservationID != reservationID {
		return repository.ErrConflict
	}
	if s.customerTaken(studentID) {
		return repository.ErrDuplicate
	}
	id, t := studentID, at.UTC()
	sp.CustomerID, sp.OccupiedAt = &id, &t
	s.st.spots[spotID] = sp
	return nil
}

func release(sp model.Spot) model.Spot {
	sp.Status = model.SpotAvailable
	sp.CustomerID, sp.ReservationID, sp.OccupiedAt = nil, nil, nil
	return sp
}

func heldBy(sp model.Spot, studentID string) bool {
	return sp.CustomerID != nil && *sp.CustomerID == studentID
}

func (s spots) Release(_ context.Context, spotID, studentID string) error {
	sp, ok := s.st.spots[spotID]
	if !ok || !heldBy(sp, studentID) {
		return repository.ErrConflict
	}
	s.st.spots[spotID] = release(sp)
	return nil
}

func (s spots) Unclaim(_ context.Context, spotID, studentID string) error {
	sp, ok := s.st.spots[spotID]
	if !ok || sp.Status != model.SpotReserved || !heldBy(sp, studentID) {
		return repository.ErrConflict
	}
	sp.CustomerID, sp.OccupiedAt = nil, nil
	s.st.spots[spotID] = sp
	return nil
}

func (s spots) ReleaseByReservation(_ context.Context, reservationID string) (int64, error) {
	var n int64
	for id, sp := range s.st.spots {
		if sp.ReservationID != nil && *sp.ReservationID == reservationID {
			s.st.spots[id] = release(sp)
			n++
		}
	}
	return n, nil
}

func (s spots) FinalizeByReservation(_ context.Context, reservationID string) (int64, error) {
	var n int64
	for id, sp := range s.st.spots {
		if sp.ReservationID != nil && *sp.ReservationID == reservationID && sp.CustomerID != nil {
			sp.Status, sp.ReservationID = model.SpotOccupied, nil
			s.st.spots[id] = sp
			n++
		}
	}
	return n, nil
}
