package allocation

import (
	"context"
	"errors"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// QueueState is a queue with its live spot statistics.  Spots is only
// filled by single queue lookups.
type QueueState struct {
	Queue model.Queue  `json:"queue"`
	Stats Stats        `json:"stats"`
	Spots []model.Spot `json:"spots,omitempty"`
}

// HouseState is a house with the state of each of its queues.
type HouseState struct {
	House  model.HauntedHouse `json:"house"`
	Queues []QueueState       `json:"queues"`
}

// settle runs the sweep ahead of a read when enabled.  A failed sweep
// does not fail the read.
func (e *Engine) settle(ctx context.Context) {
	if !e.reconcileOnRead {
		return
	}
	if _, err := e.ReconcileExpirations(ctx); err != nil {
		e.log.WithError(err).Warn("reconcile before read failed")
	}
}

func queueStates(ctx context.Context, tx Tx, queues []model.Queue, withSpots bool) ([]QueueState, error) {
	ids := make([]string, 0, len(queues))
	for _, q := range queues {
		ids = append(ids, q.ID)
	}
	spots, err := tx.Spots().ListByQueues(ctx, ids)
	if err != nil {
		return nil, err
	}
	active, err := tx.Reservations().CountActiveByQueues(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]QueueState, 0, len(queues))
	for _, q := range queues {
		st := QueueState{Queue: q, Stats: Project(spots[q.ID])}
		st.Stats.ActiveReservations = active[q.ID]
		if withSpots {
			st.Spots = spots[q.ID]
			if st.Spots == nil {
				st.Spots = []model.Spot{}
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// ListHouses returns every house with the statistics of its queues.
func (e *Engine) ListHouses(ctx context.Context) ([]HouseState, error) {
	e.settle(ctx)
	var out []HouseState
	err := e.run(ctx, func(tx Tx) error {
		houses, err := tx.Houses().List(ctx)
		if err != nil {
			return err
		}
		queues, err := tx.Queues().ListAll(ctx)
		if err != nil {
			return err
		}
		states, err := queueStates(ctx, tx, queues, false)
		if err != nil {
			return err
		}
		byHouse := make(map[string][]QueueState, len(houses))
		for _, st := range states {
			byHouse[st.Queue.HouseName] = append(byHouse[st.Queue.HouseName], st)
		}
		out = make([]HouseState, 0, len(houses))
		for _, h := range houses {
			qs := byHouse[h.Name]
			if qs == nil {
				qs = []QueueState{}
			}
			out = append(out, HouseState{House: h, Queues: qs})
		}
		return nil
	})
	return out, err
}

// GetHouse returns one house with the statistics of its queues.
func (e *Engine) GetHouse(ctx context.Context, houseSlug string) (*HouseState, error) {
	e.settle(ctx)
	var out *HouseState
	err := e.run(ctx, func(tx Tx) error {
		h, err := tx.Houses().GetBySlug(ctx, houseSlug)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "house %s not found", houseSlug)
		}
		if err != nil {
			return err
		}
		queues, err := tx.Queues().ListByHouse(ctx, h.Name)
		if err != nil {
			return err
		}
		states, err := queueStates(ctx, tx, queues, false)
		if err != nil {
			return err
		}
		out = &HouseState{House: *h, Queues: states}
		return nil
	})
	return out, err
}

// GetQueue returns a queue with its spots and statistics.
func (e *Engine) GetQueue(ctx context.Context, queueID string) (*QueueState, error) {
	e.settle(ctx)
	var out *QueueState
	err := e.run(ctx, func(tx Tx) error {
		q, err := e.loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		states, err := queueStates(ctx, tx, []model.Queue{*q}, true)
		if err != nil {
			return err
		}
		out = &states[0]
		return nil
	})
	return out, err
}

// CurrentSpot returns where studentID is placed.
func (e *Engine) CurrentSpot(ctx context.Context, studentID string) (*Placement, error) {
	e.settle(ctx)
	var out *Placement
	err := e.run(ctx, func(tx Tx) error {
		spot, err := tx.Spots().ByCustomer(ctx, studentID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotInQueue, "customer %s does not hold a spot", studentID)
		}
		if err != nil {
			return err
		}
		q, err := e.loadQueue(ctx, tx, spot.QueueID)
		if err != nil {
			return err
		}
		out = &Placement{Spot: *spot, Queue: *q}
		if spot.ReservationID != nil {
			res, err := tx.Reservations().Get(ctx, *spot.ReservationID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			out.Reservation = res
		}
		return nil
	})
	return out, err
}

// GetReservation returns the reservation identified by its join code.
func (e *Engine) GetReservation(ctx context.Context, code string) (*ReservationDetail, error) {
	code = NormalizeCode(code)
	e.settle(ctx)
	var out *ReservationDetail
	err := e.run(ctx, func(tx Tx) error {
		res, err := tx.Reservations().GetByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeInvalidReservationCode, "reservation code %s is not valid", code)
		}
		if err != nil {
			return err
		}
		q, err := e.loadQueue(ctx, tx, res.QueueID)
		if err != nil {
			return err
		}
		spots, err := tx.Spots().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		rep, err := tx.Customers().Get(ctx, res.RepresentativeCustomerID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		out = &ReservationDetail{Reservation: *res, Queue: *q, Spots: spots}
		if rep != nil {
			out.Representative = *rep
		}
		return nil
	})
	return out, err
}

// QueueReservations lists the reservations of a queue, newest first.
func (e *Engine) QueueReservations(ctx context.Context, queueID string) ([]model.Reservation, error) {
	e.settle(ctx)
	var out []model.Reservation
	err := e.run(ctx, func(tx Tx) error {
		if _, err := e.loadQueue(ctx, tx, queueID); err != nil {
			return err
		}
		var err error
		out, err = tx.Reservations().ListByQueue(ctx, queueID)
		return err
	})
	return out, err
}
