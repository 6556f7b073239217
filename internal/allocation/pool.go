package allocation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// createPool inserts size available spots numbered 1..size.
func (e *Engine) createPool(ctx context.Context, tx Tx, queueID string, size uint32) error {
	spots := make([]model.Spot, 0, size)
	for n := uint32(1); n <= size; n++ {
		spots = append(spots, model.Spot{
			ID:         e.newID(),
			QueueID:    queueID,
			SpotNumber: n,
			Status:     model.SpotAvailable,
		})
	}
	return tx.Spots().CreateBulk(ctx, spots)
}

// resizePool grows or shrinks the pool of a queue to newSize.
//
// Growing fills every missing number in 1..newSize.  Shrinking deletes
// the spots past position newSize in spot number order, but only those
// that are available; claimed or held spots stay, so the pool may keep
// more than newSize spots until they are released.
func (e *Engine) resizePool(ctx context.Context, tx Tx, queueID string, newSize uint32) (added, removed int, err error) {
	spots, err := tx.Spots().ListByQueue(ctx, queueID)
	if err != nil {
		return 0, 0, err
	}
	sort.Slice(spots, func(i, j int) bool { return spots[i].SpotNumber < spots[j].SpotNumber })

	if int(newSize) > len(spots) {
		taken := make(map[uint32]bool, len(spots))
		for _, s := range spots {
			taken[s.SpotNumber] = true
		}
		missing := int(newSize) - len(spots)
		fresh := make([]model.Spot, 0, missing)
		for n := uint32(1); len(fresh) < missing; n++ {
			if taken[n] {
				continue
			}
			fresh = append(fresh, model.Spot{
				ID:         e.newID(),
				QueueID:    queueID,
				SpotNumber: n,
				Status:     model.SpotAvailable,
			})
		}
		return len(fresh), 0, tx.Spots().CreateBulk(ctx, fresh)
	}

	var ids []string
	for _, s := range spots[newSize:] {
		if s.Status == model.SpotAvailable {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}
	n, err := tx.Spots().DeleteAvailable(ctx, ids)
	return 0, int(n), err
}

// QueueInput carries the fields of a new queue.
type QueueInput struct {
	HouseSlug      string    `json:"-"`
	QueueNumber    uint32    `json:"queue_number" validate:"required,min=1"`
	MaxCustomers   uint32    `json:"max_customers" validate:"required,min=1,max=500"`
	QueueStartTime time.Time `json:"queue_start_time" validate:"required"`
	QueueEndTime   time.Time `json:"queue_end_time" validate:"required,gtfield=QueueStartTime"`
}

// QueueUpdate carries optional queue changes.
type QueueUpdate struct {
	MaxCustomers   *uint32    `json:"max_customers" validate:"omitempty,min=1,max=500"`
	QueueStartTime *time.Time `json:"queue_start_time"`
	QueueEndTime   *time.Time `json:"queue_end_time"`
}

// CreateQueue creates a queue in the house identified by in.HouseSlug
// together with its spot pool.
func (e *Engine) CreateQueue(ctx context.Context, in QueueInput) (*model.Queue, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	var out *model.Queue
	err := e.run(ctx, func(tx Tx) error {
		house, err := tx.Houses().GetBySlug(ctx, in.HouseSlug)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "house %s not found", in.HouseSlug)
		}
		if err != nil {
			return err
		}
		now := e.now()
		q := &model.Queue{
			ID:             e.newID(),
			HouseName:      house.Name,
			QueueNumber:    in.QueueNumber,
			MaxCustomers:   in.MaxCustomers,
			QueueStartTime: in.QueueStartTime.UTC(),
			QueueEndTime:   in.QueueEndTime.UTC(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Queues().Create(ctx, q); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return reject(CodeConflict, "queue %d already exists in %s", in.QueueNumber, house.Name)
			}
			return err
		}
		if err := e.createPool(ctx, tx, q.ID, q.MaxCustomers); err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"queue_id": out.ID,
		"house":    out.HouseName,
		"spots":    out.MaxCustomers,
	}).Info("queue created")
	return out, nil
}

// ResizeQueue applies upd to a queue and resizes its pool when the
// customer limit changed.
func (e *Engine) ResizeQueue(ctx context.Context, queueID string, upd QueueUpdate) (*model.Queue, error) {
	if err := checkInput(upd); err != nil {
		return nil, err
	}
	var out *model.Queue
	var added, removed int
	err := e.run(ctx, func(tx Tx) error {
		q, err := e.loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if upd.QueueStartTime != nil {
			q.QueueStartTime = upd.QueueStartTime.UTC()
		}
		if upd.QueueEndTime != nil {
			q.QueueEndTime = upd.QueueEndTime.UTC()
		}
		if !q.QueueEndTime.After(q.QueueStartTime) {
			return reject(CodeInvalidInput, "queue end time must be after start time")
		}
		resize := upd.MaxCustomers != nil
		if resize {
			q.MaxCustomers = *upd.MaxCustomers
		}
		q.UpdatedAt = e.now()
		if err := tx.Queues().Update(ctx, q); err != nil {
			return err
		}
		if resize {
			added, removed, err = e.resizePool(ctx, tx, q.ID, q.MaxCustomers)
			if err != nil {
				return err
			}
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"queue_id": queueID,
		"added":    added,
		"removed":  removed,
	}).Info("queue updated")
	return out, nil
}

// DeleteQueue removes a queue with its spots and reservations.
func (e *Engine) DeleteQueue(ctx context.Context, queueID string) error {
	return e.run(ctx, func(tx Tx) error {
		if _, err := e.loadQueue(ctx, tx, queueID); err != nil {
			return err
		}
		return deleteQueueTx(ctx, tx, queueID)
	})
}

// DeleteHouse removes a house and cascades to its queues.  The store
// does not cascade on its own.
func (e *Engine) DeleteHouse(ctx context.Context, slug string) error {
	return e.run(ctx, func(tx Tx) error {
		house, err := tx.Houses().GetBySlug(ctx, slug)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "house %s not found", slug)
		}
		if err != nil {
			return err
		}
		queues, err := tx.Queues().ListByHouse(ctx, house.Name)
		if err != nil {
			return err
		}
		for _, q := range queues {
			if err := deleteQueueTx(ctx, tx, q.ID); err != nil {
				return err
			}
		}
		return tx.Houses().Delete(ctx, house.Name)
	})
}

func deleteQueueTx(ctx context.Context, tx Tx, queueID string) error {
	if err := tx.Spots().DeleteByQueue(ctx, queueID); err != nil {
		return err
	}
	if err := tx.Reservations().DeleteByQueue(ctx, queueID); err != nil {
		return err
	}
	return tx.Queues().Delete(ctx, queueID)
}
