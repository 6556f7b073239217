// Package allocation implements the spot and reservation state machine:
// direct joins, group reservations, leaving, admin cancellation and the
// expiry sweep.  Every operation runs in one store transaction and is
// retried as a whole on transient store failures.
package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/queue"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
	"github.com/iliyamo/haunted-house-queue/internal/retry"
)

// Minutes granted per reserved spot before the group expires.
const minutesPerReservationSpot = 5

const (
	MinReservationSpots = 2
	MaxReservationSpots = 10
)

// Publisher receives reservation lifecycle events after commit.
type Publisher interface {
	PublishReservationEvent(ctx context.Context, ev queue.ReservationEvent) error
}

// Engine performs allocation operations against a Store.
type Engine struct {
	store   Store
	policy  retry.Policy
	events  Publisher
	log     logrus.FieldLogger
	now     func() time.Time
	newID   func() string
	newCode func() (string, error)

	reconcileOnRead bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithRetryPolicy sets the policy used to retry transient failures.
func WithRetryPolicy(p retry.Policy) Option { return func(e *Engine) { e.policy = p } }

// WithPublisher sets the reservation event sink.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.events = p } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithCodeGenerator overrides the reservation code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.newCode = gen }
}

// WithReconcileOnRead makes read operations run the expiry sweep first
// so callers never observe a reservation past its deadline as active.
func WithReconcileOnRead(on bool) Option { return func(e *Engine) { e.reconcileOnRead = on } }

// NewEngine returns an Engine bound to store.
func NewEngine(store Store, opts ...Option) *Engine {
	if store == nil {
		panic("nil store passed to NewEngine")
	}
	e := &Engine{
		store:   store,
		policy:  retry.DefaultPolicy(),
		log:     logrus.StandardLogger(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
		newCode: NewReservationCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CustomerData identifies the caller of a customer operation.
type CustomerData struct {
	StudentID  string `json:"student_id" validate:"required,max=32"`
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Homeroom   string `json:"homeroom" validate:"max=32"`
	TicketType string `json:"ticket_type" validate:"max=32"`
}

// Placement is a spot together with the queue it belongs to and, for
// reservation spots, the reservation holding it.
type Placement struct {
	Spot        model.Spot         `json:"spot"`
	Queue       model.Queue        `json:"queue"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
}

// ReservationDetail is a reservation expanded with its queue, spots and
// representative.
type ReservationDetail struct {
	Reservation    model.Reservation `json:"reservation"`
	Queue          model.Queue       `json:"queue"`
	Spots          []model.Spot      `json:"spots"`
	Representative model.Customer    `json:"representative"`
}

// LeaveResult describes what leaving released.
type LeaveResult struct {
	Spot        model.Spot         `json:"spot"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	// Cancelled is true when the representative left and the whole
	// reservation was released.
	Cancelled bool `json:"cancelled"`
}

// run executes fn in a transaction, retrying the whole transaction on
// transient failures.  Rejections are returned on the first attempt.
func (e *Engine) run(ctx context.Context, fn func(Tx) error) error {
	return e.policy.Do(ctx, func() error {
		return e.store.InTx(ctx, fn)
	})
}

func (e *Engine) publish(ctx context.Context, kind queue.ReservationEventKind, r model.Reservation) {
	if e.events == nil {
		return
	}
	ev := queue.NewReservationEvent(kind, r, e.now())
	if err := e.events.PublishReservationEvent(ctx, ev); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"reservation_id": r.ID,
			"event":          kind,
		}).Warn("reservation event not published")
	}
}

func (e *Engine) loadQueue(ctx context.Context, tx Tx, queueID string) (*model.Queue, error) {
	q, err := tx.Queues().Get(ctx, queueID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, reject(CodeNotFound, "queue %s not found", queueID)
	}
	return q, err
}

// ensureNoSpot rejects customers that already hold a spot in any queue.
func ensureNoSpot(ctx context.Context, tx Tx, studentID string) error {
	_, err := tx.Spots().ByCustomer(ctx, studentID)
	switch {
	case err == nil:
		return reject(CodeAlreadyInQueue, "customer %s already holds a spot", studentID)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}

// claimErr maps store errors raised while claiming a spot.
func claimErr(err error, studentID string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return reject(CodeAlreadyInQueue, "customer %s already holds a spot", studentID)
	}
	return err
}

// JoinQueue claims the lowest numbered available spot of a queue.
func (e *Engine) JoinQueue(ctx context.Context, queueID string, data CustomerData) (*Placement, error) {
	if err := checkInput(data); err != nil {
		return nil, err
	}
	var out *Placement
	err := e.run(ctx, func(tx Tx) error {
		q, err := e.loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if err := ensureNoSpot(ctx, tx, data.StudentID); err != nil {
			return err
		}
		free, err := tx.Spots().LockAvailable(ctx, queueID, 1)
		if err != nil {
			return err
		}
		if len(free) == 0 {
			return reject(CodeNoAvailableSpots, "no available spots in queue %d", q.QueueNumber)
		}
		if _, err := e.getOrCreateCustomer(ctx, tx, data); err != nil {
			return err
		}
		now := e.now()
		spot := free[0]
		if err := tx.Spots().Claim(ctx, spot.ID, data.StudentID, now); err != nil {
			return claimErr(err, data.StudentID)
		}
		spot.Status = model.SpotOccupied
		spot.CustomerID = &data.StudentID
		spot.OccupiedAt = &now
		out = &Placement{Spot: spot, Queue: *q}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"queue_id":    queueID,
		"student_id":  data.StudentID,
		"spot_number": out.Spot.SpotNumber,
	}).Info("customer joined queue")
	return out, nil
}

// CreateReservation holds maxSpots spots for a group and places the
// representative on the lowest numbered one.  Nothing is written when
// fewer than maxSpots spots are available.
func (e *Engine) CreateReservation(ctx context.Context, queueID string, maxSpots int, data CustomerData) (*ReservationDetail, error) {
	if maxSpots < MinReservationSpots || maxSpots > MaxReservationSpots {
		return nil, reject(CodeInvalidInput, "max spots must be between %d and %d", MinReservationSpots, MaxReservationSpots)
	}
	if err := checkInput(data); err != nil {
		return nil, err
	}
	var out *ReservationDetail
	err := e.run(ctx, func(tx Tx) error {
		q, err := e.loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		customer, err := e.getOrCreateCustomer(ctx, tx, data)
		if err != nil {
			return err
		}
		if err := ensureNoSpot(ctx, tx, data.StudentID); err != nil {
			return err
		}
		if customer.ReservationAttempts >= model.MaxReservationAttempts {
			return reject(CodeMaxReservationAttempts, "customer %s has reached the reservation attempt limit", data.StudentID)
		}
		available, err := tx.Spots().CountAvailable(ctx, queueID)
		if err != nil {
			return err
		}
		if available < maxSpots {
			return reject(CodeNoAvailableSpots, "only %d spots available, %d requested", available, maxSpots)
		}
		free, err := tx.Spots().LockAvailable(ctx, queueID, maxSpots)
		if err != nil {
			return err
		}
		if len(free) < maxSpots {
			return reject(CodeNoAvailableSpots, "only %d spots available, %d requested", len(free), maxSpots)
		}
		code, err := e.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}
		now := e.now()
		res := model.Reservation{
			ID:                       e.newID(),
			QueueID:                  queueID,
			Code:                     code,
			RepresentativeCustomerID: data.StudentID,
			MaxSpots:                 uint32(maxSpots),
			CurrentSpots:             1,
			ExpiresAt:                now.Add(time.Duration(maxSpots*minutesPerReservationSpot) * time.Minute),
			Status:                   model.ReservationActive,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := tx.Reservations().Create(ctx, &res); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return repository.ErrConflict
			}
			return err
		}
		ids := make([]string, 0, len(free))
		for _, s := range free {
			ids = append(ids, s.ID)
		}
		if err := tx.Spots().Hold(ctx, ids, res.ID); err != nil {
			return err
		}
		if err := tx.Spots().ClaimHeld(ctx, free[0].ID, res.ID, data.StudentID, now); err != nil {
			return claimErr(err, data.StudentID)
		}
		spots, err := tx.Spots().ListByReservation(ctx, res.ID)
		if err != nil {
			return err
		}
		out = &ReservationDetail{Reservation: res, Queue: *q, Spots: spots, Representative: *customer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"queue_id":       queueID,
		"reservation_id": out.Reservation.ID,
		"student_id":     data.StudentID,
		"max_spots":      maxSpots,
	}).Info("reservation created")
	e.publish(ctx, queue.ReservationCreated, out.Reservation)
	return out, nil
}

// JoinReservation seats a customer on an unclaimed spot of the
// reservation identified by code.
func (e *Engine) JoinReservation(ctx context.Context, code string, data CustomerData) (*Placement, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, reject(CodeInvalidReservationCode, "reservation code is required")
	}
	if err := checkInput(data); err != nil {
		return nil, err
	}
	var out *Placement
	err := e.run(ctx, func(tx Tx) error {
		if _, err := e.getOrCreateCustomer(ctx, tx, data); err != nil {
			return err
		}
		if err := ensureNoSpot(ctx, tx, data.StudentID); err != nil {
			return err
		}
		res, err := tx.Reservations().GetByCodeForUpdate(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeInvalidReservationCode, "reservation code %s is not valid", code)
		}
		if err != nil {
			return err
		}
		now := e.now()
		switch {
		case res.Status != model.ReservationActive:
			return reject(CodeReservationNotActive, "reservation is %s", res.Status)
		case now.After(res.ExpiresAt):
			return reject(CodeReservationExpired, "reservation expired at %s", res.ExpiresAt.Format(time.RFC3339))
		case res.Filled():
			return reject(CodeReservationFull, "reservation is full")
		}
		target, err := tx.Spots().LockUnclaimedHeld(ctx, res.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNoAvailableSpots, "no unclaimed spot left in reservation")
		}
		if err != nil {
			return err
		}
		if err := tx.Spots().ClaimHeld(ctx, target.ID, res.ID, data.StudentID, now); err != nil {
			return claimErr(err, data.StudentID)
		}
		res.CurrentSpots++
		if res.Filled() {
			// A full group is final: its spots become plain occupied spots
			// and later leaves release them directly.
			if _, err := tx.Spots().FinalizeByReservation(ctx, res.ID); err != nil {
				return err
			}
			res.Status = model.ReservationCompleted
			target.Status = model.SpotOccupied
			target.ReservationID = nil
		}
		if err := tx.Reservations().SetProgress(ctx, res.ID, res.CurrentSpots, res.Status); err != nil {
			return err
		}
		res.UpdatedAt = now
		q, err := e.loadQueue(ctx, tx, res.QueueID)
		if err != nil {
			return err
		}
		target.CustomerID = &data.StudentID
		target.OccupiedAt = &now
		out = &Placement{Spot: *target, Queue: *q, Reservation: res}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"reservation_id": out.Reservation.ID,
		"student_id":     data.StudentID,
		"current_spots":  out.Reservation.CurrentSpots,
	}).Info("customer joined reservation")
	if out.Reservation.Status == model.ReservationCompleted {
		e.publish(ctx, queue.ReservationCompleted, *out.Reservation)
	}
	return out, nil
}

// LeaveQueue releases the spot held by studentID.  While a reservation
// is active, a representative leaving cancels it and a member leaving
// frees only their own spot, which stays held for a replacement.  Spots
// of a filled group are released like any direct spot.
func (e *Engine) LeaveQueue(ctx context.Context, studentID string) (*LeaveResult, error) {
	var out *LeaveResult
	err := e.run(ctx, func(tx Tx) error {
		spot, err := tx.Spots().ByCustomer(ctx, studentID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotInQueue, "customer %s does not hold a spot", studentID)
		}
		if err != nil {
			return err
		}
		out = &LeaveResult{Spot: *spot}
		if spot.ReservationID == nil {
			return tx.Spots().Release(ctx, spot.ID, studentID)
		}
		res, err := tx.Reservations().GetForUpdate(ctx, *spot.ReservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return tx.Spots().Release(ctx, spot.ID, studentID)
		}
		if err != nil {
			return err
		}
		if res.Status != model.ReservationActive {
			// Only an active group is still being assembled.
			return tx.Spots().Release(ctx, spot.ID, studentID)
		}
		out.Reservation = res
		if res.RepresentativeCustomerID == studentID {
			if _, err := tx.Spots().ReleaseByReservation(ctx, res.ID); err != nil {
				return err
			}
			err := tx.Reservations().Transition(ctx, res.ID,
				[]model.ReservationStatus{model.ReservationActive}, model.ReservationCancelled)
			if err != nil {
				return err
			}
			res.Status = model.ReservationCancelled
			out.Cancelled = true
			return nil
		}
		if err := tx.Spots().Unclaim(ctx, spot.ID, studentID); err != nil {
			return err
		}
		if res.CurrentSpots > 1 {
			res.CurrentSpots--
		}
		return tx.Reservations().SetProgress(ctx, res.ID, res.CurrentSpots, res.Status)
	})
	if err != nil {
		return nil, err
	}
	out.Spot.CustomerID = nil
	out.Spot.OccupiedAt = nil
	if out.Reservation == nil || out.Cancelled {
		out.Spot.Status = model.SpotAvailable
		out.Spot.ReservationID = nil
	}
	e.log.WithFields(logrus.Fields{
		"student_id": studentID,
		"spot_id":    out.Spot.ID,
		"cancelled":  out.Cancelled,
	}).Info("customer left queue")
	if out.Cancelled {
		e.publish(ctx, queue.ReservationCancelled, *out.Reservation)
	}
	return out, nil
}

// Kick removes a customer from their spot on behalf of an admin.  It
// follows the same rules as LeaveQueue.
func (e *Engine) Kick(ctx context.Context, studentID string) (*LeaveResult, error) {
	res, err := e.LeaveQueue(ctx, studentID)
	if err == nil {
		e.log.WithField("student_id", studentID).Warn("customer removed by admin")
	}
	return res, err
}

// CancelReservation releases every spot of an active reservation.
func (e *Engine) CancelReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	var out *model.Reservation
	err := e.run(ctx, func(tx Tx) error {
		res, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "reservation %s not found", reservationID)
		}
		if err != nil {
			return err
		}
		if res.Status != model.ReservationActive {
			return reject(CodeCannotCancel, "cannot cancel a %s reservation", res.Status)
		}
		if _, err := tx.Spots().ReleaseByReservation(ctx, res.ID); err != nil {
			return err
		}
		if err := tx.Reservations().Transition(ctx, res.ID,
			[]model.ReservationStatus{model.ReservationActive}, model.ReservationCancelled); err != nil {
			return err
		}
		res.Status = model.ReservationCancelled
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithField("reservation_id", reservationID).Info("reservation cancelled by admin")
	e.publish(ctx, queue.ReservationCancelled, *out)
	return out, nil
}

// ResetAttempts clears the expired reservation counter of a customer.
func (e *Engine) ResetAttempts(ctx context.Context, studentID string) (*model.Customer, error) {
	var out *model.Customer
	err := e.run(ctx, func(tx Tx) error {
		c, err := tx.Customers().Get(ctx, studentID)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "customer %s not found", studentID)
		}
		if err != nil {
			return err
		}
		if err := tx.Customers().ResetAttempts(ctx, studentID); err != nil {
			return err
		}
		c.ReservationAttempts = 0
		out = c
		return nil
	})
	return out, err
}
