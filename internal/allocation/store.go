package allocation

import (
	"context"
	"time"

	"github.com/iliyamo/haunted-house-queue/internal/model"
)

// Store runs a unit of work inside a single transaction.  fn's writes
// are committed when it returns nil and rolled back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the table accessors bound to one open transaction.
type Tx interface {
	Houses() HouseStore
	Queues() QueueStore
	Spots() SpotStore
	Reservations() ReservationStore
	Customers() CustomerStore
}

// HouseStore is the subset of house persistence used inside transactions.
type HouseStore interface {
	Create(ctx context.Context, h *model.HauntedHouse) error
	GetBySlug(ctx context.Context, slug string) (*model.HauntedHouse, error)
	List(ctx context.Context) ([]model.HauntedHouse, error)
	Update(ctx context.Context, h *model.HauntedHouse) error
	Delete(ctx context.Context, name string) error
}

// QueueStore persists queues.
type QueueStore interface {
	Get(ctx context.Context, id string) (*model.Queue, error)
	ListByHouse(ctx context.Context, houseName string) ([]model.Queue, error)
	ListAll(ctx context.Context) ([]model.Queue, error)
	Create(ctx context.Context, q *model.Queue) error
	Update(ctx context.Context, q *model.Queue) error
	Delete(ctx context.Context, id string) error
}

// SpotStore persists spots.  Every method that claims or holds a spot
// is a conditional update and returns repository.ErrConflict when the
// spot was no longer in the expected state.
type SpotStore interface {
	ByCustomer(ctx context.Context, studentID string) (*model.Spot, error)
	ListByQueue(ctx context.Context, queueID string) ([]model.Spot, error)
	ListByQueues(ctx context.Context, queueIDs []string) (map[string][]model.Spot, error)
	ListByReservation(ctx context.Context, reservationID string) ([]model.Spot, error)
	LockAvailable(ctx context.Context, queueID string, limit int) ([]model.Spot, error)
	LockUnclaimedHeld(ctx context.Context, reservationID string) (*model.Spot, error)
	CountAvailable(ctx context.Context, queueID string) (int, error)
	CreateBulk(ctx context.Context, spots []model.Spot) error
	DeleteAvailable(ctx context.Context, ids []string) (int64, error)
	DeleteByQueue(ctx context.Context, queueID string) error
	Claim(ctx context.Context, spotID, studentID string, at time.Time) error
	Hold(ctx context.Context, spotIDs []string, reservationID string) error
	ClaimHeld(ctx context.Context, spotID, reservationID, studentID string, at time.Time) error
	Release(ctx context.Context, spotID, studentID string) error
	Unclaim(ctx context.Context, spotID, studentID string) error
	ReleaseByReservation(ctx context.Context, reservationID string) (int64, error)
	FinalizeByReservation(ctx context.Context, reservationID string) (int64, error)
}

// ReservationStore persists reservations.  The ForUpdate getters lock
// the row until the transaction ends.
type ReservationStore interface {
	Create(ctx context.Context, r *model.Reservation) error
	CodeExists(ctx context.Context, code string) (bool, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	GetByCode(ctx context.Context, code string) (*model.Reservation, error)
	ListByQueue(ctx context.Context, queueID string) ([]model.Reservation, error)
	CountActiveByQueues(ctx context.Context, queueIDs []string) (map[string]int, error)
	GetForUpdate(ctx context.Context, id string) (*model.Reservation, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*model.Reservation, error)
	SetProgress(ctx context.Context, id string, currentSpots uint32, status model.ReservationStatus) error
	Transition(ctx context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus) error
	ListExpiredUnfilled(ctx context.Context, now time.Time) ([]string, error)
	ListFilled(ctx context.Context) ([]string, error)
	DeleteByQueue(ctx context.Context, queueID string) error
}

// CustomerStore persists customers.
type CustomerStore interface {
	Get(ctx context.Context, studentID string) (*model.Customer, error)
	InsertIgnore(ctx context.Context, c *model.Customer) error
	IncrementAttempts(ctx context.Context, studentID string) error
	ResetAttempts(ctx context.Context, studentID string) error
}
