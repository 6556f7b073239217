// Package memstore is an in-memory allocation.Store.  Transactions are
// serialised by one mutex and rolled back by restoring a snapshot, and
// the conditional updates and unique indexes of the MySQL store are
// reproduced with the same sentinel errors.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/haunted-house-queue/internal/allocation"
	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

type state struct {
	houses       map[string]model.HauntedHouse
	queues       map[string]model.Queue
	spots        map[string]model.Spot
	reservations map[string]model.Reservation
	customers    map[string]model.Customer
}

func newState() state {
	return state{
		houses:       map[string]model.HauntedHouse{},
		queues:       map[string]model.Queue{},
		spots:        map[string]model.Spot{},
		reservations: map[string]model.Reservation{},
		customers:    map[string]model.Customer{},
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s state) clone() state {
	return state{
		houses:       cloneMap(s.houses),
		queues:       cloneMap(s.queues),
		spots:        cloneMap(s.spots),
		reservations: cloneMap(s.reservations),
		customers:    cloneMap(s.customers),
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	st       state
	failures []error
	txCount  int
}

var _ allocation.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store { return &Store{st: newState()} }

// FailNext makes the next len(errs) transactions fail with errs in order
// before fn runs.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Transactions returns how many transactions were started.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// InTx runs fn against the store and restores the previous state when fn
// fails.
func (s *Store) InTx(ctx context.Context, fn func(allocation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	snapshot := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type tx struct{ st *state }

func (t *tx) Houses() allocation.HouseStore             { return houses{t.st} }
func (t *tx) Queues() allocation.QueueStore             { return queues{t.st} }
func (t *tx) Spots() allocation.SpotStore               { return spots{t.st} }
func (t *tx) Reservations() allocation.ReservationStore { return reservations{t.st} }
func (t *tx) Customers() allocation.CustomerStore       { return customers{t.st} }

// houses

type houses struct{ st *state }

func (h houses) Create(_ context.Context, house *model.HauntedHouse) error {
	for _, other := range h.st.houses {
		if other.Name == house.Name || other.Slug == house.Slug {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	house.CreatedAt, house.UpdatedAt = now, now
	h.st.houses[house.Name] = *house
	return nil
}

func (h houses) GetBySlug(_ context.Context, slug string) (*model.HauntedHouse, error) {
	for _, house := range h.st.houses {
		if house.Slug == slug {
			return &house, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (h houses) List(context.Context) ([]model.HauntedHouse, error) {
	out := make([]model.HauntedHouse, 0, len(h.st.houses))
	for _, house := range h.st.houses {
		out = append(out, house)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h houses) Update(_ context.Context, house *model.HauntedHouse) error {
	for name, cur := range h.st.houses {
		if cur.Slug == house.Slug {
			cur.Duration = house.Duration
			cur.BreakTimePerQueue = house.BreakTimePerQueue
			cur.UpdatedAt = house.UpdatedAt
			h.st.houses[name] = cur
			return nil
		}
	}
	return repository.ErrNotFound
}

func (h houses) Delete(_ context.Context, name string) error {
	if _, ok := h.st.houses[name]; !ok {
		return repository.ErrNotFound
	}
	delete(h.st.houses, name)
	return nil
}

// queues

type queues struct{ st *state }

func (q queues) Get(_ context.Context, id string) (*model.Queue, error) {
	cur, ok := q.st.queues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cur, nil
}

func (q queues) sorted(keep func(model.Queue) bool) []model.Queue {
	out := make([]model.Queue, 0)
	for _, cur := range q.st.queues {
		if keep(cur) {
			out = append(out, cur)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HouseName != out[j].HouseName {
			return out[i].HouseName < out[j].HouseName
		}
		return out[i].QueueNumber < out[j].QueueNumber
	})
	return out
}

func (q queues) ListByHouse(_ context.Context, houseName string) ([]model.Queue, error) {
	return q.sorted(func(cur model.Queue) bool { return cur.HouseName == houseName }), nil
}

func (q queues) ListAll(context.Context) ([]model.Queue, error) {
	return q.sorted(func(model.Queue) bool { return true }), nil
}

func (q queues) Create(_ context.Context, queue *model.Queue) error {
	if _, ok := q.st.queues[queue.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, cur := range q.st.queues {
		if cur.HouseName == queue.HouseName && cur.QueueNumber == queue.QueueNumber {
			return repository.ErrDuplicate
		}
	}
	q.st.queues[queue.ID] = *queue
	return nil
}

func (q queues) Update(_ context.Context, queue *model.Queue) error {
	cur, ok := q.st.queues[queue.ID]
	if !ok {
		return nil
	}
	cur.MaxCustomers = queue.MaxCustomers
	cur.QueueStartTime = queue.QueueStartTime
	cur.QueueEndTime = queue.QueueEndTime
	cur.UpdatedAt = queue.UpdatedAt
	q.st.queues[queue.ID] = cur
	return nil
}

func (q queues) Delete(_ context.Context, id string) error {
	if _, ok := q.st.queues[id]; !ok {
		return repository.ErrNotFound
	}
	delete(q.st.queues, id)
	return nil
}
