package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

type reservations struct{ st *state }

func (r reservations) Create(_ context.Context, res *model.Reservation) error {
	if _, ok := r.st.reservations[res.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, cur := range r.st.reservations {
		if cur.Code == res.Code {
			return repository.ErrDuplicate
		}
	}
	r.st.reservations[res.ID] = *res
	return nil
}

func (r reservations) CodeExists(_ context.Context, code string) (bool, error) {
	for _, cur := range r.st.reservations {
		if cur.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r reservations) Get(_ context.Context, id string) (*model.Reservation, error) {
	cur, ok := r.st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cur, nil
}

func (r reservations) GetForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	return r.Get(ctx, id)
}

func (r reservations) GetByCode(_ context.Context, code string) (*model.Reservation, error) {
	for _, cur := range r.st.reservations {
		if cur.Code == code {
			return &cur, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r reservations) GetByCodeForUpdate(ctx context.Context, code string) (*model.Reservation, error) {
	return r.GetByCode(ctx, code)
}

func (r reservations) ListByQueue(_ context.Context, queueID string) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	for _, cur := range r.st.reservations {
		if cur.QueueID == queueID {
			out = append(out, cur)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r reservations) CountActiveByQueues(_ context.Context, queueIDs []string) (map[string]int, error) {
	want := make(map[string]bool, len(queueIDs))
	for _, id := range queueIDs {
		want[id] = true
	}
	out := map[string]int{}
	for _, cur := range r.st.reservations {
		if want[cur.QueueID] && cur.Status == model.ReservationActive {
			out[cur.QueueID]++
		}
	}
	return out, nil
}

func (r reservations) SetProgress(_ context.Context, id string, currentSpots uint32, status model.ReservationStatus) error {
	cur, ok := r.st.reservations[id]
	if !ok {
		return repository.ErrConflict
	}
	cur.CurrentSpots, cur.Status, cur.UpdatedAt = currentSpots, status, time.Now().UTC()
	r.st.reservations[id] = cur
	return nil
}

func (r reservations) Transition(_ context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus) error {
	cur, ok := r.st.reservations[id]
	if !ok {
		return repository.ErrConflict
	}
	for _, s := range from {
		if cur.Status == s {
			cur.Status, cur.UpdatedAt = to, time.Now().UTC()
			r.st.reservations[id] = cur
			return nil
		}
	}
	return repository.ErrConflict
}

func (r reservations) sortedIDs(keep func(model.Reservation) bool, less func(a, b model.Reservation) bool) []string {
	matched := make([]model.Reservation, 0)
	for _, cur := range r.st.reservations {
		if keep(cur) {
			matched = append(matched, cur)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	ids := make([]string, 0, len(matched))
	for _, cur := range matched {
		ids = append(ids, cur.ID)
	}
	return ids
}

func (r reservations) ListExpiredUnfilled(_ context.Context, now time.Time) ([]string, error) {
	return r.sortedIDs(func(cur model.Reservation) bool {
		return cur.Status == model.ReservationActive && cur.ExpiresAt.Before(now) && !cur.Filled()
	}, func(a, b model.Reservation) bool { return a.ExpiresAt.Before(b.ExpiresAt) }), nil
}

func (r reservations) ListFilled(context.Context) ([]string, error) {
	linked := map[string]bool{}
	for _, sp := range r.st.spots {
		if sp.ReservationID != nil {
			linked[*sp.ReservationID] = true
		}
	}
	return r.sortedIDs(func(cur model.Reservation) bool {
		return (cur.Status == model.ReservationActive || cur.Status == model.ReservationCompleted) &&
			cur.Filled() && linked[cur.ID]
	}, func(a, b model.Reservation) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (r reservations) DeleteByQueue(_ context.Context, queueID string) error {
	for id, cur := range r.st.reservations {
		if cur.QueueID == queueID {
			delete(r.st.reservations, id)
		}
	}
	return nil
}

type customers struct{ st *state }

func (c customers) Get(_ context.Context, studentID string) (*model.Customer, error) {
	cur, ok := c.st.customers[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &cur, nil
}

func (c customers) InsertIgnore(_ context.Context, cust *model.Customer) error {
	if _, ok := c.st.customers[cust.StudentID]; ok {
		return nil
	}
	fresh := *cust
	fresh.ReservationAttempts = 0
	c.st.customers[cust.StudentID] = fresh
	return nil
}

func (c customers) IncrementAttempts(_ context.Context, studentID string) error {
	if cur, ok := c.st.customers[studentID]; ok {
		cur.ReservationAttempts++
		c.st.customers[studentID] = cur
	}
	return nil
}

func (c customers) ResetAttempts(_ context.Context, studentID string) error {
	if cur, ok := c.st.customers[studentID]; ok {
		cur.ReservationAttempts = 0
		c.st.customers[studentID] = cur
	}
	return nil
}
