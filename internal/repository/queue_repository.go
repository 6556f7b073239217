package repository

import (
	"context"

	"github.com/iliyamo/haunted-house-queue/internal/model"
)

// QueueRepo persists queues.  Queue numbers are unique per house, which
// is enforced by a composite unique index.
type QueueRepo struct {
	db Querier
}

// NewQueueRepo returns a QueueRepo bound to the given handle.
func NewQueueRepo(db Querier) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `id, house_name, queue_number, max_customers, queue_start_time, queue_end_time, created_at, updated_at`

func scanQueue(row interface{ Scan(...any) error }, q *model.Queue) error {
	return row.Scan(&q.ID, &q.HouseName, &q.QueueNumber, &q.MaxCustomers,
		&q.QueueStartTime, &q.QueueEndTime, &q.CreatedAt, &q.UpdatedAt)
}

// Create inserts q.  ErrDuplicate means the queue number is taken in
// that house.
func (r *QueueRepo) Create(ctx context.Context, q *model.Queue) error {
	const ins = `INSERT INTO queues (id, house_name, queue_number, max_customers, queue_start_time, queue_end_time, created_at, updated_at)
	             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, ins, q.ID, q.HouseName, q.QueueNumber, q.MaxCustomers,
		q.QueueStartTime, q.QueueEndTime, q.CreatedAt, q.UpdatedAt)
	return translate(err)
}

// Get returns a queue by id or ErrNotFound.
func (r *QueueRepo) Get(ctx context.Context, id string) (*model.Queue, error) {
	const sel = `SELECT ` + queueColumns + ` FROM queues WHERE id = ?`
	var q model.Queue
	if err := scanQueue(r.db.QueryRowContext(ctx, sel, id), &q); err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

// ListByHouse returns the queues of one house ordered by queue number.
func (r *QueueRepo) ListByHouse(ctx context.Context, houseName string) ([]model.Queue, error) {
	const sel = `SELECT ` + queueColumns + ` FROM queues WHERE house_name = ? ORDER BY queue_number`
	return r.list(ctx, sel, houseName)
}

// ListAll returns every queue ordered by house and queue number.
func (r *QueueRepo) ListAll(ctx context.Context) ([]model.Queue, error) {
	const sel = `SELECT ` + queueColumns + ` FROM queues ORDER BY house_name, queue_number`
	return r.list(ctx, sel)
}

func (r *QueueRepo) list(ctx context.Context, query string, args ...any) ([]model.Queue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Queue, 0)
	for rows.Next() {
		var q model.Queue
		if err := scanQueue(rows, &q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Update writes the mutable queue fields.
func (r *QueueRepo) Update(ctx context.Context, q *model.Queue) error {
	const upd = `UPDATE queues
	             SET max_customers = ?, queue_start_time = ?, queue_end_time = ?, updated_at = ?
	             WHERE id = ?`
	_, err := r.db.ExecContext(ctx, upd, q.MaxCustomers, q.QueueStartTime, q.QueueEndTime, q.UpdatedAt, q.ID)
	return translate(err)
}

// Delete removes the queue row.  Spots and reservations must be
// removed first.
func (r *QueueRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queues WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
