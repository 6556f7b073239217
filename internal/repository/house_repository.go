package repository // repository holds data access logic for domain entities

import (
	"context" // context is used to manage deadlines and cancellation

	"github.com/iliyamo/haunted-house-queue/internal/model" // domain models
)

// HouseRepo provides methods to create, list and remove haunted houses.
type HouseRepo struct {
	db Querier // db is the underlying connection or transaction
}

// NewHouseRepo constructs a HouseRepo with the given handle.
func NewHouseRepo(db Querier) *HouseRepo {
	return &HouseRepo{db: db}
}

const houseColumns = `name, slug, duration, break_time_per_queue, created_at, updated_at`

func scanHouse(row interface{ Scan(...any) error }, h *model.HauntedHouse) error {
	return row.Scan(&h.Name, &h.Slug, &h.Duration, &h.BreakTimePerQueue, &h.CreatedAt, &h.UpdatedAt)
}

// Create inserts a new house.  ErrDuplicate is returned when the name
// or slug is already taken.  Timestamps are read back from the row.
func (r *HouseRepo) Create(ctx context.Context, h *model.HauntedHouse) error {
	const q = `INSERT INTO haunted_houses (name, slug, duration, break_time_per_queue) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, h.Name, h.Slug, h.Duration, h.BreakTimePerQueue); err != nil {
		return translate(err)
	}
	const sel = `SELECT ` + houseColumns + ` FROM haunted_houses WHERE name = ?`
	return translate(scanHouse(r.db.QueryRowContext(ctx, sel, h.Name), h))
}

// GetBySlug returns the house with the given slug or ErrNotFound.
func (r *HouseRepo) GetBySlug(ctx context.Context, slug string) (*model.HauntedHouse, error) {
	const q = `SELECT ` + houseColumns + ` FROM haunted_houses WHERE slug = ?`
	var h model.HauntedHouse
	if err := scanHouse(r.db.QueryRowContext(ctx, q, slug), &h); err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

// List returns every house ordered by name.
func (r *HouseRepo) List(ctx context.Context) ([]model.HauntedHouse, error) {
	const q = `SELECT ` + houseColumns + ` FROM haunted_houses ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HauntedHouse, 0)
	for rows.Next() {
		var h model.HauntedHouse
		if err := scanHouse(rows, &h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Update changes the timing fields of the house identified by h.Slug.
// The name is immutable because queues reference it.
func (r *HouseRepo) Update(ctx context.Context, h *model.HauntedHouse) error {
	const q = `UPDATE haunted_houses
	           SET duration = ?, break_time_per_queue = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE slug = ?`
	res, err := r.db.ExecContext(ctx, q, h.Duration, h.BreakTimePerQueue, h.Slug)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports zero affected rows when nothing changed; check existence.
		if _, err := r.GetBySlug(ctx, h.Slug); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the house row.  Queues must be removed first.
func (r *HouseRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM haunted_houses WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
