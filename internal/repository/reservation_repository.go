package repository

import (
    "context"
    "strings"
    "time"

    "github.com/iliyamo/haunted-house-queue/internal/model"
)

// ReservationRepo persists group reservations.  Codes are unique across
// all reservations regardless of status; the unique index on code is
// the final guard against two creators drawing the same code.  All
// timestamp fields are stored in UTC.
type ReservationRepo struct {
    db Querier
}

// NewReservationRepo returns a ReservationRepo bound to the given handle.
func NewReservationRepo(db Querier) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, queue_id, code, representative_customer_id, max_spots, current_spots, expires_at, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }, r *model.Reservation) error {
    var status string
    if err := row.Scan(&r.ID, &r.QueueID, &r.Code, &r.RepresentativeCustomerID, &r.MaxSpots,
        &r.CurrentSpots, &r.ExpiresAt, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
        return err
    }
    r.Status = model.ReservationStatus(status)
    r.ExpiresAt = r.ExpiresAt.UTC()
    return nil
}

// Create inserts a reservation.  ErrDuplicate means the code is taken.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    const q = `INSERT INTO reservations
               (id, queue_id, code, representative_customer_id, max_spots, current_spots, expires_at, status, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q, res.ID, res.QueueID, res.Code, res.RepresentativeCustomerID,
        res.MaxSpots, res.CurrentSpots, res.ExpiresAt.UTC(), string(res.Status), res.CreatedAt.UTC(), res.UpdatedAt.UTC())
    return translate(err)
}

// CodeExists reports whether any reservation, in any status, uses code.
func (r *ReservationRepo) CodeExists(ctx context.Context, code string) (bool, error) {
    var exists bool
    err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reservations WHERE code = ?)`, code).Scan(&exists)
    return exists, err
}

// Get returns a reservation by id without locking it.
func (r *ReservationRepo) Get(ctx context.Context, id string) (*model.Reservation, error) {
    return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

// GetByCode returns a reservation by its join code without locking it.
func (r *ReservationRepo) GetByCode(ctx context.Context, code string) (*model.Reservation, error) {
    return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE code = ?`, code)
}

// GetForUpdate returns a reservation by id and locks the row until the
// surrounding transaction ends.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
    return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
}

// GetByCodeForUpdate is GetForUpdate keyed by join code.
func (r *ReservationRepo) GetByCodeForUpdate(ctx context.Context, code string) (*model.Reservation, error) {
    return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE code = ? FOR UPDATE`, code)
}

func (r *ReservationRepo) one(ctx context.Context, query string, args ...any) (*model.Reservation, error) {
    var res model.Reservation
    if err := scanReservation(r.db.QueryRowContext(ctx, query, args...), &res); err != nil {
        return nil, translate(err)
    }
    return &res, nil
}

// ListByQueue returns the reservations of a queue, newest first.
func (r *ReservationRepo) ListByQueue(ctx context.Context, queueID string) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE queue_id = ? ORDER BY created_at DESC`, queueID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        var res model.Reservation
        if err := scanReservation(rows, &res); err != nil {
            return nil, err
        }
        out = append(out, res)
    }
    return out, rows.Err()
}

// CountActiveByQueues returns the number of active reservations per
// queue id.  Queues without any are absent from the map.
func (r *ReservationRepo) CountActiveByQueues(ctx context.Context, queueIDs []string) (map[string]int, error) {
    out := make(map[string]int, len(queueIDs))
    if len(queueIDs) == 0 {
        return out, nil
    }
    in, args := inClause(queueIDs)
    rows, err := r.db.QueryContext(ctx,
        `SELECT queue_id, COUNT(*) FROM reservations WHERE status = 'active' AND queue_id IN (`+in+`) GROUP BY queue_id`,
        args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var (
            id string
            n  int
        )
        if err := rows.Scan(&id, &n); err != nil {
            return nil, err
        }
        out[id] = n
    }
    return out, rows.Err()
}

// SetProgress records the member count and status of a reservation.
func (r *ReservationRepo) SetProgress(ctx context.Context, id string, currentSpots uint32, status model.ReservationStatus) error {
    const q = `UPDATE reservations SET current_spots = ?, status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    res, err := r.db.ExecContext(ctx, q, currentSpots, string(status), id)
    if err != nil {
        return err
    }
    return expectRows(res, 1)
}

// Transition moves a reservation to status to provided its current
// status is one of from.  ErrConflict means the row was in another
// state.
func (r *ReservationRepo) Transition(ctx context.Context, id string, from []model.ReservationStatus, to model.ReservationStatus) error {
    if len(from) == 0 {
        return ErrConflict
    }
    placeholders := make([]string, len(from))
    args := []any{string(to), id}
    for i, s := range from {
        placeholders[i] = "?"
        args = append(args, string(s))
    }
    q := `UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP()
          WHERE id = ? AND status IN (` + strings.Join(placeholders, ",") + `)`
    res, err := r.db.ExecContext(ctx, q, args...)
    if err != nil {
        return err
    }
    return expectRows(res, 1)
}

// ListExpiredUnfilled returns the ids of active reservations whose
// deadline passed before they were filled.
func (r *ReservationRepo) ListExpiredUnfilled(ctx context.Context, now time.Time) ([]string, error) {
    const q = `SELECT id FROM reservations
               WHERE status = 'active' AND expires_at < ? AND current_spots < max_spots
               ORDER BY expires_at`
    return r.ids(ctx, q, now.UTC())
}

// ListFilled returns the ids of filled reservations that still have
// spots linked to them and so need finalizing.
func (r *ReservationRepo) ListFilled(ctx context.Context) ([]string, error) {
    const q = `SELECT r.id FROM reservations r
               WHERE r.status IN ('active', 'completed')
                 AND r.current_spots >= r.max_spots
                 AND EXISTS (SELECT 1 FROM spots s WHERE s.reservation_id = r.id)
               ORDER BY r.created_at`
    return r.ids(ctx, q)
}

func (r *ReservationRepo) ids(ctx context.Context, query string, args ...any) ([]string, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]string, 0)
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        out = append(out, id)
    }
    return out, rows.Err()
}

// DeleteByQueue removes every reservation of a queue.
func (r *ReservationRepo) DeleteByQueue(ctx context.Context, queueID string) error {
    _, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE queue_id = ?`, queueID)
    return err
}
