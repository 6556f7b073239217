package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/haunted-house-queue/internal/model"
)

// SpotRepo persists spots.  All state changes are conditional updates:
// the WHERE clause restates the state the caller observed and the
// affected row count is checked, so two writers can never both claim
// the same spot.  A unique index on customer_id keeps one spot per
// customer across all queues.
type SpotRepo struct {
    db Querier
}

// NewSpotRepo returns a SpotRepo bound to the given handle.
func NewSpotRepo(db Querier) *SpotRepo { return &SpotRepo{db: db} }

const spotColumns = `id, queue_id, spot_number, status, customer_id, reservation_id, occupied_at`

func scanSpot(row interface{ Scan(...any) error }, s *model.Spot) error {
    var (
        status        string
        customerID    sql.NullString
        reservationID sql.NullString
        occupiedAt    sql.NullTime
    )
    if err := row.Scan(&s.ID, &s.QueueID, &s.SpotNumber, &status, &customerID, &reservationID, &occupiedAt); err != nil {
        return err
    }
    s.Status = model.SpotStatus(status)
    s.CustomerID = ptrString(customerID)
    s.ReservationID = ptrString(reservationID)
    if occupiedAt.Valid {
        t := occupiedAt.Time.UTC()
        s.OccupiedAt = &t
    }
    return nil
}

func (r *SpotRepo) list(ctx context.Context, query string, args ...any) ([]model.Spot, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Spot, 0)
    for rows.Next() {
        var s model.Spot
        if err := scanSpot(rows, &s); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

// ByCustomer returns the spot currently held by a customer or
// ErrNotFound.
func (r *SpotRepo) ByCustomer(ctx context.Context, studentID string) (*model.Spot, error) {
    const q = `SELECT ` + spotColumns + ` FROM spots WHERE customer_id = ? LIMIT 1`
    var s model.Spot
    if err := scanSpot(r.db.QueryRowContext(ctx, q, studentID), &s); err != nil {
        return nil, translate(err)
    }
    return &s, nil
}

// ListByQueue returns the spots of a queue ordered by spot number.
func (r *SpotRepo) ListByQueue(ctx context.Context, queueID string) ([]model.Spot, error) {
    const q = `SELECT ` + spotColumns + ` FROM spots WHERE queue_id = ? ORDER BY spot_number`
    return r.list(ctx, q, queueID)
}

// ListByQueues returns the spots of several queues keyed by queue id.
func (r *SpotRepo) ListByQueues(ctx context.Context, queueIDs []string) (map[string][]model.Spot, error) {
    out := make(map[string][]model.Spot, len(queueIDs))
    if len(queueIDs) == 0 {
        return out, nil
    }
    in, args := inClause(queueIDs)
    q := `SELECT ` + spotColumns + ` FROM spots WHERE queue_id IN (` + in + `) ORDER BY queue_id, spot_number`
    spots, err := r.list(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    for _, s := range spots {
        out[s.QueueID] = append(out[s.QueueID], s)
    }
    return out, nil
}

// ListByReservation returns the spots held for a reservation ordered by
// spot number.
func (r *SpotRepo) ListByReservation(ctx context.Context, reservationID string) ([]model.Spot, error) {
    const q = `SELECT ` + spotColumns + ` FROM spots WHERE reservation_id = ? ORDER BY spot_number`
    return r.list(ctx, q, reservationID)
}

// LockUnclaimedHeld locks the lowest numbered spot held for a
// reservation that nobody has claimed yet, or returns ErrNotFound.  The
// locking read sees rows committed after the transaction's snapshot.
func (r *SpotRepo) LockUnclaimedHeld(ctx context.Context, reservationID string) (*model.Spot, error) {
    const q = `SELECT ` + spotColumns + `
               FROM spots
               WHERE reservation_id = ? AND status = 'reserved' AND customer_id IS NULL
               ORDER BY spot_number
               LIMIT 1
               FOR UPDATE`
    var s model.Spot
    if err := scanSpot(r.db.QueryRowContext(ctx, q, reservationID), &s); err != nil {
        return nil, translate(err)
    }
    return &s, nil
}

// LockAvailable locks up to limit available spots of a queue, lowest
// spot number first.  Rows locked by concurrent transactions are
// skipped so callers racing on one queue pick different spots.
func (r *SpotRepo) LockAvailable(ctx context.Context, queueID string, limit int) ([]model.Spot, error) {
    const q = `SELECT ` + spotColumns + `
               FROM spots
               WHERE queue_id = ? AND status = 'available'
               ORDER BY spot_number
               LIMIT ?
               FOR UPDATE SKIP LOCKED`
    return r.list(ctx, q, queueID, limit)
}

// CountAvailable returns the number of available spots in a queue.
func (r *SpotRepo) CountAvailable(ctx context.Context, queueID string) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM spots WHERE queue_id = ? AND status = 'available'`, queueID).Scan(&n)
    return n, err
}

// CreateBulk inserts multiple spots in a single statement.  Passing an
// empty slice has no effect and returns nil.
func (r *SpotRepo) CreateBulk(ctx context.Context, spots []model.Spot) error {
    if len(spots) == 0 {
        return nil
    }
    query := `INSERT INTO spots (id, queue_id, spot_number, status) VALUES `
    args := make([]any, 0, len(spots)*4)
    for i, s := range spots {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        args = append(args, s.ID, s.QueueID, s.SpotNumber, string(s.Status))
    }
    _, err := r.db.ExecContext(ctx, query, args...)
    return translate(err)
}

// DeleteAvailable deletes the listed spots that are still available and
// returns how many were removed.
func (r *SpotRepo) DeleteAvailable(ctx context.Context, ids []string) (int64, error) {
    if len(ids) == 0 {
        return 0, nil
    }
    in, args := inClause(ids)
    res, err := r.db.ExecContext(ctx, `DELETE FROM spots WHERE status = 'available' AND id IN (`+in+`)`, args...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// DeleteByQueue removes every spot of a queue.
func (r *SpotRepo) DeleteByQueue(ctx context.Context, queueID string) error {
    _, err := r.db.ExecContext(ctx, `DELETE FROM spots WHERE queue_id = ?`, queueID)
    return err
}

// Claim moves an available spot to occupied for a customer.
func (r *SpotRepo) Claim(ctx context.Context, spotID, studentID string, at time.Time) error {
    const q = `UPDATE spots
               SET status = 'occupied', customer_id = ?, occupied_at = ?
               WHERE id = ? AND status = 'available' AND customer_id IS NULL`
    res, err := r.db.ExecContext(ctx, q, studentID, at.UTC(), spotID)
    if err != nil {
        return translate(err)
    }
    return expectRows(res, 1)
}

// Hold marks available spots as reserved for a reservation.  Either all
// listed spots are held or ErrConflict is returned.
func (r *SpotRepo) Hold(ctx context.Context, spotIDs []string, reservationID string) error {
    if len(spotIDs) == 0 {
        return nil
    }
    in, ids := inClause(spotIDs)
    args := append([]any{reservationID}, ids...)
    q := `UPDATE spots SET status = 'reserved', reservation_id = ?
          WHERE status = 'available' AND id IN (` + in + `)`
    res, err := r.db.ExecContext(ctx, q, args...)
    if err != nil {
        return err
    }
    return expectRows(res, int64(len(spotIDs)))
}

// ClaimHeld seats a customer on an unclaimed spot held for reservationID.
func (r *SpotRepo) ClaimHeld(ctx context.Context, spotID, reservationID, studentID string, at time.Time) error {
    const q = `UPDATE spots
               SET customer_id = ?, occupied_at = ?
               WHERE id = ? AND reservation_id = ? AND status = 'reserved' AND customer_id IS NULL`
    res, err := r.db.ExecContext(ctx, q, studentID, at.UTC(), spotID, reservationID)
    if err != nil {
        return translate(err)
    }
    return expectRows(res, 1)
}

// Release returns a spot held by studentID to the available pool.
// ErrConflict means the spot changed hands since the caller read it.
func (r *SpotRepo) Release(ctx context.Context, spotID, studentID string) error {
    const q = `UPDATE spots
               SET status = 'available', customer_id = NULL, reservation_id = NULL, occupied_at = NULL
               WHERE id = ? AND customer_id = ?`
    res, err := r.db.ExecContext(ctx, q, spotID, studentID)
    if err != nil {
        return err
    }
    return expectRows(res, 1)
}

// Unclaim removes studentID from a reserved spot but keeps it held for
// the reservation.
func (r *SpotRepo) Unclaim(ctx context.Context, spotID, studentID string) error {
    const q = `UPDATE spots SET customer_id = NULL, occupied_at = NULL
               WHERE id = ? AND customer_id = ? AND status = 'reserved'`
    res, err := r.db.ExecContext(ctx, q, spotID, studentID)
    if err != nil {
        return err
    }
    return expectRows(res, 1)
}

// ReleaseByReservation returns every spot tied to a reservation,
// claimed or not, to the available pool.
func (r *SpotRepo) ReleaseByReservation(ctx context.Context, reservationID string) (int64, error) {
    const q = `UPDATE spots
               SET status = 'available', customer_id = NULL, reservation_id = NULL, occupied_at = NULL
               WHERE reservation_id = ?`
    res, err := r.db.ExecContext(ctx, q, reservationID)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// FinalizeByReservation detaches the claimed spots of a reservation,
// turning them into ordinary occupied spots.
func (r *SpotRepo) FinalizeByReservation(ctx context.Context, reservationID string) (int64, error) {
    const q = `UPDATE spots
               SET status = 'occupied', reservation_id = NULL
               WHERE reservation_id = ? AND customer_id IS NOT NULL`
    res, err := r.db.ExecContext(ctx, q, reservationID)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}
