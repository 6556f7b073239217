package repository

import (
	"context"

	"github.com/iliyamo/haunted-house-queue/internal/model"
)

// CustomerRepo persists customers keyed by student id.
type CustomerRepo struct {
	db Querier
}

// NewCustomerRepo returns a CustomerRepo bound to the given handle.
func NewCustomerRepo(db Querier) *CustomerRepo { return &CustomerRepo{db: db} }

const customerColumns = `student_id, name, email, homeroom, ticket_type, reservation_attempts, created_at, updated_at`

// Get returns a customer or ErrNotFound.
func (r *CustomerRepo) Get(ctx context.Context, studentID string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE student_id = ?`, studentID).
		Scan(&c.StudentID, &c.Name, &c.Email, &c.Homeroom, &c.TicketType, &c.ReservationAttempts, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// InsertIgnore inserts c unless a customer with the same student id
// already exists.  Concurrent first calls for one student converge on
// a single row.
func (r *CustomerRepo) InsertIgnore(ctx context.Context, c *model.Customer) error {
	const q = `INSERT IGNORE INTO customers
	           (student_id, name, email, homeroom, ticket_type, reservation_attempts, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, 0, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, c.StudentID, c.Name, c.Email, c.Homeroom, c.TicketType,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return err
}

// IncrementAttempts adds one to the customer's reservation attempts.
func (r *CustomerRepo) IncrementAttempts(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE customers SET reservation_attempts = reservation_attempts + 1, updated_at = UTC_TIMESTAMP() WHERE student_id = ?`,
		studentID)
	return err
}

// ResetAttempts zeroes the customer's reservation attempts.
func (r *CustomerRepo) ResetAttempts(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE customers SET reservation_attempts = 0, updated_at = UTC_TIMESTAMP() WHERE student_id = ?`,
		studentID)
	return err
}
