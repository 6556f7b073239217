package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/utils"
)

// UserRepo persists login accounts.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	ErrEmailExists     = errors.New("email already exists")
	ErrStudentIDExists = errors.New("student id already registered")
)

const userColumns = "id,email,password_hash,role,student_id,name,homeroom,ticket_type,is_active,created_at,updated_at"

// Create hashes password, inserts u and sets u.ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = normalizeEmail(u.Email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, student_id, name, homeroom, ticket_type) VALUES (?,?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Role, nullString(u.StudentID), u.Name, nullString(u.Homeroom), nullString(u.TicketType))
	if err != nil {
		if isDuplicate(err) {
			if strings.Contains(err.Error(), "student_id") {
				return ErrStudentIDExists
			}
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.IsActive = true
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.one(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.one(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) one(ctx context.Context, query string, args ...any) (*model.User, error) {
	var (
		u                              model.User
		studentID, homeroom, ticketTyp sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&studentID, &u.Name, &homeroom, &ticketTyp, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.StudentID = ptrString(studentID)
	u.Homeroom = ptrString(homeroom)
	u.TicketType = ptrString(ticketTyp)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
