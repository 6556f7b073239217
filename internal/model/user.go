package model

import "time"

// User represents a login account as stored in the `users` table.
// Customer accounts are linked to a student profile; admin accounts
// leave the profile columns NULL.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – ADMIN or CUSTOMER.
//  StudentID    – linked customer id (customers only).
//  Name         – display name.
//  Homeroom     – homeroom of the student (customers only).
//  TicketType   – ticket type of the student (customers only).
//  IsActive     – whether the account is active.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    StudentID    *string   // users.student_id (nullable)
    Name         string    // users.name
    Homeroom     *string   // users.homeroom (nullable)
    TicketType   *string   // users.ticket_type (nullable)
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// Roles understood by the role middleware.
const (
    RoleAdmin    = "ADMIN"
    RoleCustomer = "CUSTOMER"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the raw token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
