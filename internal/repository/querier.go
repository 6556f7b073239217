package repository

import (
    "context"
    "database/sql"
    "strings"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so every repository
// can run either standalone or inside a caller-owned transaction.
type Querier interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inClause returns "?,?,?" for n placeholders and the matching args.
func inClause(ids []string) (string, []any) {
    placeholders := make([]string, 0, len(ids))
    args := make([]any, 0, len(ids))
    for _, id := range ids {
        placeholders = append(placeholders, "?")
        args = append(args, id)
    }
    return strings.Join(placeholders, ","), args
}

func nullString(p *string) sql.NullString {
    if p == nil {
        return sql.NullString{}
    }
    return sql.NullString{String: *p, Valid: true}
}

func ptrString(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    s := ns.String
    return &s
}
