// Package repository defines the data access layer and the error types
// shared by every repository.  These sentinel values allow higher
// layers to distinguish failure scenarios without inspecting driver
// errors.  ErrConflict signals that a conditional update matched no row
// because a concurrent writer changed it first, ErrDuplicate that a
// unique index rejected the write.
package repository

import (
    "database/sql"
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.  Handlers
// should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update affected fewer rows
// than expected.  The operation may succeed when retried.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when an insert or update violates a unique
// index.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
    switch {
    case err == nil:
        return nil
    case errors.Is(err, sql.ErrNoRows):
        return ErrNotFound
    case isDuplicate(err):
        return ErrDuplicate
    }
    return err
}

// expectRows returns ErrConflict unless res affected exactly want rows.
func expectRows(res sql.Result, want int64) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n != want {
        return ErrConflict
    }
    return nil
}
