package middleware

// identity.go holds the context keys JWTAuth fills and the accessors
// handlers and other middleware read them through.

import "github.com/labstack/echo/v4"

const (
    ctxUserID    = "user_id"
    ctxRole      = "role"
    ctxStudentID = "student_id"
    ctxError     = "handler_error"
)

// UserID returns the authenticated user id.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id != 0
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// StudentID returns the student id linked to the authenticated customer.
func StudentID(c echo.Context) (string, bool) {
    s, ok := c.Get(ctxStudentID).(string)
    return s, ok && s != ""
}

// RecordError attaches an internal error to the request so RequestLogger
// reports it without it reaching the client.
func RecordError(c echo.Context, err error) {
    c.Set(ctxError, err)
}
