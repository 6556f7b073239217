package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/middleware"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
    "github.com/iliyamo/haunted-house-queue/internal/validate"
)

// statusOf maps a rejection code onto an HTTP status.
func statusOf(code allocation.Code) int {
    switch code {
    case allocation.CodeInvalidInput:
        return http.StatusBadRequest
    case allocation.CodeUnauthorized:
        return http.StatusForbidden
    case allocation.CodeNotFound, allocation.CodeNotInQueue, allocation.CodeInvalidReservationCode:
        return http.StatusNotFound
    case allocation.CodeReservationExpired:
        return http.StatusGone
    case allocation.CodeMaxReservationAttempts:
        return http.StatusTooManyRequests
    case allocation.CodeAlreadyInQueue, allocation.CodeNoAvailableSpots, allocation.CodeReservationFull,
        allocation.CodeReservationNotActive, allocation.CodeCannotCancel, allocation.CodeConflict:
        return http.StatusConflict
    }
    return http.StatusInternalServerError
}

// fail writes err as an error envelope.  Infrastructure errors are
// logged and hidden behind a generic message.
func fail(c echo.Context, err error) error {
    var rej *allocation.Error
    if errors.As(err, &rej) {
        return utils.ErrorResponse(c, statusOf(rej.Code), string(rej.Code), rej.Message)
    }
    code := allocation.CodeOf(err)
    if code == allocation.CodeConflict {
        return utils.ErrorResponse(c, http.StatusConflict, string(code), "the request conflicted with a concurrent update, try again")
    }
    middleware.RecordError(c, err)
    return utils.ErrorResponse(c, http.StatusInternalServerError, string(allocation.CodeDatabaseError), "internal error")
}

// bind decodes the body into dst and validates it.  A non-empty result
// is the message to report to the client.
func bind(c echo.Context, dst any) string {
    if err := c.Bind(dst); err != nil {
        return "invalid body"
    }
    if err := validate.Struct(dst); err != nil {
        return err.Error()
    }
    return ""
}

// badRequest writes a 400 INVALID_INPUT envelope.
func badRequest(c echo.Context, msg string) error {
    return utils.ErrorResponse(c, http.StatusBadRequest, string(allocation.CodeInvalidInput), msg)
}

func unauthorized(c echo.Context, msg string) error {
    return utils.ErrorResponse(c, http.StatusUnauthorized, string(allocation.CodeUnauthorized), msg)
}
