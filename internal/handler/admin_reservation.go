package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// CancelReservation handles POST /v1/admin/reservations/:id/cancel.
func (h *AdminHandler) CancelReservation(c echo.Context) error {
    res, err := h.Engine.CancelReservation(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "reservation cancelled", res)
}

// KickCustomer handles DELETE /v1/admin/customers/:student_id/spot.
func (h *AdminHandler) KickCustomer(c echo.Context) error {
    out, err := h.Engine.Kick(c.Request().Context(), strings.ToUpper(c.Param("student_id")))
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "customer removed", out)
}

// ResetAttempts handles POST /v1/admin/customers/:student_id/reset-attempts.
func (h *AdminHandler) ResetAttempts(c echo.Context) error {
    cust, err := h.Engine.ResetAttempts(c.Request().Context(), strings.ToUpper(c.Param("student_id")))
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "attempts reset", cust)
}

// Reconcile handles POST /v1/admin/reconcile and runs one sweep now.
func (h *AdminHandler) Reconcile(c echo.Context) error {
    res, err := h.Engine.ReconcileExpirations(c.Request().Context())
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "reconciled", res)
}
