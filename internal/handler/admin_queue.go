package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// CreateQueue handles POST /v1/admin/houses/:slug/queues.
func (h *AdminHandler) CreateQueue(c echo.Context) error {
    var req allocation.QueueInput
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.HouseSlug = c.Param("slug")
    q, err := h.Engine.CreateQueue(c.Request().Context(), req)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusCreated, "queue created", q)
}

// UpdateQueue handles PATCH /v1/admin/queues/:id.  Changing
// max_customers resizes the spot pool.
func (h *AdminHandler) UpdateQueue(c echo.Context) error {
    var req allocation.QueueUpdate
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    q, err := h.Engine.ResizeQueue(c.Request().Context(), c.Param("id"), req)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "queue updated", q)
}

// DeleteQueue handles DELETE /v1/admin/queues/:id.
func (h *AdminHandler) DeleteQueue(c echo.Context) error {
    if err := h.Engine.DeleteQueue(c.Request().Context(), c.Param("id")); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// QueueDetail handles GET /v1/admin/queues/:id and, unlike the public
// view, shows who holds each spot.
func (h *AdminHandler) QueueDetail(c echo.Context) error {
    st, err := h.Engine.GetQueue(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", st)
}

// QueueReservations handles GET /v1/admin/queues/:id/reservations.
func (h *AdminHandler) QueueReservations(c echo.Context) error {
    list, err := h.Engine.QueueReservations(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "", list)
}
