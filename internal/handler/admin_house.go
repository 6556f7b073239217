package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// CreateHouse handles POST /v1/admin/houses.
func (h *AdminHandler) CreateHouse(c echo.Context) error {
    var req allocation.HouseInput
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    house, err := h.Engine.CreateHouse(c.Request().Context(), req)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusCreated, "house created", house)
}

// UpdateHouse handles PUT /v1/admin/houses/:slug.
func (h *AdminHandler) UpdateHouse(c echo.Context) error {
    var req allocation.HouseUpdate
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    house, err := h.Engine.UpdateHouse(c.Request().Context(), c.Param("slug"), req)
    if err != nil {
        return fail(c, err)
    }
    return utils.SuccessResponse(c, http.StatusOK, "house updated", house)
}

// DeleteHouse handles DELETE /v1/admin/houses/:slug.  Queues, spots and
// reservations of the house go with it.
func (h *AdminHandler) DeleteHouse(c echo.Context) error {
    if err := h.Engine.DeleteHouse(c.Request().Context(), c.Param("slug")); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
