package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/handler"
    "github.com/iliyamo/haunted-house-queue/internal/middleware"
)

// RegisterAdmin registers management endpoints under /v1/admin for the
// ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
    chain := append([]echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("ADMIN"),
    }, mw...)
    g := e.Group("/v1/admin", chain...)

    g.POST("/houses", h.CreateHouse)
    g.PUT("/houses/:slug", h.UpdateHouse)
    g.DELETE("/houses/:slug", h.DeleteHouse)
    g.POST("/houses/:slug/queues", h.CreateQueue)

    g.GET("/queues/:id", h.QueueDetail)
    g.PATCH("/queues/:id", h.UpdateQueue)
    g.DELETE("/queues/:id", h.DeleteQueue)
    g.GET("/queues/:id/reservations", h.QueueReservations)

    g.POST("/reservations/:id/cancel", h.CancelReservation)
    g.DELETE("/customers/:student_id/spot", h.KickCustomer)
    g.POST("/customers/:student_id/reset-attempts", h.ResetAttempts)
    g.POST("/reconcile", h.Reconcile)
}
