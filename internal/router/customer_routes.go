package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/haunted-house-queue/internal/handler"
    "github.com/iliyamo/haunted-house-queue/internal/middleware"
)

// RegisterCustomer registers customer queue operations under /v1.  All
// routes require a valid JWT and the CUSTOMER role; mw runs after both,
// typically the rate limiter and cache invalidation.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
    chain := append([]echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole("CUSTOMER"),
    }, mw...)
    g := e.Group("/v1", chain...)
    g.POST("/queues/:id/join", h.JoinQueue)
    g.POST("/queues/:id/reservations", h.CreateReservation)
    g.POST("/reservations/join", h.JoinReservation)
    g.GET("/reservations/:code", h.GetReservation)
    g.GET("/me/spot", h.MySpot)
    g.DELETE("/me/spot", h.LeaveQueue)
}
