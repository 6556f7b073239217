package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/iliyamo/haunted-house-queue/internal/handler"    // handlers that implement each endpoint
    "github.com/iliyamo/haunted-house-queue/internal/middleware" // JWT authentication and role enforcement
)

// RegisterRoutes registers non-authenticated operational routes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
    e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers authentication routes.  Unauthenticated
// operations live under /v1/auth; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    g := e.Group("/v1/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    // Rotates the refresh token.
    g.POST("/refresh", a.Refresh)
    // Issues an access token and keeps the refresh token.
    g.POST("/refresh-access", a.RefreshAccess)
    // Logout accepts a refresh token in the body or a bearer token.
    g.POST("/logout", a.Logout)

    auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole("ADMIN", "CUSTOMER"))
    auth.GET("/me", a.Me)
}

// RegisterPublic registers guest browse endpoints.  mw is applied to the
// group, typically the response cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, mw ...echo.MiddlewareFunc) {
    g := e.Group("/v1", mw...)
    g.GET("/houses", p.ListHouses)
    g.GET("/houses/:slug", p.GetHouse)
    g.GET("/queues/:id", p.GetQueue)
}
