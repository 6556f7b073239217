package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/haunted-house-queue/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the user id, role and linked student id in the request context.
// Handlers read them through UserID, Role and StudentID.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
            }
            id, _ := claims.UserID()
            c.Set(ctxUserID, id)
            c.Set(ctxRole, claims.Role)
            if claims.StudentID != "" {
                c.Set(ctxStudentID, claims.StudentID)
            }
            return next(c)
        }
    }
}
