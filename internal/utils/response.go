package utils

import "github.com/labstack/echo/v4"

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SuccessResponse writes data with status.
func SuccessResponse(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// ErrorResponse writes a failed envelope carrying a machine readable code.
func ErrorResponse(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Envelope{Success: false, Code: code, Message: message})
}
