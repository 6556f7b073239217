package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with its outcome and latency.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req, res := c.Request(), c.Response()
            fields := logrus.Fields{
                "method":     req.Method,
                "path":       c.Path(),
                "uri":        req.RequestURI,
                "status":     res.Status,
                "latency_ms": time.Since(start).Milliseconds(),
                "ip":         c.RealIP(),
                "request_id": res.Header().Get(echo.HeaderXRequestID),
            }
            if id, ok := UserID(c); ok {
                fields["user_id"] = id
            }
            entry := log.WithFields(fields)
            if herr, ok := c.Get(ctxError).(error); ok {
                entry = entry.WithError(herr)
            }
            switch {
            case res.Status >= 500:
                entry.Error("request failed")
            case res.Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request served")
            }
            return nil
        }
    }
}
