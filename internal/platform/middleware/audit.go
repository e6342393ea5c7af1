package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Audit emits one structured event per clinical-resource access. Only
// paths under /fhir/ are audited; health checks and other plumbing are
// left to the request logger.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/fhir/") {
				return err
			}

			rid, _ := c.Get("request_id").(string)
			logger.Info().
				Str("event", "resource_access").
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Str("remote_ip", c.RealIP()).
				Time("at", time.Now().UTC()).
				Msg("audit")

			return err
		}
	}
}
