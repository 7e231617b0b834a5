package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/observability/metrics"
)

// NewMetrics records request counts, latencies and response sizes per route.
// The route template (c.Path) is used as the label to keep cardinality bounded.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			req := c.Request()
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
				m.RecordHTTPRequestError(req.Method, path, strconv.Itoa(status))
			}

			m.RecordHTTPRequest(req.Method, path, status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(req.Method, path, c.Response().Size)
			return err
		}
	}
}
