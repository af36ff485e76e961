// Package health serves the kiosk's liveness and readiness probes.
//
//   - GET /healthz always returns 200 while the process can serve HTTP.
//   - GET /readyz returns 200 only when every registered [Checker] passes.
//
// Bodies are JSON: {"status": "ok"|"fail", "checks": {name: "ok"|"fail: ..."}}.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 3 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] for the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under [checkTimeout].
func (h *Handler) Readyz(c echo.Context) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	for _, chk := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
			defer cancel()
			err := chk.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[chk.Name] = "fail: " + err.Error()
				allOK = false
				return
			}
			checks[chk.Name] = "ok"
		})
	}
	wg.Wait()

	if !allOK {
		return c.JSON(http.StatusServiceUnavailable, result{Status: "fail", Checks: checks})
	}
	return c.JSON(http.StatusOK, result{Status: "ok", Checks: checks})
}

// Register adds the /healthz and /readyz routes to e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)
}
