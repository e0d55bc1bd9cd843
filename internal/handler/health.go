package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dose-reminder/internal/clock"
)

// Check probes one backing service.
type Check func(ctx context.Context) error

// Health reports the status of each registered backing service.  With no
// checks registered it always answers ok.
type Health struct {
	checks map[string]Check
	clock  clock.Clock
}

// NewHealth returns a health endpoint over checks, keyed by service name.
func NewHealth(clk clock.Clock, checks map[string]Check) *Health {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Health{checks: checks, clock: clk}
}

type serviceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Handle handles GET /healthz: 200 when every check passes, 503 otherwise.
func (h *Health) Handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	overall, code := "ok", http.StatusOK
	services := make(map[string]serviceStatus, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			services[name] = serviceStatus{Status: "error", Message: err.Error()}
			overall, code = "error", http.StatusServiceUnavailable
			continue
		}
		services[name] = serviceStatus{Status: "ok"}
	}
	return c.JSON(code, echo.Map{
		"status":    overall,
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}
