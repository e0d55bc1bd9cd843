// Package handler exposes the ledger, schedules and inventory over HTTP.
// Every route except the health check expects middleware.JWTAuth to have
// stored the caller's user id.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/middleware"
	"github.com/iliyamo/dose-reminder/internal/repository"
	"github.com/iliyamo/dose-reminder/internal/schedule"
)

// maxRangeSpan caps the read-side expansion window.
const maxRangeSpan = 366 * 24 * time.Hour

var errUnauthorized = errors.New("unauthorized")

// getUserID extracts the caller's id from the echo context.
func getUserID(c echo.Context) (string, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return "", errUnauthorized
	}
	return id, nil
}

// badRequest is an input problem detected by the handler itself.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return badRequest{msg: fmt.Sprintf(format, args...)}
}

// respondError maps a domain error to its HTTP status.  Unknown errors are
// logged and reported as 500 without detail.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": br.msg})
	case errors.Is(err, errUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case errors.Is(err, schedule.ErrInvalidSchedule):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrTransaction):
		log.Warn("transaction failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// parseInstant accepts RFC 3339 with or without fractional seconds.
func parseInstant(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, invalid("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

// parseRange reads the from/to query parameters.  An inverted or
// oversized range is rejected here; the ledger never sees it.
func parseRange(c echo.Context) (time.Time, time.Time, error) {
	from, err := parseInstant("from", c.QueryParam("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseInstant("to", c.QueryParam("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, invalid("from must not be after to")
	}
	if to.Sub(from) > maxRangeSpan {
		return time.Time{}, time.Time{}, invalid("range must not exceed 366 days")
	}
	return from, to, nil
}

// parseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func parseDate(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("%s is required", name)
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("%s must be YYYY-MM-DD", name)
}
