package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/doselink"
	"github.com/iliyamo/dose-reminder/internal/model"
)

// DoseLedger is the subset of ledger.Service the dose routes need.
type DoseLedger interface {
	Confirm(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (model.DoseLog, error)
	Skip(ctx context.Context, userID, medicineID string, scheduledAt time.Time) (model.DoseLog, error)
	ListInRange(ctx context.Context, userID, medicineID string, from, to time.Time) ([]model.DoseLog, error)
	Doses(ctx context.Context, userID, medicineID string, from, to time.Time) ([]model.Dose, error)
}

// LinkVerifier checks one-click email link tokens.  doselink.Signer
// implements it.
type LinkVerifier interface {
	Verify(raw string) (doselink.Claims, error)
}

// DoseHandler serves confirm, skip and the two read views of the ledger.
type DoseHandler struct {
	ledger DoseLedger
	links  LinkVerifier
	log    *zap.Logger
}

// NewDoseHandler panics when ledger is nil.  links may be nil, in which
// case every email link is refused.
func NewDoseHandler(ledger DoseLedger, links LinkVerifier, log *zap.Logger) *DoseHandler {
	if ledger == nil {
		panic("nil ledger passed to NewDoseHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DoseHandler{ledger: ledger, links: links, log: log}
}

type doseRequest struct {
	MedicineID  string `json:"medicine_id"`
	ScheduledAt string `json:"scheduled_at"`
}

// occurrence reads medicine_id and scheduled_at from the JSON body,
// falling back to query parameters.
func occurrence(c echo.Context) (string, time.Time, error) {
	var body doseRequest
	if err := c.Bind(&body); err != nil {
		return "", time.Time{}, invalid("invalid request body")
	}
	if body.MedicineID == "" {
		body.MedicineID = c.QueryParam("medicine_id")
	}
	if body.ScheduledAt == "" {
		body.ScheduledAt = c.QueryParam("scheduled_at")
	}
	medicineID := strings.TrimSpace(body.MedicineID)
	if medicineID == "" {
		return "", time.Time{}, invalid("medicine_id is required")
	}
	at, err := parseInstant("scheduled_at", body.ScheduledAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return medicineID, at, nil
}

// Confirm handles POST /v1/doses/confirm.
func (h *DoseHandler) Confirm(c echo.Context) error {
	return h.record(c, h.ledger.Confirm)
}

// Skip handles POST /v1/doses/skip.
func (h *DoseHandler) Skip(c echo.Context) error {
	return h.record(c, h.ledger.Skip)
}

func (h *DoseHandler) record(c echo.Context, op func(context.Context, string, string, time.Time) (model.DoseLog, error)) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	medicineID, at, err := occurrence(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	row, err := op(c.Request().Context(), userID, medicineID, at)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, row)
}

// Link handles GET /doses/confirm and GET /doses/skip, the buttons of a
// reminder email.  The token query parameter stands in for the bearer
// token and fixes both the occurrence and the action.
func (h *DoseHandler) Link(action doselink.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.links == nil {
			return respondError(c, h.log, errUnauthorized)
		}
		claims, err := h.links.Verify(c.QueryParam("token"))
		if err != nil || claims.Action != action {
			h.log.Info("dose link refused", zap.String("action", string(action)), zap.Error(err))
			return respondError(c, h.log, errUnauthorized)
		}
		op := h.ledger.Confirm
		if action == doselink.ActionSkip {
			op = h.ledger.Skip
		}
		row, err := op(c.Request().Context(), claims.Subject, claims.MedicineID, claims.ScheduledAt)
		if err != nil {
			return respondError(c, h.log, err)
		}
		return c.JSON(http.StatusOK, row)
	}
}

// List handles GET /v1/medicines/:id/doses?from=&to= and returns the
// recorded rows only.
func (h *DoseHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	from, to, err := parseRange(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	rows, err := h.ledger.ListInRange(c.Request().Context(), userID, c.Param("id"), from, to)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Next handles GET /v1/medicines/:id/next-doses?from=&to= and returns
// every scheduled occurrence in the range with its status.
func (h *DoseHandler) Next(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	from, to, err := parseRange(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	doses, err := h.ledger.Doses(c.Request().Context(), userID, c.Param("id"), from, to)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, doses)
}
