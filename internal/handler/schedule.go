package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/dose-reminder/internal/clock"
	"github.com/iliyamo/dose-reminder/internal/model"
	"github.com/iliyamo/dose-reminder/internal/repository"
	"github.com/iliyamo/dose-reminder/internal/schedule"
)

// ScheduleStore persists schedule definitions.
type ScheduleStore interface {
	MedicineReader
	Schedules(ctx context.Context, medicineID string) ([]model.Schedule, error)
	Schedule(ctx context.Context, id string) (model.Schedule, error)
	CreateSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error)
	UpdateSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// ScheduleHandler manages the schedules of a medicine.
type ScheduleHandler struct {
	store ScheduleStore
	clock clock.Clock
	log   *zap.Logger
}

// NewScheduleHandler panics when store or clk is nil.
func NewScheduleHandler(store ScheduleStore, clk clock.Clock, log *zap.Logger) *ScheduleHandler {
	if store == nil || clk == nil {
		panic("nil dependency passed to NewScheduleHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScheduleHandler{store: store, clock: clk, log: log}
}

type scheduleRequest struct {
	TimesOfDay []string `json:"times_of_day"`
	StartDate  string   `json:"start_date"`
	EndDate    *string  `json:"end_date"`
	DaysOfWeek []int    `json:"days_of_week"`
}

type scheduleResponse struct {
	ID         string    `json:"id"`
	MedicineID string    `json:"medicine_id"`
	TimesOfDay []string  `json:"times_of_day"`
	StartDate  string    `json:"start_date"`
	EndDate    *string   `json:"end_date,omitempty"`
	DaysOfWeek []int     `json:"days_of_week,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toScheduleResponse(s model.Schedule) scheduleResponse {
	out := scheduleResponse{
		ID:         s.ID,
		MedicineID: s.MedicineID,
		TimesOfDay: s.TimesOfDay,
		StartDate:  s.StartDate.Format(time.DateOnly),
		DaysOfWeek: s.DaysOfWeek,
		CreatedAt:  s.CreatedAt,
	}
	if s.EndDate != nil {
		end := s.EndDate.Format(time.DateOnly)
		out.EndDate = &end
	}
	return out
}

// startOfDay keeps the calendar day of t as midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// definition binds and validates a schedule body for medicineID.  The
// definition is checked before anything is stored, so stored rows always
// expand.
func (h *ScheduleHandler) definition(c echo.Context, medicineID string) (model.Schedule, error) {
	var body scheduleRequest
	if err := c.Bind(&body); err != nil {
		return model.Schedule{}, invalid("invalid request body")
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		return model.Schedule{}, err
	}
	start = startOfDay(start)
	var end *time.Time
	if body.EndDate != nil && *body.EndDate != "" {
		e, err := parseDate("end_date", *body.EndDate)
		if err != nil {
			return model.Schedule{}, err
		}
		e = startOfDay(e)
		end = &e
	}
	if _, err := schedule.NewDefinition(medicineID, body.TimesOfDay, start, end, body.DaysOfWeek); err != nil {
		return model.Schedule{}, err
	}
	return model.Schedule{
		MedicineID: medicineID,
		TimesOfDay: body.TimesOfDay,
		StartDate:  start,
		EndDate:    end,
		DaysOfWeek: body.DaysOfWeek,
	}, nil
}

// ownedSchedule resolves :id and :scheduleId for the caller.  A schedule
// of another medicine is reported as not found.
func (h *ScheduleHandler) ownedSchedule(c echo.Context) (model.Schedule, error) {
	userID, err := getUserID(c)
	if err != nil {
		return model.Schedule{}, err
	}
	ctx := c.Request().Context()
	med, err := ownedMedicine(ctx, h.store, userID, c.Param("id"))
	if err != nil {
		return model.Schedule{}, err
	}
	id := c.Param("scheduleId")
	if id == "" {
		return model.Schedule{}, invalid("schedule id is required")
	}
	sc, err := h.store.Schedule(ctx, id)
	if err == nil && sc.MedicineID != med.ID {
		err = repository.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Schedule{}, fmt.Errorf("schedule %s: %w", id, repository.ErrNotFound)
		}
		return model.Schedule{}, err
	}
	return sc, nil
}

// Create handles POST /v1/medicines/:id/schedules.
func (h *ScheduleHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx := c.Request().Context()
	med, err := ownedMedicine(ctx, h.store, userID, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	sc, err := h.definition(c, med.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	sc.CreatedAt = h.clock.Now().UTC().Truncate(time.Millisecond)
	created, err := h.store.CreateSchedule(ctx, sc)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("schedule created", zap.String("schedule_id", created.ID), zap.String("medicine_id", med.ID))
	return c.JSON(http.StatusCreated, toScheduleResponse(created))
}

// Update handles PUT /v1/medicines/:id/schedules/:scheduleId.  Every
// definition field is replaced; reminders already queued are not touched.
func (h *ScheduleHandler) Update(c echo.Context) error {
	cur, err := h.ownedSchedule(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	sc, err := h.definition(c, cur.MedicineID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	sc.ID = cur.ID
	updated, err := h.store.UpdateSchedule(c.Request().Context(), sc)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("schedule updated", zap.String("schedule_id", updated.ID), zap.String("medicine_id", updated.MedicineID))
	return c.JSON(http.StatusOK, toScheduleResponse(updated))
}

// Delete handles DELETE /v1/medicines/:id/schedules/:scheduleId.
func (h *ScheduleHandler) Delete(c echo.Context) error {
	cur, err := h.ownedSchedule(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.store.DeleteSchedule(c.Request().Context(), cur.ID); err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("schedule deleted", zap.String("schedule_id", cur.ID), zap.String("medicine_id", cur.MedicineID))
	return c.NoContent(http.StatusNoContent)
}

// List handles GET /v1/medicines/:id/schedules.
func (h *ScheduleHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx := c.Request().Context()
	med, err := ownedMedicine(ctx, h.store, userID, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	rows, err := h.store.Schedules(ctx, med.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]scheduleResponse, 0, len(rows))
	for _, s := range rows {
		out = append(out, toScheduleResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}
