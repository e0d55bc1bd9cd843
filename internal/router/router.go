// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dose-reminder/internal/doselink"
	"github.com/iliyamo/dose-reminder/internal/handler"
	"github.com/iliyamo/dose-reminder/internal/middleware"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Health    *handler.Health
	Doses     *handler.DoseHandler
	Schedules *handler.ScheduleHandler
	Inventory *handler.InventoryHandler
}

// RegisterRoutes mounts the health check and the signed email links
// without authentication, and every other route under /v1 behind JWTAuth.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/healthz", h.Health.Handle)
	e.GET("/doses/confirm", h.Doses.Link(doselink.ActionConfirm))
	e.GET("/doses/skip", h.Doses.Link(doselink.ActionSkip))

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))

	v1.POST("/doses/confirm", h.Doses.Confirm)
	v1.POST("/doses/skip", h.Doses.Skip)
	v1.GET("/medicines/:id/doses", h.Doses.List)
	v1.GET("/medicines/:id/next-doses", h.Doses.Next)

	v1.GET("/medicines/:id/schedules", h.Schedules.List)
	v1.POST("/medicines/:id/schedules", h.Schedules.Create)
	v1.PUT("/medicines/:id/schedules/:scheduleId", h.Schedules.Update)
	v1.DELETE("/medicines/:id/schedules/:scheduleId", h.Schedules.Delete)

	v1.GET("/medicines/:id/inventory", h.Inventory.Get)
	v1.PUT("/medicines/:id/inventory", h.Inventory.Put)
}
