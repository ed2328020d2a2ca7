package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/monitor"
)

// RunsHandler exposes on-demand monitoring runs over HTTP.
type RunsHandler struct {
	logger  *slog.Logger
	monitor *monitor.Monitor
}

func NewRunsHandler(log *slog.Logger, mon *monitor.Monitor) *RunsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RunsHandler{
		logger:  log.With(slog.String("handler", "runs")),
		monitor: mon,
	}
}

func (h *RunsHandler) Register(e *echo.Echo) {
	e.POST("/runs", h.TriggerRun)
	e.GET("/runs/latest", h.LatestRun)
}

type triggerRunRequest struct {
	Mode string `json:"mode"`
}

// TriggerRun executes one run synchronously and returns its result. An
// overlapping run yields 409 with the skipped result.
func (h *RunsHandler) TriggerRun(c echo.Context) error {
	var req triggerRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result := h.monitor.Run(c.Request().Context(), monitor.Trigger{
		Kind:         mode.TriggerCheck,
		ModeOverride: req.Mode,
	})
	if result.Status == monitor.StatusSkipped {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusOK, result)
}

// LatestRun returns the most recent completed run.
func (h *RunsHandler) LatestRun(c echo.Context) error {
	result, ok := h.monitor.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no runs recorded yet")
	}
	return c.JSON(http.StatusOK, result)
}
