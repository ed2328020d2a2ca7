package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sentinelhq/sentinel/internal/version"
)

type HealthHandler struct {
	logger *slog.Logger
}

func NewHealthHandler(log *slog.Logger) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{logger: log.With(slog.String("handler", "health"))}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetInfo(),
	})
}

func (h *HealthHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
