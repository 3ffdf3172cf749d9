package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/threadlens/threadlens/internal/config"
)

type HealthHandler struct {
	logger *slog.Logger
	cfg    config.Config
	pool   *pgxpool.Pool
}

func NewHealthHandler(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger: log.With(slog.String("handler", "health")),
		cfg:    cfg,
		pool:   pool,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
}

func (h *HealthHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health reports which required credentials are configured (presence only,
// never values) and whether the database answers.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	dbOK := false
	if h.pool != nil {
		dbOK = h.pool.Ping(ctx) == nil
	}

	status := "ok"
	presence := h.cfg.Presence()
	for _, present := range presence {
		if !present {
			status = "degraded"
		}
	}
	if !dbOK {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      status,
		"credentials": presence,
		"database":    dbOK,
	})
}
