package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type enqueuer interface {
	Enqueue(ctx context.Context, chatID, rootID string, force bool) (uuid.UUID, error)
}

// ThreadsHandler is the manual trigger: it enqueues a thread run without
// going through the chat platform.
type ThreadsHandler struct {
	logger *slog.Logger
	queue  enqueuer
}

func NewThreadsHandler(log *slog.Logger, queue enqueuer) *ThreadsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ThreadsHandler{
		logger: log.With(slog.String("handler", "threads")),
		queue:  queue,
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	e.POST("/threads/process", h.Process)
}

type processRequest struct {
	ChatID string `json:"chat_id"`
	RootID string `json:"root_id"`
	Force  bool   `json:"force"`
}

func (h *ThreadsHandler) Process(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	req.RootID = strings.TrimSpace(req.RootID)
	if req.ChatID == "" || req.RootID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat_id and root_id are required")
	}
	id, err := h.queue.Enqueue(c.Request().Context(), req.ChatID, req.RootID, req.Force)
	if err != nil {
		h.logger.Error("enqueue failed", slog.String("root_id", req.RootID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "enqueue failed")
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id": id.String(),
	})
}
