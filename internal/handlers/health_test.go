package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/threadlens/threadlens/internal/config"
)

func TestPing(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(nil, config.Config{}, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	if err := h.Ping(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestHealthReportsPresenceNotValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Feishu.AppID = "cli_secret_app_id"
	h := NewHealthHandler(nil, cfg, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	if err := h.Health(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "cli_secret_app_id") {
		t.Fatal("health endpoint leaked a credential value")
	}
	if !strings.Contains(body, `"feishu_app_id":true`) {
		t.Errorf("missing presence report: %s", body)
	}
	if !strings.Contains(body, `"status":"degraded"`) {
		t.Errorf("expected degraded status with missing credentials: %s", body)
	}
}
