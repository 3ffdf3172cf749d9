package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/threadlens/threadlens/internal/config"
	"github.com/threadlens/threadlens/internal/dedupe"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

// WebhookHandler receives Lark event-subscription callbacks. A thread
// message that mentions the bot with an extract command is deduplicated by
// event id and enqueued; the callback is acknowledged immediately.
type WebhookHandler struct {
	logger     *slog.Logger
	cfg        config.FeishuConfig
	queue      enqueuer
	events     *dedupe.Store
	dispatcher *dispatcher.EventDispatcher
}

func NewWebhookHandler(log *slog.Logger, cfg config.Config, queue enqueuer, events *dedupe.Store) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &WebhookHandler{
		logger: log.With(slog.String("handler", "webhook")),
		cfg:    cfg.Feishu,
		queue:  queue,
		events: events,
	}
	d := dispatcher.NewEventDispatcher(h.cfg.VerificationToken, h.cfg.EncryptKey)
	d.OnP2MessageReceiveV1(h.onMessage)
	h.dispatcher = d
	return h
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.HandleProbe)
	e.POST("/webhook", h.Handle)
}

// HandleProbe responds to health/probe requests on the webhook URL.
func (h *WebhookHandler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle validates and dispatches one callback. The SDK dispatcher answers
// URL challenges and decrypts payloads when an encrypt key is configured.
func (h *WebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}
	if err := validateCallbackAuth(payload, h.cfg); err != nil {
		return err
	}

	resp := h.dispatcher.Handle(c.Request().Context(), &larkevent.EventReq{
		Header:     c.Request().Header,
		Body:       payload,
		RequestURI: c.Request().RequestURI,
	})
	if resp == nil {
		return c.NoContent(http.StatusOK)
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Response().Header().Add(key, value)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

func (h *WebhookHandler) onMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	eventID := ""
	if event.EventV2Base != nil && event.EventV2Base.Header != nil {
		eventID = strings.TrimSpace(event.EventV2Base.Header.EventID)
	}
	if h.events.Seen(eventID) {
		h.logger.Debug("duplicate event dropped", slog.String("event_id", eventID))
		return nil
	}

	message := event.Event.Message
	if !hasAnyMention(message.Mentions) {
		return nil
	}
	msgType, content := "", ""
	if message.MessageType != nil {
		msgType = strings.TrimSpace(*message.MessageType)
	}
	if message.Content != nil {
		content = *message.Content
	}
	text := messageText(msgType, content)
	requested, force := commandRequested(text)
	if !requested {
		return nil
	}

	chatID := ""
	if message.ChatId != nil {
		chatID = strings.TrimSpace(*message.ChatId)
	}
	rootID := ""
	if message.RootId != nil {
		rootID = strings.TrimSpace(*message.RootId)
	}
	if rootID == "" && message.MessageId != nil {
		rootID = strings.TrimSpace(*message.MessageId)
	}
	if chatID == "" || rootID == "" {
		return nil
	}

	id, err := h.queue.Enqueue(context.WithoutCancel(ctx), chatID, rootID, force)
	if err != nil {
		h.logger.Error("enqueue failed",
			slog.String("root_id", rootID),
			slog.Any("error", err),
		)
		return err
	}
	h.logger.Info("thread job enqueued from webhook",
		slog.String("job_id", id.String()),
		slog.String("root_id", rootID),
		slog.Bool("force", force),
	)
	return nil
}

// validateCallbackAuth checks the verification token for plaintext payloads.
// With an encrypt key configured the SDK verifies signatures itself, and URL
// challenges carry no token to check.
func validateCallbackAuth(payload []byte, cfg config.FeishuConfig) error {
	if strings.TrimSpace(cfg.EncryptKey) != "" {
		return nil
	}
	var fuzzy larkevent.EventFuzzy
	if err := json.Unmarshal(payload, &fuzzy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid webhook payload: %v", err))
	}
	if larkevent.ReqType(strings.TrimSpace(fuzzy.Type)) == larkevent.ReqTypeChallenge {
		return nil
	}
	expectedToken := strings.TrimSpace(cfg.VerificationToken)
	if expectedToken == "" {
		return echo.NewHTTPError(http.StatusForbidden, "webhook requires verification_token when encrypt_key is empty")
	}
	requestToken := strings.TrimSpace(fuzzy.Token)
	if fuzzy.Header != nil && strings.TrimSpace(fuzzy.Header.Token) != "" {
		requestToken = strings.TrimSpace(fuzzy.Header.Token)
	}
	if requestToken == "" || requestToken != expectedToken {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	return nil
}

func hasAnyMention(mentions []*larkim.MentionEvent) bool {
	for _, m := range mentions {
		if m != nil {
			return true
		}
	}
	return false
}

// messageText pulls the human-typed text out of a message's content JSON.
func messageText(msgType, content string) string {
	var contentMap map[string]any
	if err := json.Unmarshal([]byte(content), &contentMap); err != nil {
		return ""
	}
	switch msgType {
	case larkim.MsgTypeText:
		text, _ := contentMap["text"].(string)
		return text
	case larkim.MsgTypePost:
		return postText(contentMap)
	}
	return ""
}

func postText(contentMap map[string]any) string {
	lines, ok := contentMap["content"].([]any)
	if !ok {
		if wrapped, ok := contentMap["zh_cn"].(map[string]any); ok {
			lines, _ = wrapped["content"].([]any)
		}
	}
	var parts []string
	for _, rawLine := range lines {
		line, ok := rawLine.([]any)
		if !ok {
			continue
		}
		for _, rawPart := range line {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		}
	}
	return strings.Join(parts, " ")
}

// commandRequested reports whether text asks for an extraction run and
// whether force mode was requested.
func commandRequested(text string) (bool, bool) {
	normalized := strings.ToLower(text)
	// Mention placeholders look like @_user_1 in text content.
	for _, keyword := range []string{"extract", "ocr"} {
		if strings.Contains(normalized, keyword) {
			return true, strings.Contains(normalized, "force")
		}
	}
	return false, false
}
