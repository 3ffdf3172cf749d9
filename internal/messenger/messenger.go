// Package messenger is the Feishu gateway: it posts and patches the bot's
// messages, lists a thread's images, and downloads image bytes.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/threadlens/threadlens/internal/config"
)

// Service wraps the Feishu IM API for the operations the processor needs.
type Service struct {
	logger *slog.Logger
	client *lark.Client
}

func New(log *slog.Logger, cfg config.FeishuConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	opts := []lark.ClientOptionFunc{}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, lark.WithOpenBaseUrl(strings.TrimSpace(cfg.BaseURL)))
	}
	return &Service{
		logger: log.With(slog.String("service", "messenger")),
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
	}
}

// PostReply posts an interactive card as a reply to parentID and returns the
// new message's id. Replying to the thread root keeps the card inside the
// thread. Returns ErrTooLong when the body exceeds the platform ceiling.
func (s *Service) PostReply(ctx context.Context, parentID, text string) (string, error) {
	if strings.TrimSpace(parentID) == "" {
		return "", fmt.Errorf("parent message id is required")
	}
	content, err := buildCardContent(text)
	if err != nil {
		return "", err
	}
	if exceedsCardLimit(content) {
		return "", fmt.Errorf("%w: card payload %d bytes", ErrTooLong, len(content))
	}
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(strings.TrimSpace(parentID)).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(content).
			MsgType(larkim.MsgTypeInteractive).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	resp, err := s.client.Im.V1.Message.Reply(ctx, req)
	if err != nil {
		s.logger.Error("reply failed", slog.String("parent_id", parentID), slog.Any("error", err))
		return "", err
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		s.logger.Error("reply failed", slog.String("parent_id", parentID), slog.Int("code", code), slog.String("msg", msg))
		return "", classifySendError("reply", code, msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil || strings.TrimSpace(*resp.Data.MessageId) == "" {
		return "", fmt.Errorf("feishu reply failed: empty message id")
	}
	return strings.TrimSpace(*resp.Data.MessageId), nil
}

// Update patches an already-posted card in place. Only interactive cards can
// be patched, which is why every bot message is a card. Returns ErrTooLong
// when the new body exceeds the platform ceiling.
func (s *Service) Update(ctx context.Context, messageID, text string) error {
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("message id is required")
	}
	content, err := buildCardContent(text)
	if err != nil {
		return err
	}
	if exceedsCardLimit(content) {
		return fmt.Errorf("%w: card payload %d bytes", ErrTooLong, len(content))
	}
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(strings.TrimSpace(messageID)).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()
	resp, err := s.client.Im.V1.Message.Patch(ctx, req)
	if err != nil {
		s.logger.Error("patch failed", slog.String("message_id", messageID), slog.Any("error", err))
		return err
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		s.logger.Error("patch failed", slog.String("message_id", messageID), slog.Int("code", code), slog.String("msg", msg))
		return classifySendError("patch", code, msg)
	}
	return nil
}

// PostNew posts an interactive card directly to a chat, outside any thread.
func (s *Service) PostNew(ctx context.Context, chatID, text string) (string, error) {
	if strings.TrimSpace(chatID) == "" {
		return "", fmt.Errorf("chat id is required")
	}
	content, err := buildCardContent(text)
	if err != nil {
		return "", err
	}
	if exceedsCardLimit(content) {
		return "", fmt.Errorf("%w: card payload %d bytes", ErrTooLong, len(content))
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(strings.TrimSpace(chatID)).
			MsgType(larkim.MsgTypeInteractive).
			Content(content).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	resp, err := s.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		s.logger.Error("send failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return "", err
	}
	if resp == nil || !resp.Success() {
		code, msg := 0, ""
		if resp != nil {
			code, msg = resp.Code, resp.Msg
		}
		s.logger.Error("send failed", slog.String("chat_id", chatID), slog.Int("code", code), slog.String("msg", msg))
		return "", classifySendError("send", code, msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil || strings.TrimSpace(*resp.Data.MessageId) == "" {
		return "", fmt.Errorf("feishu send failed: empty message id")
	}
	return strings.TrimSpace(*resp.Data.MessageId), nil
}
