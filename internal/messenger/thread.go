package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

const listPageSize = 50

// ListThreadImages returns every image reference in the thread anchored at
// rootID, in platform order. When the root message has no thread yet, only
// the root's own images are returned.
func (s *Service) ListThreadImages(ctx context.Context, rootID string) ([]ImageRef, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return nil, fmt.Errorf("root message id is required")
	}
	root, err := s.getMessage(ctx, rootID)
	if err != nil {
		return nil, err
	}

	threadID := ""
	if root.ThreadId != nil {
		threadID = strings.TrimSpace(*root.ThreadId)
	}
	if threadID == "" {
		return dedupRefs(refsFromMessage(root)), nil
	}

	var refs []ImageRef
	pageToken := ""
	for {
		builder := larkim.NewListMessageReqBuilder().
			ContainerIdType("thread").
			ContainerId(threadID).
			PageSize(listPageSize)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}
		resp, err := s.client.Im.V1.Message.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("list thread messages: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list thread messages: %s (code: %d)", resp.Msg, resp.Code)
		}
		if resp.Data == nil {
			break
		}
		for _, item := range resp.Data.Items {
			refs = append(refs, refsFromMessage(item)...)
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil {
			break
		}
		pageToken = strings.TrimSpace(*resp.Data.PageToken)
		if pageToken == "" {
			break
		}
	}
	refs = dedupRefs(refs)
	s.logger.Debug("thread images listed",
		slog.String("root_id", rootID),
		slog.String("thread_id", threadID),
		slog.Int("count", len(refs)),
	)
	return refs, nil
}

func (s *Service) getMessage(ctx context.Context, messageID string) (*larkim.Message, error) {
	req := larkim.NewGetMessageReqBuilder().
		MessageId(messageID).
		Build()
	resp, err := s.client.Im.V1.Message.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get message %s: %s (code: %d)", messageID, resp.Msg, resp.Code)
	}
	if resp.Data == nil || len(resp.Data.Items) == 0 || resp.Data.Items[0] == nil {
		return nil, fmt.Errorf("get message %s: empty response", messageID)
	}
	return resp.Data.Items[0], nil
}

func refsFromMessage(m *larkim.Message) []ImageRef {
	if m == nil || m.Deleted != nil && *m.Deleted {
		return nil
	}
	msgID, msgType, content := "", "", ""
	if m.MessageId != nil {
		msgID = strings.TrimSpace(*m.MessageId)
	}
	if m.MsgType != nil {
		msgType = strings.TrimSpace(*m.MsgType)
	}
	if m.Body != nil && m.Body.Content != nil {
		content = *m.Body.Content
	}
	if msgID == "" {
		return nil
	}
	return imageRefs(msgID, msgType, content)
}
