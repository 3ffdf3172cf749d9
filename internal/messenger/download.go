package messenger

import (
	"context"
	"fmt"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/threadlens/threadlens/internal/media"
)

// Download fetches one image's bytes via the message-resource API, which
// requires both the owning message id and the file key. Returns the bytes
// and the platform-reported file name.
func (s *Service) Download(ctx context.Context, ref ImageRef) ([]byte, string, error) {
	if strings.TrimSpace(ref.MessageID) == "" || strings.TrimSpace(ref.FileKey) == "" {
		return nil, "", fmt.Errorf("image ref requires message id and file key")
	}
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(ref.MessageID).
		FileKey(ref.FileKey).
		Type("image").
		Build()
	resp, err := s.client.Im.V1.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("download image %s: %w", ref.FileKey, err)
	}
	if !resp.Success() {
		return nil, "", fmt.Errorf("download image %s: %s (code: %d)", ref.FileKey, resp.Msg, resp.Code)
	}
	if resp.File == nil {
		return nil, "", fmt.Errorf("download image %s: empty payload", ref.FileKey)
	}
	data, err := media.ReadAllWithLimit(resp.File, media.MaxImageBytes)
	if err != nil {
		return nil, "", fmt.Errorf("download image %s: %w", ref.FileKey, err)
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = strings.TrimSpace(resp.FileName)
	}
	return data, name, nil
}
