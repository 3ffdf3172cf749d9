package messenger

import (
	"encoding/json"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// ImageRef identifies one image inside a thread. FileKey is the stable
// per-image identifier used for dedup; MessageID is needed alongside it to
// download the bytes.
type ImageRef struct {
	MessageID string
	FileKey   string
	Name      string
}

// imageRefs extracts image references from one message's content. Image
// messages carry a single image_key; post messages may embed several img
// elements in their content lines. Other message types yield nothing, as
// does undecodable content.
func imageRefs(messageID, msgType, content string) []ImageRef {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	var contentMap map[string]any
	if err := json.Unmarshal([]byte(content), &contentMap); err != nil {
		return nil
	}
	switch msgType {
	case larkim.MsgTypeImage:
		if key, ok := contentMap["image_key"].(string); ok && strings.TrimSpace(key) != "" {
			return []ImageRef{{MessageID: messageID, FileKey: strings.TrimSpace(key)}}
		}
	case larkim.MsgTypePost:
		return postImageRefs(contentMap, messageID)
	}
	return nil
}

// postImageRefs walks post content lines for img elements. The fetched-message
// shape nests lines under content, the event shape puts them at the root;
// both are handled.
func postImageRefs(contentMap map[string]any, messageID string) []ImageRef {
	lines, ok := contentMap["content"].([]any)
	if !ok {
		if wrapped, ok := contentMap["zh_cn"].(map[string]any); ok {
			lines, _ = wrapped["content"].([]any)
		}
	}
	if lines == nil {
		return nil
	}
	var refs []ImageRef
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
			tag, _ := part["tag"].(string)
			if !strings.EqualFold(strings.TrimSpace(tag), "img") {
				continue
			}
			if key, ok := part["image_key"].(string); ok && strings.TrimSpace(key) != "" {
				refs = append(refs, ImageRef{
					MessageID: messageID,
					FileKey:   strings.TrimSpace(key),
				})
			}
		}
	}
	return refs
}

// dedupRefs drops repeated file keys, preserving first-seen order.
func dedupRefs(refs []ImageRef) []ImageRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]ImageRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.FileKey]; ok {
			continue
		}
		seen[ref.FileKey] = struct{}{}
		out = append(out, ref)
	}
	return out
}
