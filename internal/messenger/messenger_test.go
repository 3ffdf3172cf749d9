package messenger

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestImageRefs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		msgType  string
		content  string
		wantKeys []string
	}{
		{
			name:     "image message",
			msgType:  "image",
			content:  `{"image_key":"img_v2_abc"}`,
			wantKeys: []string{"img_v2_abc"},
		},
		{
			name:    "post message with img tags",
			msgType: "post",
			content: `{"title":"","content":[[{"tag":"text","text":"look"},{"tag":"img","image_key":"img_1"}],[{"tag":"img","image_key":"img_2"}]]}`,
			wantKeys: []string{
				"img_1",
				"img_2",
			},
		},
		{
			name:     "post message wrapped in locale",
			msgType:  "post",
			content:  `{"zh_cn":{"title":"","content":[[{"tag":"img","image_key":"img_3"}]]}}`,
			wantKeys: []string{"img_3"},
		},
		{
			name:    "text message yields nothing",
			msgType: "text",
			content: `{"text":"hello"}`,
		},
		{
			name:    "malformed content yields nothing",
			msgType: "image",
			content: `not json`,
		},
		{
			name:    "image without key yields nothing",
			msgType: "image",
			content: `{"image_key":""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			refs := imageRefs("om_msg", tt.msgType, tt.content)
			if len(refs) != len(tt.wantKeys) {
				t.Fatalf("got %d refs, want %d: %+v", len(refs), len(tt.wantKeys), refs)
			}
			for i, want := range tt.wantKeys {
				if refs[i].FileKey != want {
					t.Errorf("ref %d: got key %q, want %q", i, refs[i].FileKey, want)
				}
				if refs[i].MessageID != "om_msg" {
					t.Errorf("ref %d: got message id %q", i, refs[i].MessageID)
				}
			}
		})
	}
}

func TestDedupRefs(t *testing.T) {
	t.Parallel()

	refs := dedupRefs([]ImageRef{
		{MessageID: "m1", FileKey: "a"},
		{MessageID: "m2", FileKey: "b"},
		{MessageID: "m3", FileKey: "a"},
	})
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	if refs[0].FileKey != "a" || refs[0].MessageID != "m1" {
		t.Errorf("first-seen ref not preserved: %+v", refs[0])
	}
	if refs[1].FileKey != "b" {
		t.Errorf("unexpected second ref: %+v", refs[1])
	}
}

func TestBuildCardContent(t *testing.T) {
	t.Parallel()

	content, err := buildCardContent("# Title\nbody text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var card map[string]any
	if err := json.Unmarshal([]byte(content), &card); err != nil {
		t.Fatalf("card content is not valid JSON: %v", err)
	}
	if !strings.Contains(content, "**Title**") {
		t.Errorf("heading not converted to bold: %s", content)
	}
	if !strings.Contains(content, "lark_md") {
		t.Errorf("card body missing lark_md element: %s", content)
	}
}

func TestClassifySendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     string
		tooLong bool
	}{
		{name: "length rejection", msg: "message content exceeds max length", tooLong: true},
		{name: "size rejection", msg: "card is too large", tooLong: true},
		{name: "other rejection", msg: "invalid receive_id", tooLong: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := classifySendError("reply", 9999, tt.msg)
			if got := errors.Is(err, ErrTooLong); got != tt.tooLong {
				t.Fatalf("errors.Is(err, ErrTooLong) = %v, want %v (err: %v)", got, tt.tooLong, err)
			}
		})
	}
}

func TestExceedsCardLimit(t *testing.T) {
	t.Parallel()

	if exceedsCardLimit("short") {
		t.Error("short content flagged as over limit")
	}
	if !exceedsCardLimit(strings.Repeat("x", maxCardContentBytes+1)) {
		t.Error("oversized content not flagged")
	}
}
