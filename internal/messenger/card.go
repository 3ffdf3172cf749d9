package messenger

import (
	"encoding/json"
	"regexp"
	"strings"
)

// buildCardContent renders text as a single-element interactive card. Cards
// are used for everything the bot posts because only cards can be patched
// in place after delivery.
func buildCardContent(text string) (string, error) {
	card := map[string]any{
		"config": map[string]any{
			"wide_screen_mode": true,
			"enable_forward":   true,
			"update_multi":     true,
		},
		"elements": []map[string]any{
			{
				"tag": "div",
				"fields": []map[string]any{
					{
						"is_short": false,
						"text": map[string]any{
							"tag":     "lark_md",
							"content": processCardMarkdown(text),
						},
					},
				},
			},
		},
	}
	data, err := json.Marshal(card)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var cardHeadingPrefix = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// processCardMarkdown normalizes markdown for lark_md (e.g. ATX headings to bold).
func processCardMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = cardHeadingPrefix.ReplaceAllStringFunc(s, func(m string) string {
		parts := cardHeadingPrefix.FindStringSubmatch(m)
		if len(parts) == 2 {
			return "**" + parts[1] + "**"
		}
		return m
	})
	return s
}
