package extractor

import (
	"encoding/json"
	"strings"
)

// parseExtraction decodes the model's JSON output leniently. Anything that
// cannot be decoded degrades to a NoText record; the batch never fails on a
// malformed model reply.
func parseExtraction(content, name string) Record {
	content = stripCodeFences(content)
	if strings.TrimSpace(content) == "" {
		return degradedRecord(name)
	}
	var out struct {
		Text        string `json:"text"`
		Language    string `json:"language"`
		Translation string `json:"translation"`
		Original    string `json:"original"`
		NoText      bool   `json:"no_text"`
		Category    string `json:"category"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return degradedRecord(name)
	}
	record := Record{
		Name:        name,
		Text:        strings.TrimSpace(out.Text),
		Language:    strings.ToLower(strings.TrimSpace(out.Language)),
		Translation: strings.TrimSpace(out.Translation),
		Original:    strings.TrimSpace(out.Original),
		NoText:      out.NoText,
		Category:    normalizeCategory(out.Category),
	}
	// Only a paired translation+original counts as a translated record.
	if record.Translation == "" || record.Original == "" {
		record.Translation = ""
		record.Original = ""
	}
	if record.Text == "" && record.Translation == "" {
		record.NoText = true
	}
	return record
}

func degradedRecord(name string) Record {
	return Record{Name: name, NoText: true, Category: CategoryOther}
}

func normalizeCategory(raw string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryUI:
		return CategoryUI
	case CategoryDocument:
		return CategoryDocument
	case CategoryPhoto:
		return CategoryPhoto
	default:
		return CategoryOther
	}
}

// stripCodeFences removes a surrounding markdown code fence from model output.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
