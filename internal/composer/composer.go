// Package composer renders extraction results into message bodies and
// adapts them to the platform's size ceiling.
package composer

import (
	"fmt"
	"strings"

	"github.com/threadlens/threadlens/internal/extractor"
)

const (
	divider      = "\n\n---\n\n"
	noTextNotice = "_No readable text found in this image._"
)

// Render joins per-image extraction results into one message body. Extracted
// text is reproduced verbatim; translated records show the translation first
// and the source text below it. With a single record the filename header is
// omitted. remaining > 0 appends a note that the per-run cap was hit.
func Render(records []extractor.Record, remaining int) string {
	if len(records) == 0 {
		return ""
	}
	sections := make([]string, 0, len(records))
	for _, rec := range records {
		body := renderRecord(rec)
		if len(records) > 1 {
			name := strings.TrimSpace(rec.Name)
			if name == "" {
				name = "image"
			}
			body = "**" + name + "**\n\n" + body
		}
		sections = append(sections, body)
	}
	out := strings.Join(sections, divider)
	if remaining > 0 {
		out += fmt.Sprintf("\n\n_%d more image(s) in this thread were not processed this run; mention me again to continue._", remaining)
	}
	return out
}

func renderRecord(rec extractor.Record) string {
	if rec.NoText {
		return noTextNotice
	}
	if rec.Translation != "" && rec.Original != "" {
		header := "**Original**"
		if lang := strings.TrimSpace(rec.Language); lang != "" {
			header = "**Original (" + lang + ")**"
		}
		return "**Translation**\n\n" + rec.Translation + "\n\n" + header + "\n\n" + rec.Original
	}
	return rec.Text
}
