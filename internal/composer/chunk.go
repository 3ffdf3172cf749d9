package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// partHeaderBudget reserves room in each page for the part header.
const partHeaderBudget = 24

// Chunk splits text into pieces of at most limit runes. It prefers cutting
// at a blank line, then a single newline, then cuts hard. A preferred cut is
// accepted only when it falls in the back half of the budget, so no piece
// wastes more than half its room.
func Chunk(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if limit <= 0 || len(runes) <= limit {
		return []string{trimmed}
	}
	var chunks []string
	for len(runes) > limit {
		cut := cutPoint(runes, limit)
		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

func cutPoint(runes []rune, limit int) int {
	window := string(runes[:limit])
	for _, sep := range []string{"\n\n", "\n"} {
		idx := strings.LastIndex(window, sep)
		if idx <= 0 {
			continue
		}
		if r := utf8.RuneCountInString(window[:idx]); r >= limit/2 {
			return r
		}
	}
	return limit
}

// Paginate chunks body to fit limit and, when more than one page results,
// prefixes each with a visible part header so split output is never mistaken
// for the whole.
func Paginate(body string, limit int) []string {
	innerLimit := limit
	if innerLimit > partHeaderBudget*2 {
		innerLimit = limit - partHeaderBudget
	}
	pages := Chunk(body, innerLimit)
	if len(pages) <= 1 {
		return pages
	}
	out := make([]string, len(pages))
	for i, page := range pages {
		out[i] = fmt.Sprintf("**Part %d/%d**\n\n%s", i+1, len(pages), page)
	}
	return out
}
