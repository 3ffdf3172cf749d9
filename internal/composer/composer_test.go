package composer

import (
	"strings"
	"testing"

	"github.com/threadlens/threadlens/internal/extractor"
)

func TestRenderSingleRecordVerbatim(t *testing.T) {
	t.Parallel()

	out := Render([]extractor.Record{
		{Name: "shot.png", Text: "line one\nline two"},
	}, 0)
	if out != "line one\nline two" {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "shot.png") {
		t.Error("single record should omit the filename header")
	}
}

func TestRenderMultiRecordHeadersAndDivider(t *testing.T) {
	t.Parallel()

	out := Render([]extractor.Record{
		{Name: "a.png", Text: "alpha"},
		{Name: "b.png", Text: "beta"},
	}, 0)
	if !strings.Contains(out, "**a.png**") || !strings.Contains(out, "**b.png**") {
		t.Fatalf("missing filename headers: %q", out)
	}
	if !strings.Contains(out, divider) {
		t.Fatalf("missing divider: %q", out)
	}
	if strings.Index(out, "alpha") > strings.Index(out, "beta") {
		t.Error("record order not preserved")
	}
}

func TestRenderNoTextNotice(t *testing.T) {
	t.Parallel()

	out := Render([]extractor.Record{{Name: "x.png", NoText: true}}, 0)
	if out != noTextNotice {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRenderTranslatedRecord(t *testing.T) {
	t.Parallel()

	out := Render([]extractor.Record{
		{Name: "fr.png", Text: "bonjour", Language: "fr", Translation: "hello", Original: "bonjour"},
	}, 0)
	if !strings.Contains(out, "**Translation**") || !strings.Contains(out, "**Original (fr)**") {
		t.Fatalf("missing translation blocks: %q", out)
	}
	if strings.Index(out, "hello") > strings.Index(out, "bonjour") {
		t.Error("translation should come before the original")
	}
}

func TestRenderCapNote(t *testing.T) {
	t.Parallel()

	out := Render([]extractor.Record{{Text: "x"}}, 10)
	if !strings.Contains(out, "10 more image(s)") {
		t.Fatalf("missing cap note: %q", out)
	}
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	if out := Render(nil, 0); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestChunkRespectsLimit(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("paragraph with some words in it\n\n")
	}
	chunks := Chunk(b.String(), 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 200 {
			t.Errorf("chunk %d has %d runes, over the limit", i, n)
		}
	}
}

func TestChunkPrefersBlankLine(t *testing.T) {
	t.Parallel()

	// A blank line sits in the back half of the budget; the cut lands there.
	text := strings.Repeat("a", 120) + "\n\n" + strings.Repeat("b", 120)
	chunks := Chunk(text, 200)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if strings.Contains(chunks[0], "b") {
		t.Errorf("first chunk crossed the blank line: %q", chunks[0])
	}
}

func TestChunkIgnoresFrontHalfCut(t *testing.T) {
	t.Parallel()

	// The only newline is in the front half; a hard cut is used instead so
	// the chunk does not waste most of its budget.
	text := strings.Repeat("a", 20) + "\n" + strings.Repeat("b", 400)
	chunks := Chunk(text, 200)
	if n := len([]rune(chunks[0])); n < 100 {
		t.Errorf("front-half cut accepted, chunk wasted budget: %d runes", n)
	}
}

func TestChunkPreservesContent(t *testing.T) {
	t.Parallel()

	text := "alpha beta\n\ngamma delta\n\nepsilon zeta"
	chunks := Chunk(text, 15)
	joined := strings.Join(chunks, " ")
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		if !strings.Contains(joined, word) {
			t.Errorf("content %q dropped by chunking", word)
		}
	}
}

func TestPaginateAddsPartHeaders(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("some sentence here\n\n", 200)
	pages := Paginate(body, 500)
	if len(pages) < 2 {
		t.Fatalf("expected multiple pages, got %d", len(pages))
	}
	for i, page := range pages {
		if !strings.HasPrefix(page, "**Part ") {
			t.Errorf("page %d missing part header: %q", i, page[:40])
		}
		if n := len([]rune(page)); n > 500 {
			t.Errorf("page %d has %d runes, over the limit", i, n)
		}
	}
}

func TestPaginateSinglePageHasNoHeader(t *testing.T) {
	t.Parallel()

	pages := Paginate("short body", 500)
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if strings.Contains(pages[0], "Part") {
		t.Errorf("single page should not carry a part header: %q", pages[0])
	}
}

func TestPaginateDoubleLimitBody(t *testing.T) {
	t.Parallel()

	limit := 400
	body := strings.Repeat("w", limit*2)
	pages := Paginate(body, limit)
	if len(pages) < 2 {
		t.Fatalf("a body twice the limit must split, got %d page(s)", len(pages))
	}
	for i, page := range pages {
		if n := len([]rune(page)); n > limit {
			t.Errorf("page %d has %d runes, over the limit", i, n)
		}
	}
}
