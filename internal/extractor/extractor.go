// Package extractor turns image bytes into structured text via an
// OpenAI-compatible vision chat-completions endpoint.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Category classifies what kind of content an image holds.
type Category string

const (
	CategoryUI       Category = "ui"
	CategoryDocument Category = "document"
	CategoryPhoto    Category = "photo"
	CategoryOther    Category = "other"
)

// Record is the structured extraction result for one image. Translation and
// Original are both set only when the source text is not in the primary
// output language.
type Record struct {
	ItemID      string
	Name        string
	Text        string
	Language    string
	Translation string
	Original    string
	NoText      bool
	Category    Category
}

const systemPrompt = `You are a text extraction assistant. Extract all readable text from the image, preserving layout with line breaks where meaningful. Respond with a single JSON object:
{"text": string, "language": ISO 639-1 code, "translation": string or empty, "original": string or empty, "no_text": bool, "category": "ui"|"document"|"photo"|"other"}
If the text is not in English, put an English translation in "translation" and the source text in "original". If the image contains no readable text, set "no_text" to true. Output JSON only.`

// Client calls the extraction model.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		logger:     log.With(slog.String("service", "extractor")),
	}
}

// Extract runs one image through the model. Transport and API failures are
// returned as errors; malformed or empty model output degrades to a NoText
// record instead.
func (c *Client) Extract(ctx context.Context, data []byte, mime, name string) (Record, error) {
	if len(data) == 0 {
		return Record{}, fmt.Errorf("image bytes are required")
	}
	if strings.TrimSpace(mime) == "" {
		mime = "image/png"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	body := map[string]any{
		"model":           c.model,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": "Extract the text from this image."},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	start := time.Now()
	raw, err := c.post(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return Record{}, err
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &completion); err != nil {
		c.logger.Warn("extraction response not decodable, degrading",
			slog.String("name", name),
			slog.Any("error", err),
		)
		return degradedRecord(name), nil
	}
	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}
	record := parseExtraction(content, name)
	c.logger.Info("extraction done",
		slog.String("name", name),
		slog.String("language", record.Language),
		slog.String("category", string(record.Category)),
		slog.Bool("no_text", record.NoText),
		slog.Duration("elapsed", time.Since(start)),
	)
	return record, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction request failed: status %d: %s", resp.StatusCode, summarize(raw))
	}
	return raw, nil
}

func summarize(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
