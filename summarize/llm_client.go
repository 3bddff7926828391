// Package summarize is the Summary Bridge: it reads a completed
// session's transcript, sends it to an Ollama-compatible LLM with a
// fixed prompt skeleton, and records the resulting markdown.
//
// Grounded directly on internal/service/llm.go's LLMService: same
// POST /api/chat request shape, same response-struct decode, same
// http.Client-with-timeout call pattern (callOllama), generalized from
// the teacher's fixed Russian system prompt to the spec's English
// Key Points / Action Items / Decisions Made / Next Steps skeleton.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMClient talks to an Ollama-compatible chat completion endpoint.
type LLMClient struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewLLMClient builds a client with the teacher's 300s request timeout
// (summaries can take a while on CPU-bound local models).
func NewLLMClient(baseURL, model string) *LLMClient {
	return &LLMClient{
		BaseURL: baseURL,
		Model:   model,
		HTTP:    &http.Client{Timeout: 300 * time.Second},
	}
}

const systemPrompt = `You are an assistant that writes structured summaries of meeting transcripts.
Respond in Markdown with exactly these sections, in this order:
## Key Points
## Action Items
## Decisions Made
## Next Steps
Use bullet points under each heading. Do not add commentary outside these sections.`

// Summarize sends the transcript to the configured model and returns
// the markdown summary.
func (c *LLMClient) Summarize(ctx context.Context, transcript string) (string, error) {
	reqBody := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": fmt.Sprintf("Here is the meeting transcript:\n\n%s", transcript)},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.3,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("summarize: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("summarize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize: llm request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("summarize: read llm response: %w", err)
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("summarize: decode llm response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("summarize: llm error: %s", result.Error)
	}

	text := strings.TrimSpace(result.Message.Content)
	if text == "" {
		return "", fmt.Errorf("summarize: llm returned empty summary")
	}
	return text, nil
}
