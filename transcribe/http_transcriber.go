package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTranscriber talks to an external speech-to-text HTTP service: the
// concrete STT engine the spec treats as an out-of-scope external
// collaborator ("contract only"). It posts normalized float32 samples
// as JSON and expects a JSON object with a "text" field back, matching
// the request/response shape the teacher pack uses for its other
// HTTP-based model calls (internal/service/llm.go's callOllama).
type HTTPTranscriber struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPTranscriber builds a transcriber pointed at an external STT
// server's /transcribe endpoint.
func NewHTTPTranscriber(baseURL string) *HTTPTranscriber {
	return &HTTPTranscriber{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	body, err := json.Marshal(struct {
		SampleRate int       `json:"sample_rate"`
		Samples    []float32 `json:"samples"`
	}{SampleRate: expectedSampleRate, Samples: samples})
	if err != nil {
		return "", fmt.Errorf("transcribe: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: stt request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read stt response: %w", err)
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("transcribe: decode stt response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("transcribe: stt error: %s", result.Error)
	}
	return result.Text, nil
}
