// Package openrouter is the Narration Script Generator: it drives an
// OpenRouter-compatible chat completion endpoint to turn a clip's action
// analysis into a short line of narration for the synced-narration path
// (§4.H, §6).
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

const requestTimeout = 90 * time.Second

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

// Generate asks the model for one short sentence of narration describing
// clip's action, given the analysed timing and description (§4.H).
// The model output is consumed but not validated against the clip
// further; ducking and placement remain the mixer's responsibility.
func (a *Adapter) Generate(ctx context.Context, clip rundown.Clip, analysis rundown.Analysis) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(clip, analysis)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "hapctl_narration",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"narration": map[string]any{"type": "string"},
					},
					"required": []string{"narration"},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return fallbackNarration(analysis), nil
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return fallbackNarration(analysis), nil
	}

	clean, err := extractJSONObject(content)
	if err != nil {
		return fallbackNarration(analysis), nil
	}

	var out struct {
		Narration string `json:"narration"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil || strings.TrimSpace(out.Narration) == "" {
		return fallbackNarration(analysis), nil
	}
	return strings.TrimSpace(out.Narration), nil
}

func buildPrompt(clip rundown.Clip, analysis rundown.Analysis) string {
	return fmt.Sprintf(
		"Write one short sentence of excited sports broadcast narration describing the following play. "+
			"Return strictly valid JSON (no markdown, no code fences) matching the provided schema.\n\n"+
			"Clip: %s\nAction description: %s\nAction window: %.2fs to %.2fs (peak at %.2fs) of a %.2fs clip.",
		clip.ID, analysis.Description, analysis.ActionStart, analysis.ActionEnd, analysis.ActionPeak, analysis.TotalDuration,
	)
}

func fallbackNarration(analysis rundown.Analysis) string {
	if d := strings.TrimSpace(analysis.Description); d != "" {
		return d
	}
	return "What a play!"
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

var _ ports.NarrationScriptGenerator = (*Adapter)(nil)
