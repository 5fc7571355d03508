package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"aeon/internal/config"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// HTTPGenerator speaks an OpenAI-compatible chat-completions endpoint.
// Used when generation is served by a local gateway or proxy instead of
// Gemini directly.
type HTTPGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
	sem         chan struct{} // Most gateways cap concurrent requests
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int32         `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// minRequestSpacing keeps a floor between consecutive requests so a burst of
// frontier tasks does not trip gateway rate limits immediately.
const minRequestSpacing = 200 * time.Millisecond

// NewHTTPGenerator creates a generator against an OpenAI-compatible endpoint.
func NewHTTPGenerator(cfg config.GenerationConfig) (*HTTPGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation base URL is required for the http provider")
	}
	return &HTTPGenerator{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: config.ParseDuration(cfg.Timeout, 120*time.Second),
		},
		sem: make(chan struct{}, 5),
	}, nil
}

// Generate sends one chat completion request. 429 responses are retried with
// backoff before surfacing as a rate-limit condition.
func (g *HTTPGenerator) Generate(ctx context.Context, role types.AgentRole, prompt string, tier types.Tier) (string, error) {
	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	g.mu.Lock()
	if elapsed := time.Since(g.lastRequest); elapsed < minRequestSpacing {
		time.Sleep(minRequestSpacing - elapsed)
	}
	g.lastRequest = time.Now()
	g.mu.Unlock()

	temperature, maxTokens := tierSettings(tier)
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}

	const maxRetries = 3
	var lastStatus int
	for attempt := 0; attempt < maxRetries; attempt++ {
		text, status, err := g.send(ctx, body)
		if err == nil {
			logging.GenerationDebug("http %s tier=%s produced %d chars", role, tier, len(text))
			return text, nil
		}
		lastStatus = status
		if status != http.StatusTooManyRequests {
			return "", err
		}
		backoff := time.Duration(attempt+1) * time.Second
		logging.Generation("Rate limited for %s, retrying in %s (attempt %d/%d)", role, backoff, attempt+1, maxRetries)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: status %d after %d attempts", ErrRateLimited, lastStatus, maxRetries)
}

func (g *HTTPGenerator) send(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", 0, classifyProviderError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrGeneration, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", resp.StatusCode, fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return "", resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if parsed.Error != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: %s", ErrGeneration, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", resp.StatusCode, fmt.Errorf("%w: empty choices", ErrInvalidOutput)
	}
	return parsed.Choices[0].Message.Content, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
