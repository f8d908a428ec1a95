// Package textai turns free-form recipe text into a structured draft with a
// language model. The provider call is the only non-deterministic stage of
// the engine; everything around it (input validation, response parsing,
// confidence scoring) is pure and tested without a live provider.
package textai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient is the provider boundary. Tests substitute a scripted
// implementation; production uses the OpenAI-compatible client below.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ClientOption configures the Client.
type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
	logger      *slog.Logger
}

// NewClient creates a chat client. endpoint is the full URL of the
// chat/completions resource.
func NewClient(endpoint, apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		model:       "gpt-4o-mini",
		temperature: 0.1,
		maxTokens:   1200,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Chat sends a chat-completion request and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatPayload{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("chat request", "endpoint", c.endpoint, "model", c.model, "bytes", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned %s: %s", resp.Status, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	reply := parsed.Choices[0].Message.Content
	c.logger.Debug("chat reply", "chars", len(reply))
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
