package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Entry is one role-tagged message sent upstream.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the per-call generation settings.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Result is a complete (non-streamed) generation.
type Result struct {
	Content string
	Model   string
	Tokens  int
}

// UpstreamError reports a provider transport or payload failure. It is
// terminal for the turn; retrying is the caller's decision and this client
// never retries on its own.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider: %s", e.Message)
}

// Config holds the provider endpoint and credentials. The base URL points at
// an OpenAI-compatible API root (e.g. https://openrouter.ai/api/v1).
// SiteURL/SiteName are optional OpenRouter attribution headers.
type Config struct {
	BaseURL  string
	APIKey   string
	SiteURL  string
	SiteName string
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		// No overall timeout: it would cut off streams that outlive it.
		// Cancellation comes from the request context.
		http: &http.Client{},
	}
}

// --- wire types ---

type chatRequest struct {
	Model       string  `json:"model"`
	Messages    []Entry `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

type chatChoice struct {
	Message Entry `json:"message"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Complete performs a single blocking generation.
func (c *Client) Complete(ctx context.Context, entries []Entry, opts Options) (*Result, error) {
	resp, err := c.post(ctx, entries, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("unmarshal: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &UpstreamError{Message: "response contains no choices"}
	}

	res := &Result{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
	}
	if res.Model == "" {
		res.Model = opts.Model
	}
	if parsed.Usage != nil {
		res.Tokens = parsed.Usage.TotalTokens
	}
	return res, nil
}

// Stream opens a streaming generation. The caller owns the returned source
// and must Close it.
func (c *Client) Stream(ctx context.Context, entries []Entry, opts Options) (FragmentSource, error) {
	resp, err := c.post(ctx, entries, opts, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, &UpstreamError{Status: resp.StatusCode, Message: string(body)}
	}

	return newStream(resp.Body), nil
}

func (c *Client) post(ctx context.Context, entries []Entry, opts Options, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    entries,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.cfg.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	if c.cfg.SiteName != "" {
		req.Header.Set("X-Title", c.cfg.SiteName)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	return resp, nil
}
