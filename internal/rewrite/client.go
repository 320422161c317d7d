// Package rewrite implements the client for the external text-generation
// service. A rewrite is a single instruction/user-turn exchange; no
// multi-turn state is retained between calls.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/promptboost/promptboost/internal/errors"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained
// for the failure notice.
const maxErrorBodyBytes = 2048

// Options carry the per-call service coordinates. They come from the
// configuration snapshot taken at job start, never from ambient state.
type Options struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Rewriter is the orchestrator's view of the rewrite service.
type Rewriter interface {
	Rewrite(ctx context.Context, original, instruction string, opts Options) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	client *http.Client
}

// NewClient creates a rewrite client. Per-call deadlines come from
// Options.Timeout; the underlying client carries no global timeout.
func NewClient() *Client {
	return &Client{client: &http.Client{}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Rewrite sends the original text and instruction to the service and
// returns the rewritten text. The instruction travels as the system turn,
// the draft as the user turn.
func (c *Client) Rewrite(ctx context.Context, original, instruction string, opts Options) (string, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return "", errors.NewMissingCredential()
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return "", errors.NewMissingEndpoint()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	payload := chatRequest{
		Model: opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: original},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.NewTransport(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewTransport(resp.StatusCode, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewTransport(resp.StatusCode, truncate(string(respBody), maxErrorBodyBytes))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.NewTransport(resp.StatusCode, "malformed response: "+err.Error())
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewEmptyResult()
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.NewEmptyResult()
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
