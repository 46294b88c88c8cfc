// Package client posts a conversation to the chat endpoint and returns the
// assistant reply.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
)

// DefaultTimeout bounds a single SendChat call.
const DefaultTimeout = 15 * time.Second

// Text shown to the user for each failure kind.
const (
	MsgRateLimited = "Rate limit exceeded. Try again later."
	MsgUnavailable = "Failed to reach chatbot service."
)

// Failure kinds. SendChat wraps them in *errs.TransportError, so test with
// errors.Is and render with Message.
var (
	ErrRateLimited = errors.New("chat endpoint rate limited the request")
	ErrUnavailable = errors.New("chat endpoint unavailable")
)

// Message returns the text to show the user for an error from SendChat.
// Anything other than a rate limit reads as unavailable.
func Message(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return MsgRateLimited
	}
	return MsgUnavailable
}

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Client talks to one chat endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for endpoint, e.g. "http://localhost:8080/api/bot".
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Messages []models.Message `json:"messages"`
}

// SendChat sends messages in one POST, without retrying, and returns the
// reply. System entries are dropped before sending.
func (c *Client) SendChat(ctx context.Context, messages []models.Message) (string, error) {
	payload := chatRequest{Messages: make([]models.Message, 0, len(messages))}
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			continue
		}
		payload.Messages = append(payload.Messages, models.Message{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", unavailable(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", unavailable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", unavailable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &errs.TransportError{Kind: ErrRateLimited, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}

	return decodeReply(raw)
}

// decodeReply requires a string "messages" field.
func decodeReply(raw []byte) (string, error) {
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", unavailable(fmt.Errorf("decode response: %w", err))
	}
	field, ok := out["messages"]
	if !ok || string(bytes.TrimSpace(field)) == "null" {
		return "", unavailable(errors.New("response has no messages field"))
	}
	var reply string
	if err := json.Unmarshal(field, &reply); err != nil {
		return "", unavailable(errors.New("response messages field is not a string"))
	}
	return reply, nil
}

func unavailable(cause error) error {
	return &errs.TransportError{Kind: ErrUnavailable, Cause: cause}
}
