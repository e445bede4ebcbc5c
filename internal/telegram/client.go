// Package telegram bridges a Telegram bot to the chat command pipeline:
// it long-polls the Bot API, runs each text message through the
// commands, and answers with the reply.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

const (
	maxAttempts      = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20
	httpTimeout      = 90 * time.Second
)

// Client is a thin HTTP wrapper around the Bot API methods the bridge uses.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Bot API client. An empty baseURL uses DefaultAPIURL.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// call invokes a Bot API method and decodes its result into T. The result
// is decoded only after the answer is known to be successful, so error
// answers always surface as *APIError.
func call[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	raw, err := c.invoke(ctx, method, payload)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return &result, nil
}

// invoke returns the raw result of a successful answer. Rate-limited
// answers are retried after retry_after (or a doubling backoff), up to
// maxAttempts requests in total.
func (c *Client) invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("telegram: encode %s request: %w", method, err)
		}
	}

	wait := initialBackoff
	for attempt := 1; ; attempt++ {
		resp, err := c.post(ctx, method, body)
		if err != nil {
			return nil, err
		}
		if resp.OK {
			return resp.Result, nil
		}

		apiErr := &APIError{Code: resp.ErrorCode, Description: resp.Description}
		if resp.Parameters != nil {
			apiErr.RetryAfter = resp.Parameters.RetryAfter
		}
		if apiErr.Code != http.StatusTooManyRequests || attempt >= maxAttempts {
			return nil, apiErr
		}
		if apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
	}
}

// post sends one request and decodes the envelope, whatever the HTTP status.
func (c *Client) post(ctx context.Context, method string, body []byte) (*APIResponse[json.RawMessage], error) {
	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The error carries the endpoint, token included; the logger redacts it.
		return nil, fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope APIResponse[json.RawMessage]
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("telegram: decode %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	return &envelope, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetUpdatesRequest is the request body for getUpdates.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SendMessageRequest is the request body for sendMessage.
type SendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int    `json:"reply_to_message_id,omitempty"`
	MessageThreadID  int    `json:"message_thread_id,omitempty"`
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// GetUpdates long-polls for new updates.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := call[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SendMessage sends a plain-text message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return call[Message](ctx, c, "sendMessage", req)
}
