// Package chat is the Slack-style transport: an HTTP Web API client for
// posting replies and reactions, and webhook event parsing with request
// signature verification.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Reaction names used as acknowledgement affordances on proposal replies.
const (
	ReactionConfirm = "white_check_mark"
	ReactionCancel  = "x"
)

// Coordinate builds the store key for a posted message: channel plus the
// platform's message timestamp, which together are unique.
func Coordinate(channel, ts string) string {
	return channel + ":" + ts
}

// Client posts to the chat platform's Web API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIBaseURL overrides the Web API endpoint, for tests.
func WithAPIBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a Web API client with the given bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    "https://slack.com/api",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResult struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	TS     string `json:"ts"`
	UserID string `json:"user_id"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (*apiResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("chat call %s: %s", method, result.Error)
	}
	return &result, nil
}

// PostMessage posts text into a channel (threaded when threadTS is set)
// and returns the new message's timestamp.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) (string, error) {
	params := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		params["thread_ts"] = threadTS
	}
	result, err := c.call(ctx, "chat.postMessage", params)
	if err != nil {
		return "", err
	}
	return result.TS, nil
}

// Reply posts text and discards the timestamp. Satisfies the confirmation
// coordinator's Replier interface.
func (c *Client) Reply(ctx context.Context, channel, threadTS, text string) error {
	_, err := c.PostMessage(ctx, channel, threadTS, text)
	return err
}

// AuthTest returns the bot's own user ID. The events webhook uses it to
// ignore the reactions the bot seeds on its own proposal replies.
func (c *Client) AuthTest(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "auth.test", map[string]any{})
	if err != nil {
		return "", err
	}
	return result.UserID, nil
}

// AddReaction attaches an emoji reaction to an existing message. Used to
// seed the confirm/cancel affordances on proposal replies.
func (c *Client) AddReaction(ctx context.Context, channel, ts, name string) error {
	_, err := c.call(ctx, "reactions.add", map[string]any{
		"channel":   channel,
		"timestamp": ts,
		"name":      name,
	})
	return err
}
