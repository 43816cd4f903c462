// Package telegram is a minimal Bot API client covering what the bot sends:
// messages, reactions, chat actions, and operator alerts.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const apiBase = "https://api.telegram.org"

// Telegram only supports a fixed reaction set; map the common status marks
// onto it.
var reactionAliases = map[string]string{
	"✅": "👍",
	"❌": "👎",
}

// Client calls the Telegram Bot API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option adjusts the Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Tests use it to
// target a local server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New returns a Client, or an error when no bot token is configured.
func New(token string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not configured")
	}
	c := &Client{
		token:      token,
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendText sends a Markdown-formatted message to the chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
}

// Reply sends a message replying to a specific message.
func (c *Client) Reply(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":             chatID,
		"text":                text,
		"parse_mode":          "Markdown",
		"reply_to_message_id": messageID,
	})
}

// React sets an emoji reaction on a message.
func (c *Client) React(ctx context.Context, chatID, messageID int64, emoji string) error {
	if mapped, ok := reactionAliases[emoji]; ok {
		emoji = mapped
	}
	return c.call(ctx, "setMessageReaction", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reaction":   []map[string]string{{"type": "emoji", "emoji": emoji}},
	})
}

// SendChatAction shows a typing indicator (or similar) in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
}

// Critical-error substrings worth pushing to the operator's chat; user-level
// errors stay out of it.
var criticalPatterns = []string{"vault", "Gemini", "TIMEOUT", "fetch failed", "GitHub sync", "write note"}

// Alert pushes a critical error to the operator chat. Non-critical errors
// and alert delivery failures are dropped quietly.
func (c *Client) Alert(ctx context.Context, operatorChatID int64, where string, err error) {
	if operatorChatID == 0 || err == nil {
		return
	}
	critical := false
	for _, p := range criticalPatterns {
		if strings.Contains(err.Error(), p) {
			critical = true
			break
		}
	}
	if !critical {
		return
	}

	msg := fmt.Sprintf("🚨 Bot error\n\nPath: %s\nError: %s", where, err)
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if sendErr := c.call(ctx, "sendMessage", map[string]any{"chat_id": operatorChatID, "text": msg}); sendErr != nil {
		c.logger.Warn("alert delivery failed", zap.Error(sendErr))
	}
}

// call posts a JSON body to a Bot API method.
func (c *Client) call(ctx context.Context, method string, body map[string]any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s failed (status %d): %s", method, resp.StatusCode, detail)
	}
	return nil
}
