// Package githubsync dispatches GitHub events that pull fresh captures into
// the vault repository.
package githubsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const apiBase = "https://api.github.com"

// Notifier triggers repository workflows. With no token or repo configured
// it is disabled and every call is a logged no-op.
type Notifier struct {
	token      string
	repo       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option adjusts the Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at a different API host. Tests use it to
// target a local server.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = u }
}

// New returns a Notifier. Empty token or repo yields a disabled notifier,
// not an error: sync is optional.
func New(token, repo string, logger *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		token:      token,
		repo:       repo,
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether dispatching is configured.
func (n *Notifier) Enabled() bool {
	return n.token != "" && n.repo != ""
}

// NotifyCapture fires the repository_dispatch event that syncs one capture.
func (n *Notifier) NotifyCapture(ctx context.Context, filename string) error {
	if !n.Enabled() {
		n.logger.Debug("github sync disabled, skipping capture dispatch")
		return nil
	}

	url := fmt.Sprintf("%s/repos/%s/dispatches", n.baseURL, n.repo)
	body := map[string]any{
		"event_type":     "telegram_capture",
		"client_payload": map[string]string{"filename": filename},
	}
	if err := n.post(ctx, url, body); err != nil {
		return fmt.Errorf("GitHub sync failed: %w", err)
	}

	n.logger.Info("github sync triggered", zap.String("filename", filename))
	return nil
}

// TriggerDigest dispatches the daily digest workflow for the given kind
// (morning or evening).
func (n *Notifier) TriggerDigest(ctx context.Context, kind string) error {
	if !n.Enabled() {
		return fmt.Errorf("GitHub sync not configured")
	}

	url := fmt.Sprintf("%s/repos/%s/actions/workflows/daily-digest.yml/dispatches", n.baseURL, n.repo)
	body := map[string]any{
		"ref":    "main",
		"inputs": map[string]string{"digest_type": kind},
	}
	if err := n.post(ctx, url, body); err != nil {
		return fmt.Errorf("digest dispatch failed: %w", err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, body map[string]any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "vaultbot")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
