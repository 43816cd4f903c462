// Package audit keeps the append-only JSON-lines record of every capture
// pipeline run, success or failure.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/domain"
	"go.uber.org/zap"
)

// LogKey is the fixed vault path of the audit log.
const LogKey = "0-Inbox/_capture_log.jsonl"

// Entry is one pipeline run. Classification and Destination are nil when the
// run never got that far; Error is the durable record of what went wrong.
// Intended is set only when the computed destination differs from the one
// actually written (a fallback after successful routing).
type Entry struct {
	TS             time.Time              `json:"ts"`
	TelegramMsgID  int64                  `json:"telegram_msg_id"`
	Raw            string                 `json:"raw"`
	Classification *domain.Classification `json:"classification"`
	Destination    *string                `json:"destination"`
	Intended       string                 `json:"intended_destination,omitempty"`
	Tags           []string               `json:"tags"`
	Error          *string                `json:"error"`
}

// Writer appends entries to the audit log blob.
type Writer struct {
	store  blob.Store
	key    string
	logger *zap.Logger
}

// NewWriter returns a Writer addressing the fixed log path.
func NewWriter(store blob.Store, logger *zap.Logger) *Writer {
	return &Writer{store: store, key: LogKey, logger: logger}
}

// Append serializes the entry as one JSON line and appends it to the log via
// read-modify-write. A read failure (including not-found) means the log is
// empty. Failures are logged and swallowed: an audit problem must never mask
// a capture that already succeeded or fell back. Concurrent appends can race
// on the log blob; with single-user, per-chat-serialized traffic that lost
// update is accepted.
func (w *Writer) Append(ctx context.Context, entry Entry) {
	line, err := json.Marshal(entry)
	if err != nil {
		w.logger.Error("audit entry marshal failed", zap.Error(err))
		return
	}

	existing := ""
	if raw, err := w.store.Get(ctx, w.key); err == nil {
		existing = string(raw)
	}

	content := string(line) + "\n"
	if trimmed := strings.TrimRight(existing, " \t\r\n"); trimmed != "" {
		content = trimmed + "\n" + content
	}

	if err := w.store.Put(ctx, w.key, []byte(content), "application/x-ndjson"); err != nil {
		w.logger.Error("audit log write failed", zap.Error(err))
	}
}
