// Package capture implements the classification and routing pipeline: one
// run per incoming capture, from raw text to a filed note, with tiered user
// feedback, a guaranteed fallback artifact, and an unconditional audit entry.
package capture

import (
	"context"
	"fmt"
	"path"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ptrbln/vaultbot/internal/audit"
	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/classifier"
	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/domain"
	"github.com/ptrbln/vaultbot/internal/fetcher"
	"github.com/ptrbln/vaultbot/internal/note"
	"go.uber.org/zap"
)

// Notifier is the chat feedback capability. Errors are logged by the
// pipeline, never retried and never folded into the capture's outcome.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	React(ctx context.Context, chatID, messageID int64, emoji string) error
}

// SyncNotifier triggers the external vault sync after a note is written.
type SyncNotifier interface {
	NotifyCapture(ctx context.Context, filename string) error
}

// PageFetcher resolves a URL capture to readable page text.
type PageFetcher func(ctx context.Context, url string) (string, error)

// Pipeline wires the capture stages together.
type Pipeline struct {
	store     blob.Store
	cls       *classifier.Classifier
	notify    Notifier
	sync      SyncNotifier // nil disables sync notification
	audit     *audit.Writer
	fetchPage PageFetcher // nil disables URL enrichment
	now       func() time.Time
	logger    *zap.Logger
}

// Option adjusts optional pipeline behavior.
type Option func(*Pipeline)

// WithSyncNotifier enables the fire-and-forget sync trigger.
func WithSyncNotifier(s SyncNotifier) Option {
	return func(p *Pipeline) { p.sync = s }
}

// WithPageFetcher enables page-text enrichment for URL captures.
func WithPageFetcher(f PageFetcher) Option {
	return func(p *Pipeline) { p.fetchPage = f }
}

// WithClock overrides the pipeline clock. Tests use it for stable paths.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a Pipeline over the given collaborators.
func New(store blob.Store, cls *classifier.Classifier, notify Notifier, aud *audit.Writer, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		cls:    cls,
		notify: notify,
		audit:  aud,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs the pipeline for one capture. It never returns an error: every
// failure is converted to the fallback branch, the user is always
// acknowledged, and exactly one audit entry is written at the end.
func (p *Pipeline) Handle(ctx context.Context, chatID, messageID int64, text string) {
	ts := p.now()
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID), zap.Int64("chat_id", chatID), zap.Int64("message_id", messageID))
	log.Info("capture received", zap.String("text", truncate(text, 50)))

	vault := config.LoadVault(ctx, p.store, log)

	entry := audit.Entry{
		TS:            ts.UTC(),
		TelegramMsgID: messageID,
		Raw:           text,
		Tags:          []string{},
	}
	// The audit append is unskippable; its own failures are swallowed inside
	// the writer so nothing here can mask the run's outcome.
	defer func() { p.audit.Append(ctx, entry) }()

	c, err := p.cls.Classify(ctx, p.classifyInput(ctx, text, log), vault)
	if err != nil {
		log.Warn("classification failed, using fallback", zap.Error(err))
		p.fallback(ctx, log, &entry, chatID, text, ts, vault, err)
		return
	}
	entry.Classification = c

	dest := Destination(*c, vault, ts)
	tags := note.BuildTags(c.Type, c.Topics, vault)
	content := note.Render(*c, text, ts, vault)
	entry.Tags = tags

	if err := p.store.Put(ctx, dest, []byte(content), "text/markdown"); err != nil {
		log.Error("note write failed, using fallback", zap.String("destination", dest), zap.Error(err))
		entry.Intended = dest
		p.fallback(ctx, log, &entry, chatID, text, ts, vault, fmt.Errorf("write note: %w", err))
		return
	}
	entry.Destination = &dest
	log.Info("note written", zap.String("destination", dest), zap.String("type", string(c.Type)))

	p.notifySync(ctx, dest, log)
	p.respond(ctx, log, chatID, messageID, *c, vault)
}

// classifyInput enriches bare-URL captures with fetched page text so the
// classifier sees content, not just a link.
func (p *Pipeline) classifyInput(ctx context.Context, text string, log *zap.Logger) string {
	if p.fetchPage == nil || !fetcher.IsURL(text) {
		return text
	}
	preview, err := p.fetchPage(ctx, text)
	if err != nil {
		log.Debug("page fetch failed, classifying the bare link", zap.Error(err))
		return text
	}
	return text + "\n\nPage content:\n" + preview
}

// fallback files the minimal artifact in the low-confidence folder, notifies
// the user of the failure, and records the error on the audit entry. The
// classification on the entry reflects what the run actually produced: the
// fallback when classification failed, the real one when only persistence
// did.
func (p *Pipeline) fallback(ctx context.Context, log *zap.Logger, entry *audit.Entry, chatID int64, text string, ts time.Time, vault config.Vault, cause error) {
	msg := cause.Error()
	entry.Error = &msg

	fb := classifier.Fallback(text)
	if entry.Classification == nil {
		entry.Classification = &fb
		entry.Tags = note.BuildTags(domain.TypeCapture, nil, vault)
	}

	dest := vault.LowConfidenceFolder() + "/" + Filename(fb.Title, ts) + ".md"
	content := note.RenderFallback(text, ts, vault)

	if err := p.store.Put(ctx, dest, []byte(content), "text/markdown"); err != nil {
		log.Error("fallback write failed", zap.Error(err))
		p.sendText(ctx, log, chatID, fmt.Sprintf("❌ Capture failed: %s", err))
		return
	}
	entry.Destination = &dest
	log.Info("fallback note written", zap.String("destination", dest))

	p.sendText(ctx, log, chatID, fmt.Sprintf("⚠️ Classified with fallback: %s", msg))
}

// respond acknowledges the capture according to its feedback tier.
func (p *Pipeline) respond(ctx context.Context, log *zap.Logger, chatID, messageID int64, c domain.Classification, vault config.Vault) {
	switch FeedbackTier(c, vault) {
	case TierSilent:
		p.react(ctx, log, chatID, messageID, "👍")
	case TierConfirm:
		p.react(ctx, log, chatID, messageID, "👍")
		p.sendText(ctx, log, chatID, fmt.Sprintf("📝 %s: %q", c.Type, c.Title))
	case TierInboxHint:
		p.sendText(ctx, log, chatID, "📥 Inbox. Prefix with type to route.")
	}
}

// notifySync triggers the external sync without awaiting it; its failure
// never touches pipeline state.
func (p *Pipeline) notifySync(ctx context.Context, dest string, log *zap.Logger) {
	if p.sync == nil {
		return
	}
	filename := path.Base(dest)
	go func(ctx context.Context) {
		if err := p.sync.NotifyCapture(ctx, filename); err != nil {
			log.Warn("sync notify failed", zap.String("filename", filename), zap.Error(err))
		}
	}(context.WithoutCancel(ctx))
}

func (p *Pipeline) sendText(ctx context.Context, log *zap.Logger, chatID int64, text string) {
	if err := p.notify.SendText(ctx, chatID, text); err != nil {
		log.Warn("send failed", zap.Error(err))
	}
}

func (p *Pipeline) react(ctx context.Context, log *zap.Logger, chatID, messageID int64, emoji string) {
	if err := p.notify.React(ctx, chatID, messageID, emoji); err != nil {
		log.Warn("reaction failed", zap.Error(err))
	}
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
