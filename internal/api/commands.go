package api

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ptrbln/vaultbot/internal/ask"
	"github.com/ptrbln/vaultbot/internal/config"
	"go.uber.org/zap"
)

const helpText = `*Second Brain Bot*

📝 *Capture* - Just send any text
/ask <query> - Query your vault
/inbox - What needs attention in inbox
/summary - Summarize today's captures
/digest - Trigger morning digest
/digest evening - Trigger evening digest
/recent - Show recent captures
/stats - Vault statistics
/help - This message

_Tip: Send links, ideas, or notes - they're saved to your inbox for processing._`

// handleUpdate routes one Telegram update: command messages to their
// handlers, everything else into the capture pipeline.
func (s *Server) handleUpdate(ctx context.Context, log *zap.Logger, update telegramUpdate) {
	if update.Message == nil || update.Message.Text == "" {
		log.Debug("update without text, skipping")
		return
	}

	chatID := update.Message.Chat.ID
	messageID := update.Message.MessageID
	text := update.Message.Text

	if allowed := s.cfg.Telegram.AllowedUserID; allowed != "" {
		if strconv.FormatInt(update.Message.From.ID, 10) != allowed {
			_ = s.tg.SendText(ctx, chatID, "⛔ Unauthorized")
			return
		}
	}

	switch {
	case strings.HasPrefix(text, "/ask "):
		s.handleAsk(ctx, log, chatID, messageID, strings.TrimSpace(text[len("/ask "):]))
	case text == "/help" || text == "/start":
		_ = s.tg.SendText(ctx, chatID, helpText)
	case text == "/recent":
		s.handleRecent(ctx, log, chatID)
	case text == "/stats":
		s.handleStats(ctx, log, chatID)
	case text == "/health":
		_ = s.tg.SendText(ctx, chatID, "✅ Bot is running")
	case text == "/digest" || text == "/digest morning" || text == "/digest evening":
		kind := "morning"
		if strings.Contains(text, "evening") {
			kind = "evening"
		}
		s.handleDigest(ctx, log, chatID, kind)
	case text == "/inbox":
		s.handleAsk(ctx, log, chatID, messageID, "what needs attention in inbox? prioritize by age and importance")
	case text == "/summary":
		s.handleAsk(ctx, log, chatID, messageID, "summarize today's captures concisely")
	case strings.HasPrefix(text, "/"):
		_ = s.tg.SendText(ctx, chatID, "Unknown command. Try /help")
	default:
		s.pipeline.Handle(ctx, chatID, messageID, text)
	}
}

func (s *Server) handleAsk(ctx context.Context, log *zap.Logger, chatID, messageID int64, query string) {
	start := time.Now()
	_ = s.tg.SendChatAction(ctx, chatID, "typing")

	result, err := s.ask.Answer(ctx, query)
	if err != nil {
		log.Warn("ask failed", zap.Error(err))
		elapsed := time.Since(start).Seconds()
		if errors.Is(err, ask.ErrTimeout) {
			_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("⏱️ Query timed out after %.1fs. Try a simpler question.", elapsed))
		} else {
			_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("❌ %s\n\n_⚡ %.1fs_", err, elapsed))
			s.tg.Alert(ctx, s.operatorChatID(), "/ask", err)
		}
		return
	}

	stale := ""
	if !result.SyncedAt.IsZero() {
		if age := time.Since(result.SyncedAt); age > 24*time.Hour {
			stale = fmt.Sprintf(" ⚠️ %dh stale", int(age.Hours()))
		}
	}
	response := fmt.Sprintf("%s\n\n_⚡ %.1fs · %dKB vault%s_", result.Answer, result.Elapsed.Seconds(), result.VaultKB, stale)
	_ = s.tg.Reply(ctx, chatID, messageID, response)
}

// capture filenames end with a timestamp suffix; pull date and time out for
// the listing.
var filenameStamp = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})T(\d{2})-(\d{2})`)

func (s *Server) handleRecent(ctx context.Context, log *zap.Logger, chatID int64) {
	vault := config.LoadVault(ctx, s.store, log)
	prefix := vault.LowConfidenceFolder() + "/"

	objects, err := s.store.List(ctx, prefix, 10)
	if err != nil {
		log.Warn("recent listing failed", zap.Error(err))
		_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("❌ %s", err))
		return
	}

	notes := objects[:0]
	for _, o := range objects {
		if !strings.HasPrefix(strings.TrimPrefix(o.Key, prefix), "_") {
			notes = append(notes, o)
		}
	}
	if len(notes) == 0 {
		_ = s.tg.SendText(ctx, chatID, "_📭 Inbox empty_")
		return
	}

	shown := notes
	if len(shown) > 5 {
		shown = shown[:5]
	}

	var sb strings.Builder
	sb.WriteString("*📬 Recent Captures*\n\n")
	for _, o := range shown {
		content, err := s.store.Get(ctx, o.Key)
		if err != nil {
			continue
		}

		preview := "(empty)"
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || line == "---" {
				continue
			}
			preview = line
			break
		}
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}

		stamp := "unknown"
		if m := filenameStamp.FindStringSubmatch(o.Key); m != nil {
			stamp = fmt.Sprintf("%s %s:%s", m[1], m[2], m[3])
		}

		fmt.Fprintf(&sb, "• _%s_\n%s\n\n", stamp, preview)
	}
	fmt.Fprintf(&sb, "_%d total in inbox_", len(notes))

	_ = s.tg.SendText(ctx, chatID, sb.String())
}

var contextFileHeading = regexp.MustCompile(`(?m)^## File: `)
var contextSyncMarker = regexp.MustCompile(`<!-- synced: (\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z) -->`)

func (s *Server) handleStats(ctx context.Context, log *zap.Logger, chatID int64) {
	vaultInfo := "Not synced"
	if content, err := s.store.Get(ctx, config.ContextKey); err == nil {
		files := len(contextFileHeading.FindAllIndex(content, -1))

		syncInfo := ""
		if m := contextSyncMarker.FindSubmatch(content); m != nil {
			if t, err := time.Parse("2006-01-02T15:04:05Z", string(m[1])); err == nil {
				age := int(time.Since(t).Hours())
				mark := " ✓"
				if age > 24 {
					mark = " ⚠️"
				}
				syncInfo = fmt.Sprintf(" (%dh ago)%s", age, mark)
			}
		}

		vaultInfo = fmt.Sprintf("%dKB · %d files%s", len(content)/1024, files, syncInfo)
	}

	vault := config.LoadVault(ctx, s.store, log)
	inbox, err := s.store.List(ctx, vault.LowConfidenceFolder()+"/", 100)
	if err != nil {
		log.Warn("inbox listing failed", zap.Error(err))
	}

	stats := fmt.Sprintf(`*📊 Vault Stats*

📁 Context: %s
📬 Inbox: %d captures
🤖 Model: %s

_Run sync-vault.sh to update context_`, vaultInfo, len(inbox), s.cfg.Model)

	_ = s.tg.SendText(ctx, chatID, stats)
}

func (s *Server) handleDigest(ctx context.Context, log *zap.Logger, chatID int64, kind string) {
	if !s.gh.Enabled() {
		_ = s.tg.SendText(ctx, chatID, "❌ GitHub sync not configured")
		return
	}

	_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("⏳ Triggering %s digest...", kind))

	if err := s.gh.TriggerDigest(ctx, kind); err != nil {
		log.Warn("digest trigger failed", zap.Error(err))
		_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("❌ %s", err))
		return
	}
	_ = s.tg.SendText(ctx, chatID, fmt.Sprintf("✅ %s digest triggered - check Telegram in ~10s", kind))
}

// operatorChatID is the allowed user's chat for error alerts; 0 disables.
func (s *Server) operatorChatID() int64 {
	id, err := strconv.ParseInt(s.cfg.Telegram.AllowedUserID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
