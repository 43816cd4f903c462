// Package api is the bot's HTTP surface: the Telegram webhook, health and
// smoke-test endpoints, and a capture export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ptrbln/vaultbot/internal/ask"
	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/capture"
	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/githubsync"
	"github.com/ptrbln/vaultbot/internal/telegram"
	"go.uber.org/zap"
)

// updateBudget bounds the background handling of one Telegram update.
const updateBudget = 60 * time.Second

// Server routes HTTP requests to the bot's collaborators.
type Server struct {
	cfg      config.App
	store    blob.Store
	pipeline *capture.Pipeline
	ask      *ask.Service
	tg       *telegram.Client
	gh       *githubsync.Notifier
	limiter  *rateLimiter
	logger   *zap.Logger
}

// New assembles the server.
func New(cfg config.App, store blob.Store, pipeline *capture.Pipeline, askSvc *ask.Service, tg *telegram.Client, gh *githubsync.Notifier, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		ask:      askSvc,
		tg:       tg,
		gh:       gh,
		limiter:  newRateLimiter(cfg.RateLimit.PerMinute),
		logger:   logger,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook", s.webhook)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /test", s.smokeTest)
	mux.HandleFunc("GET /captures/export", s.exportCaptures)

	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// telegramUpdate is the slice of the Bot API update the bot consumes.
type telegramUpdate struct {
	Message *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(zap.String("request_id", uuid.NewString()))

	ip := clientIP(r)
	if !isTelegramIP(ip) {
		log.Warn("webhook rejected: invalid source", zap.String("ip", ip))
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	if s.cfg.Telegram.WebhookSecret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.cfg.Telegram.WebhookSecret {
			log.Warn("webhook rejected: bad secret token")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	if update.Message != nil {
		chatID := update.Message.Chat.ID
		if !s.limiter.allow(chatID) {
			log.Warn("rate limited", zap.Int64("chat_id", chatID))
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = s.tg.SendText(ctx, chatID, "⚠️ Rate limited. Please wait a minute.")
			}()
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
	}

	// Answer the webhook immediately; Telegram retries slow responses.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), updateBudget)
		defer cancel()
		s.handleUpdate(ctx, log, update)
	}()

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{
		"gemini":   s.cfg.Gemini.APIKey != "",
		"telegram": s.cfg.Telegram.BotToken != "",
	}

	vaultOK := false
	content, err := s.store.Get(r.Context(), config.ContextKey)
	switch {
	case err == nil:
		vaultOK = len(content) > 1000
		checks["vault"] = map[string]any{"ok": vaultOK, "sizeKB": len(content) / 1024}
	case errors.Is(err, blob.ErrNotFound):
		checks["vault"] = map[string]any{"ok": false, "error": "No context file"}
	default:
		checks["vault"] = map[string]any{"ok": false, "error": err.Error()}
	}

	status := "degraded"
	if checks["gemini"] == true && checks["telegram"] == true && vaultOK {
		status = "healthy"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) smokeTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"message":   "Test endpoint reached",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]bool{
			"gemini":   s.cfg.Gemini.APIKey != "",
			"telegram": s.cfg.Telegram.BotToken != "",
			"vault":    s.store != nil,
		},
	})
}

// ExportedCapture is one inbox note in the export payload.
type ExportedCapture struct {
	Key      string    `json:"key"`
	Filename string    `json:"filename"`
	Uploaded time.Time `json:"uploaded"`
	Content  string    `json:"content"`
}

func (s *Server) exportCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.cfg.Telegram.BotToken {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	captures, err := ExportCaptures(r.Context(), s.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"captures":    captures,
		"count":       len(captures),
		"exported_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// ExportCaptures collects every inbox note with its content. The audit log
// (and any other underscore-prefixed bookkeeping object) is excluded.
func ExportCaptures(ctx context.Context, store blob.Store) ([]ExportedCapture, error) {
	vault := config.LoadVault(ctx, store, zap.NewNop())
	prefix := vault.LowConfidenceFolder() + "/"

	objects, err := store.List(ctx, prefix, 1000)
	if err != nil {
		return nil, err
	}

	captures := make([]ExportedCapture, 0, len(objects))
	for _, o := range objects {
		name := o.Key[len(prefix):]
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		content, err := store.Get(ctx, o.Key)
		if err != nil {
			continue
		}
		captures = append(captures, ExportedCapture{
			Key:      o.Key,
			Filename: name,
			Uploaded: o.Uploaded,
			Content:  string(content),
		})
	}
	return captures, nil
}

// clientIP prefers the proxy-reported address, falling back to the socket.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
