package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ptrbln/vaultbot/internal/ask"
	"github.com/ptrbln/vaultbot/internal/audit"
	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/capture"
	"github.com/ptrbln/vaultbot/internal/classifier"
	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/githubsync"
	"github.com/ptrbln/vaultbot/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const telegramSourceIP = "149.154.167.50"

type stubGen struct {
	response string
}

func (g *stubGen) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return g.response, nil
}

// fakeTelegram records the texts the bot sends out.
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTelegram) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if path.Base(r.URL.Path) == "sendMessage" {
			if text, ok := body["text"].(string); ok {
				f.mu.Lock()
				f.texts = append(f.texts, text)
				f.mu.Unlock()
			}
		}
		w.Write([]byte(`{"ok":true}`))
	})
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTelegram) sentContaining(substr string) bool {
	for _, text := range f.sent() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	server *Server
	store  *blob.MemoryStore
	tgAPI  *fakeTelegram
}

func newHarness(t *testing.T, gen classifier.Generator) *harness {
	t.Helper()
	logger := zap.NewNop()

	tgAPI := &fakeTelegram{}
	srv := httptest.NewServer(tgAPI.handler())
	t.Cleanup(srv.Close)

	tg, err := telegram.New("token", logger, telegram.WithBaseURL(srv.URL))
	require.NoError(t, err)

	store := blob.NewMemory()
	cls := classifier.New(gen, logger)
	aud := audit.NewWriter(store, logger)
	pipeline := capture.New(store, cls, tg, aud, logger,
		capture.WithClock(func() time.Time { return time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC) }))
	askSvc := ask.New(store, gen, logger)

	cfg := config.DefaultApp()
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.WebhookSecret = "hook-secret"
	cfg.Telegram.AllowedUserID = "42"
	cfg.Gemini.APIKey = "key"

	server := New(cfg, store, pipeline, askSvc, tg, githubsync.New("", "", logger), logger)
	return &harness{server: server, store: store, tgAPI: tgAPI}
}

func webhookRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	r.Header.Set("X-Forwarded-For", telegramSourceIP)
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	return r
}

func messageJSON(fromID int64, text string) string {
	b, _ := json.Marshal(map[string]any{
		"message": map[string]any{
			"message_id": 7,
			"text":       text,
			"chat":       map[string]any{"id": 42},
			"from":       map[string]any{"id": fromID},
		},
	})
	return string(b)
}

func TestWebhook_RejectsForeignIP(t *testing.T) {
	h := newHarness(t, &stubGen{})
	r := webhookRequest(`{}`)
	r.Header.Set("X-Forwarded-For", "8.8.8.8")

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	h := newHarness(t, &stubGen{})
	r := webhookRequest(`{}`)
	r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_RejectsMalformedBody(t *testing.T) {
	h := newHarness(t, &stubGen{})

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, webhookRequest(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_AcceptsAndCaptures(t *testing.T) {
	h := newHarness(t, &stubGen{response: `{"type":"person","confidence":0.9,"title":"Met Sarah","topics":[]}`})

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, webhookRequest(messageJSON(42, "met Sarah from Acme")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)

	// The update is processed in the background.
	assert.Eventually(t, func() bool {
		objects, err := h.store.List(context.Background(), "People/", 0)
		return err == nil && len(objects) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWebhook_RateLimited(t *testing.T) {
	h := newHarness(t, &stubGen{response: `{"type":"capture","confidence":0.6,"title":"x","topics":[]}`})
	h.server.limiter = newRateLimiter(1)

	h1 := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(h1, webhookRequest(messageJSON(42, "first")))
	h2 := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(h2, webhookRequest(messageJSON(42, "second")))

	// Both answer 200 so Telegram stops retrying, but the second is warned.
	assert.Equal(t, http.StatusOK, h1.Code)
	assert.Equal(t, http.StatusOK, h2.Code)
	assert.Eventually(t, func() bool {
		return h.tgAPI.sentContaining("Rate limited")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHandleUpdate_UnauthorizedUser(t *testing.T) {
	h := newHarness(t, &stubGen{})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(999, "hello")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("Unauthorized"))
	objects, err := h.store.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestHandleUpdate_Help(t *testing.T) {
	h := newHarness(t, &stubGen{})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/help")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("Second Brain Bot"))
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	h := newHarness(t, &stubGen{})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/frobnicate")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("Unknown command"))
}

func TestHandleUpdate_AskAnswersWithFooter(t *testing.T) {
	h := newHarness(t, &stubGen{response: "You met Sarah."})
	require.NoError(t, h.store.Put(context.Background(), config.ContextKey,
		[]byte("<!-- synced: 2099-01-01T00:00:00Z -->\nSarah works at Acme."), "text/markdown"))

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/ask who did I meet?")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("You met Sarah."))
	assert.True(t, h.tgAPI.sentContaining("KB vault"))
}

func TestHandleUpdate_AskEmptyVault(t *testing.T) {
	h := newHarness(t, &stubGen{response: "irrelevant"})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/ask anything")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("vault empty"))
}

func TestHandleUpdate_Recent(t *testing.T) {
	h := newHarness(t, &stubGen{})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, "0-Inbox/Idea - 2026-08-28T10-00-00.md", []byte("#capture\n\nan idea worth keeping"), ""))
	require.NoError(t, h.store.Put(ctx, "0-Inbox/_capture_log.jsonl", []byte("{}"), ""))

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/recent")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("an idea worth keeping"))
	assert.True(t, h.tgAPI.sentContaining("2026-08-28 10:00"))
	assert.False(t, h.tgAPI.sentContaining("_capture_log"))
}

func TestHandleUpdate_RecentEmpty(t *testing.T) {
	h := newHarness(t, &stubGen{})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/recent")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("Inbox empty"))
}

func TestHandleUpdate_DigestWithoutGitHub(t *testing.T) {
	h := newHarness(t, &stubGen{})

	var update telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(messageJSON(42, "/digest")), &update))
	h.server.handleUpdate(context.Background(), zap.NewNop(), update)

	assert.True(t, h.tgAPI.sentContaining("GitHub sync not configured"))
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &stubGen{})

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])

	// A synced context above the size floor makes it healthy.
	require.NoError(t, h.store.Put(context.Background(), config.ContextKey,
		[]byte(strings.Repeat("vault content\n", 100)), "text/markdown"))

	w = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestExportCaptures_Endpoint(t *testing.T) {
	h := newHarness(t, &stubGen{})
	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, "0-Inbox/Idea - 2026-08-28T10-00-00.md", []byte("an idea"), ""))
	require.NoError(t, h.store.Put(ctx, "0-Inbox/_capture_log.jsonl", []byte("{}"), ""))
	require.NoError(t, h.store.Put(ctx, "People/Sarah.md", []byte("# Sarah"), ""))

	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/captures/export", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/captures/export", nil)
	r.Header.Set("Authorization", "Bearer token")
	w = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Captures []ExportedCapture `json:"captures"`
		Count    int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "0-Inbox/Idea - 2026-08-28T10-00-00.md", resp.Captures[0].Key)
	assert.Equal(t, "Idea - 2026-08-28T10-00-00.md", resp.Captures[0].Filename)
	assert.Equal(t, "an idea", resp.Captures[0].Content)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "149.154.167.50")
	assert.Equal(t, "149.154.167.50", clientIP(r))

	r.Header.Set("X-Forwarded-For", "149.154.167.50, 10.0.0.2")
	assert.Equal(t, "149.154.167.50", clientIP(r))
}
