// Package ask answers questions over the pre-aggregated vault context. It is
// a plain request/response flow, separate from the capture pipeline.
package ask

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/classifier"
	"github.com/ptrbln/vaultbot/internal/config"
	"go.uber.org/zap"
)

// ErrTimeout marks an answer that exceeded the wall-clock budget.
var ErrTimeout = errors.New("ask: TIMEOUT")

// Timeout is the wall-clock budget for load-and-answer.
const Timeout = 25 * time.Second

const (
	answerMaxTokens   = 1024
	answerTemperature = 0.7
	maxQueryLen       = 1000
)

// Result is an answer plus vault metadata for the response footer.
type Result struct {
	Answer    string
	VaultKB   int
	SyncedAt  time.Time // zero when the context has no sync marker
	Elapsed   time.Duration
}

// Service queries the vault context through a Generator.
type Service struct {
	store  blob.Store
	gen    classifier.Generator
	logger *zap.Logger
}

// New returns an ask Service.
func New(store blob.Store, gen classifier.Generator, logger *zap.Logger) *Service {
	return &Service{store: store, gen: gen, logger: logger}
}

var syncMarker = regexp.MustCompile(`<!-- synced: (\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z) -->`)

// Patterns that try to override the prompt's instructions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous |above |prior )?instructions`),
	regexp.MustCompile(`(?i)disregard (all )?(previous |above |prior )?instructions`),
	regexp.MustCompile(`(?i)forget (all )?(previous |above |prior )?instructions`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)new instructions:`),
	regexp.MustCompile(`(?i)system prompt:`),
}

// SanitizeQuery removes instruction-override phrasing and caps the length
// against context stuffing.
func SanitizeQuery(query string) string {
	sanitized := query
	for _, p := range injectionPatterns {
		sanitized = p.ReplaceAllString(sanitized, "[removed]")
	}
	if len(sanitized) > maxQueryLen {
		sanitized = sanitized[:maxQueryLen]
	}
	return sanitized
}

// Answer loads the vault context and answers the query, racing the whole
// unit of work against the timeout.
func (s *Service) Answer(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	go func() {
		r, err := s.answer(ctx, query)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		o.result.Elapsed = time.Since(start)
		return o.result, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

func (s *Service) answer(ctx context.Context, query string) (*Result, error) {
	content, err := s.store.Get(ctx, config.ContextKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("vault empty - run sync first")
		}
		return nil, fmt.Errorf("load vault context: %w", err)
	}

	result := &Result{VaultKB: len(content) / 1024}
	if m := syncMarker.FindSubmatch(content); m != nil {
		if t, err := time.Parse("2006-01-02T15:04:05Z", string(m[1])); err == nil {
			result.SyncedAt = t
		}
	}

	prompt := buildPrompt(string(content), SanitizeQuery(query))
	answer, err := s.gen.Generate(ctx, prompt, answerMaxTokens, answerTemperature)
	if err != nil {
		return nil, fmt.Errorf("query vault: %w", err)
	}

	result.Answer = answer
	return result, nil
}

func buildPrompt(vaultContent, query string) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant with access to a personal knowledge vault.\n\n")
	sb.WriteString("Here is the vault content:\n\n")
	sb.WriteString(vaultContent)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("Based on the vault content above, answer this question:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nBe concise and specific. If you can't find relevant information in the vault, say so.\n")
	sb.WriteString("Cite which files you found the information in when relevant.")
	return sb.String()
}
