// Package classifier turns raw capture text into a validated Classification
// by prompting an external text-generation capability and normalizing its
// output against the capture taxonomy.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/domain"
	"go.uber.org/zap"
)

// ErrInvalidResponse marks output the validator rejected: bad JSON, a
// non-object payload, or an unknown type. Callers treat it like any other
// classification failure but don't surface it to the user as a distinct
// error.
var ErrInvalidResponse = errors.New("classifier: invalid response")

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Bounded output and low temperature favor well-formed JSON over creativity.
const (
	classifyMaxTokens   = 512
	classifyTemperature = 0.3
)

// Classifier classifies captures through a Generator.
type Classifier struct {
	gen    Generator
	logger *zap.Logger
}

// New returns a Classifier using gen.
func New(gen Generator, logger *zap.Logger) *Classifier {
	return &Classifier{gen: gen, logger: logger}
}

// Classify prompts the generator with the capture text and returns the
// validated classification. Transport failures and unusable output both
// return errors; the caller decides fallback behavior.
func (c *Classifier) Classify(ctx context.Context, text string, vault config.Vault) (*domain.Classification, error) {
	prompt := BuildPrompt(vault) + "\n\n## Text to Classify\n\n" + text

	raw, err := c.gen.Generate(ctx, prompt, classifyMaxTokens, classifyTemperature)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	validated := Validate(raw)
	if validated == nil {
		c.logger.Warn("classifier returned unusable output", zap.String("raw", truncate(raw, 200)))
		return nil, ErrInvalidResponse
	}

	return validated, nil
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
