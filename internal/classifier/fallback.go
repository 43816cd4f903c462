package classifier

import (
	"strings"

	"github.com/ptrbln/vaultbot/internal/domain"
)

// Fallback builds the deterministic classification used when the external
// classifier fails at any stage. It keeps the pipeline shape identical:
// routing and rendering consume it like any other classification.
func Fallback(text string) domain.Classification {
	title := "Capture"
	if words := strings.Fields(text); len(words) > 0 {
		if len(words) > 5 {
			words = words[:5]
		}
		title = "Capture - " + strings.Join(words, " ")
		title = truncate(title, 50)
	}

	return domain.Classification{
		Type:       domain.TypeCapture,
		Confidence: 0,
		Title:      title,
		Topics:     []string{},
	}
}
