package capture

import (
	"strings"
	"time"

	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/domain"
)

// Tier is the user-feedback level derived from classification confidence.
// Tiering exists to avoid notification fatigue on uncertain classifications
// while still surfacing them for manual re-filing.
type Tier int

const (
	// TierSilent: high confidence, minimal acknowledgment (reaction only).
	TierSilent Tier = iota
	// TierConfirm: medium confidence, acknowledgment plus short description.
	TierConfirm
	// TierInboxHint: low confidence, generic routing hint only.
	TierInboxHint
)

// FeedbackTier maps confidence to a Tier using the configured thresholds.
func FeedbackTier(c domain.Classification, vault config.Vault) Tier {
	switch {
	case c.Confidence >= vault.Thresholds.High:
		return TierSilent
	case c.Confidence >= vault.Thresholds.Medium:
		return TierConfirm
	default:
		return TierInboxHint
	}
}

// Destination maps a classification to its full note path. Low-confidence
// captures go to the configured low-confidence folder regardless of type.
func Destination(c domain.Classification, vault config.Vault, ts time.Time) string {
	folder := vault.Folder(c.Type)
	if c.Confidence < vault.Thresholds.Medium {
		folder = vault.LowConfidenceFolder()
	}
	return folder + "/" + Filename(c.Title, ts) + ".md"
}

// Filename derives a unique, filesystem-safe name from the title and the
// capture timestamp.
func Filename(title string, ts time.Time) string {
	return SanitizeTitle(title) + " - " + timeSuffix(ts)
}

// SanitizeTitle strips characters unsafe for filenames, collapses
// whitespace, trims, and caps the length at 50. Idempotent: a sanitized
// title passes through unchanged.
func SanitizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range title {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		default:
			sb.WriteRune(r)
		}
	}
	safe := strings.Join(strings.Fields(sb.String()), " ")
	if len(safe) > 50 {
		safe = strings.TrimSpace(truncate(safe, 50))
	}
	return safe
}

// timeSuffix renders the timestamp with ':' and '.' replaced by '-',
// truncated to second precision (19 characters).
func timeSuffix(ts time.Time) string {
	s := ts.UTC().Format(time.RFC3339)
	s = strings.NewReplacer(":", "-", ".", "-").Replace(s)
	if len(s) > 19 {
		s = s[:19]
	}
	return s
}
