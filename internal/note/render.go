// Package note renders classified captures into markdown vault notes.
package note

import (
	"fmt"
	"strings"
	"time"

	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/domain"
)

// BuildTags assembles the note's tag set: the type tag, the telegram source
// tag, one tag per topic, and the needs-review tag for the catch-all type.
// Topic duplicates are kept as-is.
func BuildTags(typ domain.CaptureType, topics []string, vault config.Vault) []string {
	tags := []string{
		vault.TypeTag(string(typ)),
		vault.TypeTag(config.TagTelegram),
	}

	for _, topic := range topics {
		tags = append(tags, "#"+topic)
	}

	if typ == domain.TypeCapture {
		tags = append(tags, vault.TypeTag(config.TagNeedsReview))
	}

	return tags
}

// Render produces the complete note document: frontmatter, tag line, title,
// the type-specific block, the original capture in a disclosure section, and
// a capture-time footer.
func Render(c domain.Classification, rawText string, ts time.Time, vault config.Vault) string {
	tags := BuildTags(c.Type, c.Topics, vault)
	stamp := ts.UTC().Format(time.RFC3339)

	bare := make([]string, len(tags))
	for i, t := range tags {
		bare[i] = strings.TrimPrefix(t, "#")
	}

	var parts []string

	parts = append(parts,
		"---",
		fmt.Sprintf("type: %s", c.Type),
		fmt.Sprintf("confidence: %g", c.Confidence),
		fmt.Sprintf("captured: %s", ts.UTC().Format("2006-01-02")),
		fmt.Sprintf("tags: [%s]", strings.Join(bare, ", ")),
		"---",
		"",
		strings.Join(tags, " "),
		"",
		fmt.Sprintf("# %s", c.Title),
		"",
	)

	if body := typeContent(c); body != "" {
		parts = append(parts, body, "")
	}

	parts = append(parts,
		"<details>",
		"<summary>Original capture</summary>",
		"",
		rawText,
		"",
		"</details>",
		"",
		"---",
		fmt.Sprintf("*Captured via Telegram: %s*", stamp),
	)

	return strings.Join(parts, "\n")
}

// RenderFallback produces the minimal artifact written when classification
// failed: tags, the raw text, and a review marker. No frontmatter; the note
// carries nothing the classifier didn't produce.
func RenderFallback(rawText string, ts time.Time, vault config.Vault) string {
	tags := strings.Join([]string{
		vault.TypeTag(config.TagTelegram),
		vault.TypeTag(string(domain.TypeCapture)),
		vault.TypeTag(config.TagNeedsReview),
	}, " ")

	return fmt.Sprintf(`%s

%s

---
*Captured via Telegram: %s*
*Classification failed - manual review needed*
`, tags, rawText, ts.UTC().Format(time.RFC3339))
}

// typeContent renders the block specific to the classification's type.
// Missing optional fields omit their line rather than erroring.
func typeContent(c domain.Classification) string {
	var parts []string

	switch c.Type {
	case domain.TypePerson:
		if c.Fields.Context != "" {
			parts = append(parts, fmt.Sprintf("**Context**: %s", c.Fields.Context))
		}
		if len(c.Fields.FollowUps) > 0 {
			parts = append(parts, "", "## Follow-ups")
			for _, f := range c.Fields.FollowUps {
				parts = append(parts, fmt.Sprintf("- [ ] %s", f))
			}
		}

	case domain.TypeProject:
		if c.Fields.Status != "" {
			parts = append(parts, fmt.Sprintf("**Status**: %s", c.Fields.Status))
		}
		if c.Fields.NextAction != "" {
			parts = append(parts, fmt.Sprintf("**Next action**: %s", c.Fields.NextAction))
		}

	case domain.TypeKnowledge:
		if c.Fields.OneLiner != "" {
			parts = append(parts, fmt.Sprintf("> %s", c.Fields.OneLiner))
		}

	case domain.TypeAction:
		if c.Fields.DueDate != "" {
			parts = append(parts, fmt.Sprintf("**Due**: %s", c.Fields.DueDate))
		}
		parts = append(parts, "", "- [ ] Complete this action")
	}

	return strings.Join(parts, "\n")
}
