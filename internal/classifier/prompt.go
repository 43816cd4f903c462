package classifier

import (
	"sort"
	"strings"

	"github.com/ptrbln/vaultbot/internal/config"
)

// BuildPrompt assembles the classification prompt: the type taxonomy, the
// configured topic keywords, and the output schema. The capture text is
// appended by the caller under its own heading.
func BuildPrompt(vault config.Vault) string {
	var sb strings.Builder

	sb.WriteString(`You are a capture classifier for a personal knowledge vault.

Given raw text, classify it and return JSON only.

## Types

- person: Mentions a specific person by name with meaningful context (met someone, conversation about someone, contact info)
- project: Describes time-bound work with identifiable deliverables or next steps
- knowledge: Insight, observation, learning, or information worth preserving
- action: Task requiring execution (todo, reminder, errand, follow-up)
- capture: Default when uncertain or doesn't fit other types

## Topic Tags (for knowledge type)
`)
	sb.WriteString(topicList(vault.TopicKeywords))
	sb.WriteString(`

## Output Schema

{
  "type": "person|project|knowledge|action|capture",
  "confidence": 0.0-1.0,
  "title": "Short descriptive title (3-7 words)",
  "topics": ["topic_key1", "topic_key2"],
  "fields": {
    // For person: { "context": "role/company", "follow_ups": ["action1"] }
    // For project: { "status": "active|planning|blocked", "next_action": "specific step" }
    // For knowledge: { "one_liner": "single sentence summary" }
    // For action: { "due_date": "YYYY-MM-DD or null" }
    // For capture: {}
  }
}

Rules:
- Return JSON only. No markdown fences. No explanation.
- topics: Return ALL matching topic keys, not just one. Empty array if none match.
- confidence 0.8+ = very clear match to type
- confidence 0.5-0.8 = reasonable match with some ambiguity
- confidence <0.5 = uncertain, probably should be capture
- title should be suitable as a filename (no special characters)
`)

	return sb.String()
}

// topicList renders the configured topic keyword groups as "- key: a, b, c"
// lines, sorted for prompt stability.
func topicList(groups map[string][]string) string {
	if len(groups) == 0 {
		return "(none configured)"
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, "- "+k+": "+strings.Join(groups[k], ", "))
	}
	return strings.Join(lines, "\n")
}
