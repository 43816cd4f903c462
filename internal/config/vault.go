// Package config holds the two configuration layers: the service's own
// settings (app.go) and the vault's classification settings (vault.go),
// which live inside the vault itself as _vault_context.md sections.
package config

import (
	"context"
	"strconv"
	"strings"

	"github.com/ptrbln/vaultbot/internal/blob"
	"github.com/ptrbln/vaultbot/internal/domain"
	"go.uber.org/zap"
)

// ContextKey is the vault object holding both the aggregated vault content
// and the classification config sections.
const ContextKey = "_vault_context.md"

// Thresholds are the two confidence cut points driving routing and feedback.
type Thresholds struct {
	High   float64
	Medium float64
}

// Vault is the classification configuration: where each type files, which
// topic keywords exist, which tags each type carries, and the thresholds.
type Vault struct {
	Folders       map[string]string
	TopicKeywords map[string][]string
	TypeTags      map[string]string
	Thresholds    Thresholds
}

// Folder keys beyond the capture types.
const (
	FolderLowConfidence = "low_confidence"
	TagTelegram         = "telegram"
	TagNeedsReview      = "needs_review"
)

// DefaultVault returns the built-in configuration. Every section of a loaded
// config is merged over this, so a partial or absent file still yields a
// complete Vault.
func DefaultVault() Vault {
	return Vault{
		Folders: map[string]string{
			string(domain.TypePerson):    "People",
			string(domain.TypeProject):   "Projects",
			string(domain.TypeKnowledge): "Knowledge",
			string(domain.TypeAction):    "0-Inbox",
			string(domain.TypeCapture):   "0-Inbox",
			FolderLowConfidence:          "0-Inbox",
		},
		TopicKeywords: map[string][]string{},
		TypeTags: map[string]string{
			string(domain.TypePerson):    "#person",
			string(domain.TypeProject):   "#project",
			string(domain.TypeKnowledge): "#knowledge",
			string(domain.TypeAction):    "#action",
			string(domain.TypeCapture):   "#capture",
			TagTelegram:                  "#telegram",
			TagNeedsReview:               "#needs-review",
		},
		Thresholds: Thresholds{High: 0.7, Medium: 0.5},
	}
}

// ParseVault extracts the config sections from the vault context markdown.
// Sections are `### Folders`, `### Topic Keywords`, `### Type Tags` and
// `### Confidence Thresholds`; entries are `key: value` lines. Anything it
// doesn't understand is skipped. The result is partial and meant for
// MergeVault.
func ParseVault(content string) Vault {
	cfg := Vault{
		Folders:       map[string]string{},
		TopicKeywords: map[string][]string{},
		TypeTags:      map[string]string{},
	}

	section := ""
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "### ") {
			section = strings.ToLower(strings.ReplaceAll(trimmed[4:], " ", "_"))
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || section == "" || key == "" || value == "" {
			continue
		}

		switch section {
		case "folders":
			// person_folder: People
			cfg.Folders[strings.TrimSuffix(key, "_folder")] = value
		case "topic_keywords":
			// genai: AI, LLM, RAG
			var keywords []string
			for _, kw := range strings.Split(value, ",") {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" {
					keywords = append(keywords, kw)
				}
			}
			cfg.TopicKeywords[key] = keywords
		case "type_tags":
			// person: #person
			cfg.TypeTags[key] = value
		case "confidence_thresholds":
			// high_confidence: 0.7
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			switch key {
			case "high_confidence":
				cfg.Thresholds.High = n
			case "medium_confidence":
				cfg.Thresholds.Medium = n
			}
		}
	}

	return cfg
}

// MergeVault overlays a partial config on a base, key by key. A section is
// never replaced wholesale: every base entry survives unless the overlay
// names it. Pure; neither argument is mutated.
func MergeVault(base, overlay Vault) Vault {
	out := Vault{
		Folders:       make(map[string]string, len(base.Folders)),
		TopicKeywords: make(map[string][]string, len(base.TopicKeywords)),
		TypeTags:      make(map[string]string, len(base.TypeTags)),
		Thresholds:    base.Thresholds,
	}
	for k, v := range base.Folders {
		out.Folders[k] = v
	}
	for k, v := range overlay.Folders {
		out.Folders[k] = v
	}
	for k, v := range base.TopicKeywords {
		out.TopicKeywords[k] = v
	}
	for k, v := range overlay.TopicKeywords {
		out.TopicKeywords[k] = v
	}
	for k, v := range base.TypeTags {
		out.TypeTags[k] = v
	}
	for k, v := range overlay.TypeTags {
		out.TypeTags[k] = v
	}
	if overlay.Thresholds.High != 0 {
		out.Thresholds.High = overlay.Thresholds.High
	}
	if overlay.Thresholds.Medium != 0 {
		out.Thresholds.Medium = overlay.Thresholds.Medium
	}
	return out
}

// LoadVault reads the vault config from storage. Absence or unreadability is
// not an error: the defaults apply.
func LoadVault(ctx context.Context, store blob.Store, logger *zap.Logger) Vault {
	defaults := DefaultVault()

	content, err := store.Get(ctx, ContextKey)
	if err != nil {
		if err != blob.ErrNotFound {
			logger.Warn("vault config unreadable, using defaults", zap.Error(err))
		}
		return defaults
	}

	return MergeVault(defaults, ParseVault(string(content)))
}

// Folder returns the configured folder for a type, falling back to the
// built-in default mapping.
func (v Vault) Folder(t domain.CaptureType) string {
	if folder, ok := v.Folders[string(t)]; ok {
		return folder
	}
	if folder, ok := DefaultVault().Folders[string(t)]; ok {
		return folder
	}
	return "0-Inbox"
}

// LowConfidenceFolder returns where uncertain captures land.
func (v Vault) LowConfidenceFolder() string {
	if folder, ok := v.Folders[FolderLowConfidence]; ok {
		return folder
	}
	return "0-Inbox"
}

// TypeTag returns the tag for a type key, defaulting to "#<key>".
func (v Vault) TypeTag(key string) string {
	if tag, ok := v.TypeTags[key]; ok {
		return tag
	}
	return "#" + key
}
