package capture

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ptrbln/vaultbot/internal/config"
	"github.com/ptrbln/vaultbot/internal/domain"
	"github.com/stretchr/testify/assert"
)

var testTS = time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)

func TestFeedbackTier(t *testing.T) {
	vault := config.DefaultVault()

	cases := []struct {
		confidence float64
		want       Tier
	}{
		{0.85, TierSilent},
		{0.7, TierSilent},
		{0.6, TierConfirm},
		{0.5, TierConfirm},
		{0.49, TierInboxHint},
		{0.3, TierInboxHint},
		{0, TierInboxHint},
	}
	for _, tc := range cases {
		got := FeedbackTier(domain.Classification{Confidence: tc.confidence}, vault)
		assert.Equal(t, tc.want, got, "confidence %v", tc.confidence)
	}
}

func TestDestination_ByType(t *testing.T) {
	vault := config.DefaultVault()

	cases := []struct {
		typ        domain.CaptureType
		confidence float64
		folder     string
	}{
		{domain.TypePerson, 0.85, "People"},
		{domain.TypeProject, 0.6, "Projects"},
		{domain.TypeKnowledge, 0.9, "Knowledge"},
		{domain.TypeAction, 0.8, "0-Inbox"},
		{domain.TypeCapture, 0.55, "0-Inbox"},
	}
	for _, tc := range cases {
		c := domain.Classification{Type: tc.typ, Confidence: tc.confidence, Title: "Some Note"}
		dest := Destination(c, vault, testTS)
		assert.True(t, strings.HasPrefix(dest, tc.folder+"/"), "type %s: got %s", tc.typ, dest)
		assert.True(t, strings.HasSuffix(dest, ".md"))
	}
}

func TestDestination_LowConfidenceOverridesType(t *testing.T) {
	vault := config.DefaultVault()
	c := domain.Classification{Type: domain.TypePerson, Confidence: 0.3, Title: "Maybe Sarah"}

	dest := Destination(c, vault, testTS)
	assert.True(t, strings.HasPrefix(dest, "0-Inbox/"), "got %s", dest)
}

func TestDestination_ConfiguredFolders(t *testing.T) {
	vault := config.DefaultVault()
	vault.Folders["person"] = "Contacts"
	vault.Folders[config.FolderLowConfidence] = "Triage"

	high := domain.Classification{Type: domain.TypePerson, Confidence: 0.9, Title: "Sarah"}
	low := domain.Classification{Type: domain.TypePerson, Confidence: 0.2, Title: "Sarah"}

	assert.True(t, strings.HasPrefix(Destination(high, vault, testTS), "Contacts/"))
	assert.True(t, strings.HasPrefix(Destination(low, vault, testTS), "Triage/"))
}

func TestDestination_Deterministic(t *testing.T) {
	vault := config.DefaultVault()
	c := domain.Classification{Type: domain.TypeKnowledge, Confidence: 0.8, Title: "Go scheduler notes"}

	first := Destination(c, vault, testTS)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Destination(c, vault, testTS))
	}
}

func TestFilename_Format(t *testing.T) {
	got := Filename("Met Sarah from Acme", testTS)
	assert.Equal(t, "Met Sarah from Acme - 2026-08-28T14-30-05", got)
}

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Met Sarah from Acme", "Met Sarah from Acme"},
		{`What <is> "this": a/b\c|d?e*f`, "What is this abcdef"},
		{"  lots   of \t whitespace  ", "lots of whitespace"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"", ""},
		{`///\\\***`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeTitle(tc.in), "input %q", tc.in)
	}
}

func TestSanitizeTitle_Idempotent(t *testing.T) {
	inputs := []string{
		"Met Sarah from Acme",
		`Weird: <title> with / lots \ of | junk ? here * and more words to push past the cap`,
		"   padded   ",
		strings.Repeat("word ", 20),
		strings.Repeat("a", 49) + "élan vital",
		"日本語のタイトルが五十バイトを超えるとどうなるか見てみましょう",
	}
	for _, in := range inputs {
		once := SanitizeTitle(in)
		assert.Equal(t, once, SanitizeTitle(once), "input %q", in)
	}
}

func TestSanitizeTitle_MultibyteCapKeepsValidUTF8(t *testing.T) {
	// The 50-byte cap must not split a rune in half.
	in := strings.Repeat("a", 49) + "élan vital"
	got := SanitizeTitle(in)
	assert.True(t, utf8.ValidString(got), "got %q", got)
	assert.LessOrEqual(t, len(got), 50)
	assert.Equal(t, strings.Repeat("a", 49), got)

	got = SanitizeTitle("título três " + strings.Repeat("é", 30))
	assert.True(t, utf8.ValidString(got), "got %q", got)
	assert.LessOrEqual(t, len(got), 50)
}

func TestTimeSuffix_NoUnsafeCharacters(t *testing.T) {
	s := timeSuffix(time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("CET", 3600)))
	assert.NotContains(t, s, ":")
	assert.NotContains(t, s, ".")
	assert.Len(t, s, 19)
	// Zone offsets normalize to UTC before formatting.
	assert.Equal(t, "2026-01-02T02-04-05", s)
}
