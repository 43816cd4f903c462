package classifier

import (
	"fmt"
	"testing"

	"github.com/ptrbln/vaultbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_WellFormed(t *testing.T) {
	c := Validate(`{
		"type": "person",
		"confidence": 0.85,
		"title": "Sarah - Acme Corp",
		"topics": ["genai"],
		"fields": {"context": "CTO at Acme", "follow_ups": ["send deck"]}
	}`)

	require.NotNil(t, c)
	assert.Equal(t, domain.TypePerson, c.Type)
	assert.Equal(t, 0.85, c.Confidence)
	assert.Equal(t, "Sarah - Acme Corp", c.Title)
	assert.Equal(t, []string{"genai"}, c.Topics)
	assert.Equal(t, "CTO at Acme", c.Fields.Context)
	assert.Equal(t, []string{"send deck"}, c.Fields.FollowUps)
}

func TestValidate_MalformedJSON(t *testing.T) {
	assert.Nil(t, Validate("not valid json at all"))
	assert.Nil(t, Validate(""))
	assert.Nil(t, Validate("null"))
	assert.Nil(t, Validate("[1, 2, 3]"))
	assert.Nil(t, Validate(`"just a string"`))
}

func TestValidate_UnknownType(t *testing.T) {
	assert.Nil(t, Validate(`{"type": "recipe", "confidence": 0.9}`))
	assert.Nil(t, Validate(`{"confidence": 0.9, "title": "No type"}`))
	assert.Nil(t, Validate(`{"type": "", "confidence": 0.9}`))
}

func TestValidate_ConfidenceClamped(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"1.7", 1},
		{"-0.3", 0},
		{"0.42", 0.42},
		{"0", 0},
		{"1", 1},
		{`"0.6"`, 0.6},
		{`"not a number"`, 0.5},
		{"null", 0.5},
		{`{"nested": true}`, 0.5},
	}
	for _, tc := range cases {
		c := Validate(fmt.Sprintf(`{"type": "knowledge", "confidence": %s}`, tc.raw))
		require.NotNil(t, c, "confidence %s", tc.raw)
		assert.Equal(t, tc.want, c.Confidence, "confidence %s", tc.raw)
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}

func TestValidate_MissingConfidenceDefaults(t *testing.T) {
	c := Validate(`{"type": "action", "title": "Buy milk"}`)
	require.NotNil(t, c)
	assert.Equal(t, 0.5, c.Confidence)
}

func TestValidate_TitleDefaulted(t *testing.T) {
	c := Validate(`{"type": "capture", "confidence": 0.2}`)
	require.NotNil(t, c)
	assert.Equal(t, DefaultTitle, c.Title)
}

func TestValidate_TopicsCoercion(t *testing.T) {
	for _, raw := range []string{`"genai"`, `42`, `{"a": 1}`, `null`} {
		c := Validate(fmt.Sprintf(`{"type": "knowledge", "confidence": 0.8, "topics": %s}`, raw))
		require.NotNil(t, c, "topics %s", raw)
		assert.Empty(t, c.Topics, "topics %s", raw)
		assert.NotNil(t, c.Topics, "topics %s", raw)
	}
}

func TestValidate_TopicsDuplicatesKept(t *testing.T) {
	c := Validate(`{"type": "knowledge", "confidence": 0.8, "topics": ["a", "a", "b"]}`)
	require.NotNil(t, c)
	assert.Equal(t, []string{"a", "a", "b"}, c.Topics)
}

func TestValidate_FieldsCoercion(t *testing.T) {
	for _, raw := range []string{`"text"`, `[1]`, `null`, `7`} {
		c := Validate(fmt.Sprintf(`{"type": "person", "confidence": 0.8, "fields": %s}`, raw))
		require.NotNil(t, c, "fields %s", raw)
		assert.Equal(t, domain.Fields{}, c.Fields, "fields %s", raw)
	}
}

func TestValidate_FieldsShapedPerType(t *testing.T) {
	// A project must not keep person attributes the model sprayed in.
	c := Validate(`{
		"type": "project",
		"confidence": 0.7,
		"fields": {"status": "active", "next_action": "ship it", "context": "leaked", "one_liner": "leaked"}
	}`)
	require.NotNil(t, c)
	assert.Equal(t, "active", c.Fields.Status)
	assert.Equal(t, "ship it", c.Fields.NextAction)
	assert.Empty(t, c.Fields.Context)
	assert.Empty(t, c.Fields.OneLiner)
}

func TestValidate_StripsJSONFence(t *testing.T) {
	c := Validate("```json\n{\"type\": \"action\", \"confidence\": 0.9, \"title\": \"Call dentist\"}\n```")
	require.NotNil(t, c)
	assert.Equal(t, domain.TypeAction, c.Type)
	assert.Equal(t, "Call dentist", c.Title)
}

func TestValidate_StripsBareFence(t *testing.T) {
	c := Validate("```\n{\"type\": \"capture\", \"confidence\": 0.3}\n```")
	require.NotNil(t, c)
	assert.Equal(t, domain.TypeCapture, c.Type)
}

func TestStripFences_NoopOnPlainText(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, StripFences(`{"a": 1}`))
	assert.Equal(t, StripFences(`{"a": 1}`), StripFences(StripFences(`{"a": 1}`)))
}
