package classifier

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ptrbln/vaultbot/internal/domain"
)

// DefaultTitle is used when the classifier returns no usable title.
const DefaultTitle = "Untitled Capture"

// rawClassification tolerates the shapes a model actually produces:
// confidence as number or string, topics and fields of any JSON type.
type rawClassification struct {
	Type       string          `json:"type"`
	Confidence json.RawMessage `json:"confidence"`
	Title      string          `json:"title"`
	Topics     json.RawMessage `json:"topics"`
	Fields     json.RawMessage `json:"fields"`
}

// Validate parses the classifier's raw output and normalizes it into a
// Classification. Markdown code fences are stripped first. A nil return
// means the output is unusable and the fallback applies: malformed JSON, a
// non-object payload, or a type outside the taxonomy.
func Validate(raw string) *domain.Classification {
	cleaned := StripFences(raw)

	var rc rawClassification
	if err := json.Unmarshal([]byte(cleaned), &rc); err != nil {
		return nil
	}

	typ, ok := domain.ParseCaptureType(rc.Type)
	if !ok {
		return nil
	}

	c := domain.Classification{
		Type:       typ,
		Confidence: coerceConfidence(rc.Confidence),
		Title:      rc.Title,
		Topics:     []string{},
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}

	// Non-array topics and non-object fields coerce to empty, not errors.
	var topics []string
	if err := json.Unmarshal(rc.Topics, &topics); err == nil && topics != nil {
		c.Topics = topics
	}
	var fields domain.Fields
	if err := json.Unmarshal(rc.Fields, &fields); err == nil {
		c.Fields = shapeFields(typ, fields)
	}

	return &c
}

// StripFences removes a leading ```json or ``` fence and a trailing ```
// fence. Applying it to unfenced text is a no-op.
func StripFences(s string) string {
	cleaned := strings.TrimSpace(s)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// coerceConfidence parses the raw confidence value, defaulting to 0.5 when
// it is missing or non-numeric, and clamps it to [0, 1].
func coerceConfidence(raw json.RawMessage) float64 {
	conf := 0.5

	// A JSON null unmarshals into a float64 without error; treat it as
	// missing instead.
	if len(raw) == 0 || string(raw) == "null" {
		return conf
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		conf = n
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				conf = parsed
			}
		}
	}

	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// shapeFields keeps only the attributes that belong to the type, so a model
// that sprays fields across types cannot leak them into the note.
func shapeFields(typ domain.CaptureType, f domain.Fields) domain.Fields {
	switch typ {
	case domain.TypePerson:
		return domain.Fields{Context: f.Context, FollowUps: f.FollowUps}
	case domain.TypeProject:
		return domain.Fields{Status: f.Status, NextAction: f.NextAction}
	case domain.TypeKnowledge:
		return domain.Fields{OneLiner: f.OneLiner}
	case domain.TypeAction:
		return domain.Fields{DueDate: f.DueDate}
	default:
		return domain.Fields{}
	}
}
