package domain

// CaptureType is the closed set of categories a capture can be filed under.
type CaptureType string

const (
	TypePerson    CaptureType = "person"
	TypeProject   CaptureType = "project"
	TypeKnowledge CaptureType = "knowledge"
	TypeAction    CaptureType = "action"
	TypeCapture   CaptureType = "capture" // catch-all default
)

// CaptureTypes lists every valid type, in taxonomy order.
var CaptureTypes = []CaptureType{TypePerson, TypeProject, TypeKnowledge, TypeAction, TypeCapture}

// ParseCaptureType returns the matching type and whether it is valid.
func ParseCaptureType(s string) (CaptureType, bool) {
	for _, t := range CaptureTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Fields holds the type-dependent attributes of a classification.
// Only the fields relevant to the classification's type are populated.
type Fields struct {
	// person
	Context   string   `json:"context,omitempty"`
	FollowUps []string `json:"follow_ups,omitempty"`
	// project
	Status     string `json:"status,omitempty"`
	NextAction string `json:"next_action,omitempty"`
	// knowledge
	OneLiner string `json:"one_liner,omitempty"`
	// action
	DueDate string `json:"due_date,omitempty"`
}

// Classification is the structured result of categorizing a capture.
// It is constructed once, by the validator or the fallback generator, and
// not mutated afterwards.
type Classification struct {
	Type       CaptureType `json:"type"`
	Confidence float64     `json:"confidence"`
	Title      string      `json:"title"`
	Topics     []string    `json:"topics"`
	Fields     Fields      `json:"fields"`
}
