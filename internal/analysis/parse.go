package analysis

import (
	"encoding/json"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// extractJSON pulls the first JSON object out of an LLM reply. Models ignore
// "JSON only" instructions often enough that the parser has to cope with
// markdown code fences and surrounding prose. It strips fences first, then
// tries a direct parse, then scans for the first brace-balanced object.
// Returns nil when no parseable object is found.
func extractJSON(text string) map[string]json.RawMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.TrimSpace(text)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}

	// Balanced-brace scan for payloads embedded in prose
	// ("Here is the result: {...}").
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err == nil {
					return obj
				}
				return nil
			}
		}
	}
	return nil
}

// The coerce* helpers below are the single defensive-normalization layer for
// scorer responses. Collaborator schema drift — a missing field, a string
// where a bool belongs, a bare bool instead of a {met, note} object — is
// absorbed here and never propagated as a type error. The neutral value is
// always "unknown"/zero, never "not met".

// coerceCriterion accepts {met, note}, a bare bool, or garbage.
func coerceCriterion(raw json.RawMessage) interview.Criterion {
	if len(raw) == 0 {
		return interview.Criterion{}
	}

	var obj struct {
		Met  json.RawMessage `json:"met"`
		Note json.RawMessage `json:"note"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Met != nil || obj.Note != nil) {
		return interview.Criterion{
			Met:  coerceTristate(obj.Met),
			Note: coerceString(obj.Note),
		}
	}

	// Some models flatten the object to a bare boolean.
	return interview.Criterion{Met: coerceTristate(raw)}
}

// coerceTristate accepts true/false/null and the string forms some models
// emit ("true", "yes", "no"). Anything else is unknown.
func coerceTristate(raw json.RawMessage) interview.Tristate {
	if len(raw) == 0 {
		return interview.TristateUnknown
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return interview.TristateOf(b)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "met":
			return interview.TristateYes
		case "false", "no", "not met":
			return interview.TristateNo
		}
	}
	return interview.TristateUnknown
}

// coerceString accepts a JSON string or stringifies scalars; objects and
// arrays yield "".
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true"
		}
		return "false"
	}
	return ""
}

// coerceCount accepts a number (int or float) or a numeric string.
// Negative and unparseable values become 0.
func coerceCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &f); err != nil {
			return 0
		}
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

// coerceQuestionType maps free-form scorer classifications onto the fixed
// enumeration. Underscore/space variants of the known values are accepted;
// everything else is Unknown.
func coerceQuestionType(raw json.RawMessage) interview.QuestionType {
	s := coerceString(raw)
	norm := strings.ToLower(strings.NewReplacer("_", "-", " ", "-").Replace(strings.TrimSpace(s)))
	switch norm {
	case "behavioral", "behavioural":
		return interview.QuestionBehavioral
	case "product-sense", "product":
		return interview.QuestionProductSense
	case "technical":
		return interview.QuestionTechnical
	case "estimation":
		return interview.QuestionEstimation
	default:
		return interview.QuestionUnknown
	}
}
