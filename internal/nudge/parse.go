package nudge

import (
	"encoding/json"
	"strings"
)

// ParseStatus tags the outcome of parsing untrusted oracle output.
// Every value is an expected, reportable condition.
type ParseStatus int

const (
	Parsed ParseStatus = iota
	NoJSON
	MalformedJSON
	EmptyArray
)

// extractObject pulls the first JSON object out of oracle output,
// tolerating markdown fences and surrounding prose.
func extractObject(content string) (string, bool) {
	s := strings.TrimSpace(content)
	if strings.Contains(s, "```") {
		if i := strings.Index(s, "```json"); i >= 0 {
			s = s[i+len("```json"):]
		} else if i := strings.Index(s, "```"); i >= 0 {
			s = s[i+3:]
		}
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ParseDrafts decodes the generation oracle's candidate list.
func ParseDrafts(content string) ([]Draft, ParseStatus) {
	obj, ok := extractObject(content)
	if !ok {
		return nil, NoJSON
	}
	var payload struct {
		Candidates []Draft `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, MalformedJSON
	}
	if len(payload.Candidates) == 0 {
		return nil, EmptyArray
	}
	return payload.Candidates, Parsed
}

// Judgment carries the judge oracle's scores for one candidate index.
type Judgment struct {
	Index         int
	Tension       float64
	Actionability float64
	Novelty       float64
	Specificity   float64
	Overall       float64
}

// ParseJudgments decodes the judge oracle's score list. Scores are
// decoded loosely: a missing or non-numeric field becomes 0 rather
// than failing the whole response.
func ParseJudgments(content string) ([]Judgment, ParseStatus) {
	obj, ok := extractObject(content)
	if !ok {
		return nil, NoJSON
	}
	var payload struct {
		Judgments []map[string]any `json:"judgments"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, MalformedJSON
	}
	if len(payload.Judgments) == 0 {
		return nil, EmptyArray
	}
	out := make([]Judgment, 0, len(payload.Judgments))
	for _, raw := range payload.Judgments {
		out = append(out, Judgment{
			Index:         int(numField(raw, "index")),
			Tension:       clampScore(numField(raw, "tension")),
			Actionability: clampScore(numField(raw, "actionability")),
			Novelty:       clampScore(numField(raw, "novelty")),
			Specificity:   clampScore(numField(raw, "specificity")),
			Overall:       clampScore(numField(raw, "overall")),
		})
	}
	return out, Parsed
}

func numField(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}

func clampScore(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 5 {
		return 5
	}
	return f
}
