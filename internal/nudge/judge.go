package nudge

import (
	"context"
	"encoding/json"

	"github.com/lazypower/marginalia/internal/llm"
)

// judge runs the second oracle pass: every surviving draft is scored
// on tension, actionability, novelty, specificity, and overall
// utility. Drafts the judge never scored are dropped.
func judge(ctx context.Context, oracle llm.Oracle, paragraph string, drafts []Draft) ([]Judged, string) {
	encoded, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return nil, FailOracleError
	}
	prompt := llm.JudgePrompt(paragraph, string(encoded))

	cctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()
	raw, err := oracle.Judge(cctx, prompt)
	if err != nil {
		return nil, FailOracleError
	}

	judgments, status := ParseJudgments(raw)
	switch status {
	case NoJSON:
		return nil, FailJudgeNoJSON
	case MalformedJSON:
		return nil, FailJudgeMalformed
	case EmptyArray:
		return nil, FailJudgeEmpty
	}

	byIndex := make(map[int]Judgment, len(judgments))
	for _, j := range judgments {
		if j.Index < 0 || j.Index >= len(drafts) {
			continue
		}
		byIndex[j.Index] = j
	}
	if len(byIndex) == 0 {
		return nil, FailJudgeEmpty
	}

	out := make([]Judged, 0, len(byIndex))
	for i, d := range drafts {
		j, ok := byIndex[i]
		if !ok {
			continue
		}
		out = append(out, Judged{
			Draft:         d,
			Tension:       j.Tension,
			Actionability: j.Actionability,
			Novelty:       j.Novelty,
			Specificity:   j.Specificity,
			Overall:       j.Overall,
		})
	}
	return out, ""
}
