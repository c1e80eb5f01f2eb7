package nudge

import "github.com/lazypower/marginalia/internal/store"

// Evidence links a candidate back to the memory it stands on.
type Evidence struct {
	MemoryID int64  `json:"memory_id"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
}

// Draft is one typed nudge candidate as drafted by the oracle,
// before judging.
type Draft struct {
	Type         string   `json:"type"` // tension, callback, eyebrow_raise
	Hook         string   `json:"hook"`
	WhyNow       string   `json:"why_now"`
	ActionPrompt string   `json:"action_prompt"`
	Evidence     Evidence `json:"evidence"`
	Confidence   float64  `json:"confidence"`
}

// Judged is a draft plus its four axis scores, each clamped to [0,5],
// and the personalization-adjusted rank.
type Judged struct {
	Draft
	Tension       float64 `json:"tension"`
	Actionability float64 `json:"actionability"`
	Novelty       float64 `json:"novelty"`
	Specificity   float64 `json:"specificity"`
	Overall       float64 `json:"overall"`

	PersonalizationWeight float64 `json:"personalization_weight"`
	RankScore             float64 `json:"rank_score"`
}

// Terminal reasons carried on the trace.
const (
	ReasonTooShort     = "too short"
	ReasonNoSignal     = "no sufficiently strong memories"
	ReasonEntryCap     = "annotation_cap"
	ReasonNotEnrolled  = "not_enrolled"
	ReasonGateRejected = "gate_rejected"
	ReasonAccepted     = "accepted"

	// ReasonInternalError marks a degraded response after a true fault
	// (storage failure), as opposed to a pipeline outcome.
	ReasonInternalError = "internal_error"
)

// Oracle-stage failure modes. Each is a distinct, reportable outcome,
// never a generic error.
const (
	FailModelNoJSON        = "model_no_json"
	FailModelMalformed     = "model_malformed"
	FailModelEmpty         = "model_empty"
	FailModelTextFiltered  = "model_text_filtered"
	FailModelTypeFiltered  = "model_type_filtered"
	FailConfidenceFiltered = "confidence_filtered"
	FailJudgeNoJSON        = "judge_no_json"
	FailJudgeMalformed     = "judge_malformed"
	FailJudgeEmpty         = "judge_empty"
	FailOracleError        = "oracle_error"
)

// Gate rejection reasons, counted in the funnel.
const (
	RejectLowUtility     = "low_utility"
	RejectLowSpecificity = "low_specificity"
	RejectLowActionable  = "low_actionability"
	RejectStaleRepeat    = "stale_repeat"
	RejectTypeSaturated  = "type_overrepresented"
	RejectOutranked      = "outranked"
)

// nudgeTypes lists the valid types in target-mix order.
var nudgeTypes = []string{store.NudgeTension, store.NudgeCallback, store.NudgeEyebrowRaise}
