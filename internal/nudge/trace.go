package nudge

import "github.com/google/uuid"

// RetrievalStats summarizes what activation retrieval surfaced for a
// paragraph, before any oracle call.
type RetrievalStats struct {
	MemoriesScored int     `json:"memories_scored"`
	StrongMemories int     `json:"strong_memories"`
	TopActivation  float64 `json:"top_activation"`
	SecondBest     float64 `json:"second_best"`
	Implications   int     `json:"implications"`
	ClearSignal    bool    `json:"clear_signal"`
}

// LLMStats is present only when the oracle was actually consulted. A
// nil LLMStats on the trace means the clear-signal gate never opened.
type LLMStats struct {
	RawCandidates   int     `json:"raw_candidates"`
	Drafted         int     `json:"drafted"`
	Judged          int     `json:"judged"`
	Accepted        int     `json:"accepted"`
	ConfidenceFloor float64 `json:"confidence_floor"`
	FailureMode     string  `json:"failure_mode,omitempty"`
}

// Funnel records where candidates died and what the type mix looked
// like when the gate ran.
type Funnel struct {
	RejectionCounts map[string]int     `json:"rejection_counts"`
	TargetMix       map[string]float64 `json:"target_mix,omitempty"`
	TodayCounts     map[string]int     `json:"today_counts,omitempty"`
	SessionCounts   map[string]int     `json:"session_counts,omitempty"`
}

// Timings are wall-clock milliseconds per stage.
type Timings struct {
	RetrieveMs int64 `json:"retrieve_ms"`
	GenerateMs int64 `json:"generate_ms"`
	JudgeMs    int64 `json:"judge_ms"`
	TotalMs    int64 `json:"total_ms"`
}

// Trace is the per-request diagnostic record returned alongside the
// nudges. Every evaluate call gets one, including the ones that stop
// before any oracle call.
type Trace struct {
	RequestID string          `json:"request_id"`
	Reason    string          `json:"reason"`
	Retrieval *RetrievalStats `json:"retrieval,omitempty"`
	LLM       *LLMStats       `json:"llm,omitempty"`
	Funnel    *Funnel         `json:"funnel,omitempty"`
	Timings   Timings         `json:"timings"`
}

func newTrace() *Trace {
	return &Trace{RequestID: uuid.NewString()}
}

// FaultTrace is the trace attached when the pipeline itself failed
// (storage fault, not a pipeline outcome) and the caller degrades the
// response to an empty nudge list.
func FaultTrace() *Trace {
	t := newTrace()
	t.Reason = ReasonInternalError
	return t
}
