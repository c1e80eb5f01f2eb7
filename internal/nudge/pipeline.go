package nudge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/store"
)

const recentNudgeWindow = 20

// Pipeline runs the full margin-nudge evaluation: retrieve, gate on
// signal, draft, judge, gate on quality, persist. One instance is
// shared across requests.
type Pipeline struct {
	DB       *store.DB
	Engine   *engine.Engine
	Oracle   llm.Oracle
	Rollout  *config.RolloutPolicy
	Defaults config.TuningConfig
}

// Request is one paragraph evaluation. FullEntry, when present, gives
// the oracle the rest of the entry as context. Explicit Tuning wins
// over Preset; both absent means the pipeline defaults.
type Request struct {
	UserID         string               `json:"user_id"`
	EntryDate      string               `json:"entry_date"` // YYYY-MM-DD
	Paragraph      string               `json:"paragraph"`
	FullEntry      string               `json:"full_entry,omitempty"`
	ParagraphIndex int                  `json:"paragraph_index"`
	Tuning         *config.TuningConfig `json:"tuning,omitempty"`
	Preset         string               `json:"preset,omitempty"`
}

// Response carries at most one nudge plus the full trace. An empty
// nudge list with a populated trace is the normal case, not an error.
type Response struct {
	Nudges        []store.Nudge `json:"nudges"`
	ParagraphHash string        `json:"paragraph_hash"`
	Trace         *Trace        `json:"trace"`
}

func New(db *store.DB, eng *engine.Engine, oracle llm.Oracle, rollout *config.RolloutPolicy) *Pipeline {
	return &Pipeline{
		DB:       db,
		Engine:   eng,
		Oracle:   oracle,
		Rollout:  rollout,
		Defaults: config.Balanced(),
	}
}

// ParagraphHash identifies a paragraph for idempotent persistence. The
// hash survives whitespace-only edits.
func ParagraphHash(paragraph string) string {
	norm := strings.Join(strings.Fields(paragraph), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// Evaluate runs the pipeline for one paragraph. Oracle failures are
// absorbed into the trace; only storage faults surface as errors.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	trace := newTrace()
	resp := &Response{
		Nudges:        []store.Nudge{},
		ParagraphHash: ParagraphHash(req.Paragraph),
		Trace:         trace,
	}
	defer func() {
		trace.Timings.TotalMs = time.Since(started).Milliseconds()
	}()

	mode := p.Rollout.ModeFor(req.UserID)
	if mode == config.RolloutOff {
		trace.Reason = ReasonNotEnrolled
		return resp, nil
	}

	cfg := p.Defaults
	if req.Tuning != nil {
		cfg = *req.Tuning
	} else if req.Preset != "" {
		if preset, ok := config.PresetByName(req.Preset); ok {
			cfg = preset
		}
	}

	words := len(strings.Fields(req.Paragraph))
	if words < cfg.MinParagraphWords || len(strings.TrimSpace(req.Paragraph)) < cfg.MinParagraphChars {
		trace.Reason = ReasonTooShort
		return resp, nil
	}

	existing, err := p.DB.CountNudgesForEntry(req.UserID, req.EntryDate)
	if err != nil {
		return nil, fmt.Errorf("counting entry nudges: %w", err)
	}
	if existing >= cfg.MaxAnnotationsPerEntry {
		trace.Reason = ReasonEntryCap
		return resp, nil
	}

	// Retrieval runs with hebbian reinforcement off: scoring a
	// paragraph must not mutate the graph it scores against.
	retrieveStart := time.Now()
	result, err := p.Engine.Retrieve(ctx, req.UserID, req.Paragraph, engine.Options{
		MaxMemories: cfg.MaxContextMemories * 2,
		MaxHops:     2,
		SkipHebbian: true,
		Diversify:   true,
	})
	trace.Timings.RetrieveMs = time.Since(retrieveStart).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	signal := evaluateSignal(result, cfg)
	trace.Retrieval = &signal
	if !signal.ClearSignal {
		trace.Reason = ReasonNoSignal
		return resp, nil
	}

	// Signal is clear: consult the oracle. LLMStats exists from here
	// on, even when the oracle produces nothing usable.
	if p.Oracle == nil {
		trace.LLM = &LLMStats{FailureMode: FailOracleError}
		trace.Reason = FailOracleError
		return resp, nil
	}
	generateStart := time.Now()
	drafts, rawCount, failMode := generate(ctx, p.Oracle, req.Paragraph, req.FullEntry, result, cfg)
	trace.Timings.GenerateMs = time.Since(generateStart).Milliseconds()
	trace.LLM = &LLMStats{
		RawCandidates:   rawCount,
		Drafted:         len(drafts),
		ConfidenceFloor: cfg.MinOracleConfidence,
	}
	if failMode != "" {
		trace.LLM.FailureMode = failMode
		trace.Reason = failMode
		return resp, nil
	}

	confident := drafts[:0]
	for _, d := range drafts {
		if d.Confidence >= cfg.MinOracleConfidence {
			confident = append(confident, d)
		}
	}
	if len(confident) == 0 {
		trace.LLM.FailureMode = FailConfidenceFiltered
		trace.Reason = FailConfidenceFiltered
		return resp, nil
	}

	judgeStart := time.Now()
	judged, failMode := judge(ctx, p.Oracle, req.Paragraph, confident)
	trace.Timings.JudgeMs = time.Since(judgeStart).Milliseconds()
	trace.LLM.Judged = len(judged)
	if failMode != "" {
		trace.LLM.FailureMode = failMode
		trace.Reason = failMode
		return resp, nil
	}

	gateIn, err := p.loadGateInput(req.UserID, req.EntryDate, resp.ParagraphHash)
	if err != nil {
		return nil, err
	}
	pers, err := BuildPersonalization(p.DB, req.UserID)
	if err != nil {
		return nil, err
	}

	gated := gate(judged, cfg, pers, gateIn)
	trace.Funnel = &Funnel{
		RejectionCounts: gated.RejectionCounts,
		TargetMix:       gated.TargetMix,
		TodayCounts:     gateIn.Today,
		SessionCounts:   gateIn.Session,
	}
	if len(gated.Accepted) == 0 {
		trace.Reason = ReasonGateRejected
		return resp, nil
	}

	winner := gated.Accepted[0]
	trace.LLM.Accepted = 1
	trace.Reason = ReasonAccepted

	evidenceID := winner.Evidence.MemoryID
	n := store.Nudge{
		UserID:           req.UserID,
		EntryDate:        req.EntryDate,
		ParagraphHash:    resp.ParagraphHash,
		Type:             winner.Type,
		Hook:             winner.Hook,
		WhyNow:           winner.WhyNow,
		ActionPrompt:     winner.ActionPrompt,
		EvidenceMemoryID: &evidenceID,
		EvidenceDate:     winner.Evidence.Date,
		EvidenceSnippet:  winner.Evidence.Snippet,
		OverallUtility:   winner.Overall,
	}
	if err := p.DB.UpsertNudge(&n); err != nil {
		return nil, fmt.Errorf("persisting nudge: %w", err)
	}

	// Shadow users get the full pipeline and persistence (so dedup and
	// type balance keep accruing) but an empty response.
	if mode == config.RolloutShadow {
		log.Printf("shadow nudge suppressed: user=%s type=%s utility=%.1f", req.UserID, n.Type, n.OverallUtility)
		return resp, nil
	}
	resp.Nudges = []store.Nudge{n}
	return resp, nil
}

func (p *Pipeline) loadGateInput(userID, entryDate, paragraphHash string) (GateInput, error) {
	recent, err := p.DB.RecentNudges(userID, recentNudgeWindow)
	if err != nil {
		return GateInput{}, fmt.Errorf("loading recent nudges: %w", err)
	}
	today, err := p.DB.TodayTypeCounts(userID)
	if err != nil {
		return GateInput{}, fmt.Errorf("loading today counts: %w", err)
	}
	session, err := p.DB.SessionTypeCounts(userID, entryDate)
	if err != nil {
		return GateInput{}, fmt.Errorf("loading session counts: %w", err)
	}
	return GateInput{Recent: recent, Today: today, Session: session, ParagraphHash: paragraphHash}, nil
}
