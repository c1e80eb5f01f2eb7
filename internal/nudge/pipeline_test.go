package nudge

import (
	"context"
	"fmt"
	"testing"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/store"
)

const strongParagraph = "Training for the marathon has been harder than I expected this month and I keep wondering whether my knee can actually hold up through the long runs."

const weakParagraph = "Spent most of today rearranging the bookshelves and sorting old paperbacks into piles for the charity shop down on the corner of our street."

type fixedEmbedder struct {
	vecs map[string][]float64
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 0}, nil
}

func (f *fixedEmbedder) Model() string   { return "fixed" }
func (f *fixedEmbedder) Dimensions() int { return 3 }

// pipelineFixture seeds one memory whose vector matches strongParagraph
// exactly, so retrieval produces a clear signal for it and silence for
// anything else.
func pipelineFixture(t *testing.T, oracle llm.Oracle, rollout config.RolloutConfig) (*Pipeline, *store.DB, *store.Memory) {
	t.Helper()
	db := testDB(t)

	m := &store.Memory{
		UserID:     "u1",
		Content:    "signed up for the spring marathon, telling everyone this time the training would stick",
		Source:     store.SourceJournal,
		SourceDate: "2026-05-14",
	}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if err := db.SaveVector(m.ID, []float64{1, 0, 0}, "fixed"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	eng := engine.New(db)
	eng.SetEmbedder(&fixedEmbedder{vecs: map[string][]float64{
		strongParagraph: {1, 0, 0},
	}})

	p := New(db, eng, oracle, config.NewRolloutPolicy(rollout))
	return p, db, m
}

func generationJSON(memoryID int64) string {
	return fmt.Sprintf(`{"candidates": [{
		"type": "tension",
		"hook": "three months ago you promised this training block would be different",
		"why_now": "this paragraph doubts the same commitment you made in May",
		"action_prompt": "what changed between then and now?",
		"evidence": {"memory_id": %d, "date": "2026-05-14", "snippet": ""},
		"confidence": 0.85
	}]}`, memoryID)
}

const judgeJSON = `{"judgments": [{"index": 0, "tension": 4, "actionability": 4, "novelty": 3, "specificity": 4, "overall": 4.5}]}`

func evaluate(t *testing.T, p *Pipeline, paragraph string) *Response {
	t.Helper()
	resp, err := p.Evaluate(context.Background(), Request{
		UserID:    "u1",
		EntryDate: "2026-08-26",
		Paragraph: paragraph,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return resp
}

func TestEvaluateTooShort(t *testing.T) {
	oracle := &llm.MockOracle{}
	p, _, _ := pipelineFixture(t, oracle, config.RolloutConfig{})

	resp := evaluate(t, p, "barely ten words of text here not nearly enough")
	if len(resp.Nudges) != 0 {
		t.Fatalf("got %d nudges, want 0", len(resp.Nudges))
	}
	if resp.Trace.Reason != ReasonTooShort {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, ReasonTooShort)
	}
	// The short-circuit happens before retrieval and the oracle.
	if resp.Trace.Retrieval != nil || resp.Trace.LLM != nil {
		t.Error("trace has retrieval/llm stats for a too-short paragraph")
	}
	if len(oracle.GenerateCalls) != 0 {
		t.Error("oracle was called for a too-short paragraph")
	}
	if resp.Trace.RequestID == "" {
		t.Error("missing request id")
	}
}

func TestEvaluateWeakSignalSkipsOracle(t *testing.T) {
	oracle := &llm.MockOracle{}
	p, _, _ := pipelineFixture(t, oracle, config.RolloutConfig{})

	resp := evaluate(t, p, weakParagraph)
	if len(resp.Nudges) != 0 {
		t.Fatalf("got %d nudges, want 0", len(resp.Nudges))
	}
	if resp.Trace.Reason != ReasonNoSignal {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, ReasonNoSignal)
	}
	if resp.Trace.Retrieval == nil {
		t.Fatal("missing retrieval stats")
	}
	if resp.Trace.Retrieval.ClearSignal {
		t.Error("weak retrieval marked as clear signal")
	}
	// No oracle call means no LLM stats at all: nil, not zeroes.
	if resp.Trace.LLM != nil {
		t.Error("LLM stats present without an oracle call")
	}
	if len(oracle.GenerateCalls) != 0 {
		t.Error("oracle called on weak signal")
	}
}

func TestEvaluateModelReturnsNothing(t *testing.T) {
	oracle := &llm.MockOracle{GenerateResponse: `{"candidates": []}`}
	p, _, _ := pipelineFixture(t, oracle, config.RolloutConfig{})

	resp := evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 0 {
		t.Fatalf("got %d nudges, want 0", len(resp.Nudges))
	}
	if resp.Trace.Reason != FailModelEmpty {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, FailModelEmpty)
	}
	if resp.Trace.LLM == nil || resp.Trace.LLM.FailureMode != FailModelEmpty {
		t.Errorf("LLM stats = %+v", resp.Trace.LLM)
	}
	if len(oracle.JudgeCalls) != 0 {
		t.Error("judge called after empty generation")
	}
}

func TestEvaluateModelProse(t *testing.T) {
	oracle := &llm.MockOracle{GenerateResponse: "Nothing here connects strongly enough to interrupt the writer."}
	p, _, _ := pipelineFixture(t, oracle, config.RolloutConfig{})

	resp := evaluate(t, p, strongParagraph)
	if resp.Trace.Reason != FailModelNoJSON {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, FailModelNoJSON)
	}
}

func TestEvaluateLowConfidenceFiltered(t *testing.T) {
	p, _, m := pipelineFixture(t, &llm.MockOracle{}, config.RolloutConfig{})
	oracle := &llm.MockOracle{GenerateResponse: lowConfidenceJSON(m.ID)}
	p.Oracle = oracle

	resp := evaluate(t, p, strongParagraph)
	if resp.Trace.Reason != FailConfidenceFiltered {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, FailConfidenceFiltered)
	}
	if len(oracle.JudgeCalls) != 0 {
		t.Error("judge called for all-low-confidence drafts")
	}
}

func TestEvaluateJudgeMalformed(t *testing.T) {
	p, _, m := pipelineFixture(t, &llm.MockOracle{}, config.RolloutConfig{})
	oracle := &llm.MockOracle{
		GenerateResponse: generationJSON(m.ID),
		JudgeResponse:    `{"judgments": "they all looked fine to me"}`,
	}
	p.Oracle = oracle

	resp := evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 0 {
		t.Fatalf("got %d nudges, want 0", len(resp.Nudges))
	}
	if resp.Trace.Reason != FailJudgeMalformed {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, FailJudgeMalformed)
	}
}

func TestEvaluateAcceptsAndPersists(t *testing.T) {
	p, db, m := pipelineFixture(t, &llm.MockOracle{}, config.RolloutConfig{})
	oracle := &llm.MockOracle{GenerateResponse: generationJSON(m.ID), JudgeResponse: judgeJSON}
	p.Oracle = oracle

	resp := evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 1 {
		t.Fatalf("got %d nudges, want 1 (trace: %+v)", len(resp.Nudges), resp.Trace)
	}
	n := resp.Nudges[0]
	if n.Type != store.NudgeTension {
		t.Errorf("Type = %q", n.Type)
	}
	if n.EvidenceMemoryID == nil || *n.EvidenceMemoryID != m.ID {
		t.Error("evidence memory id not set")
	}
	if n.EvidenceDate != "2026-05-14" {
		t.Errorf("EvidenceDate = %q", n.EvidenceDate)
	}
	if n.EvidenceSnippet == "" {
		t.Error("empty evidence snippet not backfilled from memory")
	}
	if n.OverallUtility != 4.5 {
		t.Errorf("OverallUtility = %v", n.OverallUtility)
	}
	if resp.Trace.Reason != ReasonAccepted {
		t.Errorf("Reason = %q", resp.Trace.Reason)
	}
	if resp.Trace.LLM.Accepted != 1 {
		t.Errorf("LLM.Accepted = %d", resp.Trace.LLM.Accepted)
	}

	// Re-evaluating the same paragraph upserts rather than duplicating.
	resp = evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 1 {
		t.Fatalf("re-evaluate: got %d nudges (trace: %+v)", len(resp.Nudges), resp.Trace)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM nudges`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows after re-evaluation, want 1", count)
	}
}

func TestEvaluateGateRejection(t *testing.T) {
	p, _, m := pipelineFixture(t, &llm.MockOracle{}, config.RolloutConfig{})
	// Judge scores below the utility floor.
	oracle := &llm.MockOracle{
		GenerateResponse: generationJSON(m.ID),
		JudgeResponse:    `{"judgments": [{"index": 0, "tension": 2, "actionability": 2, "novelty": 2, "specificity": 3, "overall": 2.5}]}`,
	}
	p.Oracle = oracle

	resp := evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 0 {
		t.Fatalf("got %d nudges, want 0", len(resp.Nudges))
	}
	if resp.Trace.Reason != ReasonGateRejected {
		t.Errorf("Reason = %q", resp.Trace.Reason)
	}
	if resp.Trace.Funnel == nil || resp.Trace.Funnel.RejectionCounts[RejectLowUtility] != 1 {
		t.Errorf("funnel = %+v", resp.Trace.Funnel)
	}
}

func TestEvaluateShadowMode(t *testing.T) {
	rollout := config.RolloutConfig{ShadowUsers: []string{"u1"}}
	p, db, m := pipelineFixture(t, &llm.MockOracle{}, rollout)
	oracle := &llm.MockOracle{GenerateResponse: generationJSON(m.ID), JudgeResponse: judgeJSON}
	p.Oracle = oracle

	resp := evaluate(t, p, strongParagraph)
	// Shadow: pipeline ran and persisted, response stays empty.
	if len(resp.Nudges) != 0 {
		t.Fatalf("shadow mode returned %d nudges", len(resp.Nudges))
	}
	if resp.Trace.Reason != ReasonAccepted {
		t.Errorf("Reason = %q, want accepted even in shadow", resp.Trace.Reason)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM nudges`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("shadow run persisted %d rows, want 1", count)
	}
}

func TestEvaluateRolloutOff(t *testing.T) {
	rollout := config.RolloutConfig{EnabledUsers: []string{"someone-else"}}
	oracle := &llm.MockOracle{}
	p, _, _ := pipelineFixture(t, oracle, rollout)

	resp := evaluate(t, p, strongParagraph)
	if len(resp.Nudges) != 0 || resp.Trace.Reason != ReasonNotEnrolled {
		t.Errorf("Reason = %q, nudges = %d", resp.Trace.Reason, len(resp.Nudges))
	}
	if len(oracle.GenerateCalls) != 0 {
		t.Error("pipeline ran for an unenrolled user")
	}
}

func TestEvaluateEntryCap(t *testing.T) {
	p, db, m := pipelineFixture(t, &llm.MockOracle{}, config.RolloutConfig{})
	oracle := &llm.MockOracle{GenerateResponse: generationJSON(m.ID), JudgeResponse: judgeJSON}
	p.Oracle = oracle

	// Fill the entry to its annotation cap.
	for i, nt := range []string{store.NudgeTension, store.NudgeCallback, store.NudgeEyebrowRaise} {
		n := &store.Nudge{
			UserID: "u1", EntryDate: "2026-08-26",
			ParagraphHash: fmt.Sprintf("hash%d", i), Type: nt, Hook: "h",
		}
		if err := db.UpsertNudge(n); err != nil {
			t.Fatalf("UpsertNudge: %v", err)
		}
	}

	resp := evaluate(t, p, strongParagraph)
	if resp.Trace.Reason != ReasonEntryCap {
		t.Errorf("Reason = %q, want %q", resp.Trace.Reason, ReasonEntryCap)
	}
	if len(oracle.GenerateCalls) != 0 {
		t.Error("oracle called past the entry cap")
	}
}

func TestEvaluatePresetResolution(t *testing.T) {
	oracle := &llm.MockOracle{}
	p, _, _ := pipelineFixture(t, oracle, config.RolloutConfig{})

	// strongParagraph is 27 words: above the balanced minimum (20) but
	// below the subtle minimum (30).
	resp, err := p.Evaluate(context.Background(), Request{
		UserID:    "u1",
		EntryDate: "2026-08-26",
		Paragraph: strongParagraph,
		Preset:    "subtle",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Trace.Reason != ReasonTooShort {
		t.Errorf("Reason = %q, want %q under the subtle preset", resp.Trace.Reason, ReasonTooShort)
	}

	// An unknown preset falls back to the defaults.
	resp, err = p.Evaluate(context.Background(), Request{
		UserID:    "u1",
		EntryDate: "2026-08-26",
		Paragraph: strongParagraph,
		Preset:    "nonexistent",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Trace.Reason == ReasonTooShort {
		t.Error("unknown preset did not fall back to defaults")
	}
}

func TestParagraphHashStability(t *testing.T) {
	a := ParagraphHash("some  paragraph \n with odd   spacing")
	b := ParagraphHash("some paragraph with odd spacing")
	if a != b {
		t.Error("hash changed under whitespace-only edits")
	}
	c := ParagraphHash("a genuinely different paragraph")
	if a == c {
		t.Error("different paragraphs collided")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}

func lowConfidenceJSON(id int64) string {
	return fmt.Sprintf(`{"candidates": [{"type": "tension", "hook": "a plausible hook", "why_now": "connects to this paragraph", "action_prompt": "look back?", "evidence": {"memory_id": %d, "date": "2026-05-14", "snippet": "s"}, "confidence": 0.2}]}`, id)
}
