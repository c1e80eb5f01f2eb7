package nudge

import (
	"testing"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/store"
)

func judgedCandidate(nudgeType string, overall, specificity, actionability float64) Judged {
	return Judged{
		Draft: Draft{
			Type:         nudgeType,
			Hook:         "a specific hook pointing at one memory",
			WhyNow:       "connects to what is being written",
			ActionPrompt: "want to look back at it?",
			Evidence:     Evidence{MemoryID: 7, Date: "2026-08-01", Snippet: "snippet"},
			Confidence:   0.9,
		},
		Overall:       overall,
		Specificity:   specificity,
		Actionability: actionability,
	}
}

func TestGateQualityFloors(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()

	cands := []Judged{
		judgedCandidate(store.NudgeTension, 2.0, 4, 4),      // low utility
		judgedCandidate(store.NudgeCallback, 4.5, 1, 4),     // low specificity
		judgedCandidate(store.NudgeEyebrowRaise, 4.5, 4, 1), // low actionability
	}
	res := gate(cands, cfg, pers, GateInput{})

	if len(res.Accepted) != 0 {
		t.Fatalf("accepted %d, want 0", len(res.Accepted))
	}
	if res.RejectionCounts[RejectLowUtility] != 1 ||
		res.RejectionCounts[RejectLowSpecificity] != 1 ||
		res.RejectionCounts[RejectLowActionable] != 1 {
		t.Errorf("rejection counts = %v", res.RejectionCounts)
	}
}

func TestGateAcceptsAtMostOne(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()

	strong := judgedCandidate(store.NudgeTension, 4.8, 4, 4)
	weaker := judgedCandidate(store.NudgeCallback, 4.0, 4, 4)
	res := gate([]Judged{weaker, strong}, cfg, pers, GateInput{})

	if len(res.Accepted) != 1 {
		t.Fatalf("accepted %d, want 1", len(res.Accepted))
	}
	if res.Accepted[0].Type != store.NudgeTension {
		t.Errorf("winner = %s, want highest rank", res.Accepted[0].Type)
	}
	if res.RejectionCounts[RejectOutranked] != 1 {
		t.Errorf("outranked count = %d, want 1", res.RejectionCounts[RejectOutranked])
	}
	if res.Accepted[0].RankScore <= 0 {
		t.Errorf("RankScore = %v, want > 0", res.Accepted[0].RankScore)
	}
}

func TestGatePersonalizationChangesWinner(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()
	// Heavy downvoting on tension flips the ranking despite equal scores.
	pers.TypeWeights[store.NudgeTension] = 1.0

	tension := judgedCandidate(store.NudgeTension, 4.5, 4, 4)
	callback := judgedCandidate(store.NudgeCallback, 4.5, 4, 4)
	res := gate([]Judged{tension, callback}, cfg, pers, GateInput{})

	if len(res.Accepted) != 1 || res.Accepted[0].Type != store.NudgeCallback {
		t.Errorf("expected callback to win with downweighted tension")
	}
}

func TestGateStaleRepeatSuppression(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()

	evID := int64(7)
	recent := []store.Nudge{{
		Type:             store.NudgeTension,
		ParagraphHash:    "otherhash",
		Hook:             "a completely different hook about travel",
		EvidenceMemoryID: &evID,
	}}

	// Same type citing the same memory.
	c := judgedCandidate(store.NudgeTension, 4.5, 4, 4)
	res := gate([]Judged{c}, cfg, pers, GateInput{Recent: recent, ParagraphHash: "thishash"})
	if len(res.Accepted) != 0 || res.RejectionCounts[RejectStaleRepeat] != 1 {
		t.Errorf("same-evidence repeat not suppressed: %v", res.RejectionCounts)
	}

	// Near-identical hook, different evidence.
	otherID := int64(99)
	recent[0].EvidenceMemoryID = &otherID
	recent[0].Hook = "a specific hook pointing at one memory!"
	res = gate([]Judged{c}, cfg, pers, GateInput{Recent: recent, ParagraphHash: "thishash"})
	if len(res.Accepted) != 0 || res.RejectionCounts[RejectStaleRepeat] != 1 {
		t.Errorf("near-identical hook not suppressed: %v", res.RejectionCounts)
	}

	// A different type with the same evidence passes.
	c2 := judgedCandidate(store.NudgeCallback, 4.5, 4, 4)
	recent[0].EvidenceMemoryID = &evID
	recent[0].Hook = "a completely different hook about travel"
	res = gate([]Judged{c2}, cfg, pers, GateInput{Recent: recent, ParagraphHash: "thishash"})
	if len(res.Accepted) != 1 {
		t.Errorf("cross-type candidate wrongly suppressed: %v", res.RejectionCounts)
	}
}

func TestGateOwnParagraphDoesNotCountAsRepeat(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()

	evID := int64(7)
	recent := []store.Nudge{{
		Type:             store.NudgeTension,
		ParagraphHash:    "samehash",
		Hook:             "a specific hook pointing at one memory",
		EvidenceMemoryID: &evID,
	}}

	c := judgedCandidate(store.NudgeTension, 4.5, 4, 4)
	res := gate([]Judged{c}, cfg, pers, GateInput{Recent: recent, ParagraphHash: "samehash"})
	if len(res.Accepted) != 1 {
		t.Errorf("re-evaluating the same paragraph should stay an upsert, got %v", res.RejectionCounts)
	}
}

func TestGateTypeSaturation(t *testing.T) {
	cfg := config.Balanced()
	pers := defaultPersonalization()

	// All recent nudges are tension: share 1.0 >= 2 × (1/3) target.
	in := GateInput{
		Today:   map[string]int{store.NudgeTension: 3},
		Session: map[string]int{},
	}
	c := judgedCandidate(store.NudgeTension, 4.5, 4, 4)
	res := gate([]Judged{c}, cfg, pers, in)
	if len(res.Accepted) != 0 || res.RejectionCounts[RejectTypeSaturated] != 1 {
		t.Errorf("saturated type not rejected: %v", res.RejectionCounts)
	}

	// An under-served type still passes.
	c2 := judgedCandidate(store.NudgeCallback, 4.5, 4, 4)
	res = gate([]Judged{c2}, cfg, pers, in)
	if len(res.Accepted) != 1 {
		t.Errorf("under-served type wrongly rejected: %v", res.RejectionCounts)
	}
}

func TestGateTargetMixIsEven(t *testing.T) {
	res := gate(nil, config.Balanced(), defaultPersonalization(), GateInput{})
	for _, nt := range nudgeTypes {
		if res.TargetMix[nt] < 0.33 || res.TargetMix[nt] > 0.34 {
			t.Errorf("TargetMix[%s] = %v, want 1/3", nt, res.TargetMix[nt])
		}
	}
}
