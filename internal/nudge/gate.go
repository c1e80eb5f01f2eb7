package nudge

import (
	"sort"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/store"
)

const (
	// hookRepeatThreshold is the bigram-overlap level at which two
	// hooks count as the same nudge resurfacing.
	hookRepeatThreshold = 0.82
	// typeMixSlack is how far above the even target share a type may
	// run before the gate starts pushing back.
	typeMixSlack = 0.15
	// typeSaturationFactor rejects outright once a type holds this
	// multiple of its target share.
	typeSaturationFactor = 2.0
	// overrepresentedPenalty halves the rank of an over-served type
	// instead of rejecting it.
	overrepresentedPenalty = 0.5
)

// GateInput is everything the gate needs besides the candidates: the
// user's recent nudges for stale-repeat suppression and the current
// type distributions for balance.
type GateInput struct {
	Recent  []store.Nudge
	Today   map[string]int
	Session map[string]int
	// ParagraphHash marks the paragraph being evaluated; its own prior
	// nudge must not trip stale-repeat suppression, so re-processing a
	// paragraph stays an upsert.
	ParagraphHash string
}

// GateResult carries the (at most one) accepted candidate and a count
// of every rejection by reason.
type GateResult struct {
	Accepted        []Judged
	RejectionCounts map[string]int
	TargetMix       map[string]float64
}

// gate applies quality floors, stale-repeat suppression, and type
// balance, then ranks survivors and keeps at most one. False positives
// cost trust, so every floor errs toward silence.
func gate(cands []Judged, cfg config.TuningConfig, pers Personalization, in GateInput) GateResult {
	res := GateResult{
		RejectionCounts: make(map[string]int),
		TargetMix:       evenTargetMix(),
	}

	combined := make(map[string]int, len(nudgeTypes))
	total := 0
	for _, t := range nudgeTypes {
		combined[t] = in.Today[t] + in.Session[t]
		total += combined[t]
	}

	var survivors []Judged
	for _, c := range cands {
		if reason := qualityReason(c, cfg); reason != "" {
			res.RejectionCounts[reason]++
			continue
		}
		if staleRepeat(c, in.Recent, in.ParagraphHash) {
			res.RejectionCounts[RejectStaleRepeat]++
			continue
		}

		c.PersonalizationWeight = pers.rankWeight(c.Type)
		c.RankScore = c.Overall * c.PersonalizationWeight

		if total >= 3 {
			share := float64(combined[c.Type]) / float64(total)
			target := res.TargetMix[c.Type]
			switch {
			case share >= target*typeSaturationFactor:
				res.RejectionCounts[RejectTypeSaturated]++
				continue
			case share > target+typeMixSlack:
				c.RankScore *= overrepresentedPenalty
			}
		}
		survivors = append(survivors, c)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].RankScore > survivors[j].RankScore
	})
	if len(survivors) > 1 {
		res.RejectionCounts[RejectOutranked] += len(survivors) - 1
		survivors = survivors[:1]
	}
	res.Accepted = survivors
	return res
}

func qualityReason(c Judged, cfg config.TuningConfig) string {
	switch {
	case c.Overall < cfg.MinOverallUtility:
		return RejectLowUtility
	case c.Specificity < cfg.MinSpecificity:
		return RejectLowSpecificity
	case c.Actionability < cfg.MinActionability:
		return RejectLowActionable
	}
	return ""
}

// staleRepeat reports whether this candidate re-surfaces a nudge the
// user already saw recently: same type citing the same memory, or a
// near-identical hook.
func staleRepeat(c Judged, recent []store.Nudge, paragraphHash string) bool {
	for _, n := range recent {
		if n.Type != c.Type || n.ParagraphHash == paragraphHash {
			continue
		}
		if n.EvidenceMemoryID != nil && *n.EvidenceMemoryID == c.Evidence.MemoryID {
			return true
		}
		if store.NearIdentical(n.Hook, c.Hook, hookRepeatThreshold) {
			return true
		}
	}
	return false
}

func evenTargetMix() map[string]float64 {
	mix := make(map[string]float64, len(nudgeTypes))
	for _, t := range nudgeTypes {
		mix[t] = 1.0 / float64(len(nudgeTypes))
	}
	return mix
}
