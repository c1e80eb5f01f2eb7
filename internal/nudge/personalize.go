package nudge

import (
	"fmt"

	"github.com/lazypower/marginalia/internal/store"
)

const (
	defaultTypeWeight = 2.5
	upvoteBoost       = 0.06
	downvotePenalty   = 0.09
	reasonIncrement   = 0.25
	maxReasonPenalty  = 2.0
	feedbackWindow    = 50
)

// Personalization holds the per-user weights derived from feedback
// history. It is rebuilt from storage on every evaluate call so that
// feedback takes effect immediately and nothing is cached stale.
type Personalization struct {
	TypeWeights     map[string]float64
	ReasonPenalties map[string]float64
	// LastReason maps nudge type to the reason on the most recent
	// downvote of that type, if any.
	LastReason map[string]string
}

func defaultPersonalization() Personalization {
	tw := make(map[string]float64, len(nudgeTypes))
	for _, t := range nudgeTypes {
		tw[t] = defaultTypeWeight
	}
	return Personalization{
		TypeWeights:     tw,
		ReasonPenalties: make(map[string]float64),
		LastReason:      make(map[string]string),
	}
}

// BuildPersonalization folds the user's recent feedback, oldest first,
// into type weights and reason penalties.
func BuildPersonalization(db *store.DB, userID string) (Personalization, error) {
	p := defaultPersonalization()
	recent, err := db.RecentFeedback(userID, feedbackWindow)
	if err != nil {
		return p, fmt.Errorf("loading feedback: %w", err)
	}
	// RecentFeedback returns newest first; apply oldest first so the
	// latest signal lands last.
	for i := len(recent) - 1; i >= 0; i-- {
		fb := recent[i]
		switch fb.Feedback {
		case store.FeedbackUp:
			p.TypeWeights[fb.NudgeType] += upvoteBoost
		case store.FeedbackDown:
			p.TypeWeights[fb.NudgeType] -= downvotePenalty
			if p.TypeWeights[fb.NudgeType] < 0 {
				p.TypeWeights[fb.NudgeType] = 0
			}
			if fb.Reason != "" {
				pen := p.ReasonPenalties[fb.Reason] + reasonIncrement
				if pen > maxReasonPenalty {
					pen = maxReasonPenalty
				}
				p.ReasonPenalties[fb.Reason] = pen
				p.LastReason[fb.NudgeType] = fb.Reason
			}
		}
	}
	return p, nil
}

// rankWeight is the multiplier applied to a candidate's overall
// utility: the learned type weight minus the penalty for the most
// recent rejection reason seen on that type, floored at zero.
func (p Personalization) rankWeight(nudgeType string) float64 {
	w := p.TypeWeights[nudgeType]
	if reason, ok := p.LastReason[nudgeType]; ok {
		w -= p.ReasonPenalties[reason]
	}
	if w < 0 {
		return 0
	}
	return w
}
