// Package policy maps a classifier score to an automated moderation outcome.
package policy

import "github.com/tidemarket/moderation/internal/model"

// Engine holds the two configured thresholds. Scores below Allow pass, scores
// at or above Review are blocked, and the gray zone in between goes to a
// human reviewer.
type Engine struct {
	Allow  float64
	Review float64
}

// New builds an Engine. Threshold ordering is validated by config at startup.
func New(allow, review float64) Engine {
	return Engine{Allow: allow, Review: review}
}

// Decide returns the automated outcome for a score.
func (e Engine) Decide(score float64) model.Status {
	switch {
	case score < e.Allow:
		return model.StatusApproved
	case score < e.Review:
		return model.StatusFlaggedForReview
	default:
		return model.StatusBlocked
	}
}
