package policy

import (
	"math/rand"
	"testing"

	"github.com/tidemarket/moderation/internal/model"
)

func TestDecide(t *testing.T) {
	e := New(0.3, 0.7)

	tests := []struct {
		name  string
		score float64
		want  model.Status
	}{
		{"zero", 0, model.StatusApproved},
		{"below allow", 0.29, model.StatusApproved},
		{"at allow", 0.3, model.StatusFlaggedForReview},
		{"gray zone", 0.5, model.StatusFlaggedForReview},
		{"just under review", 0.6999, model.StatusFlaggedForReview},
		{"at review", 0.7, model.StatusBlocked},
		{"above review", 0.95, model.StatusBlocked},
		{"one", 1, model.StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Decide(tt.score); got != tt.want {
				t.Errorf("Decide(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestDecide_DegenerateThresholds(t *testing.T) {
	// allow == review leaves no gray zone at all.
	e := New(0.5, 0.5)
	if got := e.Decide(0.4); got != model.StatusApproved {
		t.Errorf("Decide(0.4) = %v, want APPROVED", got)
	}
	if got := e.Decide(0.5); got != model.StatusBlocked {
		t.Errorf("Decide(0.5) = %v, want BLOCKED", got)
	}
}

// TestDecide_Property checks the three-band mapping over randomized threshold
// pairs and scores.
func TestDecide_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		a, b := rng.Float64(), rng.Float64()
		if a > b {
			a, b = b, a
		}
		e := New(a, b)
		score := rng.Float64()

		var want model.Status
		switch {
		case score < a:
			want = model.StatusApproved
		case score < b:
			want = model.StatusFlaggedForReview
		default:
			want = model.StatusBlocked
		}
		if got := e.Decide(score); got != want {
			t.Fatalf("Decide(%v) with thresholds (%v, %v) = %v, want %v", score, a, b, got, want)
		}
	}
}
