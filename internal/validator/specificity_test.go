package validator

import "testing"

func TestScoreSpecificity(t *testing.T) {
	tests := []struct {
		name     string
		question string
		answer   string
		wantMin  float64
		wantMax  float64
	}{
		{"proper noun scores high", "What telescope succeeded Hubble?", "James Webb Space Telescope", 0.7, 1.0},
		{"date scores high", "When did it launch?", "2021", 0.6, 1.0},
		{"generic noun penalized", "What did they find?", "thing", 0, 0.3},
		{"bare given name without institution penalized", "Who discovered it?", "John", 0.4, 0.6},
		{"given name with institutional context not penalized", "Who at the agency discovered it?", "John", 0.7, 1.0},
		{"too-short answer rejected", "What is it?", "a", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreSpecificity(tt.question, tt.answer)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("scoreSpecificity(%q, %q) = %v, want in [%v,%v]", tt.question, tt.answer, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestMeetsThresholdWithTieBreak(t *testing.T) {
	tests := []struct {
		name       string
		validity   float64
		uniqueness float64
		want       bool
	}{
		{"both clear threshold", 0.7, 0.7, true},
		{"both below threshold", 0.4, 0.4, false},
		{"validity strong, uniqueness weak but above floor", 0.8, 0.55, true},
		{"uniqueness strong, validity weak but above floor", 0.55, 0.8, true},
		{"validity strong but uniqueness below floor", 0.8, 0.3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := meetsThresholdWithTieBreak(tt.validity, tt.uniqueness, 0.6, 0.6)
			if got != tt.want {
				t.Errorf("meetsThresholdWithTieBreak(%v, %v) = %v, want %v", tt.validity, tt.uniqueness, got, tt.want)
			}
		})
	}
}
