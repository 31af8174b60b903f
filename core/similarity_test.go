package orchestration

import "testing"

func TestAreSimilarNearDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		second  string
		similar bool
	}{
		{"identical", "turn it off", "turn it off", true},
		{"trailing stutter", "turn it off", "turn it offf", true},
		{"case insensitive", "Turn It Off", "turn it off", true},
		{"different request", "turn it off", "call my mom", false},
		{"shared prefix only", "turn it off", "turn the oven on at six", false},
		{"empty first", "", "turn it off", false},
		{"empty second", "turn it off", "", false},
		{"both empty", "", "", false},
		{"unicode near duplicate", "café au lait", "cafe au lait", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := areSimilar(test.first, test.second, defaultSimilarityThreshold); got != test.similar {
				t.Fatalf("expected areSimilar(%q, %q) = %v, got %v", test.first, test.second, test.similar, got)
			}
		})
	}
}

func TestAreSimilarThresholdBoundary(t *testing.T) {
	// 1 edit over 10 runes is 0.9 similarity, over 4 runes it is 0.75.
	if !areSimilar("aaaaaaaaaa", "aaaaaaaaab", 0.85) {
		t.Fatalf("expected single edit in a long string to clear the threshold")
	}
	if areSimilar("aaab", "aaaa", 0.85) {
		t.Fatalf("expected single edit in a short string to miss the threshold")
	}
}
