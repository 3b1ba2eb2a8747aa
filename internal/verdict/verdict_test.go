package verdict

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Verdict
	}{
		{"bare yes", "YES", Yes},
		{"bare no", "no", No},
		{"bare partial", "Partial", Partial},
		{"surrounding prose", "Based on the image, the answer is YES.", Yes},
		{"first match wins", "YES, although one could argue NO", Yes},
		{"partially variant", "The attribute is partially visible", Partial},
		{"not is not no", "NOT really visible here", Unknown},
		{"empty", "", Unknown},
		{"whitespace", "   \n ", Unknown},
		{"gibberish", "the model declined to answer", Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.raw); got != tc.expected {
				t.Fatalf("expected %s got %s", tc.expected, got)
			}
		})
	}
}

func TestVerdictScore(t *testing.T) {
	tests := []struct {
		verdict  Verdict
		expected float64
	}{
		{Yes, 1.0},
		{Partial, 0.5},
		{No, 0.0},
		{Unknown, 0.5},
	}
	for _, tc := range tests {
		if got := tc.verdict.Score(); got != tc.expected {
			t.Fatalf("%s: expected %.1f got %.1f", tc.verdict, tc.expected, got)
		}
	}
}

func TestParseObservationJSON(t *testing.T) {
	raw := "```json\n{\"is_present\": \"PARTIAL\", \"is_substituted\": true, \"confidence\": 0.72, \"rationale\": \"hanbok collar visible but muted\"}\n```"
	obs := ParseObservation(raw)
	if obs.Presence != Partial {
		t.Fatalf("expected PARTIAL got %s", obs.Presence)
	}
	if obs.Score != 0.5 {
		t.Fatalf("expected score 0.5 got %.2f", obs.Score)
	}
	if !obs.Substituted {
		t.Fatal("expected substituted")
	}
	if obs.Confidence != 0.72 {
		t.Fatalf("expected confidence 0.72 got %.2f", obs.Confidence)
	}
	if obs.Rationale == "" {
		t.Fatal("expected rationale")
	}
}

func TestParseObservationFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		presence   Verdict
		confidence float64
	}{
		{"bare word", "YES", Yes, 0.5},
		{"prose answer", "Answer: NO, the marker is absent.", No, 0.5},
		{"garbage", "0xdeadbeef", Unknown, 0},
		{"json missing presence", `{"confidence": 0.9}`, Unknown, 0},
		{"confidence clamped", `{"is_present": "YES", "confidence": 3.5}`, Yes, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obs := ParseObservation(tc.raw)
			if obs.Presence != tc.presence {
				t.Fatalf("expected %s got %s", tc.presence, obs.Presence)
			}
			if obs.Confidence != tc.confidence {
				t.Fatalf("expected confidence %.2f got %.2f", tc.confidence, obs.Confidence)
			}
		})
	}
}
