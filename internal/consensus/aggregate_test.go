package consensus

import (
	"math"
	"math/rand"
	"testing"

	"image-bias-audit/backend/internal/verdict"
)

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(DefaultConfidenceThreshold)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	return agg
}

func TestUnanimousAgreement(t *testing.T) {
	agg := newAggregator(t)
	weights := [][]float64{
		{1, 1},
		{1, 1, 1},
		{0.5, 2.5, 1.0},
		{3},
	}
	for _, ws := range weights {
		verdicts := make([]JudgeVerdict, 0, len(ws))
		for i, w := range ws {
			verdicts = append(verdicts, JudgeVerdict{
				JudgeID:    judgeID(i),
				Verdict:    verdict.Yes,
				Score:      1.0,
				Weight:     w,
				Confidence: 0.9,
			})
		}
		result, err := agg.Aggregate("culture", "Korean", verdicts)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if result.Agreement != Unanimous {
			t.Fatalf("weights %v: expected UNANIMOUS got %s", ws, result.Agreement)
		}
		if result.Abstained {
			t.Fatalf("weights %v: unexpected abstention", ws)
		}
		if !result.IsPresent {
			t.Fatalf("weights %v: expected present", ws)
		}
	}
}

func TestMajorityNotUnanimous(t *testing.T) {
	agg := newAggregator(t)
	verdicts := []JudgeVerdict{
		{JudgeID: "qwen3-vl", Verdict: verdict.Yes, Score: 1.0, Weight: 1, Confidence: 0.9},
		{JudgeID: "gemini-2-flash", Verdict: verdict.Yes, Score: 1.0, Weight: 1, Confidence: 0.8},
		{JudgeID: "gpt-4o", Verdict: verdict.No, Score: 0.0, Weight: 0.8, Confidence: 0.9},
	}
	result, err := agg.Aggregate("culture", "Korean", verdicts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// YES carries 2 out of 2.8 total weight (~71%), below the 90%
	// unanimity bar.
	if result.Agreement != Majority {
		t.Fatalf("expected MAJORITY got %s", result.Agreement)
	}
	if !result.IsPresent {
		t.Fatal("expected present")
	}
	if result.Abstained {
		t.Fatal("unexpected abstention")
	}
}

func TestSplitAbstains(t *testing.T) {
	agg := newAggregator(t)
	verdicts := []JudgeVerdict{
		{JudgeID: "a", Verdict: verdict.Yes, Score: 1.0, Weight: 1, Confidence: 0.5},
		{JudgeID: "b", Verdict: verdict.No, Score: 0.0, Weight: 1, Confidence: 0.5},
	}
	result, err := agg.Aggregate("culture", "Nigerian", verdicts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if result.Agreement != Abstained || !result.Abstained {
		t.Fatalf("expected ABSTAINED got %s abstained=%v", result.Agreement, result.Abstained)
	}
	if !NeedsHumanReview(verdicts) {
		t.Fatal("expected human review flag")
	}
	if sig := DisagreementSignature(verdicts); sig != "YES vs NO" {
		t.Fatalf("expected signature YES vs NO got %q", sig)
	}
}

func TestAllJudgesFailed(t *testing.T) {
	agg := newAggregator(t)
	tests := [][]JudgeVerdict{
		nil,
		{},
		{
			{JudgeID: "a", Verdict: verdict.Unknown, Weight: 1},
			{JudgeID: "b", Verdict: verdict.Unknown, Weight: 1},
		},
	}
	for _, verdicts := range tests {
		result, err := agg.Aggregate("culture", "Kenyan", verdicts)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if !result.Abstained || result.Agreement != Abstained {
			t.Fatalf("expected abstained result, got %+v", result)
		}
		if result.Confidence != 0 {
			t.Fatalf("expected confidence 0 got %.2f", result.Confidence)
		}
		if result.RetentionScore != 0.5 {
			t.Fatalf("expected retention 0.5 got %.2f", result.RetentionScore)
		}
	}
}

func TestWeakYesCascadesToPartial(t *testing.T) {
	agg := newAggregator(t)
	verdicts := []JudgeVerdict{
		{JudgeID: "a", Verdict: verdict.Yes, Score: 0.5, Weight: 1, Confidence: 0.9},
		{JudgeID: "b", Verdict: verdict.Partial, Score: 0.5, Weight: 1, Confidence: 0.9},
	}
	result, err := agg.Aggregate("culture", "Indian", verdicts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// Both votes land in the PARTIAL bucket, so agreement is unanimous.
	if result.Agreement != Unanimous {
		t.Fatalf("expected UNANIMOUS got %s", result.Agreement)
	}
	if !result.IsPresent {
		t.Fatal("expected present for PARTIAL winner")
	}
}

func TestTiePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		tally  Tally
		winner verdict.Verdict
	}{
		{"yes over no", Tally{Yes: 1, No: 1}, verdict.Yes},
		{"yes over partial", Tally{Yes: 1, Partial: 1}, verdict.Yes},
		{"partial over no", Tally{Partial: 1, No: 1}, verdict.Partial},
		{"three way", Tally{Yes: 1, Partial: 1, No: 1}, verdict.Yes},
		{"no outright", Tally{Yes: 0.5, No: 2}, verdict.No},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			winner, _ := tc.tally.Winner()
			if winner != tc.winner {
				t.Fatalf("expected %s got %s", tc.winner, winner)
			}
		})
	}
}

func TestSubstitutionTieDefaultsFalse(t *testing.T) {
	agg := newAggregator(t)
	verdicts := []JudgeVerdict{
		{JudgeID: "a", Verdict: verdict.Yes, Score: 1, Weight: 1, Confidence: 0.9, Substituted: true},
		{JudgeID: "b", Verdict: verdict.Yes, Score: 1, Weight: 1, Confidence: 0.9, Substituted: false},
	}
	result, err := agg.Aggregate("gender", "female", verdicts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if result.IsSubstituted {
		t.Fatal("expected substitution tie to resolve false")
	}
}

func TestAggregateCommutative(t *testing.T) {
	agg := newAggregator(t)
	verdicts := []JudgeVerdict{
		{JudgeID: "a", Verdict: verdict.Yes, Score: 1.0, Weight: 1.2, Confidence: 0.9},
		{JudgeID: "b", Verdict: verdict.Partial, Score: 0.5, Weight: 0.7, Confidence: 0.6},
		{JudgeID: "c", Verdict: verdict.No, Score: 0.0, Weight: 1.0, Confidence: 0.8},
		{JudgeID: "d", Verdict: verdict.Unknown, Weight: 1.0},
	}
	base, err := agg.Aggregate("culture", "Chinese", verdicts)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]JudgeVerdict(nil), verdicts...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		result, err := agg.Aggregate("culture", "Chinese", shuffled)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if math.Abs(result.RetentionScore-base.RetentionScore) > 1e-12 {
			t.Fatalf("retention changed under permutation: %v vs %v", result.RetentionScore, base.RetentionScore)
		}
		if math.Abs(result.Confidence-base.Confidence) > 1e-12 {
			t.Fatalf("confidence changed under permutation: %v vs %v", result.Confidence, base.Confidence)
		}
		if result.Agreement != base.Agreement {
			t.Fatalf("agreement changed under permutation: %s vs %s", result.Agreement, base.Agreement)
		}
	}
}

func TestResultBounds(t *testing.T) {
	agg := newAggregator(t)
	rng := rand.New(rand.NewSource(7))
	categories := []verdict.Verdict{verdict.Yes, verdict.No, verdict.Partial, verdict.Unknown}
	for i := 0; i < 100; i++ {
		n := 1 + rng.Intn(5)
		verdicts := make([]JudgeVerdict, 0, n)
		for j := 0; j < n; j++ {
			v := categories[rng.Intn(len(categories))]
			verdicts = append(verdicts, JudgeVerdict{
				JudgeID:    judgeID(j),
				Verdict:    v,
				Score:      v.Score(),
				Weight:     rng.Float64() * 3,
				Confidence: rng.Float64(),
			})
		}
		result, err := agg.Aggregate("culture", "American", verdicts)
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if result.RetentionScore < 0 || result.RetentionScore > 1 {
			t.Fatalf("retention out of bounds: %v", result.RetentionScore)
		}
		if result.Confidence < 0 || result.Confidence > 1 {
			t.Fatalf("confidence out of bounds: %v", result.Confidence)
		}
	}
}

func TestAggregateValidation(t *testing.T) {
	agg := newAggregator(t)
	if _, err := agg.Aggregate("culture", "Korean", []JudgeVerdict{{JudgeID: "a", Verdict: verdict.Yes, Weight: -1, Confidence: 0.5}}); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := agg.Aggregate("culture", "Korean", []JudgeVerdict{{JudgeID: "a", Verdict: verdict.Yes, Weight: 1, Score: 5.0, Confidence: 0.9}}); err == nil {
		t.Fatal("expected error for score above 1")
	}
	if _, err := agg.Aggregate("culture", "Korean", []JudgeVerdict{{JudgeID: "a", Verdict: verdict.Yes, Weight: 1, Score: -0.2, Confidence: 0.9}}); err == nil {
		t.Fatal("expected error for negative score")
	}
	if _, err := agg.Aggregate("culture", "Korean", []JudgeVerdict{{JudgeID: "a", Verdict: verdict.Yes, Weight: 1, Confidence: 1.5}}); err == nil {
		t.Fatal("expected error for confidence above 1")
	}
	if _, err := NewAggregator(1.5); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func judgeID(i int) string {
	return string(rune('a' + i))
}
