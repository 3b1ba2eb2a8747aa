package consensus

import (
	"strings"

	"image-bias-audit/backend/internal/verdict"
)

// Agreement describes consensus strength across the judge ensemble for one
// sample.
type Agreement string

const (
	Unanimous Agreement = "UNANIMOUS"
	Majority  Agreement = "MAJORITY"
	Split     Agreement = "SPLIT"
	Abstained Agreement = "ABSTAINED"
)

// JudgeVerdict is one judge's contribution to an ensemble decision. It is
// created once per judge invocation and never mutated.
type JudgeVerdict struct {
	JudgeID     string          `json:"judge_id"`
	RawText     string          `json:"raw_text"`
	Verdict     verdict.Verdict `json:"normalized_verdict"`
	Score       float64         `json:"score"`
	Substituted bool            `json:"substituted"`
	Weight      float64         `json:"weight"`
	Confidence  float64         `json:"confidence"`
	Rationale   string          `json:"rationale,omitempty"`
}

// Tally accumulates vote weight per verdict category. One field per category
// keeps the switch below exhaustive instead of hiding categories behind map
// keys.
type Tally struct {
	Yes     float64
	Partial float64
	No      float64
}

// Add credits weight to the given category. Unknown verdicts are ignored.
func (t *Tally) Add(v verdict.Verdict, weight float64) {
	switch v {
	case verdict.Yes:
		t.Yes += weight
	case verdict.Partial:
		t.Partial += weight
	case verdict.No:
		t.No += weight
	}
}

// Total returns the summed weight across all categories.
func (t Tally) Total() float64 {
	return t.Yes + t.Partial + t.No
}

// Winner returns the category with the highest weight and that weight.
// Ties break by the fixed precedence YES > PARTIAL > NO so equal-weight
// ensembles stay deterministic.
func (t Tally) Winner() (verdict.Verdict, float64) {
	winner, weight := verdict.Yes, t.Yes
	if t.Partial > weight {
		winner, weight = verdict.Partial, t.Partial
	}
	if t.No > weight {
		winner, weight = verdict.No, t.No
	}
	return winner, weight
}

// EnsembleResult is the calibrated outcome of one ensemble evaluation.
// Derived deterministically from the judge verdicts and aggregator
// configuration; a new evaluation always produces a new result.
type EnsembleResult struct {
	AttributeType    string             `json:"attribute_type"`
	AttributeValue   string             `json:"attribute_value"`
	RetentionScore   float64            `json:"retention_score"`
	IsPresent        bool               `json:"is_present"`
	IsSubstituted    bool               `json:"is_substituted"`
	Confidence       float64            `json:"confidence"`
	Agreement        Agreement          `json:"agreement"`
	Abstained        bool               `json:"abstained"`
	IndividualScores map[string]float64 `json:"individual_scores,omitempty"`
	Rationale        string             `json:"rationale,omitempty"`
}

// VerdictLabel collapses the calibrated result back to a categorical
// verdict, mirroring the single-judge vocabulary.
func (r EnsembleResult) VerdictLabel() verdict.Verdict {
	switch {
	case !r.IsPresent:
		return verdict.No
	case r.RetentionScore >= 0.8:
		return verdict.Yes
	default:
		return verdict.Partial
	}
}

// NeedsHumanReview reports whether at least two judges produced differing
// usable verdicts, i.e. the case belongs in the human review queue.
func NeedsHumanReview(verdicts []JudgeVerdict) bool {
	var first verdict.Verdict
	seen := false
	for _, jv := range verdicts {
		if !jv.Verdict.Known() {
			continue
		}
		if !seen {
			first, seen = jv.Verdict, true
			continue
		}
		if jv.Verdict != first {
			return true
		}
	}
	return false
}

// DisagreementSignature renders the per-judge verdicts in input order,
// e.g. "YES vs NO", for review-queue bookkeeping.
func DisagreementSignature(verdicts []JudgeVerdict) string {
	parts := make([]string, 0, len(verdicts))
	for _, jv := range verdicts {
		if jv.Verdict.Known() {
			parts = append(parts, string(jv.Verdict))
		}
	}
	return strings.Join(parts, " vs ")
}
