package consensus

import (
	"fmt"
	"strings"

	"image-bias-audit/backend/internal/verdict"
)

const (
	// DefaultConfidenceThreshold gates abstention when the weighted
	// ensemble confidence falls below it.
	DefaultConfidenceThreshold = 0.6

	// yesScoreCutoff cascades weak YES votes into the PARTIAL bucket: a
	// judge saying YES with a retention score under the cutoff is counted
	// as partial evidence, not full presence.
	yesScoreCutoff = 0.8

	unanimousShare = 0.9
	majorityShare  = 0.5
)

// Aggregator combines normalized judge verdicts into a single calibrated
// EnsembleResult. It is stateless and safe for concurrent use.
type Aggregator struct {
	confidenceThreshold float64
}

// NewAggregator validates the abstention threshold and returns an aggregator.
func NewAggregator(confidenceThreshold float64) (*Aggregator, error) {
	if confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold %.3f outside [0,1]", confidenceThreshold)
	}
	return &Aggregator{confidenceThreshold: confidenceThreshold}, nil
}

// ConfidenceThreshold returns the configured abstention threshold.
func (a *Aggregator) ConfidenceThreshold() float64 {
	return a.confidenceThreshold
}

// Aggregate runs weighted voting, agreement classification and the abstention
// gate over the supplied verdicts. Judges with Unknown verdicts are dropped
// and the remaining weights renormalized; if nothing usable remains the
// all-failed result is returned. The aggregation is commutative over judges.
//
// Negative weights, scores outside [0,1] and confidences outside [0,1] are
// programmer errors and fail fast.
func (a *Aggregator) Aggregate(attributeType, attributeValue string, verdicts []JudgeVerdict) (EnsembleResult, error) {
	for _, jv := range verdicts {
		if jv.Weight < 0 {
			return EnsembleResult{}, fmt.Errorf("judge %s: negative weight %.3f", jv.JudgeID, jv.Weight)
		}
		if jv.Score < 0 || jv.Score > 1 {
			return EnsembleResult{}, fmt.Errorf("judge %s: score %.3f outside [0,1]", jv.JudgeID, jv.Score)
		}
		if jv.Confidence < 0 || jv.Confidence > 1 {
			return EnsembleResult{}, fmt.Errorf("judge %s: confidence %.3f outside [0,1]", jv.JudgeID, jv.Confidence)
		}
	}

	var (
		tally              Tally
		subFor, subAgainst float64
		weightedRetention  float64
		weightedConfidence float64
		totalWeight        float64
		scores             = make(map[string]float64)
		rationales         []string
	)

	for _, jv := range verdicts {
		if !jv.Verdict.Known() {
			continue
		}
		totalWeight += jv.Weight

		if jv.Verdict == verdict.Yes && jv.Score < yesScoreCutoff {
			tally.Add(verdict.Partial, jv.Weight)
		} else {
			tally.Add(jv.Verdict, jv.Weight)
		}

		if jv.Substituted {
			subFor += jv.Weight
		} else {
			subAgainst += jv.Weight
		}

		weightedRetention += jv.Score * jv.Weight
		weightedConfidence += jv.Confidence * jv.Weight
		scores[jv.JudgeID] = jv.Score
		if jv.Rationale != "" {
			rationales = append(rationales, fmt.Sprintf("[%s] %s", jv.JudgeID, jv.Rationale))
		}
	}

	if totalWeight == 0 {
		return allFailedResult(attributeType, attributeValue), nil
	}

	winner, winnerWeight := tally.Winner()

	result := EnsembleResult{
		AttributeType:    attributeType,
		AttributeValue:   attributeValue,
		RetentionScore:   weightedRetention / totalWeight,
		IsPresent:        winner == verdict.Yes || winner == verdict.Partial,
		IsSubstituted:    subFor > subAgainst,
		Confidence:       weightedConfidence / totalWeight,
		IndividualScores: scores,
		Rationale:        strings.Join(rationales, " | "),
	}

	switch {
	case winnerWeight >= unanimousShare*totalWeight:
		result.Agreement = Unanimous
	case winnerWeight >= majorityShare*totalWeight:
		result.Agreement = Majority
	default:
		result.Agreement = Split
	}

	if result.Confidence < a.confidenceThreshold || result.Agreement == Split {
		result.Abstained = true
		result.Agreement = Abstained
	}

	return result, nil
}

// allFailedResult is the well-defined outcome when every judge failed or
// produced unparseable output. Retention sits at 0.5 so downstream rate
// aggregation is not biased toward "absent".
func allFailedResult(attributeType, attributeValue string) EnsembleResult {
	return EnsembleResult{
		AttributeType:  attributeType,
		AttributeValue: attributeValue,
		RetentionScore: 0.5,
		Confidence:     0,
		Agreement:      Abstained,
		Abstained:      true,
		Rationale:      "all judges failed",
	}
}
