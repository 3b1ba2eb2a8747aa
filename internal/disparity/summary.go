package disparity

import "sort"

// AttributeImpact pairs a group with its cumulative disparity contribution.
type AttributeImpact struct {
	Attribute string  `json:"attribute"`
	Total     float64 `json:"total_disparity"`
}

// RankAttributes ranks worst-performing groups by summed delta across the
// supplied results, highest impact first. Ranking order is deterministic:
// ties break alphabetically.
func RankAttributes(results []Result) []AttributeImpact {
	totals := make(map[string]float64)
	for _, r := range results {
		if r.MaxGroup == "" || r.MaxGroup == "none" {
			continue
		}
		totals[r.MaxGroup] += r.Delta
	}

	ranked := make([]AttributeImpact, 0, len(totals))
	for attr, total := range totals {
		ranked = append(ranked, AttributeImpact{Attribute: attr, Total: total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Attribute < ranked[j].Attribute
	})
	return ranked
}

// Summary condenses the erasure/substitution disparity pair into headline
// findings.
type Summary struct {
	DeltaErasure              float64 `json:"delta_erasure"`
	DeltaSubstitution         float64 `json:"delta_substitution"`
	MostErasedAttribute       string  `json:"most_erased_attribute"`
	LeastErasedAttribute      string  `json:"least_erased_attribute"`
	MostSubstitutedAttribute  string  `json:"most_substituted_attribute"`
	LeastSubstitutedAttribute string  `json:"least_substituted_attribute"`
	ErasureSignificant        bool    `json:"erasure_significant"`
	SubstitutionSignificant   bool    `json:"substitution_significant"`
	OverallBiasDetected       bool    `json:"overall_bias_detected"`
}

// Summarize reports the headline comparison across the two core metrics.
func Summarize(erasure, substitution Result) Summary {
	return Summary{
		DeltaErasure:              erasure.Delta,
		DeltaSubstitution:         substitution.Delta,
		MostErasedAttribute:       erasure.MaxGroup,
		LeastErasedAttribute:      erasure.MinGroup,
		MostSubstitutedAttribute:  substitution.MaxGroup,
		LeastSubstitutedAttribute: substitution.MinGroup,
		ErasureSignificant:        erasure.IsSignificant,
		SubstitutionSignificant:   substitution.IsSignificant,
		OverallBiasDetected:       erasure.Delta > heuristicDeltaThreshold || substitution.Delta > heuristicDeltaThreshold,
	}
}

// Worst returns the highest-delta result in the slice, ties breaking to the
// first encountered. The zero Result is returned for an empty slice.
func Worst(results []Result) Result {
	var worst Result
	for i, r := range results {
		if i == 0 || r.Delta > worst.Delta {
			worst = r
		}
	}
	return worst
}
