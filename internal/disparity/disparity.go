package disparity

import (
	"fmt"
	"math"
)

// GroupRate is one group's outcome rate with its sample size. Rates are
// computed upstream from per-sample ensemble outcomes; callers pass an
// ordered slice so extremal tie-breaking stays deterministic.
type GroupRate struct {
	Group       string  `json:"group"`
	Rate        float64 `json:"rate"`
	SampleCount int     `json:"sample_count"`
}

// Result captures the disparity analysis for one (metric, attribute type)
// pair. Delta is always MaxValue - MinValue. Degraded marks results whose
// significance came from the heuristic fallback rather than a real
// chi-square test.
type Result struct {
	MetricName    string  `json:"metric_name"`
	AttributeType string  `json:"attribute_type"`
	Delta         float64 `json:"delta"`
	MaxValue      float64 `json:"max_value"`
	MaxGroup      string  `json:"max_group"`
	MinValue      float64 `json:"min_value"`
	MinGroup      string  `json:"min_group"`
	Std           float64 `json:"std"`
	IsSignificant bool    `json:"is_significant"`
	PValue        float64 `json:"p_value"`
	EffectSize    float64 `json:"effect_size"`
	Degraded      bool    `json:"degraded"`
}

const (
	// DefaultSignificanceLevel is the p-value threshold for the
	// chi-square independence test.
	DefaultSignificanceLevel = 0.05

	// heuristicDeltaThreshold flags bias when the contingency table is
	// untestable and the spread alone is large.
	heuristicDeltaThreshold = 0.1
)

// Calculator computes cross-group disparity with significance testing.
// It is stateless and safe for concurrent use; independent (metric,
// attribute type) pairs may be computed in parallel.
type Calculator struct {
	significanceLevel float64
}

// NewCalculator validates the significance level and returns a calculator.
func NewCalculator(significanceLevel float64) (*Calculator, error) {
	if significanceLevel <= 0 || significanceLevel >= 1 {
		return nil, fmt.Errorf("significance level %.3f outside (0,1)", significanceLevel)
	}
	return &Calculator{significanceLevel: significanceLevel}, nil
}

// Compute returns the disparity result for the supplied group rates. An empty
// slice yields the explicit degenerate zero result, not an error. Rates
// outside [0,1] or negative sample counts are programmer errors and fail
// fast.
func (c *Calculator) Compute(metricName, attributeType string, rates []GroupRate) (Result, error) {
	for _, gr := range rates {
		if gr.Rate < 0 || gr.Rate > 1 || math.IsNaN(gr.Rate) {
			return Result{}, fmt.Errorf("group %s: rate %.3f outside [0,1]", gr.Group, gr.Rate)
		}
		if gr.SampleCount < 0 {
			return Result{}, fmt.Errorf("group %s: negative sample count %d", gr.Group, gr.SampleCount)
		}
	}

	if len(rates) == 0 {
		return Result{
			MetricName:    metricName,
			AttributeType: attributeType,
			MaxGroup:      "none",
			MinGroup:      "none",
			PValue:        1.0,
		}, nil
	}

	max, min := rates[0], rates[0]
	var sum float64
	for _, gr := range rates {
		if gr.Rate > max.Rate {
			max = gr
		}
		if gr.Rate < min.Rate {
			min = gr
		}
		sum += gr.Rate
	}
	mean := sum / float64(len(rates))

	var variance float64
	for _, gr := range rates {
		d := gr.Rate - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(rates)))

	result := Result{
		MetricName:    metricName,
		AttributeType: attributeType,
		Delta:         max.Rate - min.Rate,
		MaxValue:      max.Rate,
		MaxGroup:      max.Group,
		MinValue:      min.Rate,
		MinGroup:      min.Group,
		Std:           std,
		PValue:        1.0,
	}

	pValue, effectSize, err := chiSquareIndependence(rates)
	if err != nil {
		// Untestable table: fall back to the spread heuristic and say
		// so, instead of passing the fallback off as a real test.
		result.IsSignificant = result.Delta > heuristicDeltaThreshold
		result.PValue = 1.0
		result.EffectSize = 0.0
		result.Degraded = true
		return result, nil
	}

	result.PValue = pValue
	result.EffectSize = effectSize
	result.IsSignificant = pValue < c.significanceLevel
	return result, nil
}
