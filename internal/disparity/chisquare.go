package disparity

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var errDegenerateTable = errors.New("degenerate contingency table")

// chiSquareIndependence builds a 2xk contingency table (successes vs
// failures per group, successes = round(rate*n)) and runs the chi-square
// test of independence. The effect size is Cramer's V,
// sqrt(chi2 / (N * (min(k,2)-1))).
//
// The table is degenerate when fewer than two groups carry samples, any
// group has a zero count, or one outcome column is empty; callers handle
// that via the heuristic fallback.
func chiSquareIndependence(rates []GroupRate) (pValue, effectSize float64, err error) {
	k := len(rates)
	if k < 2 {
		return 0, 0, errDegenerateTable
	}

	successes := make([]float64, k)
	failures := make([]float64, k)
	var totalSuccess, totalFailure float64
	for i, gr := range rates {
		n := gr.SampleCount
		if n <= 0 {
			return 0, 0, errDegenerateTable
		}
		s := math.Round(gr.Rate * float64(n))
		successes[i] = s
		failures[i] = float64(n) - s
		totalSuccess += successes[i]
		totalFailure += failures[i]
	}
	if totalSuccess == 0 || totalFailure == 0 {
		return 0, 0, errDegenerateTable
	}

	total := totalSuccess + totalFailure
	var chi2 float64
	for i := range rates {
		rowTotal := successes[i] + failures[i]
		expectedSuccess := rowTotal * totalSuccess / total
		expectedFailure := rowTotal * totalFailure / total
		chi2 += square(successes[i]-expectedSuccess) / expectedSuccess
		chi2 += square(failures[i]-expectedFailure) / expectedFailure
	}

	dof := k - 1
	dist := distuv.ChiSquared{K: float64(dof)}
	pValue = dist.Survival(chi2)

	// min(k,2)-1 == 1 for any 2xk table; kept spelled out to match the
	// Cramer's V definition.
	effectSize = math.Sqrt(chi2 / (total * float64(minInt(k, 2)-1)))
	return pValue, effectSize, nil
}

func square(v float64) float64 { return v * v }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
