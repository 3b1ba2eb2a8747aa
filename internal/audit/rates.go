package audit

import (
	"fmt"
	"sort"

	"image-bias-audit/backend/internal/disparity"
	"image-bias-audit/backend/internal/store"
)

// Metric classifies whether one evaluation exhibits a harm for rate
// aggregation purposes.
type Metric func(store.EvaluationRecord) bool

// MetricErasure flags evaluations where the attribute survived at less
// than half strength.
func MetricErasure(rec store.EvaluationRecord) bool {
	return rec.RetentionScore < 0.5
}

// MetricAbsence flags evaluations where the ensemble saw no trace of the
// attribute at all.
func MetricAbsence(rec store.EvaluationRecord) bool {
	return !rec.IsPresent
}

// MetricSubstitution flags evaluations where the attribute was replaced
// with a different one.
func MetricSubstitution(rec store.EvaluationRecord) bool {
	return rec.IsSubstituted
}

// Metrics enumerates the named harms the disparity report covers, in
// report order.
var Metrics = []struct {
	Name string
	Fn   Metric
}{
	{"erasure_rate", MetricErasure},
	{"absence_rate", MetricAbsence},
	{"substitution_rate", MetricSubstitution},
}

// GroupRates folds evaluation records into per-group rates for one metric.
// Abstained evaluations are excluded so low-confidence ensemble output
// cannot masquerade as measured bias. Group order follows first encounter
// in the record slice.
func GroupRates(records []store.EvaluationRecord, metric Metric) []disparity.GroupRate {
	order := make([]string, 0)
	hits := make(map[string]int)
	counts := make(map[string]int)
	for _, rec := range records {
		if rec.Abstained {
			continue
		}
		group := rec.AttributeValue
		if _, seen := counts[group]; !seen {
			order = append(order, group)
		}
		counts[group]++
		if metric(rec) {
			hits[group]++
		}
	}

	rates := make([]disparity.GroupRate, 0, len(order))
	for _, group := range order {
		n := counts[group]
		rates = append(rates, disparity.GroupRate{
			Group:       group,
			Rate:        float64(hits[group]) / float64(n),
			SampleCount: n,
		})
	}
	return rates
}

// Report holds every disparity result from one analysis pass, keyed by
// metric name, plus the headline summary over the worst erasure and
// substitution findings.
type Report struct {
	Results map[string][]disparity.Result `json:"results"`
	Summary disparity.Summary             `json:"summary"`
}

// BuildReport computes disparity for every attribute type present in the
// database crossed with every named metric, persisting each result. The
// calculator runs even for single-group attribute types; the degraded
// heuristic covers those.
func (e *Evaluator) BuildReport(calc *disparity.Calculator) (Report, error) {
	if e.db == nil {
		return Report{}, fmt.Errorf("disparity report requires a database")
	}
	all, err := e.db.ListEvaluations("")
	if err != nil {
		return Report{}, fmt.Errorf("load evaluations: %w", err)
	}

	byType := make(map[string][]store.EvaluationRecord)
	for _, rec := range all {
		byType[rec.AttributeType] = append(byType[rec.AttributeType], rec)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	report := Report{Results: make(map[string][]disparity.Result)}
	for _, m := range Metrics {
		for _, attrType := range types {
			rates := GroupRates(byType[attrType], m.Fn)
			result, err := calc.Compute(m.Name, attrType, rates)
			if err != nil {
				return Report{}, fmt.Errorf("compute %s/%s: %w", m.Name, attrType, err)
			}
			rec := store.DisparityRecord{
				MetricName:    result.MetricName,
				AttributeType: result.AttributeType,
				Delta:         result.Delta,
				MaxValue:      result.MaxValue,
				MaxGroup:      result.MaxGroup,
				MinValue:      result.MinValue,
				MinGroup:      result.MinGroup,
				Std:           result.Std,
				IsSignificant: result.IsSignificant,
				PValue:        result.PValue,
				EffectSize:    result.EffectSize,
				Degraded:      result.Degraded,
			}
			if err := e.db.SaveDisparity(&rec); err != nil {
				return Report{}, fmt.Errorf("save disparity %s/%s: %w", m.Name, attrType, err)
			}
			report.Results[m.Name] = append(report.Results[m.Name], result)
		}
	}
	report.Summary = disparity.Summarize(
		disparity.Worst(report.Results["erasure_rate"]),
		disparity.Worst(report.Results["substitution_rate"]),
	)
	return report, nil
}
