package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/consensus"
	"image-bias-audit/backend/internal/judge"
	"image-bias-audit/backend/internal/review"
	"image-bias-audit/backend/internal/store"
	"image-bias-audit/backend/internal/util"
	"image-bias-audit/backend/internal/verdict"
)

// Evaluator runs the ensemble pipeline for samples: invoke judges in
// parallel, normalize, aggregate, persist, and queue disagreements for
// human review. Judges are injected once at construction; the evaluator
// never initializes backends lazily.
type Evaluator struct {
	judges []judge.Judge
	agg    *consensus.Aggregator
	db     *store.Database
	queue  *review.Writer
}

// NewEvaluator wires the pipeline. The database and review writer are
// optional; without them the evaluator is a pure in-memory pipeline.
func NewEvaluator(judges []judge.Judge, agg *consensus.Aggregator, db *store.Database, queue *review.Writer) (*Evaluator, error) {
	if len(judges) == 0 {
		return nil, errors.New("at least one judge required")
	}
	if agg == nil {
		return nil, errors.New("aggregator required")
	}
	for _, j := range judges {
		if j.Weight() < 0 {
			return nil, fmt.Errorf("judge %s: negative weight %.3f", j.ID(), j.Weight())
		}
	}
	return &Evaluator{judges: judges, agg: agg, db: db, queue: queue}, nil
}

// EvaluateSample runs the full ensemble over one sample. Judge failures
// degrade to UNKNOWN votes and never surface as errors; the returned error
// covers only configuration-class problems and persistence failures.
func (e *Evaluator) EvaluateSample(ctx context.Context, sample judge.Sample) (consensus.EnsembleResult, error) {
	timer := util.StartTimer()
	verdicts := e.collectVerdicts(ctx, sample)

	result, err := e.agg.Aggregate(sample.AttributeType, sample.AttributeValue, verdicts)
	if err != nil {
		return consensus.EnsembleResult{}, err
	}

	needsReview := consensus.NeedsHumanReview(verdicts)

	if e.db != nil {
		record := store.EvaluationRecord{
			CaseID:           sample.CaseID,
			AttributeType:    result.AttributeType,
			AttributeValue:   result.AttributeValue,
			RetentionScore:   result.RetentionScore,
			Confidence:       result.Confidence,
			IsPresent:        result.IsPresent,
			IsSubstituted:    result.IsSubstituted,
			Agreement:        string(result.Agreement),
			Abstained:        result.Abstained,
			NeedsReview:      needsReview,
			Rationale:        result.Rationale,
			ProcessingTimeMs: timer.ElapsedMs(),
		}
		record.SetIndividualScores(result.IndividualScores)
		record.SetJudgeVerdicts(verdictMap(verdicts))
		if err := e.db.SaveEvaluation(&record); err != nil {
			return consensus.EnsembleResult{}, fmt.Errorf("save evaluation: %w", err)
		}
	}

	if needsReview && e.queue != nil {
		item := store.ReviewItem{
			CaseID:           sample.CaseID,
			Attribute:        sample.AttributeValue,
			EnsembleVerdict:  string(result.VerdictLabel()),
			DisagreementType: consensus.DisagreementSignature(verdicts),
			ReviewStatus:     store.ReviewPending,
		}
		item.SetJudgeResponses(verdictMap(verdicts))
		e.queue.Enqueue(item)
	}

	return result, nil
}

// collectVerdicts queries every judge concurrently, keeping verdicts in
// judge order so aggregation inputs stay reproducible.
func (e *Evaluator) collectVerdicts(ctx context.Context, sample judge.Sample) []consensus.JudgeVerdict {
	verdicts := make([]consensus.JudgeVerdict, len(e.judges))
	var wg sync.WaitGroup
	for i, j := range e.judges {
		wg.Add(1)
		go func(i int, j judge.Judge) {
			defer wg.Done()
			verdicts[i] = evaluateOne(ctx, j, sample)
		}(i, j)
	}
	wg.Wait()
	return verdicts
}

func evaluateOne(ctx context.Context, j judge.Judge, sample judge.Sample) consensus.JudgeVerdict {
	jv := consensus.JudgeVerdict{
		JudgeID: j.ID(),
		Verdict: verdict.Unknown,
		Weight:  j.Weight(),
	}

	resp, err := j.Evaluate(ctx, sample)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"judge":   j.ID(),
			"case_id": sample.CaseID,
		}).Warn("judge unavailable")
		return jv
	}

	obs := verdict.ParseObservation(resp.Text)
	jv.RawText = resp.Text
	jv.Verdict = obs.Presence
	jv.Score = obs.Score
	jv.Substituted = obs.Substituted
	jv.Confidence = obs.Confidence
	jv.Rationale = obs.Rationale
	if !obs.Presence.Known() {
		logrus.WithFields(logrus.Fields{
			"judge":   j.ID(),
			"case_id": sample.CaseID,
		}).Warn("judge output unparseable")
	}
	return jv
}

func verdictMap(verdicts []consensus.JudgeVerdict) map[string]string {
	out := make(map[string]string, len(verdicts))
	for _, jv := range verdicts {
		out[jv.JudgeID] = string(jv.Verdict)
	}
	return out
}
