package audit

import (
	"context"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/consensus"
	"image-bias-audit/backend/internal/judge"
)

// Progress receives batch progress after every finished sample.
type Progress func(processed, total int, last consensus.EnsembleResult)

// BatchSummary is the tail-end accounting of one batch run.
type BatchSummary struct {
	Processed   int `json:"processed"`
	Abstained   int `json:"abstained"`
	NeedsReview int `json:"needs_review"`
	Failed      int `json:"failed"`
}

type sampleTask struct {
	index  int
	sample judge.Sample
}

type sampleResult struct {
	index  int
	result consensus.EnsembleResult
	err    error
}

// RunBatch evaluates every sample through a fixed worker pool. Samples
// that fail to aggregate are counted and logged but do not stop the run;
// the run stops only on context cancellation.
func (e *Evaluator) RunBatch(ctx context.Context, samples []judge.Sample, workers int, progress Progress) (BatchSummary, error) {
	if workers <= 0 {
		workers = determineWorkerCount()
	}
	total := len(samples)
	logrus.WithFields(logrus.Fields{
		"samples": total,
		"workers": workers,
	}).Info("audit worker pool configured")

	taskCh := make(chan sampleTask, workers*2)
	resultCh := make(chan sampleResult, workers*2)

	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for task := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				result, err := e.EvaluateSample(ctx, task.sample)
				select {
				case resultCh <- sampleResult{index: task.index, result: result, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	go func() {
		defer close(taskCh)
		for i, sample := range samples {
			select {
			case taskCh <- sampleTask{index: i, sample: sample}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var summary BatchSummary
	for res := range resultCh {
		if res.err != nil {
			summary.Failed++
			logrus.WithError(res.err).WithField("case_id", samples[res.index].CaseID).Error("sample evaluation failed")
			continue
		}
		summary.Processed++
		if res.result.Abstained {
			summary.Abstained++
		}
		if progress != nil {
			progress(summary.Processed, total, res.result)
		}
	}

	if e.db != nil {
		if _, pending, err := e.db.CountReviewItems(); err == nil {
			summary.NeedsReview = int(pending)
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func determineWorkerCount() int {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	return workers
}
