package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"image-bias-audit/backend/internal/consensus"
	"image-bias-audit/backend/internal/judge"
	"image-bias-audit/backend/internal/manifest"
)

const auditThrottle = 500 * time.Millisecond

// auditJob tracks the state of a running audit.
type auditJob struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time
	total     int64
}

// startAudit launches a new asynchronous audit run. The caller must hold
// s.jobMu prior to invoking this function.
func (s *Server) startAudit(req AuditRequest) (*auditJob, error) {
	if s.activeJob != nil {
		return nil, errors.New("audit already running")
	}

	manifestPath := req.ManifestPath
	if manifestPath == "" {
		manifestPath = s.manifestPath
	}
	samples, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if len(samples) == 0 {
		return nil, errors.New("manifest contains no samples")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &auditJob{
		id:        uuid.NewString(),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		total:     int64(len(samples)),
	}

	if err := s.db.CreateAuditRun(job.id, job.total); err != nil {
		job.cancel()
		return nil, fmt.Errorf("create audit run: %w", err)
	}

	s.activeJob = job
	go s.runAudit(ctx, job, samples, req.Workers)
	return job, nil
}

// cancelAudit aborts the active job if present.
func (s *Server) cancelAudit() {
	if s.activeJob == nil {
		return
	}
	s.activeJob.cancel()
}

func (s *Server) runAudit(ctx context.Context, job *auditJob, samples []judge.Sample, workers int) {
	finishStatus := "completed"
	finishMessage := "audit completed"
	processed := 0

	defer func() {
		if err := s.db.UpdateAuditRun(job.id, finishStatus, finishMessage, processed); err != nil {
			logrus.WithError(err).WithField("job", job.id).Warn("update audit run")
		}
		s.jobMu.Lock()
		s.activeJob = nil
		s.jobMu.Unlock()
	}()

	s.notifier.Broadcast(AuditEvent{
		Type:    "started",
		JobID:   job.id,
		Total:   job.total,
		Message: "audit started",
	})
	logrus.WithFields(logrus.Fields{
		"job":     job.id,
		"samples": job.total,
	}).Info("audit run started")

	var (
		lastEmit     time.Time
		hasPending   bool
		pendingEvent AuditEvent
	)
	flush := func(force bool) {
		if !hasPending {
			return
		}
		if !force && !lastEmit.IsZero() && time.Since(lastEmit) < auditThrottle {
			return
		}
		s.notifier.Broadcast(pendingEvent)
		lastEmit = time.Now()
		hasPending = false
	}

	summary, err := s.evaluator.RunBatch(ctx, samples, workers, func(done, total int, last consensus.EnsembleResult) {
		processed = done
		pendingEvent = AuditEvent{
			Type:      "progress",
			JobID:     job.id,
			Total:     int64(total),
			Processed: done,
		}
		hasPending = true
		flush(false)
	})
	flush(true)
	s.queue.Flush()

	if errors.Is(err, context.Canceled) {
		finishStatus = "cancelled"
		finishMessage = "audit cancelled"
		s.notifier.Broadcast(AuditEvent{
			Type:      "cancelled",
			JobID:     job.id,
			Total:     job.total,
			Processed: processed,
			Message:   finishMessage,
		})
		logrus.WithField("job", job.id).Warn("audit run cancelled via context")
		return
	}
	if err != nil {
		finishStatus = "failed"
		finishMessage = err.Error()
		s.notifier.Broadcast(AuditEvent{
			Type:    "error",
			JobID:   job.id,
			Message: err.Error(),
		})
		logrus.WithError(err).WithField("job", job.id).Error("audit run failed")
		return
	}

	if s.exportPath != "" {
		if err := s.writeReviewExport(); err != nil {
			logrus.WithError(err).WithField("job", job.id).Warn("write review export")
		}
	}

	if _, err := s.evaluator.BuildReport(s.calc); err != nil {
		finishStatus = "failed"
		finishMessage = err.Error()
		s.notifier.Broadcast(AuditEvent{
			Type:    "error",
			JobID:   job.id,
			Message: err.Error(),
		})
		logrus.WithError(err).WithField("job", job.id).Error("disparity report failed")
		return
	}

	s.notifier.Broadcast(AuditEvent{
		Type:      "completed",
		JobID:     job.id,
		Total:     job.total,
		Processed: summary.Processed,
		Message:   finishMessage,
	})
	logrus.WithFields(logrus.Fields{
		"job":          job.id,
		"processed":    summary.Processed,
		"abstained":    summary.Abstained,
		"needs_review": summary.NeedsReview,
		"failed":       summary.Failed,
	}).Info("audit run completed")
}
