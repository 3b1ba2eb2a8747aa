package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrInvalidReviewStatus rejects adjudication to a non-terminal status.
	ErrInvalidReviewStatus = errors.New("invalid review status")
	// ErrReviewFinalized rejects re-adjudication of a decided case.
	ErrReviewFinalized = errors.New("review already finalized")
)

// Database wraps the GORM DB handle and exposes repository helpers. The
// mutex serializes writes so parallel sample workers can append safely
// through a single SQLite handle.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&EvaluationRecord{}, &ReviewItem{}, &DisparityRecord{}, &AuditRun{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveEvaluation inserts or updates the ensemble outcome for a case.
func (d *Database) SaveEvaluation(e *EvaluationRecord) error {
	if e == nil {
		return errors.New("evaluation is nil")
	}
	e.CaseID = strings.TrimSpace(e.CaseID)
	if e.CaseID == "" {
		return errors.New("case id required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	columns := []string{
		"attribute_type",
		"attribute_value",
		"retention_score",
		"confidence",
		"is_present",
		"is_substituted",
		"agreement",
		"abstained",
		"needs_review",
		"individual_scores_json",
		"judge_verdicts_json",
		"rationale",
		"processing_time_ms",
	}
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "case_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(e).Error
}

// ListEvaluations returns persisted outcomes, optionally filtered by
// attribute type, ordered by insertion.
func (d *Database) ListEvaluations(attributeType string) ([]EvaluationRecord, error) {
	var out []EvaluationRecord
	query := d.gorm.Order("id asc")
	if strings.TrimSpace(attributeType) != "" {
		query = query.Where("attribute_type = ?", attributeType)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return out, nil
}

// CountEvaluations returns the total number of persisted outcomes.
func (d *Database) CountEvaluations() (int64, error) {
	var count int64
	if err := d.gorm.Model(&EvaluationRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return count, nil
}

// AppendReviewItem adds a case to the review queue. Re-evaluating a case
// keeps the original queue entry untouched so human decisions survive
// repeated runs.
func (d *Database) AppendReviewItem(item *ReviewItem) error {
	if item == nil {
		return errors.New("review item is nil")
	}
	item.CaseID = strings.TrimSpace(item.CaseID)
	if item.CaseID == "" {
		return errors.New("case id required")
	}
	if item.ReviewStatus == "" {
		item.ReviewStatus = ReviewPending
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "case_id"}},
		DoNothing: true,
	}).Create(item).Error
}

// ListReviewItems returns queued cases, optionally filtered by status.
func (d *Database) ListReviewItems(status string) ([]ReviewItem, error) {
	var out []ReviewItem
	query := d.gorm.Order("id asc")
	if strings.TrimSpace(status) != "" {
		query = query.Where("review_status = ?", status)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	return out, nil
}

// AdjudicateReviewItem applies a human decision to a pending case. Only the
// adjudication fields mutate; verdict payloads from the ensemble stay as
// written.
func (d *Database) AdjudicateReviewItem(caseID, status, judgment, reviewer, notes string) (*ReviewItem, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, errors.New("case id required")
	}
	if status != ReviewReviewed && status != ReviewSkipped {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReviewStatus, status)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var item ReviewItem
	if err := d.gorm.Where("case_id = ?", caseID).First(&item).Error; err != nil {
		return nil, fmt.Errorf("load review item: %w", err)
	}
	if item.ReviewStatus != ReviewPending {
		return nil, fmt.Errorf("%w: case %s already %s", ErrReviewFinalized, caseID, item.ReviewStatus)
	}

	now := time.Now().UTC()
	item.ReviewStatus = status
	item.HumanJudgment = strings.ToUpper(strings.TrimSpace(judgment))
	item.Reviewer = strings.TrimSpace(reviewer)
	item.HumanNotes = notes
	item.ReviewedAt = &now

	if err := d.gorm.Model(&item).Select("review_status", "human_judgment", "reviewer", "human_notes", "reviewed_at").Updates(&item).Error; err != nil {
		return nil, fmt.Errorf("update review item: %w", err)
	}
	return &item, nil
}

// CountReviewItems returns (total, pending) queue sizes.
func (d *Database) CountReviewItems() (int64, int64, error) {
	var total, pending int64
	if err := d.gorm.Model(&ReviewItem{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count review items: %w", err)
	}
	if err := d.gorm.Model(&ReviewItem{}).Where("review_status = ?", ReviewPending).Count(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("count pending review items: %w", err)
	}
	return total, pending, nil
}

// SaveDisparity upserts the disparity record for a (metric, attribute type)
// pair.
func (d *Database) SaveDisparity(rec *DisparityRecord) error {
	if rec == nil {
		return errors.New("disparity record is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	columns := []string{
		"delta",
		"max_value",
		"max_group",
		"min_value",
		"min_group",
		"std",
		"is_significant",
		"p_value",
		"effect_size",
		"degraded",
		"updated_at",
	}
	return d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "metric_name"}, {Name: "attribute_type"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(rec).Error
}

// ListDisparities returns all persisted disparity records.
func (d *Database) ListDisparities() ([]DisparityRecord, error) {
	var out []DisparityRecord
	if err := d.gorm.Order("metric_name asc, attribute_type asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list disparities: %w", err)
	}
	return out, nil
}

// CreateAuditRun records a new batch job.
func (d *Database) CreateAuditRun(jobID string, total int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	run := AuditRun{JobID: jobID, Status: "running", Total: total}
	return d.gorm.Create(&run).Error
}

// UpdateAuditRun refreshes job progress and status.
func (d *Database) UpdateAuditRun(jobID, status, message string, processed int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	updates := map[string]any{
		"status":     status,
		"processed":  processed,
		"updated_at": time.Now().UTC(),
	}
	if message != "" {
		updates["message"] = message
	}
	return d.gorm.Model(&AuditRun{}).Where("job_id = ?", jobID).Updates(updates).Error
}
