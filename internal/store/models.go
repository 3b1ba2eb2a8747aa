package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Review status lifecycle for queued cases. Items start pending and are
// mutated only by the human-review flow; reviewed and skipped are terminal.
const (
	ReviewPending  = "pending"
	ReviewReviewed = "reviewed"
	ReviewSkipped  = "skipped"
)

// EvaluationRecord is the per-sample ensemble outcome persisted for
// querying and downstream rate aggregation.
type EvaluationRecord struct {
	ID                   uint   `gorm:"primaryKey"`
	CaseID               string `gorm:"size:64;uniqueIndex"`
	AttributeType        string `gorm:"size:64;index"`
	AttributeValue       string `gorm:"size:128;index"`
	RetentionScore       float64
	Confidence           float64
	IsPresent            bool
	IsSubstituted        bool
	Agreement            string `gorm:"size:16"`
	Abstained            bool   `gorm:"index"`
	NeedsReview          bool   `gorm:"index"`
	IndividualScoresJSON string `gorm:"type:text"`
	JudgeVerdictsJSON    string `gorm:"type:text"`
	Rationale            string `gorm:"type:text"`
	ProcessingTimeMs     int64
	CreatedAt            time.Time `gorm:"autoCreateTime"`
}

// SetIndividualScores persists the per-judge score map as JSON.
func (e *EvaluationRecord) SetIndividualScores(scores map[string]float64) {
	if len(scores) == 0 {
		e.IndividualScoresJSON = "{}"
		return
	}
	payload, _ := json.Marshal(scores)
	e.IndividualScoresJSON = string(payload)
}

// IndividualScores returns the decoded per-judge score map.
func (e *EvaluationRecord) IndividualScores() map[string]float64 {
	if strings.TrimSpace(e.IndividualScoresJSON) == "" {
		return nil
	}
	var out map[string]float64
	if err := json.Unmarshal([]byte(e.IndividualScoresJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetJudgeVerdicts persists the per-judge normalized verdict map as JSON.
func (e *EvaluationRecord) SetJudgeVerdicts(verdicts map[string]string) {
	if len(verdicts) == 0 {
		e.JudgeVerdictsJSON = "{}"
		return
	}
	payload, _ := json.Marshal(verdicts)
	e.JudgeVerdictsJSON = string(payload)
}

// JudgeVerdicts returns the decoded per-judge verdict map.
func (e *EvaluationRecord) JudgeVerdicts() map[string]string {
	if strings.TrimSpace(e.JudgeVerdictsJSON) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(e.JudgeVerdictsJSON), &out); err != nil {
		return nil
	}
	return out
}

// ReviewItem is one disagreeing case queued for human adjudication. Rows are
// append-only from the evaluation side.
type ReviewItem struct {
	ID                 uint   `gorm:"primaryKey"`
	CaseID             string `gorm:"size:64;uniqueIndex"`
	Attribute          string `gorm:"size:128"`
	JudgeResponsesJSON string `gorm:"type:text"`
	EnsembleVerdict    string `gorm:"size:16"`
	DisagreementType   string `gorm:"size:64;index"`
	ReviewStatus       string `gorm:"size:16;index;default:pending"`
	HumanJudgment      string `gorm:"size:16"`
	HumanNotes         string `gorm:"type:text"`
	Reviewer           string `gorm:"size:128"`
	ReviewedAt         *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// SetJudgeResponses persists the judge verdict map as JSON.
func (r *ReviewItem) SetJudgeResponses(responses map[string]string) {
	if len(responses) == 0 {
		r.JudgeResponsesJSON = "{}"
		return
	}
	payload, _ := json.Marshal(responses)
	r.JudgeResponsesJSON = string(payload)
}

// JudgeResponses returns the decoded judge verdict map.
func (r *ReviewItem) JudgeResponses() map[string]string {
	if strings.TrimSpace(r.JudgeResponsesJSON) == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(r.JudgeResponsesJSON), &out); err != nil {
		return nil
	}
	return out
}

// DisparityRecord persists one disparity computation per (metric,
// attribute type) pair.
type DisparityRecord struct {
	ID            uint   `gorm:"primaryKey"`
	MetricName    string `gorm:"size:64;uniqueIndex:idx_metric_attribute"`
	AttributeType string `gorm:"size:64;uniqueIndex:idx_metric_attribute"`
	Delta         float64
	MaxValue      float64
	MaxGroup      string `gorm:"size:128"`
	MinValue      float64
	MinGroup      string `gorm:"size:128"`
	Std           float64
	IsSignificant bool
	PValue        float64
	EffectSize    float64
	Degraded      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditRun persists batch job state across restarts.
type AuditRun struct {
	JobID     string `gorm:"primaryKey;size:64"`
	Status    string `gorm:"size:32;index"`
	Message   string `gorm:"size:255"`
	Processed int
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
