package api

import (
	"time"

	"image-bias-audit/backend/internal/disparity"
	"image-bias-audit/backend/internal/store"
)

// AuditRequest controls an asynchronous audit run kickoff.
type AuditRequest struct {
	ManifestPath string `json:"manifest_path"`
	Workers      int    `json:"workers"`
}

// StartAuditResponse describes the asynchronous audit kickoff payload.
type StartAuditResponse struct {
	JobID     string    `json:"job_id"`
	Total     int64     `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// AuditStatusResponse reports the live state of the audit pipeline.
type AuditStatusResponse struct {
	Running   bool   `json:"running"`
	JobID     string `json:"job_id,omitempty"`
	State     string `json:"state,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Processed int    `json:"processed,omitempty"`
	Message   string `json:"message,omitempty"`
}

// EvaluationDTO is the API representation for a persisted ensemble
// evaluation.
type EvaluationDTO struct {
	ID               uint               `json:"id"`
	CaseID           string             `json:"case_id"`
	AttributeType    string             `json:"attribute_type"`
	AttributeValue   string             `json:"attribute_value"`
	RetentionScore   float64            `json:"retention_score"`
	Confidence       float64            `json:"confidence"`
	IsPresent        bool               `json:"is_present"`
	IsSubstituted    bool               `json:"is_substituted"`
	Agreement        string             `json:"agreement"`
	Abstained        bool               `json:"abstained"`
	NeedsReview      bool               `json:"needs_review"`
	IndividualScores map[string]float64 `json:"individual_scores,omitempty"`
	JudgeVerdicts    map[string]string  `json:"judge_verdicts,omitempty"`
	Rationale        string             `json:"rationale,omitempty"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	CreatedAt        time.Time          `json:"created_at"`
}

// EvaluationFromModel converts the persisted record to its API shape.
func EvaluationFromModel(rec store.EvaluationRecord) EvaluationDTO {
	return EvaluationDTO{
		ID:               rec.ID,
		CaseID:           rec.CaseID,
		AttributeType:    rec.AttributeType,
		AttributeValue:   rec.AttributeValue,
		RetentionScore:   rec.RetentionScore,
		Confidence:       rec.Confidence,
		IsPresent:        rec.IsPresent,
		IsSubstituted:    rec.IsSubstituted,
		Agreement:        rec.Agreement,
		Abstained:        rec.Abstained,
		NeedsReview:      rec.NeedsReview,
		IndividualScores: rec.IndividualScores(),
		JudgeVerdicts:    rec.JudgeVerdicts(),
		Rationale:        rec.Rationale,
		ProcessingTimeMs: rec.ProcessingTimeMs,
		CreatedAt:        rec.CreatedAt,
	}
}

// EvaluationsResponse holds evaluation items and totals.
type EvaluationsResponse struct {
	Items []EvaluationDTO `json:"items"`
	Total int64           `json:"total"`
}

// ReviewItemDTO is the API representation for a review-queue entry.
type ReviewItemDTO struct {
	ID               uint              `json:"id"`
	CaseID           string            `json:"case_id"`
	Attribute        string            `json:"attribute"`
	JudgeResponses   map[string]string `json:"judge_responses"`
	EnsembleVerdict  string            `json:"ensemble_verdict"`
	DisagreementType string            `json:"disagreement_type"`
	ReviewStatus     string            `json:"review_status"`
	HumanJudgment    string            `json:"human_judgment,omitempty"`
	HumanNotes       string            `json:"human_notes,omitempty"`
	Reviewer         string            `json:"reviewer,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ReviewItemFromModel converts the persisted queue entry to its API shape.
func ReviewItemFromModel(item store.ReviewItem) ReviewItemDTO {
	return ReviewItemDTO{
		ID:               item.ID,
		CaseID:           item.CaseID,
		Attribute:        item.Attribute,
		JudgeResponses:   item.JudgeResponses(),
		EnsembleVerdict:  item.EnsembleVerdict,
		DisagreementType: item.DisagreementType,
		ReviewStatus:     item.ReviewStatus,
		HumanJudgment:    item.HumanJudgment,
		HumanNotes:       item.HumanNotes,
		Reviewer:         item.Reviewer,
		ReviewedAt:       item.ReviewedAt,
		CreatedAt:        item.CreatedAt,
	}
}

// ReviewQueueResponse holds review items plus queue counters.
type ReviewQueueResponse struct {
	Items   []ReviewItemDTO `json:"items"`
	Total   int64           `json:"total"`
	Pending int64           `json:"pending"`
}

// AdjudicateRequest carries a human reviewer's decision for one case.
type AdjudicateRequest struct {
	Status   string `json:"status"`
	Judgment string `json:"judgment"`
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

// DisparityDTO is the API representation for one disparity analysis row.
type DisparityDTO struct {
	MetricName    string    `json:"metric_name"`
	AttributeType string    `json:"attribute_type"`
	Delta         float64   `json:"delta"`
	MaxValue      float64   `json:"max_value"`
	MaxGroup      string    `json:"max_group"`
	MinValue      float64   `json:"min_value"`
	MinGroup      string    `json:"min_group"`
	Std           float64   `json:"std"`
	IsSignificant bool      `json:"is_significant"`
	PValue        float64   `json:"p_value"`
	EffectSize    float64   `json:"effect_size"`
	Degraded      bool      `json:"degraded"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisparityFromModel converts a persisted disparity row to its API shape.
func DisparityFromModel(rec store.DisparityRecord) DisparityDTO {
	return DisparityDTO{
		MetricName:    rec.MetricName,
		AttributeType: rec.AttributeType,
		Delta:         rec.Delta,
		MaxValue:      rec.MaxValue,
		MaxGroup:      rec.MaxGroup,
		MinValue:      rec.MinValue,
		MinGroup:      rec.MinGroup,
		Std:           rec.Std,
		IsSignificant: rec.IsSignificant,
		PValue:        rec.PValue,
		EffectSize:    rec.EffectSize,
		Degraded:      rec.Degraded,
		UpdatedAt:     rec.UpdatedAt,
	}
}

// disparityResultFromModel rebuilds the analysis result from its persisted
// row so summary computation can run over stored data.
func disparityResultFromModel(rec store.DisparityRecord) disparity.Result {
	return disparity.Result{
		MetricName:    rec.MetricName,
		AttributeType: rec.AttributeType,
		Delta:         rec.Delta,
		MaxValue:      rec.MaxValue,
		MaxGroup:      rec.MaxGroup,
		MinValue:      rec.MinValue,
		MinGroup:      rec.MinGroup,
		Std:           rec.Std,
		IsSignificant: rec.IsSignificant,
		PValue:        rec.PValue,
		EffectSize:    rec.EffectSize,
		Degraded:      rec.Degraded,
	}
}

// DisparityResponse groups disparity rows by metric name with the headline
// summary over the worst erasure and substitution findings.
type DisparityResponse struct {
	Results map[string][]DisparityDTO `json:"results"`
	Summary disparity.Summary         `json:"summary"`
}
