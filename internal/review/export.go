package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"image-bias-audit/backend/internal/store"
)

// ExportMetadata summarizes the ensemble run the queue was produced from.
type ExportMetadata struct {
	CreatedAt        string  `json:"created_at"`
	TotalCases       int     `json:"total_cases"`
	HumanReviewCases int     `json:"human_review_cases"`
	ConsensusCases   int     `json:"consensus_cases"`
	ConsensusRate    float64 `json:"consensus_rate"`
}

// ExportItem is one review-queue entry in the export format consumed by the
// survey frontend.
type ExportItem struct {
	ID             int               `json:"id"`
	CaseID         string            `json:"case_id"`
	Attribute      string            `json:"attribute"`
	JudgeResponses map[string]string `json:"judge_responses"`
	EnsembleResult string            `json:"ensemble_result"`
	Disagreement   string            `json:"disagreement_type"`
	ReviewStatus   string            `json:"review_status"`
	HumanJudgment  string            `json:"human_judgment"`
	HumanNotes     string            `json:"human_notes"`
	ReviewedAt     string            `json:"reviewed_at"`
	Reviewer       string            `json:"reviewer"`
}

// Export is the full review-queue JSON document.
type Export struct {
	Metadata ExportMetadata `json:"metadata"`
	Queue    []ExportItem   `json:"review_queue"`
}

// Analysis summarizes consensus behaviour across evaluated cases, including
// the disagreement-pattern histogram.
type Analysis struct {
	TotalCases           int            `json:"total_cases"`
	ConsensusCases       int            `json:"consensus_cases"`
	HumanReviewCases     int            `json:"human_review_cases"`
	ConsensusRate        float64        `json:"consensus_rate"`
	HumanReviewRate      float64        `json:"human_review_rate"`
	DisagreementPatterns map[string]int `json:"disagreement_patterns"`
}

// Analyze computes consensus statistics over persisted evaluation outcomes.
func Analyze(records []store.EvaluationRecord, items []store.ReviewItem) Analysis {
	analysis := Analysis{
		TotalCases:           len(records),
		DisagreementPatterns: make(map[string]int),
	}
	for _, rec := range records {
		if rec.NeedsReview {
			analysis.HumanReviewCases++
		} else {
			analysis.ConsensusCases++
		}
	}
	for _, item := range items {
		if item.DisagreementType != "" {
			analysis.DisagreementPatterns[item.DisagreementType]++
		}
	}
	if analysis.TotalCases > 0 {
		analysis.ConsensusRate = float64(analysis.ConsensusCases) / float64(analysis.TotalCases)
		analysis.HumanReviewRate = float64(analysis.HumanReviewCases) / float64(analysis.TotalCases)
	}
	return analysis
}

// BuildExport assembles the review-queue document from persisted queue items
// and run-level consensus statistics.
func BuildExport(items []store.ReviewItem, analysis Analysis) Export {
	export := Export{
		Metadata: ExportMetadata{
			CreatedAt:        time.Now().UTC().Format(time.RFC3339),
			TotalCases:       analysis.TotalCases,
			HumanReviewCases: analysis.HumanReviewCases,
			ConsensusCases:   analysis.ConsensusCases,
			ConsensusRate:    analysis.ConsensusRate,
		},
		Queue: make([]ExportItem, 0, len(items)),
	}
	for i, item := range items {
		reviewedAt := ""
		if item.ReviewedAt != nil {
			reviewedAt = item.ReviewedAt.UTC().Format(time.RFC3339)
		}
		responses := item.JudgeResponses()
		if responses == nil {
			responses = map[string]string{}
		}
		export.Queue = append(export.Queue, ExportItem{
			ID:             i,
			CaseID:         item.CaseID,
			Attribute:      item.Attribute,
			JudgeResponses: responses,
			EnsembleResult: item.EnsembleVerdict,
			Disagreement:   item.DisagreementType,
			ReviewStatus:   item.ReviewStatus,
			HumanJudgment:  item.HumanJudgment,
			HumanNotes:     item.HumanNotes,
			ReviewedAt:     reviewedAt,
			Reviewer:       item.Reviewer,
		})
	}
	return export
}

// WriteExport writes the export document as indented JSON.
func WriteExport(path string, export Export) error {
	payload, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
