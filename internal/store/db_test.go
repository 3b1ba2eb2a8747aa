package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"), true)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close database: %v", err)
		}
	})
	return db
}

func TestSaveEvaluationUpsert(t *testing.T) {
	db := openTestDB(t)

	rec := &EvaluationRecord{
		CaseID:         "case_0001",
		AttributeType:  "culture",
		AttributeValue: "Korean",
		RetentionScore: 0.8,
		Confidence:     0.9,
		IsPresent:      true,
		Agreement:      "UNANIMOUS",
	}
	rec.SetIndividualScores(map[string]float64{"qwen3-vl": 1.0, "gemini-2-flash": 0.5})
	if err := db.SaveEvaluation(rec); err != nil {
		t.Fatalf("save evaluation: %v", err)
	}

	update := &EvaluationRecord{
		CaseID:         "case_0001",
		AttributeType:  "culture",
		AttributeValue: "Korean",
		RetentionScore: 0.4,
		Agreement:      "ABSTAINED",
		Abstained:      true,
	}
	if err := db.SaveEvaluation(update); err != nil {
		t.Fatalf("upsert evaluation: %v", err)
	}

	records, err := db.ListEvaluations("culture")
	if err != nil {
		t.Fatalf("list evaluations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record got %d", len(records))
	}
	if records[0].RetentionScore != 0.4 || !records[0].Abstained {
		t.Fatalf("upsert did not apply: %+v", records[0])
	}
}

func TestSaveEvaluationValidation(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveEvaluation(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
	if err := db.SaveEvaluation(&EvaluationRecord{}); err == nil {
		t.Fatal("expected error for missing case id")
	}
}

func TestReviewQueueLifecycle(t *testing.T) {
	db := openTestDB(t)

	item := &ReviewItem{
		CaseID:           "case_0042",
		Attribute:        "Nigerian",
		EnsembleVerdict:  "YES",
		DisagreementType: "YES vs NO",
	}
	item.SetJudgeResponses(map[string]string{"qwen3-vl": "YES", "gemini-2-flash": "NO"})
	if err := db.AppendReviewItem(item); err != nil {
		t.Fatalf("append review item: %v", err)
	}

	// Re-running the same case must not clobber the queue entry.
	dup := &ReviewItem{CaseID: "case_0042", Attribute: "changed"}
	if err := db.AppendReviewItem(dup); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}

	pending, err := db.ListReviewItems(ReviewPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending item got %d", len(pending))
	}
	if pending[0].Attribute != "Nigerian" {
		t.Fatalf("duplicate overwrote original: %+v", pending[0])
	}
	if got := pending[0].JudgeResponses(); got["gemini-2-flash"] != "NO" {
		t.Fatalf("judge responses not round-tripped: %v", got)
	}

	reviewed, err := db.AdjudicateReviewItem("case_0042", ReviewReviewed, "yes", "annotator-3", "clear hanbok")
	if err != nil {
		t.Fatalf("adjudicate: %v", err)
	}
	if reviewed.HumanJudgment != "YES" || reviewed.Reviewer != "annotator-3" {
		t.Fatalf("adjudication fields missing: %+v", reviewed)
	}
	if reviewed.ReviewedAt == nil {
		t.Fatal("expected reviewed_at timestamp")
	}

	// Terminal states are final.
	if _, err := db.AdjudicateReviewItem("case_0042", ReviewSkipped, "", "", ""); err == nil {
		t.Fatal("expected error adjudicating a reviewed case")
	}

	if _, err := db.AdjudicateReviewItem("case_0042", "bogus", "", "", ""); err == nil {
		t.Fatal("expected error for invalid status")
	}

	total, pendingCount, err := db.CountReviewItems()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 || pendingCount != 0 {
		t.Fatalf("expected total=1 pending=0 got %d/%d", total, pendingCount)
	}
}

func TestSaveDisparityUpsert(t *testing.T) {
	db := openTestDB(t)

	rec := &DisparityRecord{MetricName: "erasure", AttributeType: "culture", Delta: 0.27, MaxGroup: "Nigerian", MinGroup: "American"}
	if err := db.SaveDisparity(rec); err != nil {
		t.Fatalf("save disparity: %v", err)
	}
	update := &DisparityRecord{MetricName: "erasure", AttributeType: "culture", Delta: 0.31, MaxGroup: "Nigerian", MinGroup: "Korean", IsSignificant: true}
	if err := db.SaveDisparity(update); err != nil {
		t.Fatalf("upsert disparity: %v", err)
	}

	records, err := db.ListDisparities()
	if err != nil {
		t.Fatalf("list disparities: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record got %d", len(records))
	}
	if records[0].Delta != 0.31 || !records[0].IsSignificant {
		t.Fatalf("upsert did not apply: %+v", records[0])
	}
}

func TestAuditRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateAuditRun("job-1", 10); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := db.UpdateAuditRun("job-1", "completed", "done", 10); err != nil {
		t.Fatalf("update run: %v", err)
	}
	var run AuditRun
	if err := db.GORM().First(&run, "job_id = ?", "job-1").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != "completed" || run.Processed != 10 {
		t.Fatalf("run state not updated: %+v", run)
	}
}
