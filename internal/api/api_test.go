package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"image-bias-audit/backend/internal/judge"
	"image-bias-audit/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	payload := `[
		{"case_id": "case_0001", "attribute_type": "culture", "attribute_value": "korean"},
		{"case_id": "case_0002", "attribute_type": "culture", "attribute_value": "nigerian"},
		{"case_id": "case_0003", "attribute_type": "culture", "attribute_value": "american"}
	]`
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, judges ...judge.Judge) (*Server, *gin.Engine) {
	t.Helper()
	dir := t.TempDir()
	if len(judges) == 0 {
		reply := `{"is_present": "YES", "confidence": 0.9, "rationale": "marker visible"}`
		judges = []judge.Judge{
			judge.NewStatic("qwen3-vl", 1.0, reply),
			judge.NewStatic("gemini-2-flash", 1.0, reply),
		}
	}
	srv, err := NewServer(Config{
		DBPath:       filepath.Join(dir, "api.db"),
		ManifestPath: writeManifest(t, dir),
		ExportPath:   filepath.Join(dir, "review_queue.json"),
		SilentDB:     true,
		Judges:       judges,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	router, err := srv.Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return srv, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func waitForIdle(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		srv.jobMu.Lock()
		running := srv.activeJob != nil
		srv.jobMu.Unlock()
		if !running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audit run did not finish in time")
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAuditRunEndToEnd(t *testing.T) {
	srv, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/audit", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	var start StartAuditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &start); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if start.JobID == "" || start.Total != 3 {
		t.Fatalf("unexpected start payload %+v", start)
	}

	waitForIdle(t, srv)

	rec = doJSON(t, router, http.MethodGet, "/api/evaluations?attribute_type=culture", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var evals EvaluationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &evals); err != nil {
		t.Fatalf("decode evaluations: %v", err)
	}
	if evals.Total != 3 {
		t.Fatalf("expected 3 evaluations got %d", evals.Total)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/disparity", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var disp DisparityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &disp); err != nil {
		t.Fatalf("decode disparity: %v", err)
	}
	if len(disp.Results["erasure_rate"]) != 1 {
		t.Fatalf("expected erasure results got %v", disp.Results)
	}
	if disp.Summary.OverallBiasDetected {
		t.Fatalf("unanimous presence must not flag bias, got %+v", disp.Summary)
	}

	if _, err := os.Stat(srv.exportPath); err != nil {
		t.Fatalf("expected review export file after run: %v", err)
	}
}

func TestStartAuditRejectsMissingManifest(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/audit", AuditRequest{ManifestPath: "/does/not/exist.json"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestReviewQueueAdjudication(t *testing.T) {
	srv, router := newTestServer(t,
		judge.NewStatic("qwen3-vl", 1.0, "YES absolutely."),
		judge.NewStatic("gemini-2-flash", 1.0, "NO, nothing there."),
	)

	rec := doJSON(t, router, http.MethodPost, "/api/audit", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
	waitForIdle(t, srv)

	rec = doJSON(t, router, http.MethodGet, "/api/review-queue?status=pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var queue ReviewQueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if queue.Pending != 3 || len(queue.Items) != 3 {
		t.Fatalf("expected 3 pending items got %+v", queue)
	}

	caseID := queue.Items[0].CaseID
	rec = doJSON(t, router, http.MethodPatch, "/api/review-queue/"+caseID, AdjudicateRequest{
		Status:   store.ReviewReviewed,
		Judgment: "yes",
		Reviewer: "annotator-1",
		Notes:    "clear marker on re-inspection",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var item ReviewItemDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.ReviewStatus != store.ReviewReviewed || item.HumanJudgment != "YES" {
		t.Fatalf("unexpected adjudicated item %+v", item)
	}

	// A decided case cannot be decided again.
	rec = doJSON(t, router, http.MethodPatch, "/api/review-queue/"+caseID, AdjudicateRequest{
		Status: store.ReviewSkipped,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPatch, "/api/review-queue/missing-case", AdjudicateRequest{
		Status: store.ReviewReviewed,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/review-queue/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAuditStatusIdle(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/audit/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var status AuditStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Fatal("expected idle server")
	}
}
