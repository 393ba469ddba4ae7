package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-reconciliation-service/internal/engine"
	"order-reconciliation-service/internal/jobs"
	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.JSONFormat,
		Output: io.Discard,
	})
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return log
}

type fakePipeline struct {
	runErr error
}

func (f *fakePipeline) Run(context.Context, models.ReconciliationWindow) (*engine.RunResult, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &engine.RunResult{PosProcessed: 10, Reconciled: 8, Unreconciled: 2}, nil
}

func (f *fakePipeline) MatchReceivables(context.Context, models.ReconciliationWindow) (*engine.ReceivablesResult, error) {
	return &engine.ReceivablesResult{Batches: 4, Matched: 3, Unmatched: 1}, nil
}

type fakeJobStore struct {
	jobs map[string]*models.ReconciliationJob
}

func (f *fakeJobStore) CreateJob(_ context.Context, message string) (*models.ReconciliationJob, error) {
	job := &models.ReconciliationJob{ID: "job-123", Status: models.JobPending, Message: message}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) GetJob(_ context.Context, id string) (*models.ReconciliationJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.JobError(apperrors.CodeJobNotFound, id, nil)
	}
	return job, nil
}

type fakeDispatcher struct {
	tasks []*jobs.Task
}

func (f *fakeDispatcher) Dispatch(_ context.Context, task *jobs.Task) error {
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeDispatcher) Close() error { return nil }

func newTestServer(t *testing.T, pipeline *fakePipeline) (*Server, *fakeJobStore, *fakeDispatcher) {
	t.Helper()
	jobStore := &fakeJobStore{jobs: make(map[string]*models.ReconciliationJob)}
	dispatcher := &fakeDispatcher{}
	return New(pipeline, jobStore, dispatcher, t.TempDir(), testLogger(t)), jobStore, dispatcher
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t, &fakePipeline{})
	w := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServer_RunPipeline(t *testing.T) {
	s, _, _ := newTestServer(t, &fakePipeline{})
	w := doJSON(t, s.Router(), http.MethodPost, "/api/reconciliation/run", map[string]interface{}{
		"start_date": "2024-03-01",
		"end_date":   "2024-03-31",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var result engine.RunResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if result.Reconciled != 8 || result.Unreconciled != 2 {
		t.Errorf("result = %+v, want 8 reconciled 2 unreconciled", result)
	}
}

func TestServer_RunValidation(t *testing.T) {
	s, _, _ := newTestServer(t, &fakePipeline{})
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing dates", map[string]interface{}{}},
		{"malformed date", map[string]interface{}{"start_date": "03/01/2024", "end_date": "2024-03-31"}},
		{"reversed window", map[string]interface{}{"start_date": "2024-03-31", "end_date": "2024-03-01"}},
		{"blank store code", map[string]interface{}{"start_date": "2024-03-01", "end_date": "2024-03-31", "store_codes": []string{""}}},
	}
	router := s.Router()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/reconciliation/run", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestServer_RunLockedMapsToConflict(t *testing.T) {
	pipeline := &fakePipeline{
		runErr: apperrors.New(apperrors.CategoryInternal, apperrors.CodeRunLocked, "run in progress"),
	}
	s, _, _ := newTestServer(t, pipeline)
	w := doJSON(t, s.Router(), http.MethodPost, "/api/reconciliation/run", map[string]interface{}{
		"start_date": "2024-03-01",
		"end_date":   "2024-03-31",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestServer_CreateReportDispatchesTask(t *testing.T) {
	s, jobStore, dispatcher := newTestServer(t, &fakePipeline{})
	w := doJSON(t, s.Router(), http.MethodPost, "/api/reconciliation/reports", map[string]interface{}{
		"start_date":   "2024-03-01",
		"end_date":     "2024-03-31",
		"store_codes":  []string{"BLR01"},
		"run_pipeline": true,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatal("no job_id in response")
	}
	if _, ok := jobStore.jobs[jobID]; !ok {
		t.Error("job row not created")
	}
	if len(dispatcher.tasks) != 1 {
		t.Fatalf("dispatched tasks = %d, want 1", len(dispatcher.tasks))
	}
	task := dispatcher.tasks[0]
	if task.JobID != jobID || !task.RunPipeline || task.StartDate != "2024-03-01" {
		t.Errorf("task = %+v, want job %s with pipeline", task, jobID)
	}
}

func TestServer_JobStatus(t *testing.T) {
	s, jobStore, _ := newTestServer(t, &fakePipeline{})
	jobStore.jobs["job-9"] = &models.ReconciliationJob{
		ID: "job-9", Status: models.JobProcessing, Progress: 40, Message: "working",
	}
	router := s.Router()

	w := doJSON(t, router, http.MethodGet, "/api/reconciliation/jobs/job-9", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp["status"] != string(models.JobProcessing) || resp["progress"] != float64(40) {
		t.Errorf("resp = %+v, want processing at 40", resp)
	}

	w = doJSON(t, router, http.MethodGet, "/api/reconciliation/jobs/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}
}

func TestServer_DownloadNotReady(t *testing.T) {
	s, jobStore, _ := newTestServer(t, &fakePipeline{})
	jobStore.jobs["job-5"] = &models.ReconciliationJob{ID: "job-5", Status: models.JobProcessing}

	w := doJSON(t, s.Router(), http.MethodGet, "/api/reconciliation/reports/job-5/download", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while processing", w.Code)
	}
}
