package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"order-reconciliation-service/internal/engine"
	"order-reconciliation-service/internal/models"
	"order-reconciliation-service/pkg/logger"
)

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
	runErr      error
	runCalls    int
	matchCalls  int
	lastWindow  models.ReconciliationWindow
	matchCalled bool
}

func (f *fakePipeline) Run(_ context.Context, window models.ReconciliationWindow) (*engine.RunResult, error) {
	f.runCalls++
	f.lastWindow = window
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &engine.RunResult{Reconciled: 3, Unreconciled: 1}, nil
}

func (f *fakePipeline) MatchReceivables(_ context.Context, window models.ReconciliationWindow) (*engine.ReceivablesResult, error) {
	f.matchCalls++
	f.matchCalled = true
	return &engine.ReceivablesResult{Batches: 2}, nil
}

type fakeReports struct {
	filename string
	err      error
}

func (f *fakeReports) Generate(context.Context, string) (string, error) {
	return f.filename, f.err
}

type fakeJobStore struct {
	mu        sync.Mutex
	progress  []int
	completed string
	failed    error
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, _ string, progress int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, _, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = filename
	return nil
}

func (f *fakeJobStore) FailJob(_ context.Context, _ string, jobErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = jobErr
	return nil
}

func validTask() *Task {
	return &Task{
		JobID:       "job-1",
		StartDate:   "2024-03-01",
		EndDate:     "2024-03-31",
		RunPipeline: true,
		Receivables: true,
	}
}

func TestTask_MarshalRoundTrip(t *testing.T) {
	task := validTask()
	task.StoreCodes = []string{"BLR01", "BLR02"}
	data, err := task.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := UnmarshalTask(data)
	if err != nil {
		t.Fatalf("UnmarshalTask: %v", err)
	}
	if decoded.JobID != task.JobID || len(decoded.StoreCodes) != 2 || !decoded.RunPipeline {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
}

func TestTask_Window(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr bool
	}{
		{"valid", "2024-03-01", "2024-03-31", false},
		{"reversed", "2024-03-31", "2024-03-01", true},
		{"malformed start", "03/01/2024", "2024-03-31", true},
		{"empty end", "2024-03-01", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{StartDate: tt.start, EndDate: tt.end}
			_, err := task.Window()
			if (err != nil) != tt.wantErr {
				t.Errorf("Window() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProcessor_SuccessPath(t *testing.T) {
	pipeline := &fakePipeline{}
	reports := &fakeReports{filename: "report.xlsx"}
	jobStore := &fakeJobStore{}
	p := NewProcessor(pipeline, reports, jobStore, testLogger(t))

	if err := p.Process(context.Background(), validTask()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if pipeline.runCalls != 1 || pipeline.matchCalls != 1 {
		t.Errorf("pipeline calls = %d/%d, want 1/1", pipeline.runCalls, pipeline.matchCalls)
	}
	if jobStore.completed != "report.xlsx" {
		t.Errorf("completed filename = %q, want report.xlsx", jobStore.completed)
	}
	if jobStore.failed != nil {
		t.Errorf("unexpected failure recorded: %v", jobStore.failed)
	}
	if len(jobStore.progress) == 0 {
		t.Error("no progress updates recorded")
	}
}

func TestProcessor_SkipsStagesNotRequested(t *testing.T) {
	pipeline := &fakePipeline{}
	jobStore := &fakeJobStore{}
	p := NewProcessor(pipeline, &fakeReports{filename: "r.xlsx"}, jobStore, testLogger(t))

	task := validTask()
	task.RunPipeline = false
	task.Receivables = false
	if err := p.Process(context.Background(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if pipeline.runCalls != 0 || pipeline.matchCalled {
		t.Errorf("stages ran despite not being requested: %+v", pipeline)
	}
	if jobStore.completed != "r.xlsx" {
		t.Errorf("completed = %q, want r.xlsx", jobStore.completed)
	}
}

func TestProcessor_PipelineFailureFailsJob(t *testing.T) {
	wantErr := errors.New("store unavailable")
	pipeline := &fakePipeline{runErr: wantErr}
	jobStore := &fakeJobStore{}
	p := NewProcessor(pipeline, &fakeReports{}, jobStore, testLogger(t))

	err := p.Process(context.Background(), validTask())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Process error = %v, want %v", err, wantErr)
	}
	if jobStore.failed == nil {
		t.Error("failure not recorded on job")
	}
	if jobStore.completed != "" {
		t.Errorf("job completed despite failure: %q", jobStore.completed)
	}
}

func TestProcessor_InvalidWindowFailsJob(t *testing.T) {
	jobStore := &fakeJobStore{}
	p := NewProcessor(&fakePipeline{}, &fakeReports{}, jobStore, testLogger(t))

	task := validTask()
	task.EndDate = "not-a-date"
	if err := p.Process(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed window")
	}
	if jobStore.failed == nil {
		t.Error("failure not recorded on job")
	}
}

func TestLocalDispatcher_RunsTask(t *testing.T) {
	pipeline := &fakePipeline{}
	jobStore := &fakeJobStore{}
	p := NewProcessor(pipeline, &fakeReports{filename: "local.xlsx"}, jobStore, testLogger(t))
	d := NewLocalDispatcher(p, testLogger(t))

	if err := d.Dispatch(context.Background(), validTask()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if jobStore.completed != "local.xlsx" {
		t.Errorf("completed = %q, want local.xlsx", jobStore.completed)
	}
}
