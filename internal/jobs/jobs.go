// Package jobs carries reconciliation work from the request path to the
// background worker. A task is parameters in, persisted job status out; the
// ReconciliationJob row is the only job state either side reads.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"order-reconciliation-service/internal/engine"
	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

const dateLayout = "2006-01-02"

// Task is one background report request. Serialized as the message payload
// between the API process and the worker.
type Task struct {
	JobID       string   `json:"job_id"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	StoreCodes  []string `json:"store_codes,omitempty"`
	RunPipeline bool     `json:"run_pipeline"`
	Receivables bool     `json:"receivables"`
}

// Window parses the task's date range.
func (t *Task) Window() (models.ReconciliationWindow, error) {
	var window models.ReconciliationWindow
	start, err := time.Parse(dateLayout, t.StartDate)
	if err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, "invalid start date: "+t.StartDate)
	}
	end, err := time.Parse(dateLayout, t.EndDate)
	if err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, "invalid end date: "+t.EndDate)
	}
	window = models.ReconciliationWindow{StartDate: start, EndDate: end, StoreCodes: t.StoreCodes}
	if err := window.Validate(); err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, err.Error())
	}
	return window, nil
}

// Marshal encodes the task for transport.
func (t *Task) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, apperrors.JobError(apperrors.CodeDispatchFailed, t.JobID, err)
	}
	return data, nil
}

// UnmarshalTask decodes a transported task.
func UnmarshalTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, apperrors.JobError(apperrors.CodeDispatchFailed, "", err)
	}
	return &task, nil
}

// Pipeline is the reconciliation surface a task execution drives.
type Pipeline interface {
	Run(ctx context.Context, window models.ReconciliationWindow) (*engine.RunResult, error)
	MatchReceivables(ctx context.Context, window models.ReconciliationWindow) (*engine.ReceivablesResult, error)
}

// ReportGenerator builds the workbook for a job.
type ReportGenerator interface {
	Generate(ctx context.Context, jobID string) (string, error)
}

// JobStore mutates the persisted job record.
type JobStore interface {
	UpdateJobProgress(ctx context.Context, id string, progress int, message string) error
	CompleteJob(ctx context.Context, id, filename string) error
	FailJob(ctx context.Context, id string, jobErr error) error
}

// Processor executes one task end to end: optional reconciliation pass,
// optional receivables matching, then the report. Both the pub/sub worker
// and the in-process dispatcher call this one implementation.
type Processor struct {
	pipeline Pipeline
	reports  ReportGenerator
	jobs     JobStore
	log      logger.Logger
}

// NewProcessor creates a task processor.
func NewProcessor(pipeline Pipeline, reports ReportGenerator, jobs JobStore, log logger.Logger) *Processor {
	return &Processor{pipeline: pipeline, reports: reports, jobs: jobs, log: log.WithComponent("jobs")}
}

// Process runs one task. Failures are recorded on the job row; the caller
// only needs the returned error for logging and message acknowledgement.
func (p *Processor) Process(ctx context.Context, task *Task) error {
	log := p.log.WithField("job_id", task.JobID)

	window, err := task.Window()
	if err != nil {
		return p.fail(ctx, task.JobID, err)
	}
	if err := p.jobs.UpdateJobProgress(ctx, task.JobID, 1, "task accepted"); err != nil {
		return err
	}

	if task.RunPipeline {
		result, err := p.pipeline.Run(ctx, window)
		if err != nil {
			return p.fail(ctx, task.JobID, err)
		}
		log.WithFields(logger.Fields{
			"reconciled":   result.Reconciled,
			"unreconciled": result.Unreconciled,
		}).Info("pipeline stage complete")
		if err := p.jobs.UpdateJobProgress(ctx, task.JobID, 30, "reconciliation pass complete"); err != nil {
			return err
		}
	}

	if task.Receivables {
		if _, err := p.pipeline.MatchReceivables(ctx, window); err != nil {
			return p.fail(ctx, task.JobID, err)
		}
		if err := p.jobs.UpdateJobProgress(ctx, task.JobID, 40, "receivables matched"); err != nil {
			return err
		}
	}

	filename, err := p.reports.Generate(ctx, task.JobID)
	if err != nil {
		return p.fail(ctx, task.JobID, err)
	}
	if err := p.jobs.CompleteJob(ctx, task.JobID, filename); err != nil {
		return err
	}
	log.WithField("filename", filename).Info("job completed")
	return nil
}

func (p *Processor) fail(ctx context.Context, jobID string, err error) error {
	if failErr := p.jobs.FailJob(ctx, jobID, err); failErr != nil {
		p.log.WithError(failErr).WithField("job_id", jobID).Error("recording job failure failed")
	}
	return err
}
