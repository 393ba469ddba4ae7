// Package engine implements the reconciliation engine: per-source record
// summarization into the unified comparison table, cross-source delta
// computation, threshold-based classification and settlement-vs-deposit
// matching. Both the synchronous API path and the background report worker
// drive this one implementation.
package engine

import (
	"context"
	"time"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/bsm/redislock"
)

// OrderTakerZomato is the POS order-taker flag marking orders placed
// through the aggregator. Only those POS rows are eligible for this
// reconciliation.
const OrderTakerZomato = "zomato"

// Repository is the persistence contract the engine needs from the
// relational store.
type Repository interface {
	ForEachPosOrderChunk(ctx context.Context, window models.ReconciliationWindow, orderTaker string, fn func([]models.PosOrder) error) error
	ForEachZomatoOrderChunk(ctx context.Context, window models.ReconciliationWindow, action string, fn func([]models.ZomatoOrder) error) error
	ExistingOrderKeys(ctx context.Context, keys []string) (map[string]bool, error)
	UpsertComparisonRecords(ctx context.Context, records []*models.UnifiedComparisonRecord, assignColumns []string) error
	ForEachComparisonChunk(ctx context.Context, fn func([]models.UnifiedComparisonRecord) error) error
	SettlementBatches(ctx context.Context, window models.ReconciliationWindow) ([]models.SettlementBatch, error)
	BankStatementsByUTR(ctx context.Context, utrs []string) (map[string]models.BankStatementRecord, error)
	UpsertReceivables(ctx context.Context, rows []*models.ReceivableVsReceipt) error
	LoadFieldMappings(ctx context.Context) ([]models.FieldMapping, error)
	LoadFormulaDefinitions(ctx context.Context, source models.DataSource) ([]models.FormulaDefinition, error)
}

// RunLocker serializes reconciliation passes. The summarizer and classifier
// are full-recompute operations with no optimistic concurrency control, so
// overlapping runs against the same data must be refused.
type RunLocker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RunResult aggregates the counts of one full reconciliation pass.
type RunResult struct {
	PosProcessed     int `json:"pos_processed"`
	ZomatoProcessed  int `json:"zomato_processed"`
	RefundsProcessed int `json:"refunds_processed"`
	DeltasComputed   int `json:"deltas_computed"`
	Reconciled       int `json:"reconciled"`
	Unreconciled     int `json:"unreconciled"`
	Failed           int `json:"failed"`
}

// Engine bundles the pipeline stages behind one entry point so the
// synchronous endpoints and the report worker cannot drift apart.
type Engine struct {
	repo        Repository
	summarizer  *Summarizer
	delta       *DeltaCalculator
	classifier  *Classifier
	receivables *ReceivablesMatcher
	locker      RunLocker
	log         logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker sets the run-isolation lock.
func WithLocker(locker RunLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates a reconciliation engine over a repository.
func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetGlobalLogger()
	}
	e.log = e.log.WithComponent("engine")
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}

	e.summarizer = NewSummarizer(e.repo, e.log)
	e.delta = NewDeltaCalculator(e.repo, e.log)
	e.classifier = NewClassifier(e.repo, e.log)
	e.receivables = NewReceivablesMatcher(e.repo, e.log)
	return e
}

// Run executes the full pipeline for one window: POS summarization,
// aggregator sale and refund summarization, delta computation and
// classification. Exactly one run may be active at a time.
func (e *Engine) Run(ctx context.Context, window models.ReconciliationWindow) (*RunResult, error) {
	if err := window.Validate(); err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeInvalidConfig, err.Error())
	}

	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	started := time.Now()
	result := &RunResult{}

	posCount, err := e.summarizer.SummarizePOS(ctx, window)
	if err != nil {
		return nil, err
	}
	result.PosProcessed = posCount

	saleCount, err := e.summarizer.SummarizeZomato(ctx, window, models.ActionSale)
	if err != nil {
		return nil, err
	}
	result.ZomatoProcessed = saleCount

	refundCount, err := e.summarizer.SummarizeZomato(ctx, window, models.ActionRefund)
	if err != nil {
		return nil, err
	}
	result.RefundsProcessed = refundCount

	deltas, err := e.delta.Run(ctx)
	if err != nil {
		return nil, err
	}
	result.DeltasComputed = deltas

	classified, err := e.classifier.Run(ctx)
	if err != nil {
		return nil, err
	}
	result.Reconciled = classified.Reconciled
	result.Unreconciled = classified.Unreconciled
	result.Failed = classified.Failed

	e.log.WithFields(logger.Fields{
		"pos":          result.PosProcessed,
		"zomato":       result.ZomatoProcessed,
		"refunds":      result.RefundsProcessed,
		"reconciled":   result.Reconciled,
		"unreconciled": result.Unreconciled,
		"duration":     time.Since(started).Round(time.Millisecond).String(),
	}).Info("reconciliation pass complete")

	return result, nil
}

// MatchReceivables runs the settlement-vs-deposit matcher for one window.
func (e *Engine) MatchReceivables(ctx context.Context, window models.ReconciliationWindow) (*ReceivablesResult, error) {
	if err := window.Validate(); err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeInvalidConfig, err.Error())
	}
	return e.receivables.Run(ctx, window)
}

// localLocker is the in-process fallback used when Redis is not
// configured: a try-lock over a one-slot channel.
type localLocker struct {
	slot chan struct{}
}

// NewLocalLocker returns a single-process run lock.
func NewLocalLocker() RunLocker {
	l := &localLocker{slot: make(chan struct{}, 1)}
	l.slot <- struct{}{}
	return l
}

func (l *localLocker) Acquire(context.Context) (func(), error) {
	select {
	case <-l.slot:
		return func() { l.slot <- struct{}{} }, nil
	default:
		return nil, apperrors.New(apperrors.CategoryInternal, apperrors.CodeRunLocked,
			"another reconciliation pass is already running")
	}
}

// redisLocker serializes runs across processes with a Redis advisory lock.
type redisLocker struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker returns a run lock backed by redislock.
func NewRedisLocker(client *redislock.Client, key string, ttl time.Duration) RunLocker {
	if key == "" {
		key = "reconciliation:run"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisLocker{client: client, key: key, ttl: ttl}
}

func (l *redisLocker) Acquire(ctx context.Context) (func(), error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, apperrors.New(apperrors.CategoryInternal, apperrors.CodeRunLocked,
			"another reconciliation pass holds the run lock")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryInternal, apperrors.CodeUnexpectedError,
			"run lock acquisition failed")
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}
