package engine

import (
	"context"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

// DeltaCalculator computes the bidirectional per-field differences for
// every unified record. A full recompute: stale deltas from an earlier run
// are always overwritten, including records one source no longer reports.
type DeltaCalculator struct {
	repo Repository
	log  logger.Logger
}

// NewDeltaCalculator creates a delta calculator over a repository.
func NewDeltaCalculator(repo Repository, log logger.Logger) *DeltaCalculator {
	return &DeltaCalculator{repo: repo, log: log.WithComponent("delta")}
}

// Run recomputes both delta directions for every comparison record and
// returns the number of records updated. For each paired field the two
// deltas are exact negations of each other; a missing source contributes
// zeros, so its deltas collapse to the counterpart's signed values.
func (d *DeltaCalculator) Run(ctx context.Context) (int, error) {
	tracker := logger.NewProgressTracker(d.log, "delta computation", -1)
	updated := 0
	err := d.repo.ForEachComparisonChunk(ctx, func(chunk []models.UnifiedComparisonRecord) error {
		records := make([]*models.UnifiedComparisonRecord, 0, len(chunk))
		for i := range chunk {
			rec := &chunk[i]
			for _, field := range models.ComparisonFields {
				pos := rec.SourceValue(models.SourcePOS, field)
				zomato := rec.SourceValue(models.SourceZomato, field)
				rec.SetDelta(field, pos.Sub(zomato), zomato.Sub(pos))
			}
			records = append(records, rec)
		}
		if err := d.repo.UpsertComparisonRecords(ctx, records, models.DeltaColumns()); err != nil {
			return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "write deltas", err)
		}
		updated += len(records)
		tracker.Add(int64(len(records)))
		return nil
	})
	if err != nil {
		return updated, err
	}
	tracker.Done()
	return updated, nil
}
