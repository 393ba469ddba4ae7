package store

import (
	"context"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"

	"gorm.io/gorm/clause"
)

// ExistingOrderKeys performs one bulk existence lookup for a chunk of
// order keys, returning the subset already present in the unified table.
func (s *Store) ExistingOrderKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	var found []string
	err := s.db.WithContext(ctx).
		Model(&models.UnifiedComparisonRecord{}).
		Where("order_key IN ?", keys).
		Pluck("order_key", &found).Error
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "existing order keys", err)
	}
	for _, key := range found {
		existing[key] = true
	}
	return existing, nil
}

// UpsertComparisonRecords bulk-writes unified rows. On an order-key
// conflict only the given columns are updated, so one source's pass never
// clobbers the counterpart source's fields.
func (s *Store) UpsertComparisonRecords(ctx context.Context, records []*models.UnifiedComparisonRecord, assignColumns []string) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_key"}},
			DoUpdates: clause.AssignmentColumns(assignColumns),
		}).
		CreateInBatches(records, s.chunkSize).Error
	if err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "upsert comparison records", err)
	}
	return nil
}

// ForEachComparisonChunk streams the whole unified table in id-keyset
// chunks. Full-recompute passes (delta calculator, classifier) iterate with
// this.
func (s *Store) ForEachComparisonChunk(ctx context.Context, fn func([]models.UnifiedComparisonRecord) error) error {
	lastID := ""
	for {
		var chunk []models.UnifiedComparisonRecord
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&chunk).Error
		if err != nil {
			return apperrors.StoreError(apperrors.CodeReadFailed, "comparison records", err)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		lastID = chunk[len(chunk)-1].ID
	}
}

// ForEachComparisonStatusChunk streams unified rows carrying one
// reconciliation status, in id-keyset chunks. The report assembler uses
// this for the unreconciled-only sheet.
func (s *Store) ForEachComparisonStatusChunk(ctx context.Context, status models.ReconciliationStatus, fn func([]models.UnifiedComparisonRecord) error) error {
	lastID := ""
	for {
		var chunk []models.UnifiedComparisonRecord
		err := s.db.WithContext(ctx).
			Where("reconciliation_status = ?", status).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&chunk).Error
		if err != nil {
			return apperrors.StoreError(apperrors.CodeReadFailed, "comparison records by status", err)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		lastID = chunk[len(chunk)-1].ID
	}
}

// ForEachReceivableChunk streams the receivable-vs-receipt table in
// id-keyset chunks.
func (s *Store) ForEachReceivableChunk(ctx context.Context, fn func([]models.ReceivableVsReceipt) error) error {
	lastID := uint(0)
	for {
		var chunk []models.ReceivableVsReceipt
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&chunk).Error
		if err != nil {
			return apperrors.StoreError(apperrors.CodeReadFailed, "receivable rows", err)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		lastID = chunk[len(chunk)-1].ID
	}
}

// CountComparisonRecords returns the unified table row count.
func (s *Store) CountComparisonRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UnifiedComparisonRecord{}).Count(&count).Error
	if err != nil {
		return 0, apperrors.StoreError(apperrors.CodeReadFailed, "count comparison records", err)
	}
	return count, nil
}

// UpsertReceivables bulk-writes receivable-vs-receipt rows, upserted by
// UTR.
func (s *Store) UpsertReceivables(ctx context.Context, rows []*models.ReceivableVsReceipt) error {
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "utr_number"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"utr_date", "order_date", "store_code", "order_count",
				"receivable", "deposit", "delta", "remark", "bank_name", "updated_at",
			}),
		}).
		CreateInBatches(rows, s.chunkSize).Error
	if err != nil {
		return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "upsert receivables", err)
	}
	return nil
}

// LoadFieldMappings loads the full field mapping table.
func (s *Store) LoadFieldMappings(ctx context.Context) ([]models.FieldMapping, error) {
	var rows []models.FieldMapping
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "field mappings", err)
	}
	return rows, nil
}

// LoadFormulaDefinitions loads one source's formulas in declaration order.
func (s *Store) LoadFormulaDefinitions(ctx context.Context, source models.DataSource) ([]models.FormulaDefinition, error) {
	var rows []models.FormulaDefinition
	err := s.db.WithContext(ctx).
		Where("data_source = ?", source).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "formula definitions", err)
	}
	return rows, nil
}
