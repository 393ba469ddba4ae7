package store

import (
	"context"

	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"

	"gorm.io/gorm"
)

// windowScope applies the date and store filters of a reconciliation
// window.
func windowScope(window models.ReconciliationWindow, dateColumn string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where(dateColumn+" >= ? AND "+dateColumn+" <= ?", window.StartDate, window.EndDate)
		if len(window.StoreCodes) > 0 {
			db = db.Where("store_code IN ?", window.StoreCodes)
		}
		return db
	}
}

// ForEachPosOrderChunk streams eligible POS orders in id-keyset chunks.
// Only rows carrying the given order-taker flag are eligible.
func (s *Store) ForEachPosOrderChunk(ctx context.Context, window models.ReconciliationWindow, orderTaker string, fn func([]models.PosOrder) error) error {
	lastID := uint(0)
	for {
		var chunk []models.PosOrder
		err := s.db.WithContext(ctx).
			Scopes(windowScope(window, "order_date")).
			Where("order_taker = ?", orderTaker).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&chunk).Error
		if err != nil {
			return apperrors.StoreError(apperrors.CodeReadFailed, "pos orders", err)
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

// ForEachZomatoOrderChunk streams aggregator orders for one action type in
// id-keyset chunks.
func (s *Store) ForEachZomatoOrderChunk(ctx context.Context, window models.ReconciliationWindow, action string, fn func([]models.ZomatoOrder) error) error {
	lastID := uint(0)
	for {
		var chunk []models.ZomatoOrder
		err := s.db.WithContext(ctx).
			Scopes(windowScope(window, "order_date")).
			Where("action = ?", action).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&chunk).Error
		if err != nil {
			return apperrors.StoreError(apperrors.CodeReadFailed, "zomato orders", err)
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

// SettlementBatches groups aggregator orders by settlement reference,
// summing final amounts into the batch receivable.
func (s *Store) SettlementBatches(ctx context.Context, window models.ReconciliationWindow) ([]models.SettlementBatch, error) {
	query := s.db.WithContext(ctx).
		Model(&models.ZomatoOrder{}).
		Select("order_date, store_code, utr_number, utr_date, SUM(final_amount) AS receivable, COUNT(*) AS order_count").
		Scopes(windowScope(window, "order_date")).
		Where("utr_number <> ''").
		Group("order_date, store_code, utr_number, utr_date").
		Order("utr_number, order_date")

	var batches []models.SettlementBatch
	if err := query.Scan(&batches).Error; err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "settlement batches", err)
	}
	return batches, nil
}

// BankStatementsByUTR bulk-loads deposit records for a UTR set.
func (s *Store) BankStatementsByUTR(ctx context.Context, utrs []string) (map[string]models.BankStatementRecord, error) {
	result := make(map[string]models.BankStatementRecord, len(utrs))
	if len(utrs) == 0 {
		return result, nil
	}

	var rows []models.BankStatementRecord
	if err := s.db.WithContext(ctx).Where("utr_number IN ?", utrs).Find(&rows).Error; err != nil {
		return nil, apperrors.StoreError(apperrors.CodeReadFailed, "bank statements", err)
	}
	for _, row := range rows {
		result[row.UTRNumber] = row
	}
	return result, nil
}
