package engine

import (
	"context"

	"order-reconciliation-service/internal/formula"
	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"
)

// Summarizer projects raw per-source order rows into the unified comparison
// table. Each source writes only its own column group, so a later pass for
// the counterpart source never clobbers values written here.
type Summarizer struct {
	repo Repository
	log  logger.Logger
}

// NewSummarizer creates a summarizer over a repository.
func NewSummarizer(repo Repository, log logger.Logger) *Summarizer {
	return &Summarizer{repo: repo, log: log.WithComponent("summarizer")}
}

// compile loads field mappings and formula definitions for a source and
// compiles them. Definitions seeded at migration are the usual case; an
// empty table falls back to the built-in set.
func (s *Summarizer) compile(ctx context.Context, source models.DataSource) (*formula.CompiledSet, error) {
	mappings, err := s.repo.LoadFieldMappings(ctx)
	if err != nil {
		return nil, err
	}
	resolver := formula.NewResolver(source, mappings)

	rows, err := s.repo.LoadFormulaDefinitions(ctx, source)
	if err != nil {
		return nil, err
	}
	defs := formula.DefinitionsFromModels(rows)
	if len(defs) == 0 {
		defs = formula.DefaultDefinitions(source)
	}
	return formula.Compile(source, defs, resolver, s.log)
}

// SummarizePOS evaluates the POS formula set over every aggregator-placed
// POS order in the window and upserts the pos_* column group. Returns the
// number of orders processed.
func (s *Summarizer) SummarizePOS(ctx context.Context, window models.ReconciliationWindow) (int, error) {
	set, err := s.compile(ctx, models.SourcePOS)
	if err != nil {
		return 0, err
	}

	processed := 0
	inserted := 0
	err = s.repo.ForEachPosOrderChunk(ctx, window, OrderTakerZomato, func(orders []models.PosOrder) error {
		byKey := make(map[string]*models.UnifiedComparisonRecord, len(orders))
		keys := make([]string, 0, len(orders))
		for i := range orders {
			order := &orders[i]
			results := set.Evaluate(order.OrderID, order.Env())

			rec := &models.UnifiedComparisonRecord{
				ID:                   "pos-" + order.OrderID,
				OrderKey:             order.OrderID,
				PosOrderID:           order.OrderID,
				PosStoreCode:         order.StoreCode,
				PosOrderDate:         order.OrderDate,
				ReconciliationStatus: models.StatusPending,
			}
			for _, field := range models.ComparisonFields {
				rec.SetSourceValue(models.SourcePOS, field, results[field])
			}
			if _, seen := byKey[rec.OrderKey]; !seen {
				keys = append(keys, rec.OrderKey)
			}
			byKey[rec.OrderKey] = rec
		}

		existing, err := s.repo.ExistingOrderKeys(ctx, keys)
		if err != nil {
			return err
		}
		records := make([]*models.UnifiedComparisonRecord, 0, len(keys))
		for _, key := range keys {
			records = append(records, byKey[key])
			if !existing[key] {
				inserted++
			}
		}
		if err := s.repo.UpsertComparisonRecords(ctx, records, models.PosAssignColumns()); err != nil {
			return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "summarize pos orders", err)
		}
		processed += len(orders)
		return nil
	})
	if err != nil {
		return processed, err
	}

	s.log.WithFields(logger.Fields{
		"source":    models.SourcePOS,
		"processed": processed,
		"inserted":  inserted,
	}).Info("source summarization complete")
	return processed, nil
}

// SummarizeZomato copies the aggregator's reported breakdown and evaluates
// the calculated shadow formulas for every order of the given action in the
// window. Refunds are keyed apart from sales, so the refund pass produces
// its own rows instead of overwriting the sale rows.
func (s *Summarizer) SummarizeZomato(ctx context.Context, window models.ReconciliationWindow, action string) (int, error) {
	set, err := s.compile(ctx, models.SourceZomato)
	if err != nil {
		return 0, err
	}

	processed := 0
	inserted := 0
	err = s.repo.ForEachZomatoOrderChunk(ctx, window, action, func(orders []models.ZomatoOrder) error {
		byKey := make(map[string]*models.UnifiedComparisonRecord, len(orders))
		keys := make([]string, 0, len(orders))
		for i := range orders {
			order := &orders[i]
			env := order.Env()
			results := set.Evaluate(order.OrderID, env)
			key := order.OrderKey()

			rec := &models.UnifiedComparisonRecord{
				ID:                   "zomato-" + key,
				OrderKey:             key,
				ZomatoOrderID:        order.OrderID,
				ZomatoStore:          order.StoreCode,
				ZomatoDate:           order.OrderDate,
				UTRNumber:            order.UTRNumber,
				UTRDate:              order.UTRDate,
				ReconciliationStatus: models.StatusPending,
			}
			for _, field := range models.ComparisonFields {
				rec.SetSourceValue(models.SourceZomato, field, env[field])
			}
			for _, field := range models.CalculatedFields {
				rec.SetCalculatedValue(field, results[field])
			}
			if _, seen := byKey[key]; !seen {
				keys = append(keys, key)
			}
			byKey[key] = rec
		}

		existing, err := s.repo.ExistingOrderKeys(ctx, keys)
		if err != nil {
			return err
		}
		records := make([]*models.UnifiedComparisonRecord, 0, len(keys))
		for _, key := range keys {
			records = append(records, byKey[key])
			if !existing[key] {
				inserted++
			}
		}
		if err := s.repo.UpsertComparisonRecords(ctx, records, models.ZomatoAssignColumns()); err != nil {
			return apperrors.StoreError(apperrors.CodeBatchWriteFailed, "summarize zomato orders", err)
		}
		processed += len(orders)
		return nil
	})
	if err != nil {
		return processed, err
	}

	s.log.WithFields(logger.Fields{
		"source":    models.SourceZomato,
		"action":    action,
		"processed": processed,
		"inserted":  inserted,
	}).Info("source summarization complete")
	return processed, nil
}
