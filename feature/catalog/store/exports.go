package store

import (
	"context"
	"fmt"
	"time"

	"commerce-sync/feature/catalog/models"
)

// CreateExportRun records one row in the export history ledger.
func (s *Store) CreateExportRun(ctx context.Context, run *models.ExportRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create export run %s: %w", run.BatchID, err)
	}
	return nil
}

// ExportFilter narrows ListExportRuns.
type ExportFilter struct {
	Prefix string
	Actor  string
	From   time.Time
	To     time.Time
	Limit  int
}

// ListExportRuns returns past export runs matching the filter, newest first.
func (s *Store) ListExportRuns(ctx context.Context, f ExportFilter) ([]models.ExportRun, error) {
	q := s.db.WithContext(ctx).Model(&models.ExportRun{})
	if f.Prefix != "" {
		q = q.Where("prefix = ?", f.Prefix)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var runs []models.ExportRun
	if err := q.Order("id DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list export runs: %w", err)
	}
	return runs, nil
}
