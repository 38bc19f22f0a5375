package store

import (
	"context"
	"fmt"
	"time"

	"commerce-sync/feature/catalog/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditTrail is the append-only history of every cache mutation. It is
// the sole source of "what changed and when".
type AuditTrail struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditTrail creates the audit trail over the given database handle.
func NewAuditTrail(db *gorm.DB, logger *zap.Logger) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{db: db, logger: logger}
}

// Append inserts one entry. Callers performing a primary mutation should
// log a returned error and continue rather than fail the mutation.
func (a *AuditTrail) Append(ctx context.Context, e *models.AuditEntry) error {
	if e.Outcome == "" {
		e.Outcome = models.OutcomeSuccess
	}
	if err := a.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append audit entry for %s: %w", e.Ref(), err)
	}
	return nil
}

// MarkOutcome finalizes a pending entry after a write-back attempt. The
// outcome is the only mutable part of an entry.
func (a *AuditTrail) MarkOutcome(ctx context.Context, entryID uint, outcome models.Outcome, errorCode string) error {
	err := a.db.WithContext(ctx).Model(&models.AuditEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{"outcome": outcome, "error_code": errorCode}).Error
	if err != nil {
		return fmt.Errorf("mark audit entry %d %s: %w", entryID, outcome, err)
	}
	return nil
}

// ForRecord returns the history of one record, newest first.
func (a *AuditTrail) ForRecord(ctx context.Context, ref models.RecordRef) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Where("record_kind = ? AND external_id = ? AND variation_id = ?",
			ref.Kind, ref.ExternalID, ref.VariationID).
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit entries for %s: %w", ref, err)
	}
	return entries, nil
}

// InBatch returns every entry produced by one batch run.
func (a *AuditTrail) InBatch(ctx context.Context, batchID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit entries in batch %s: %w", batchID, err)
	}
	return entries, nil
}

// AuditFilter narrows Between.
type AuditFilter struct {
	Actor  string
	Source models.ChangeSource
}

// Between returns entries created in the time range, optionally filtered
// by actor and change source, oldest first.
func (a *AuditTrail) Between(ctx context.Context, from, to time.Time, f AuditFilter) ([]models.AuditEntry, error) {
	q := a.db.WithContext(ctx).Model(&models.AuditEntry{})
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at <= ?", to)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if f.Source != "" {
		q = q.Where("change_source = ?", f.Source)
	}

	var entries []models.AuditEntry
	if err := q.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit entries between: %w", err)
	}
	return entries, nil
}
