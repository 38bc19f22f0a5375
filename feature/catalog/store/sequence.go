package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"commerce-sync/feature/catalog/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Allocator issues unique, gapless, strictly increasing numbers per
// document series prefix. Duplicate document numbers are a business
// visible error, so the increment and the read of the new value happen
// inside one transaction against the counter row.
type Allocator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAllocator creates an allocator over the given database handle.
func NewAllocator(db *gorm.DB, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{db: db, logger: logger}
}

// Allocate returns the next number for the prefix.
func (a *Allocator) Allocate(ctx context.Context, prefix string) (int64, error) {
	first, _, err := a.AllocateRange(ctx, prefix, 1)
	return first, err
}

// AllocateRange reserves count consecutive numbers and returns the
// inclusive bounds of the reserved run.
func (a *Allocator) AllocateRange(ctx context.Context, prefix string, count int) (first, last int64, err error) {
	if prefix == "" {
		return 0, 0, fmt.Errorf("allocate: empty prefix")
	}
	if count <= 0 {
		return 0, 0, fmt.Errorf("allocate: count must be positive, got %d", count)
	}

	// Two callers may race to create the counter row for a new prefix.
	// The loser hits the primary key and wins on the retry via UPDATE.
	// Any other failure is surfaced as-is; retrying it cannot help.
	for attempt := 0; attempt < 2; attempt++ {
		first, last, err = a.allocateOnce(ctx, prefix, count)
		if err == nil {
			return first, last, nil
		}
		if !isDuplicateKey(err) {
			break
		}
		a.logger.Warn("Sequence counter create race, retrying",
			zap.String("prefix", prefix),
			zap.Error(err),
		)
	}
	return 0, 0, fmt.Errorf("allocate %d for prefix %q: %w", count, prefix, err)
}

func (a *Allocator) allocateOnce(ctx context.Context, prefix string, count int) (first, last int64, err error) {
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Atomic relative increment; the row lock taken by the UPDATE
		// serializes concurrent allocators on the same prefix.
		res := tx.Model(&models.SequenceCounter{}).
			Where("prefix = ?", prefix).
			Update("last_issued", gorm.Expr("last_issued + ?", count))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			counter := models.SequenceCounter{Prefix: prefix, LastIssued: int64(count)}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
			first, last = 1, int64(count)
			return nil
		}

		var counter models.SequenceCounter
		if err := tx.Where("prefix = ?", prefix).First(&counter).Error; err != nil {
			return err
		}
		last = counter.LastIssued
		first = last - int64(count) + 1
		return nil
	})
	return first, last, err
}

// isDuplicateKey recognizes a unique constraint violation. The message
// checks cover the mysql and sqlite drivers for connections opened
// without gorm's error translation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// Peek returns the last issued number without allocating. A prefix that
// was never allocated from reports zero.
func (a *Allocator) Peek(ctx context.Context, prefix string) (int64, error) {
	var counter models.SequenceCounter
	err := a.db.WithContext(ctx).Where("prefix = ?", prefix).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("peek prefix %q: %w", prefix, err)
	}
	return counter.LastIssued, nil
}
