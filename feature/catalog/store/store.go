package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-sync/feature/catalog/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the durable cache of externally sourced records.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a store over the given database handle.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for the audit trail and allocator.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the cache schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.CachedProduct{},
		&models.CachedOrder{},
		&models.AuditEntry{},
		&models.SequenceCounter{},
		&models.ExportRun{},
	)
}

// GetProduct loads one cached product by its external identifier.
func (s *Store) GetProduct(ctx context.Context, productID, variationID int64) (*models.CachedProduct, error) {
	var p models.CachedProduct
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND variation_id = ?", productID, variationID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d/%d: %w", productID, variationID, err)
	}
	return &p, nil
}

// SaveProduct persists all fields of an existing product row.
func (s *Store) SaveProduct(ctx context.Context, p *models.CachedProduct) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("save product %d/%d: %w", p.ProductID, p.VariationID, err)
	}
	return nil
}

// CreateProduct inserts a newly observed product.
func (s *Store) CreateProduct(ctx context.Context, p *models.CachedProduct) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create product %d/%d: %w", p.ProductID, p.VariationID, err)
	}
	return nil
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Classification models.Classification
	SyncStatus     models.SyncStatus
	ReviewFlagged  *bool
	Search         string
	Limit          int
	Offset         int
}

// ListProducts returns cached products matching the filter, newest first.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.CachedProduct, error) {
	q := s.db.WithContext(ctx).Model(&models.CachedProduct{})
	if f.Classification != "" {
		q = q.Where("classification = ?", f.Classification)
	}
	if f.SyncStatus != "" {
		q = q.Where("sync_status = ?", f.SyncStatus)
	}
	if f.ReviewFlagged != nil {
		q = q.Where("review_flagged = ?", *f.ReviewFlagged)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR sku LIKE ? OR display_name LIKE ?", like, like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var products []models.CachedProduct
	if err := q.Order("updated_at DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ProductsNotInBatch returns every product whose last sync batch differs
// from batchID. Used for the absence sweep after a completed full fetch.
func (s *Store) ProductsNotInBatch(ctx context.Context, batchID string) ([]models.CachedProduct, error) {
	var products []models.CachedProduct
	err := s.db.WithContext(ctx).
		Where("last_batch_id <> ? OR last_batch_id IS NULL", batchID).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("products not in batch %s: %w", batchID, err)
	}
	return products, nil
}

// GetOrder loads one cached order by its external identifier.
func (s *Store) GetOrder(ctx context.Context, orderID int64) (*models.CachedOrder, error) {
	var o models.CachedOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return &o, nil
}

// SaveOrder persists all fields of an existing order row.
func (s *Store) SaveOrder(ctx context.Context, o *models.CachedOrder) error {
	if err := s.db.WithContext(ctx).Save(o).Error; err != nil {
		return fmt.Errorf("save order %d: %w", o.OrderID, err)
	}
	return nil
}

// CreateOrder inserts a newly observed order.
func (s *Store) CreateOrder(ctx context.Context, o *models.CachedOrder) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("create order %d: %w", o.OrderID, err)
	}
	return nil
}

// OrdersBetween returns cached orders whose order date falls in the range,
// oldest first. Zero times leave the corresponding bound open.
func (s *Store) OrdersBetween(ctx context.Context, from, to time.Time) ([]models.CachedOrder, error) {
	q := s.db.WithContext(ctx).Model(&models.CachedOrder{})
	if !from.IsZero() {
		q = q.Where("order_date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("order_date <= ?", to)
	}

	var orders []models.CachedOrder
	if err := q.Order("order_date ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("orders between: %w", err)
	}
	return orders, nil
}

// OrdersNotInBatchBetween returns orders inside the scope window that the
// given batch did not touch. A date-scoped sync may only demote records
// it could actually have seen.
func (s *Store) OrdersNotInBatchBetween(ctx context.Context, batchID string, from, to time.Time) ([]models.CachedOrder, error) {
	q := s.db.WithContext(ctx).
		Where("last_batch_id <> ? OR last_batch_id IS NULL", batchID)
	if !from.IsZero() {
		q = q.Where("order_date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("order_date <= ?", to)
	}

	var orders []models.CachedOrder
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("orders not in batch %s: %w", batchID, err)
	}
	return orders, nil
}

// ClassificationCounts tallies cached records of one kind per classification.
func (s *Store) ClassificationCounts(ctx context.Context, kind models.RecordKind) (map[models.Classification]int64, error) {
	type row struct {
		Classification models.Classification
		N              int64
	}

	model := any(&models.CachedProduct{})
	if kind == models.KindOrder {
		model = &models.CachedOrder{}
	}

	var rows []row
	err := s.db.WithContext(ctx).Model(model).
		Select("classification, COUNT(*) AS n").
		Group("classification").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("classification counts for %s: %w", kind, err)
	}

	counts := make(map[models.Classification]int64, len(rows))
	for _, r := range rows {
		counts[r.Classification] = r.N
	}
	return counts, nil
}

// SyncStatusCounts tallies cached records of one kind per sync status.
func (s *Store) SyncStatusCounts(ctx context.Context, kind models.RecordKind) (map[models.SyncStatus]int64, error) {
	type row struct {
		SyncStatus models.SyncStatus
		N          int64
	}

	model := any(&models.CachedProduct{})
	if kind == models.KindOrder {
		model = &models.CachedOrder{}
	}

	var rows []row
	err := s.db.WithContext(ctx).Model(model).
		Select("sync_status, COUNT(*) AS n").
		Group("sync_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sync status counts for %s: %w", kind, err)
	}

	counts := make(map[models.SyncStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.SyncStatus] = r.N
	}
	return counts, nil
}
