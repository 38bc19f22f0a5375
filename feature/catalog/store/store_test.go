package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"commerce-sync/feature/catalog/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := New(db, nil)
	require.NoError(t, s.Migrate())
	return s
}

// newSharedTestStore opens a sqlite database usable from multiple
// goroutines. A single connection keeps sqlite's write locking out of
// the picture so tests exercise our own serialization.
func newSharedTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := New(db, nil)
	require.NoError(t, s.Migrate())
	return s
}

func intPtr(v int) *int { return &v }

func TestProductRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.CachedProduct{
		ProductID:      100,
		Name:           "Oak Chair",
		SKU:            "OAK-1",
		RegularPrice:   decimal.RequireFromString("49.90"),
		StockQuantity:  intPtr(10),
		Classification: models.ClassificationUpdatable,
		SyncStatus:     models.SyncStatusSuccess,
	}
	require.NoError(t, s.CreateProduct(ctx, p))

	got, err := s.GetProduct(ctx, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "Oak Chair", got.Name)
	assert.True(t, got.RegularPrice.Equal(decimal.RequireFromString("49.90")))

	got.Name = "Oak Chair v2"
	require.NoError(t, s.SaveProduct(ctx, got))

	got, err = s.GetProduct(ctx, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, "Oak Chair v2", got.Name)
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProduct(context.Background(), 999, 0)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestProductVariationsAreDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 100, VariationID: 1, Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 100, VariationID: 2, Classification: models.ClassificationUpdatable,
	}))

	got, err := s.GetProduct(ctx, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.VariationID)

	// Same key twice is rejected.
	err = s.CreateProduct(ctx, &models.CachedProduct{ProductID: 100, VariationID: 1})
	assert.Error(t, err)
}

func TestProductsNotInBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 1, LastBatchID: "run-a", Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 2, LastBatchID: "run-b", Classification: models.ClassificationUpdatable,
	}))

	missed, err := s.ProductsNotInBatch(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, int64(1), missed[0].ProductID)
}

func TestListProductsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 1, Name: "Oak Chair", Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 2, Name: "Pine Table", Classification: models.ClassificationLocked,
	}))

	locked, err := s.ListProducts(ctx, ProductFilter{Classification: models.ClassificationLocked})
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, int64(2), locked[0].ProductID)

	byName, err := s.ListProducts(ctx, ProductFilter{Search: "Oak"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, int64(1), byName[0].ProductID)
}

func TestOrdersBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateOrder(ctx, &models.CachedOrder{
		OrderID: 1, OrderDate: jan, Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateOrder(ctx, &models.CachedOrder{
		OrderID: 2, OrderDate: feb, Classification: models.ClassificationUpdatable,
	}))

	got, err := s.OrdersBetween(ctx,
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].OrderID)

	all, err := s.OrdersBetween(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOrdersNotInBatchBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateOrder(ctx, &models.CachedOrder{
		OrderID: 1, OrderDate: jan, LastBatchID: "old", Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateOrder(ctx, &models.CachedOrder{
		OrderID: 2, OrderDate: feb, LastBatchID: "old", Classification: models.ClassificationUpdatable,
	}))

	// Only orders inside the scope window are candidates for demotion.
	missed, err := s.OrdersNotInBatchBetween(ctx, "new",
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, int64(2), missed[0].OrderID)
}

func TestClassificationCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 1, Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 2, Classification: models.ClassificationUpdatable,
	}))
	require.NoError(t, s.CreateProduct(ctx, &models.CachedProduct{
		ProductID: 3, Classification: models.ClassificationLocked,
	}))

	counts, err := s.ClassificationCounts(ctx, models.KindProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.ClassificationUpdatable])
	assert.Equal(t, int64(1), counts[models.ClassificationLocked])
}

func TestOrderLineItemsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &models.CachedOrder{
		OrderID:        10,
		Classification: models.ClassificationUpdatable,
		OrderDate:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, o.SetItems([]models.OrderItem{
		{Name: "Oak Chair", ProductID: 100, Quantity: 2, Total: decimal.RequireFromString("99.80")},
	}))
	require.NoError(t, s.CreateOrder(ctx, o))

	got, err := s.GetOrder(ctx, 10)
	require.NoError(t, err)

	items, err := got.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100), items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
}
