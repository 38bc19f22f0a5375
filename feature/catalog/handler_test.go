package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"commerce-sync/core/database"
	"commerce-sync/feature/catalog"
	"commerce-sync/feature/catalog/models"
	"commerce-sync/feature/catalog/store"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: "sqlite",
		Name:   ":memory:",
	})
	require.NoError(t, err)

	feature := catalog.NewFeature(db, nil, nil, "exports", nil)
	require.NoError(t, store.New(db, nil).Migrate())

	app := fiber.New()
	require.NoError(t, feature.Load(app))
	return app, db
}

func seedHandlerProduct(t *testing.T, db *gorm.DB, p models.CachedProduct) {
	t.Helper()
	if p.Classification == "" {
		p.Classification = models.ClassificationUpdatable
	}
	if p.SyncStatus == "" {
		p.SyncStatus = models.SyncStatusSuccess
	}
	require.NoError(t, db.Create(&p).Error)
}

func decodeBody(t *testing.T, resp io.Reader, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp).Decode(out))
}

func TestHandleListProducts(t *testing.T) {
	app, db := newTestApp(t)

	stock := 3
	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1, Name: "Oak Chair", StockQuantity: &stock})
	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 2, Name: "Pine Table", Classification: models.ClassificationLocked})

	resp, err := app.Test(httptest.NewRequest("GET", "/catalog/products", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var products []models.CachedProduct
	decodeBody(t, resp.Body, &products)
	assert.Len(t, products, 2)

	resp, err = app.Test(httptest.NewRequest("GET", "/catalog/products?classification=locked", nil), 2000)
	require.NoError(t, err)
	decodeBody(t, resp.Body, &products)
	require.Len(t, products, 1)
	assert.Equal(t, int64(2), products[0].ProductID)
}

func TestHandleGetProductNotFound(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/catalog/products/999", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandleEditProductValidation(t *testing.T) {
	app, db := newTestApp(t)

	seedHandlerProduct(t, db, models.CachedProduct{
		ProductID:    1,
		RegularPrice: decimal.RequireFromString("50.00"),
	})

	body := bytes.NewBufferString(`{"sale_price": "60.00"}`)
	req := httptest.NewRequest("PATCH", "/catalog/products/1", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 422, resp.StatusCode)

	var parsed map[string]any
	decodeBody(t, resp.Body, &parsed)
	assert.Equal(t, "sale_price", parsed["field"])
}

func TestHandleEditProductDisplayName(t *testing.T) {
	app, db := newTestApp(t)

	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1, Name: "Oak Chair"})

	body := bytes.NewBufferString(`{"display_name": "Chaise"}`)
	req := httptest.NewRequest("PATCH", "/catalog/products/1", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var product models.CachedProduct
	decodeBody(t, resp.Body, &product)
	assert.Equal(t, "Chaise", product.DisplayName)
	assert.Equal(t, "Oak Chair", product.Name)
}

func TestHandleLockAndInvalidTransition(t *testing.T) {
	app, db := newTestApp(t)

	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1})

	resp, err := app.Test(httptest.NewRequest("POST", "/catalog/products/1/lock", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var product models.CachedProduct
	decodeBody(t, resp.Body, &product)
	assert.Equal(t, models.ClassificationLocked, product.Classification)

	// Restoring a locked record is not a valid transition.
	resp, err = app.Test(httptest.NewRequest("POST", "/catalog/products/1/restore", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestHandleProductHistory(t *testing.T) {
	app, db := newTestApp(t)

	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1})

	_, err := app.Test(httptest.NewRequest("POST", "/catalog/products/1/lock", nil), 2000)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/catalog/products/1/history", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var entries []models.AuditEntry
	decodeBody(t, resp.Body, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "classification", entries[0].FieldChanged)
	assert.Equal(t, "locked", entries[0].NewValue)
}

func TestHandleTriggerSyncBadKind(t *testing.T) {
	app, _ := newTestApp(t)

	body := bytes.NewBufferString(`{"kind": "invoice"}`)
	req := httptest.NewRequest("POST", "/catalog/sync", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandleAllocateAndPeek(t *testing.T) {
	app, _ := newTestApp(t)

	body := bytes.NewBufferString(`{"prefix": "INV/25/"}`)
	req := httptest.NewRequest("POST", "/catalog/sequences/allocate", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var allocated map[string]any
	decodeBody(t, resp.Body, &allocated)
	assert.Equal(t, float64(1), allocated["number"])
	assert.Equal(t, "INV/25/00001", allocated["document"])

	resp, err = app.Test(httptest.NewRequest("GET", "/catalog/sequences/peek?prefix=INV%2F25%2F", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var peeked map[string]any
	decodeBody(t, resp.Body, &peeked)
	assert.Equal(t, float64(1), peeked["last_issued"])
	assert.Equal(t, float64(2), peeked["next"])
}

func TestHandleBulkPreviewAndApply(t *testing.T) {
	app, db := newTestApp(t)

	stock := 10
	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1, StockQuantity: &stock})

	previewBody := `{"items": [{"product_id": 1, "edit": {"stock_quantity": 5}}]}`
	req := httptest.NewRequest("POST", "/catalog/bulk/preview", bytes.NewBufferString(previewBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var results []catalog.BulkResult
	decodeBody(t, resp.Body, &results)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, models.ClassificationUpdatable, results[0].Classification)

	applyBody := fmt.Sprintf(
		`{"items": [{"product_id": 1, "expected_classification": %q, "edit": {"stock_quantity": 5}}]}`,
		results[0].Classification)
	req = httptest.NewRequest("POST", "/catalog/bulk/apply", bytes.NewBufferString(applyBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req, 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var applied struct {
		BatchID string               `json:"batch_id"`
		Results []catalog.BulkResult `json:"results"`
	}
	decodeBody(t, resp.Body, &applied)
	assert.NotEmpty(t, applied.BatchID)
	require.Len(t, applied.Results, 1)
	assert.True(t, applied.Results[0].OK)

	product, err := store.New(db, nil).GetProduct(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, *product.StockQuantity)
}

func TestHandleStats(t *testing.T) {
	app, db := newTestApp(t)

	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 1})
	seedHandlerProduct(t, db, models.CachedProduct{ProductID: 2, Classification: models.ClassificationLocked})

	resp, err := app.Test(httptest.NewRequest("GET", "/catalog/stats", nil), 2000)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var stats map[string]any
	decodeBody(t, resp.Body, &stats)
	products, ok := stats["products"].(map[string]any)
	require.True(t, ok)
	classes, ok := products["classifications"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), classes["locked"])
}
