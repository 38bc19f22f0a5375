package catalog

import (
	"commerce-sync/core/storage"
	"commerce-sync/core/woo"
	"commerce-sync/feature/catalog/export"
	"commerce-sync/feature/catalog/store"
	syncer "commerce-sync/feature/catalog/sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the registry.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
	enabled bool
}

// NewFeature wires the catalog feature. client may be nil when no source
// is configured; the cache then serves reads and local edits only.
func NewFeature(db *gorm.DB, client *woo.Client, stor storage.Client, bucket string, logger *zap.Logger) *Feature {
	st := store.New(db, logger)
	trail := store.NewAuditTrail(db, logger)
	alloc := store.NewAllocator(db, logger)

	var fetcher syncer.Fetcher
	var stats syncer.StatsSource
	var updater ProductUpdater
	if client != nil {
		fetcher = woo.NewFetcher(client)
		stats = client
		updater = client
	}

	orch := syncer.New(st, trail, fetcher, stats, logger)
	exporter := export.New(st, trail, alloc, stor, bucket, logger)
	svc := NewService(st, trail, alloc, orch, exporter, updater, logger)

	return &Feature{
		service: svc,
		handler: NewHandler(svc),
		enabled: db != nil,
	}
}

// Service exposes the wired service for CLI commands.
func (f *Feature) Service() *Service {
	return f.service
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "catalog"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
