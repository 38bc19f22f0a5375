package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"commerce-sync/core/utils"
	"commerce-sync/core/woo"
	"commerce-sync/feature/catalog/export"
	"commerce-sync/feature/catalog/models"
	"commerce-sync/feature/catalog/reconcile"
	"commerce-sync/feature/catalog/store"
	syncer "commerce-sync/feature/catalog/sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrInvalidTransition rejects an administrative action the state machine
// does not allow, such as locking a record that is deleted upstream.
var ErrInvalidTransition = errors.New("invalid classification transition")

// WriteBackError reports that a locally applied edit could not be pushed
// to the source. The cache keeps the edit; the record's sync status shows
// the discrepancy until a retry succeeds.
type WriteBackError struct {
	Cause error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("write-back to source failed: %v", e.Cause)
}

func (e *WriteBackError) Unwrap() error { return e.Cause }

// ProductUpdater pushes locally originated edits to the source.
type ProductUpdater interface {
	UpdateProduct(ctx context.Context, productID int64, variationID *int64, upd woo.ProductUpdate) error
}

// Service implements the catalog command surface.
type Service struct {
	store    *store.Store
	trail    *store.AuditTrail
	alloc    *store.Allocator
	orch     *syncer.Orchestrator
	exporter *export.Exporter
	updater  ProductUpdater
	logger   *zap.Logger
}

// NewService wires the catalog service. updater may be nil when no source
// credentials are configured; edits then stay local with a failed sync
// status.
func NewService(st *store.Store, trail *store.AuditTrail, alloc *store.Allocator, orch *syncer.Orchestrator, exporter *export.Exporter, updater ProductUpdater, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		trail:    trail,
		alloc:    alloc,
		orch:     orch,
		exporter: exporter,
		updater:  updater,
		logger:   logger,
	}
}

// TriggerSync runs one batch run over the scope.
func (s *Service) TriggerSync(ctx context.Context, scope syncer.Scope) (*syncer.Summary, error) {
	return s.orch.Run(ctx, scope)
}

// ListProducts exposes the cache to readers.
func (s *Service) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.CachedProduct, error) {
	return s.store.ListProducts(ctx, f)
}

// GetProduct returns one cached product.
func (s *Service) GetProduct(ctx context.Context, ref models.RecordRef) (*models.CachedProduct, error) {
	return s.store.GetProduct(ctx, ref.ExternalID, ref.VariationID)
}

// History returns the audit history of one record.
func (s *Service) History(ctx context.Context, ref models.RecordRef) ([]models.AuditEntry, error) {
	return s.trail.ForRecord(ctx, ref)
}

// Activity returns audit entries in a time range.
func (s *Service) Activity(ctx context.Context, from, to time.Time, f store.AuditFilter) ([]models.AuditEntry, error) {
	return s.trail.Between(ctx, from, to, f)
}

// EditRecord applies one locally originated edit: validate, apply to the
// cache, audit as pending, push to the source, then finalize sync status
// and the audit outcome. A failed push keeps the local edit visible with
// sync status failed; it is never rolled back.
func (s *Service) EditRecord(ctx context.Context, ref models.RecordRef, edit reconcile.Edit, actor string) (*models.CachedProduct, error) {
	return s.editRecord(ctx, ref, edit, actor, models.SourceManual, uuid.NewString(), "")
}

func (s *Service) editRecord(ctx context.Context, ref models.RecordRef, edit reconcile.Edit, actor string, source models.ChangeSource, batchID string, expected models.Classification) (*models.CachedProduct, error) {
	cached, err := s.store.GetProduct(ctx, ref.ExternalID, ref.VariationID)
	if err != nil {
		return nil, err
	}

	if expected != "" && cached.Classification != expected {
		return nil, &reconcile.ValidationError{
			Ref:   ref,
			Field: "classification",
			Rule:  fmt.Sprintf("changed from %s to %s since preview", expected, cached.Classification),
		}
	}
	if cached.Classification == models.ClassificationDeletedUpstream {
		return nil, &reconcile.ValidationError{
			Ref:   ref,
			Field: "classification",
			Rule:  "record is deleted upstream; restore it first",
		}
	}
	if err := reconcile.ValidateEdit(cached, edit); err != nil {
		return nil, err
	}

	changes := reconcile.ApplyEdit(cached, edit)
	if len(changes) == 0 {
		return cached, nil
	}

	// Only price and stock exist upstream; a pure display name edit
	// needs no write-back.
	needsPush := edit.RegularPrice != nil || edit.SalePrice != nil || edit.StockQuantity != nil

	if needsPush {
		cached.SyncStatus = models.SyncStatusPending
	}
	if err := s.store.SaveProduct(ctx, cached); err != nil {
		return nil, err
	}

	outcome := models.OutcomeSuccess
	if needsPush {
		outcome = models.OutcomePending
	}
	entryIDs := make([]uint, 0, len(changes))
	for _, change := range changes {
		entry := &models.AuditEntry{
			RecordKind:   ref.Kind,
			ExternalID:   ref.ExternalID,
			VariationID:  ref.VariationID,
			FieldChanged: change.Field,
			OldValue:     change.Old,
			NewValue:     change.New,
			Actor:        actor,
			ChangeSource: source,
			BatchID:      batchID,
			Outcome:      outcome,
		}
		if err := s.trail.Append(ctx, entry); err != nil {
			s.logger.Error("Audit append failed", zap.String("record", ref.String()), zap.Error(err))
			continue
		}
		entryIDs = append(entryIDs, entry.ID)
	}

	if !needsPush {
		return cached, nil
	}

	pushErr := s.pushProduct(ctx, cached, edit)
	if pushErr != nil {
		cached.SyncStatus = models.SyncStatusFailed
	} else {
		cached.SyncStatus = models.SyncStatusSuccess
	}
	if err := s.store.SaveProduct(ctx, cached); err != nil {
		return nil, err
	}

	finalOutcome := models.OutcomeSuccess
	errorCode := ""
	if pushErr != nil {
		finalOutcome = models.OutcomeFailed
		errorCode = writeBackErrorCode(pushErr)
	}
	for _, id := range entryIDs {
		if err := s.trail.MarkOutcome(ctx, id, finalOutcome, errorCode); err != nil {
			s.logger.Error("Audit outcome update failed", zap.Uint("entry_id", id), zap.Error(err))
		}
	}

	if pushErr != nil {
		s.logger.Warn("Write-back failed, local edit kept",
			zap.String("record", ref.String()), zap.Error(pushErr))
		return cached, &WriteBackError{Cause: pushErr}
	}
	return cached, nil
}

func (s *Service) pushProduct(ctx context.Context, cached *models.CachedProduct, edit reconcile.Edit) error {
	if s.updater == nil {
		return errors.New("no source client configured")
	}

	var upd woo.ProductUpdate
	if edit.RegularPrice != nil {
		v := edit.RegularPrice.String()
		upd.RegularPrice = &v
	}
	if edit.SalePrice != nil {
		v := edit.SalePrice.String()
		upd.SalePrice = &v
	}
	if edit.StockQuantity != nil {
		v := *edit.StockQuantity
		upd.StockQuantity = &v
	}

	var variationID *int64
	if cached.VariationID != 0 {
		v := cached.VariationID
		variationID = &v
	}
	return s.updater.UpdateProduct(ctx, cached.ProductID, variationID, upd)
}

func writeBackErrorCode(err error) string {
	var fErr *woo.FatalError
	if errors.As(err, &fErr) {
		return fmt.Sprintf("source_rejected_%d", fErr.Status)
	}
	var tErr *woo.ThrottleError
	if errors.As(err, &tErr) {
		return "source_throttled"
	}
	return "source_unreachable"
}

// BulkItem is one record's edit within a bulk operation. On apply,
// ExpectedClassification carries the classification seen at preview time
// and rejects the item if it changed in between.
type BulkItem struct {
	Ref                    models.RecordRef
	Edit                   reconcile.Edit
	ExpectedClassification models.Classification
}

// BulkResult reports one record's outcome in a bulk operation.
type BulkResult struct {
	Ref            models.RecordRef        `json:"ref"`
	Classification models.Classification   `json:"classification"`
	Changes        []reconcile.FieldChange `json:"changes,omitempty"`
	OK             bool                    `json:"ok"`
	Error          string                  `json:"error,omitempty"`
}

// PreviewBulkEdit validates every item against current cache state
// without mutating anything. The returned classification is the preview
// token ApplyBulkEdit checks against.
func (s *Service) PreviewBulkEdit(ctx context.Context, items []BulkItem) []BulkResult {
	results := make([]BulkResult, 0, len(items))
	for _, item := range items {
		result := BulkResult{Ref: item.Ref}

		cached, err := s.store.GetProduct(ctx, item.Ref.ExternalID, item.Ref.VariationID)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		result.Classification = cached.Classification

		if cached.Classification == models.ClassificationDeletedUpstream {
			result.Error = "record is deleted upstream; restore it first"
			results = append(results, result)
			continue
		}
		if err := reconcile.ValidateEdit(cached, item.Edit); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		// Compute the would-be changes on a copy.
		preview := *cached
		result.Changes = reconcile.ApplyEdit(&preview, item.Edit)
		result.OK = true
		results = append(results, result)
	}
	return results
}

// ApplyBulkEdit applies every item under one batch id, re-validating each
// record at apply time. A record whose classification changed since
// preview is rejected individually; the rest of the batch proceeds.
func (s *Service) ApplyBulkEdit(ctx context.Context, items []BulkItem, actor string, source models.ChangeSource) (string, []BulkResult) {
	if source == "" {
		source = models.SourceManual
	}
	batchID := uuid.NewString()

	results := make([]BulkResult, 0, len(items))
	for _, item := range items {
		result := BulkResult{Ref: item.Ref}

		cached, err := s.editRecord(ctx, item.Ref, item.Edit, actor, source, batchID, item.ExpectedClassification)
		if cached != nil {
			result.Classification = cached.Classification
		}
		switch {
		case err == nil:
			result.OK = true
		default:
			// A failed write-back still applied locally.
			var wbErr *WriteBackError
			result.OK = errors.As(err, &wbErr)
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return batchID, results
}

// ImportEdits reads a spreadsheet of product edits and applies them as a
// bulk operation with change source "import". Expected columns, with a
// header row: product id, variation id, regular price, sale price,
// stock quantity, display name. Empty cells leave the field untouched.
func (s *Service) ImportEdits(ctx context.Context, r io.Reader, actor string) (string, []BulkResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return "", nil, fmt.Errorf("read import sheet: %w", err)
	}
	if len(rows) < 2 {
		return "", nil, errors.New("import file has no data rows")
	}

	items := make([]BulkItem, 0, len(rows)-1)
	for i, row := range rows[1:] {
		item, err := importRowToItem(row)
		if err != nil {
			return "", nil, fmt.Errorf("import row %d: %w", i+2, err)
		}
		if item == nil {
			continue
		}
		items = append(items, *item)
	}
	if len(items) == 0 {
		return "", nil, errors.New("import file has no data rows")
	}

	batchID, results := s.ApplyBulkEdit(ctx, items, actor, models.SourceImport)
	return batchID, results, nil
}

func importRowToItem(row []string) (*BulkItem, error) {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	if cell(0) == "" {
		return nil, nil
	}
	productID := int64(utils.ToInt(cell(0)))
	if productID <= 0 {
		return nil, fmt.Errorf("invalid product id %q", cell(0))
	}

	item := BulkItem{Ref: models.RecordRef{
		Kind:        models.KindProduct,
		ExternalID:  productID,
		VariationID: int64(utils.ToInt(cell(1))),
	}}

	if v := cell(2); v != "" {
		d, err := utils.ParseDecimal(v)
		if err != nil {
			return nil, err
		}
		item.Edit.RegularPrice = &d
	}
	if v := cell(3); v != "" {
		d, err := utils.ParseDecimal(v)
		if err != nil {
			return nil, err
		}
		item.Edit.SalePrice = &d
	}
	if v := cell(4); v != "" {
		stock := utils.ToInt(v)
		item.Edit.StockQuantity = &stock
	}
	if v := cell(5); v != "" {
		item.Edit.DisplayName = &v
	}

	if item.Edit.IsEmpty() {
		return nil, nil
	}
	return &item, nil
}

// Lock places a record under administrative control. Syncs keep
// refreshing its fields but never change its classification.
func (s *Service) Lock(ctx context.Context, ref models.RecordRef, actor string) (*models.CachedProduct, error) {
	return s.transition(ctx, ref, actor, models.ClassificationUpdatable, models.ClassificationLocked, false)
}

// Unlock returns a locked record to normal sync control.
func (s *Service) Unlock(ctx context.Context, ref models.RecordRef, actor string) (*models.CachedProduct, error) {
	return s.transition(ctx, ref, actor, models.ClassificationLocked, models.ClassificationUpdatable, false)
}

// Restore moves a deleted-upstream record back to updatable and clears
// any review flag. Only this explicit action leaves deleted-upstream.
func (s *Service) Restore(ctx context.Context, ref models.RecordRef, actor string) (*models.CachedProduct, error) {
	return s.transition(ctx, ref, actor, models.ClassificationDeletedUpstream, models.ClassificationUpdatable, true)
}

func (s *Service) transition(ctx context.Context, ref models.RecordRef, actor string, from, to models.Classification, clearReview bool) (*models.CachedProduct, error) {
	cached, err := s.store.GetProduct(ctx, ref.ExternalID, ref.VariationID)
	if err != nil {
		return nil, err
	}
	if cached.Classification == to {
		return cached, nil
	}
	if cached.Classification != from {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, ref, cached.Classification)
	}

	prev := cached.Classification
	cached.Classification = to
	if clearReview {
		cached.ReviewFlagged = false
	}
	if err := s.store.SaveProduct(ctx, cached); err != nil {
		return nil, err
	}

	if err := s.trail.Append(ctx, &models.AuditEntry{
		RecordKind:   ref.Kind,
		ExternalID:   ref.ExternalID,
		VariationID:  ref.VariationID,
		FieldChanged: "classification",
		OldValue:     string(prev),
		NewValue:     string(to),
		Actor:        actor,
		ChangeSource: models.SourceManual,
		BatchID:      uuid.NewString(),
		Outcome:      models.OutcomeSuccess,
	}); err != nil {
		s.logger.Error("Audit append failed", zap.String("record", ref.String()), zap.Error(err))
	}
	return cached, nil
}

// AllocateDocumentNumber issues the next number of a document series.
func (s *Service) AllocateDocumentNumber(ctx context.Context, prefix string) (int64, error) {
	return s.alloc.Allocate(ctx, prefix)
}

// PeekDocumentNumber reports the last issued number without allocating.
func (s *Service) PeekDocumentNumber(ctx context.Context, prefix string) (int64, error) {
	return s.alloc.Peek(ctx, prefix)
}

// ExportOrders runs one export over the cached orders in scope.
func (s *Service) ExportOrders(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.ExportOrders(ctx, req)
}

// ExportHistory lists past export runs.
func (s *Service) ExportHistory(ctx context.Context, f store.ExportFilter) ([]models.ExportRun, error) {
	return s.store.ListExportRuns(ctx, f)
}

// Statistics summarizes cache state per record kind.
type Statistics struct {
	Products struct {
		Classifications map[models.Classification]int64 `json:"classifications"`
		SyncStatuses    map[models.SyncStatus]int64     `json:"sync_statuses"`
	} `json:"products"`
	Orders struct {
		Classifications map[models.Classification]int64 `json:"classifications"`
	} `json:"orders"`
}

// Stats tallies cached records per classification and sync status.
func (s *Service) Stats(ctx context.Context) (*Statistics, error) {
	var stats Statistics

	productClasses, err := s.store.ClassificationCounts(ctx, models.KindProduct)
	if err != nil {
		return nil, err
	}
	stats.Products.Classifications = productClasses

	productStatuses, err := s.store.SyncStatusCounts(ctx, models.KindProduct)
	if err != nil {
		return nil, err
	}
	stats.Products.SyncStatuses = productStatuses

	orderClasses, err := s.store.ClassificationCounts(ctx, models.KindOrder)
	if err != nil {
		return nil, err
	}
	stats.Orders.Classifications = orderClasses

	return &stats, nil
}
