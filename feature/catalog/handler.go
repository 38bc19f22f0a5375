package catalog

import (
	"errors"
	"time"

	"commerce-sync/core/logger"
	"commerce-sync/feature/catalog/export"
	"commerce-sync/feature/catalog/models"
	"commerce-sync/feature/catalog/reconcile"
	"commerce-sync/feature/catalog/store"
	syncer "commerce-sync/feature/catalog/sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the catalog.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the catalog routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/catalog")

	group.Post("/sync", h.HandleTriggerSync)

	group.Get("/products", h.HandleListProducts)
	group.Get("/products/:id", h.HandleGetProduct)
	group.Patch("/products/:id", h.HandleEditProduct)
	group.Get("/products/:id/history", h.HandleProductHistory)
	group.Post("/products/:id/lock", h.HandleLock)
	group.Post("/products/:id/unlock", h.HandleUnlock)
	group.Post("/products/:id/restore", h.HandleRestore)

	group.Post("/bulk/preview", h.HandleBulkPreview)
	group.Post("/bulk/apply", h.HandleBulkApply)
	group.Post("/import", h.HandleImport)

	group.Get("/activity", h.HandleActivity)

	group.Post("/sequences/allocate", h.HandleAllocate)
	group.Get("/sequences/peek", h.HandlePeek)

	group.Post("/exports", h.HandleExport)
	group.Get("/exports", h.HandleExportHistory)

	group.Get("/stats", h.HandleStats)
}

func actorFrom(c *fiber.Ctx) string {
	if actor, ok := c.Locals("actor").(string); ok && actor != "" {
		return actor
	}
	return "api"
}

// fail maps service errors onto HTTP responses.
func (h *Handler) fail(c *fiber.Ctx, l *zap.Logger, err error) error {
	var vErr *reconcile.ValidationError
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": vErr.Error(),
			"ref":   vErr.Ref,
			"field": vErr.Field,
			"rule":  vErr.Rule,
		})
	case errors.Is(err, syncer.ErrRunInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, export.ErrNoRecords):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		l.Error("Catalog request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

type syncRequest struct {
	Kind string `json:"kind" validate:"required,oneof=product order"`
	From string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// HandleTriggerSync starts one batch run and returns its summary.
func (h *Handler) HandleTriggerSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	scope := syncer.Scope{Kind: models.RecordKind(req.Kind)}
	if req.From != "" {
		scope.From, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		to, _ := time.Parse("2006-01-02", req.To)
		// Include the whole end day.
		scope.To = to.AddDate(0, 0, 1).Add(-time.Second)
	}

	summary, err := h.service.TriggerSync(c.Context(), scope)
	if err != nil {
		if summary != nil {
			// A failed run still reports its partial summary.
			return c.Status(fiber.StatusBadGateway).JSON(summary)
		}
		return h.fail(c, l, err)
	}
	return c.JSON(summary)
}

// HandleListProducts returns cached products matching the query filters.
func (h *Handler) HandleListProducts(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	filter := store.ProductFilter{
		Classification: models.Classification(c.Query("classification")),
		SyncStatus:     models.SyncStatus(c.Query("sync_status")),
		Search:         c.Query("search"),
		Limit:          c.QueryInt("limit", 100),
		Offset:         c.QueryInt("offset", 0),
	}
	if c.Query("review_flagged") != "" {
		flagged := c.QueryBool("review_flagged")
		filter.ReviewFlagged = &flagged
	}

	products, err := h.service.ListProducts(c.Context(), filter)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(products)
}

func productRef(c *fiber.Ctx) (models.RecordRef, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return models.RecordRef{}, errors.New("invalid product id")
	}
	return models.RecordRef{
		Kind:        models.KindProduct,
		ExternalID:  int64(id),
		VariationID: int64(c.QueryInt("variation_id", 0)),
	}, nil
}

// HandleGetProduct returns one cached product.
func (h *Handler) HandleGetProduct(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	ref, err := productRef(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	product, err := h.service.GetProduct(c.Context(), ref)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(product)
}

type editRequest struct {
	RegularPrice  *string `json:"regular_price"`
	SalePrice     *string `json:"sale_price"`
	StockQuantity *int    `json:"stock_quantity"`
	DisplayName   *string `json:"display_name"`
}

func (r editRequest) toEdit() (reconcile.Edit, error) {
	var edit reconcile.Edit
	if r.RegularPrice != nil {
		d, err := decimal.NewFromString(*r.RegularPrice)
		if err != nil {
			return edit, errors.New("invalid regular_price")
		}
		edit.RegularPrice = &d
	}
	if r.SalePrice != nil {
		d, err := decimal.NewFromString(*r.SalePrice)
		if err != nil {
			return edit, errors.New("invalid sale_price")
		}
		edit.SalePrice = &d
	}
	edit.StockQuantity = r.StockQuantity
	edit.DisplayName = r.DisplayName
	return edit, nil
}

// HandleEditProduct applies a manual edit with source write-back. A
// failed write-back returns the locally updated record with HTTP 502 so
// the discrepancy is visible and retryable.
func (h *Handler) HandleEditProduct(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	ref, err := productRef(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req editRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	edit, err := req.toEdit()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	product, err := h.service.EditRecord(c.Context(), ref, edit, actorFrom(c))
	if err != nil {
		var wbErr *WriteBackError
		if errors.As(err, &wbErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"record": product,
				"error":  wbErr.Error(),
			})
		}
		return h.fail(c, l, err)
	}
	return c.JSON(product)
}

// HandleProductHistory returns the audit trail of one product.
func (h *Handler) HandleProductHistory(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	ref, err := productRef(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	entries, err := h.service.History(c.Context(), ref)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(entries)
}

func (h *Handler) handleTransition(c *fiber.Ctx, fn func(*fiber.Ctx, models.RecordRef) (*models.CachedProduct, error)) error {
	l := logger.WithRayID(h.service.logger, c)

	ref, err := productRef(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	product, err := fn(c, ref)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(product)
}

// HandleLock places a product under administrative lock.
func (h *Handler) HandleLock(c *fiber.Ctx) error {
	return h.handleTransition(c, func(c *fiber.Ctx, ref models.RecordRef) (*models.CachedProduct, error) {
		return h.service.Lock(c.Context(), ref, actorFrom(c))
	})
}

// HandleUnlock releases an administrative lock.
func (h *Handler) HandleUnlock(c *fiber.Ctx) error {
	return h.handleTransition(c, func(c *fiber.Ctx, ref models.RecordRef) (*models.CachedProduct, error) {
		return h.service.Unlock(c.Context(), ref, actorFrom(c))
	})
}

// HandleRestore brings a deleted-upstream product back under sync control.
func (h *Handler) HandleRestore(c *fiber.Ctx) error {
	return h.handleTransition(c, func(c *fiber.Ctx, ref models.RecordRef) (*models.CachedProduct, error) {
		return h.service.Restore(c.Context(), ref, actorFrom(c))
	})
}

type bulkItemRequest struct {
	ProductID              int64       `json:"product_id" validate:"required,gt=0"`
	VariationID            int64       `json:"variation_id"`
	ExpectedClassification string      `json:"expected_classification" validate:"omitempty,oneof=updatable locked deleted_upstream"`
	Edit                   editRequest `json:"edit"`
}

type bulkRequest struct {
	Items []bulkItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) parseBulk(c *fiber.Ctx) ([]BulkItem, error) {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return nil, err
	}

	items := make([]BulkItem, 0, len(req.Items))
	for _, item := range req.Items {
		edit, err := item.Edit.toEdit()
		if err != nil {
			return nil, err
		}
		items = append(items, BulkItem{
			Ref: models.RecordRef{
				Kind:        models.KindProduct,
				ExternalID:  item.ProductID,
				VariationID: item.VariationID,
			},
			Edit:                   edit,
			ExpectedClassification: models.Classification(item.ExpectedClassification),
		})
	}
	return items, nil
}

// HandleBulkPreview validates a bulk edit without mutating anything.
func (h *Handler) HandleBulkPreview(c *fiber.Ctx) error {
	items, err := h.parseBulk(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(h.service.PreviewBulkEdit(c.Context(), items))
}

// HandleBulkApply applies a previously previewed bulk edit.
func (h *Handler) HandleBulkApply(c *fiber.Ctx) error {
	items, err := h.parseBulk(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	batchID, results := h.service.ApplyBulkEdit(c.Context(), items, actorFrom(c), models.SourceManual)
	return c.JSON(fiber.Map{"batch_id": batchID, "results": results})
}

// HandleImport applies product edits from an uploaded spreadsheet.
func (h *Handler) HandleImport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file upload"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.fail(c, l, err)
	}
	defer file.Close()

	batchID, results, err := h.service.ImportEdits(c.Context(), file, actorFrom(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"batch_id": batchID, "results": results})
}

// HandleActivity returns audit entries in a time range.
func (h *Handler) HandleActivity(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		from, _ = time.Parse("2006-01-02", v)
	}
	if v := c.Query("to"); v != "" {
		parsed, _ := time.Parse("2006-01-02", v)
		to = parsed.AddDate(0, 0, 1).Add(-time.Second)
	}

	entries, err := h.service.Activity(c.Context(), from, to, store.AuditFilter{
		Actor:  c.Query("actor"),
		Source: models.ChangeSource(c.Query("source")),
	})
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(entries)
}

type allocateRequest struct {
	Prefix string `json:"prefix" validate:"required"`
}

// HandleAllocate issues the next document number for a series.
func (h *Handler) HandleAllocate(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req allocateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	number, err := h.service.AllocateDocumentNumber(c.Context(), req.Prefix)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(fiber.Map{
		"prefix":   req.Prefix,
		"number":   number,
		"document": export.DocumentNumber(req.Prefix, number),
	})
}

// HandlePeek reports the last issued number of a series without allocating.
func (h *Handler) HandlePeek(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	prefix := c.Query("prefix")
	if prefix == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing prefix"})
	}

	last, err := h.service.PeekDocumentNumber(c.Context(), prefix)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(fiber.Map{"prefix": prefix, "last_issued": last, "next": last + 1})
}

type exportRequest struct {
	Prefix string `json:"prefix" validate:"required"`
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// HandleExport generates a numbered order spreadsheet for the scope.
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	exportReq := export.Request{Prefix: req.Prefix, Actor: actorFrom(c)}
	if req.From != "" {
		exportReq.From, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		to, _ := time.Parse("2006-01-02", req.To)
		exportReq.To = to.AddDate(0, 0, 1).Add(-time.Second)
	}

	result, err := h.service.ExportOrders(c.Context(), exportReq)
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(result.Run)
}

// HandleExportHistory lists past export runs.
func (h *Handler) HandleExportHistory(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	runs, err := h.service.ExportHistory(c.Context(), store.ExportFilter{
		Prefix: c.Query("prefix"),
		Actor:  c.Query("actor"),
		Limit:  c.QueryInt("limit", 50),
	})
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(runs)
}

// HandleStats summarizes cache state.
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	stats, err := h.service.Stats(c.Context())
	if err != nil {
		return h.fail(c, l, err)
	}
	return c.JSON(stats)
}
