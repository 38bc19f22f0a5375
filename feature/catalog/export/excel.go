package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-sync/core/storage"
	"commerce-sync/feature/catalog/models"
	"commerce-sync/feature/catalog/store"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrNoRecords is returned when the export scope matches nothing; no
// document numbers are allocated in that case.
var ErrNoRecords = errors.New("no records in export scope")

const (
	ordersSheet  = "Orders"
	summarySheet = "Item Summary"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Exporter turns a range of cached orders into a numbered spreadsheet,
// uploads it and records the run in the export ledger.
type Exporter struct {
	store   *store.Store
	trail   *store.AuditTrail
	alloc   *store.Allocator
	storage storage.Client
	bucket  string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an exporter. storage may be nil, in which case artifacts
// are generated but not uploaded.
func New(st *store.Store, trail *store.AuditTrail, alloc *store.Allocator, stor storage.Client, bucket string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		store:   st,
		trail:   trail,
		alloc:   alloc,
		storage: stor,
		bucket:  bucket,
		logger:  logger,
		now:     time.Now,
	}
}

// Request bounds one export run.
type Request struct {
	Prefix string
	From   time.Time
	To     time.Time
	Actor  string
}

// Result is the outcome of one export run.
type Result struct {
	Run  models.ExportRun
	Data []byte
}

// DocumentNumber renders an allocated number in its document series.
func DocumentNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s%05d", prefix, n)
}

// ExportOrders builds the workbook for every cached order in the range,
// allocating one document number per order. The allocated range, scope
// and artifact location are recorded as one export ledger row sharing a
// batch id with the run's audit entry.
func (e *Exporter) ExportOrders(ctx context.Context, req Request) (*Result, error) {
	if req.Prefix == "" {
		return nil, fmt.Errorf("export: empty document prefix")
	}

	orders, err := e.store.OrdersBetween(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNoRecords
	}

	batchID := uuid.NewString()

	first, last, err := e.alloc.AllocateRange(ctx, req.Prefix, len(orders))
	if err != nil {
		return nil, err
	}

	data, err := buildWorkbook(req.Prefix, first, orders)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("orders/%s/%s.xlsx", e.now().UTC().Format("2006-01"), batchID)
	if e.storage != nil {
		_, err = e.storage.PutObject(ctx, e.bucket, objectKey,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: xlsxContentType})
		if err != nil {
			return nil, fmt.Errorf("upload export artifact: %w", err)
		}
	}

	run := models.ExportRun{
		BatchID:     batchID,
		Prefix:      req.Prefix,
		FirstNumber: first,
		LastNumber:  last,
		OrderCount:  len(orders),
		ObjectKey:   objectKey,
		Actor:       req.Actor,
	}
	if !req.From.IsZero() {
		from := req.From
		run.ScopeFrom = &from
	}
	if !req.To.IsZero() {
		to := req.To
		run.ScopeTo = &to
	}
	if err := e.store.CreateExportRun(ctx, &run); err != nil {
		return nil, err
	}

	if err := e.trail.Append(ctx, &models.AuditEntry{
		RecordKind:   models.KindOrder,
		FieldChanged: "export",
		NewValue:     objectKey,
		Actor:        req.Actor,
		ChangeSource: models.SourceManual,
		BatchID:      batchID,
		Outcome:      models.OutcomeSuccess,
	}); err != nil {
		e.logger.Error("Audit append failed for export run",
			zap.String("batch_id", batchID), zap.Error(err))
	}

	e.logger.Info("Export completed",
		zap.String("batch_id", batchID),
		zap.Int("orders", len(orders)),
		zap.String("range", fmt.Sprintf("%s..%s", DocumentNumber(req.Prefix, first), DocumentNumber(req.Prefix, last))),
	)
	return &Result{Run: run, Data: data}, nil
}

// itemKey groups line items for the summary sheet.
type itemKey struct {
	ProductID   int64
	VariationID int64
	Name        string
}

func buildWorkbook(prefix string, firstNumber int64, orders []models.CachedOrder) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ordersSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	// Orders sheet headers
	f.SetCellValue(ordersSheet, "A1", "Document No")
	f.SetCellValue(ordersSheet, "B1", "Order No")
	f.SetCellValue(ordersSheet, "C1", "Date")
	f.SetCellValue(ordersSheet, "D1", "Customer")
	f.SetCellValue(ordersSheet, "E1", "Email")
	f.SetCellValue(ordersSheet, "F1", "City")
	f.SetCellValue(ordersSheet, "G1", "Status")
	f.SetCellValue(ordersSheet, "H1", "Currency")
	f.SetCellValue(ordersSheet, "I1", "Total")

	type aggregate struct {
		SKU      string
		Quantity int
		Total    decimal.Decimal
	}
	summary := make(map[itemKey]*aggregate)
	var keys []itemKey

	for i, ord := range orders {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(ordersSheet, "A"+row, DocumentNumber(prefix, firstNumber+int64(i)))
		f.SetCellValue(ordersSheet, "B"+row, ord.Number)
		f.SetCellValue(ordersSheet, "C"+row, ord.OrderDate.Format("2006-01-02"))
		f.SetCellValue(ordersSheet, "D"+row, ord.CustomerName)
		f.SetCellValue(ordersSheet, "E"+row, ord.CustomerEmail)
		f.SetCellValue(ordersSheet, "F"+row, ord.CustomerCity)
		f.SetCellValue(ordersSheet, "G"+row, ord.Status)
		f.SetCellValue(ordersSheet, "H"+row, ord.Currency)
		f.SetCellValue(ordersSheet, "I"+row, ord.Total.InexactFloat64())

		items, err := ord.Items()
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			key := itemKey{ProductID: item.ProductID, VariationID: item.VariationID, Name: item.Name}
			agg, ok := summary[key]
			if !ok {
				agg = &aggregate{SKU: item.SKU}
				summary[key] = agg
				keys = append(keys, key)
			}
			agg.Quantity += item.Quantity
			agg.Total = agg.Total.Add(item.Total)
		}
	}

	// Item summary headers
	f.SetCellValue(summarySheet, "A1", "Product")
	f.SetCellValue(summarySheet, "B1", "SKU")
	f.SetCellValue(summarySheet, "C1", "Quantity")
	f.SetCellValue(summarySheet, "D1", "Total")

	for i, key := range keys {
		row := fmt.Sprint(i + 2)
		agg := summary[key]
		f.SetCellValue(summarySheet, "A"+row, key.Name)
		f.SetCellValue(summarySheet, "B"+row, agg.SKU)
		f.SetCellValue(summarySheet, "C"+row, agg.Quantity)
		f.SetCellValue(summarySheet, "D"+row, agg.Total.InexactFloat64())
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
