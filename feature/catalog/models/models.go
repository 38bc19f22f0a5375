package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Classification is the operational state of a cached record.
type Classification string

const (
	// ClassificationUpdatable marks a record the sync may freely overwrite.
	ClassificationUpdatable Classification = "updatable"
	// ClassificationLocked marks a record under explicit administrative control.
	ClassificationLocked Classification = "locked"
	// ClassificationDeletedUpstream marks a record the source no longer reports.
	ClassificationDeletedUpstream Classification = "deleted_upstream"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationUpdatable, ClassificationLocked, ClassificationDeletedUpstream:
		return true
	}
	return false
}

// SyncStatus is the outcome of the most recent attempted write-back.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// ChangeSource records what kind of actor caused a mutation.
type ChangeSource string

const (
	SourceManual ChangeSource = "manual"
	SourceSync   ChangeSource = "sync"
	SourceImport ChangeSource = "import"
)

// Outcome is the final state of one audited mutation.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// RecordKind distinguishes the two cached record sets.
type RecordKind string

const (
	KindProduct RecordKind = "product"
	KindOrder   RecordKind = "order"
)

// RecordRef identifies one cached record. VariationID is zero for simple
// products and for orders.
type RecordRef struct {
	Kind        RecordKind `json:"kind"`
	ExternalID  int64      `json:"external_id"`
	VariationID int64      `json:"variation_id,omitempty"`
}

func (r RecordRef) String() string {
	if r.VariationID != 0 {
		return fmt.Sprintf("%s:%d/%d", r.Kind, r.ExternalID, r.VariationID)
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ExternalID)
}

// CachedProduct mirrors one product (or product variation) locally.
// A record is never physically deleted; disappearance upstream is a
// classification, not a removal.
type CachedProduct struct {
	ID uint `gorm:"primarykey" json:"-"`

	ProductID   int64 `gorm:"uniqueIndex:idx_product_variation" json:"product_id"`
	VariationID int64 `gorm:"uniqueIndex:idx_product_variation" json:"variation_id"`

	Name   string `gorm:"size:255" json:"name"`
	SKU    string `gorm:"size:128" json:"sku"`
	Status string `gorm:"size:32" json:"status"`

	// DisplayName is a local overlay; syncs never overwrite it.
	DisplayName string `gorm:"size:255" json:"display_name"`

	RegularPrice  decimal.Decimal `gorm:"type:decimal(12,2)" json:"regular_price"`
	SalePrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"sale_price"`
	StockQuantity *int            `json:"stock_quantity"`

	Classification Classification `gorm:"size:32;index" json:"classification"`
	ReviewFlagged  bool           `json:"review_flagged"`
	SyncStatus     SyncStatus     `gorm:"size:16" json:"sync_status"`

	LastSyncedAt *time.Time `json:"last_synced_at"`
	LastBatchID  string     `gorm:"size:36;index" json:"last_batch_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the record's stable identifier.
func (p *CachedProduct) Ref() RecordRef {
	return RecordRef{Kind: KindProduct, ExternalID: p.ProductID, VariationID: p.VariationID}
}

// OrderItem is one line item as stored in the cache.
type OrderItem struct {
	Name        string          `json:"name"`
	ProductID   int64           `json:"product_id"`
	VariationID int64           `json:"variation_id"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// CachedOrder mirrors one order locally.
type CachedOrder struct {
	ID uint `gorm:"primarykey" json:"-"`

	OrderID int64  `gorm:"uniqueIndex" json:"order_id"`
	Number  string `gorm:"size:64" json:"number"`
	Status  string `gorm:"size:32" json:"status"`

	Currency string          `gorm:"size:8" json:"currency"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`

	CustomerName  string `gorm:"size:255" json:"customer_name"`
	CustomerEmail string `gorm:"size:255" json:"customer_email"`
	CustomerPhone string `gorm:"size:64" json:"customer_phone"`
	CustomerCity  string `gorm:"size:128" json:"customer_city"`

	// LineItems holds the serialized item list; see Items / SetItems.
	LineItems string `gorm:"type:text" json:"-"`

	OrderDate time.Time `gorm:"index" json:"order_date"`

	Classification Classification `gorm:"size:32;index" json:"classification"`
	ReviewFlagged  bool           `json:"review_flagged"`
	SyncStatus     SyncStatus     `gorm:"size:16" json:"sync_status"`

	LastSyncedAt *time.Time `json:"last_synced_at"`
	LastBatchID  string     `gorm:"size:36;index" json:"last_batch_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the record's stable identifier.
func (o *CachedOrder) Ref() RecordRef {
	return RecordRef{Kind: KindOrder, ExternalID: o.OrderID}
}

// Items decodes the stored line items.
func (o *CachedOrder) Items() ([]OrderItem, error) {
	if o.LineItems == "" {
		return nil, nil
	}
	var items []OrderItem
	if err := json.Unmarshal([]byte(o.LineItems), &items); err != nil {
		return nil, fmt.Errorf("decode line items for order %d: %w", o.OrderID, err)
	}
	return items, nil
}

// SetItems encodes and stores the line items.
func (o *CachedOrder) SetItems(items []OrderItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode line items for order %d: %w", o.OrderID, err)
	}
	o.LineItems = string(b)
	return nil
}

// AuditEntry is one immutable record of a mutation. Rows are only ever
// appended; MarkOutcome on the store updates the outcome of a pending
// write-back and nothing else.
type AuditEntry struct {
	ID uint `gorm:"primarykey" json:"id"`

	RecordKind  RecordKind `gorm:"size:16;index:idx_audit_record" json:"record_kind"`
	ExternalID  int64      `gorm:"index:idx_audit_record" json:"external_id"`
	VariationID int64      `gorm:"index:idx_audit_record" json:"variation_id"`

	FieldChanged string `gorm:"size:64" json:"field_changed"`
	OldValue     string `gorm:"size:255" json:"old_value"`
	NewValue     string `gorm:"size:255" json:"new_value"`

	Actor        string       `gorm:"size:128;index" json:"actor"`
	ChangeSource ChangeSource `gorm:"size:16;index" json:"change_source"`
	BatchID      string       `gorm:"size:36;index" json:"batch_id"`

	Outcome   Outcome `gorm:"size:16" json:"outcome"`
	ErrorCode string  `gorm:"size:64" json:"error_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the identifier of the record the entry describes.
func (e *AuditEntry) Ref() RecordRef {
	return RecordRef{Kind: e.RecordKind, ExternalID: e.ExternalID, VariationID: e.VariationID}
}

// SequenceCounter tracks the last issued number for one document series.
type SequenceCounter struct {
	Prefix     string    `gorm:"primaryKey;size:64" json:"prefix"`
	LastIssued int64     `json:"last_issued"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ExportRun is one row in the export history ledger.
type ExportRun struct {
	ID uint `gorm:"primarykey" json:"id"`

	BatchID string `gorm:"size:36;uniqueIndex" json:"batch_id"`
	Prefix  string `gorm:"size:64" json:"prefix"`

	FirstNumber int64 `json:"first_number"`
	LastNumber  int64 `json:"last_number"`
	OrderCount  int   `json:"order_count"`

	ScopeFrom *time.Time `json:"scope_from"`
	ScopeTo   *time.Time `json:"scope_to"`

	ObjectKey string `gorm:"size:255" json:"object_key"`
	Actor     string `gorm:"size:128" json:"actor"`

	CreatedAt time.Time `json:"created_at"`
}
