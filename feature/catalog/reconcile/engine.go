package reconcile

import (
	"fmt"
	"strconv"
	"time"

	"commerce-sync/core/utils"
	"commerce-sync/core/woo"
	"commerce-sync/feature/catalog/models"

	"github.com/shopspring/decimal"
)

// FieldChange describes one field overwritten during reconciliation.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// NextClassification decides a record's state from its previous
// classification and whether the latest full fetch reported it.
//
// The decision depends only on these two inputs, so reconciliation is
// confluent regardless of the order records are processed in.
func NextClassification(prev models.Classification, present bool) (next models.Classification, flagReview bool) {
	if present {
		switch prev {
		case models.ClassificationLocked:
			// An explicit administrative lock is never cleared by a sync.
			return models.ClassificationLocked, false
		default:
			return models.ClassificationUpdatable, false
		}
	}

	switch prev {
	case models.ClassificationLocked:
		// Locked records are under deliberate local control; absence
		// upstream is flagged for manual review, never auto-demoted.
		return models.ClassificationLocked, true
	case models.ClassificationDeletedUpstream:
		return models.ClassificationDeletedUpstream, false
	default:
		return models.ClassificationDeletedUpstream, false
	}
}

// ProductSnapshot holds source product fields normalized for the cache.
type ProductSnapshot struct {
	ProductID   int64
	VariationID int64

	Name   string
	SKU    string
	Status string

	RegularPrice  decimal.Decimal
	SalePrice     decimal.Decimal
	StockQuantity *int
}

// SnapshotProduct normalizes a wire product.
func SnapshotProduct(p woo.Product) (ProductSnapshot, error) {
	regular, err := utils.ParseDecimal(p.RegularPrice)
	if err != nil {
		return ProductSnapshot{}, fmt.Errorf("product %d: %w", p.ID, err)
	}
	sale, err := utils.ParseDecimal(p.SalePrice)
	if err != nil {
		return ProductSnapshot{}, fmt.Errorf("product %d: %w", p.ID, err)
	}
	return ProductSnapshot{
		ProductID:     p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Status:        p.Status,
		RegularPrice:  regular,
		SalePrice:     sale,
		StockQuantity: p.StockQuantity,
	}, nil
}

// SnapshotVariation normalizes a wire variation of the given parent.
// Variations carry no name of their own; the parent's is used.
func SnapshotVariation(parent woo.Product, v woo.Variation) (ProductSnapshot, error) {
	regular, err := utils.ParseDecimal(v.RegularPrice)
	if err != nil {
		return ProductSnapshot{}, fmt.Errorf("variation %d/%d: %w", parent.ID, v.ID, err)
	}
	sale, err := utils.ParseDecimal(v.SalePrice)
	if err != nil {
		return ProductSnapshot{}, fmt.Errorf("variation %d/%d: %w", parent.ID, v.ID, err)
	}
	return ProductSnapshot{
		ProductID:     parent.ID,
		VariationID:   v.ID,
		Name:          parent.Name,
		SKU:           v.SKU,
		Status:        v.Status,
		RegularPrice:  regular,
		SalePrice:     sale,
		StockQuantity: v.StockQuantity,
	}, nil
}

// ApplyProduct overwrites the cached record's raw fields from the source
// snapshot and reports what changed. The source is authoritative for raw
// fields; local overlay fields (display name, classification, review
// flag) are left alone. Source values are stored as-is, negative stock
// included.
func ApplyProduct(cached *models.CachedProduct, snap ProductSnapshot) []FieldChange {
	var changes []FieldChange

	if cached.Name != snap.Name {
		changes = append(changes, FieldChange{"name", cached.Name, snap.Name})
		cached.Name = snap.Name
	}
	if cached.SKU != snap.SKU {
		changes = append(changes, FieldChange{"sku", cached.SKU, snap.SKU})
		cached.SKU = snap.SKU
	}
	if cached.Status != snap.Status {
		changes = append(changes, FieldChange{"status", cached.Status, snap.Status})
		cached.Status = snap.Status
	}
	if !cached.RegularPrice.Equal(snap.RegularPrice) {
		changes = append(changes, FieldChange{"regular_price", cached.RegularPrice.String(), snap.RegularPrice.String()})
		cached.RegularPrice = snap.RegularPrice
	}
	if !cached.SalePrice.Equal(snap.SalePrice) {
		changes = append(changes, FieldChange{"sale_price", cached.SalePrice.String(), snap.SalePrice.String()})
		cached.SalePrice = snap.SalePrice
	}
	if !intPtrEqual(cached.StockQuantity, snap.StockQuantity) {
		changes = append(changes, FieldChange{"stock_quantity", fmtIntPtr(cached.StockQuantity), fmtIntPtr(snap.StockQuantity)})
		cached.StockQuantity = snap.StockQuantity
	}

	return changes
}

// OrderSnapshot holds source order fields normalized for the cache.
type OrderSnapshot struct {
	OrderID int64
	Number  string
	Status  string

	Currency string
	Total    decimal.Decimal

	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	CustomerCity  string

	OrderDate time.Time
	Items     []models.OrderItem
}

// orderDateFormats covers sources that omit the timezone suffix.
var orderDateFormats = []string{time.RFC3339, "2006-01-02T15:04:05"}

// SnapshotOrder normalizes a wire order.
func SnapshotOrder(o woo.Order) (OrderSnapshot, error) {
	total, err := utils.ParseDecimal(o.Total)
	if err != nil {
		return OrderSnapshot{}, fmt.Errorf("order %d: %w", o.ID, err)
	}

	var orderDate time.Time
	if o.DateCreated != "" {
		var parseErr error
		for _, format := range orderDateFormats {
			orderDate, parseErr = time.Parse(format, o.DateCreated)
			if parseErr == nil {
				break
			}
		}
		if parseErr != nil {
			return OrderSnapshot{}, fmt.Errorf("order %d: invalid date %q", o.ID, o.DateCreated)
		}
	}

	items := make([]models.OrderItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		itemTotal, err := utils.ParseDecimal(li.Total)
		if err != nil {
			return OrderSnapshot{}, fmt.Errorf("order %d item %d: %w", o.ID, li.ID, err)
		}
		items = append(items, models.OrderItem{
			Name:        li.Name,
			ProductID:   li.ProductID,
			VariationID: li.VariationID,
			SKU:         li.SKU,
			Quantity:    li.Quantity,
			Total:       itemTotal,
		})
	}

	name := o.Billing.FirstName
	if o.Billing.LastName != "" {
		if name != "" {
			name += " "
		}
		name += o.Billing.LastName
	}

	return OrderSnapshot{
		OrderID:       o.ID,
		Number:        o.Number,
		Status:        o.Status,
		Currency:      o.Currency,
		Total:         total,
		CustomerName:  name,
		CustomerEmail: o.Billing.Email,
		CustomerPhone: o.Billing.Phone,
		CustomerCity:  o.Billing.City,
		OrderDate:     orderDate,
		Items:         items,
	}, nil
}

// ApplyOrder overwrites the cached order's raw fields from the source
// snapshot and reports what changed.
func ApplyOrder(cached *models.CachedOrder, snap OrderSnapshot) ([]FieldChange, error) {
	var changes []FieldChange

	if cached.Number != snap.Number {
		changes = append(changes, FieldChange{"number", cached.Number, snap.Number})
		cached.Number = snap.Number
	}
	if cached.Status != snap.Status {
		changes = append(changes, FieldChange{"status", cached.Status, snap.Status})
		cached.Status = snap.Status
	}
	if cached.Currency != snap.Currency {
		changes = append(changes, FieldChange{"currency", cached.Currency, snap.Currency})
		cached.Currency = snap.Currency
	}
	if !cached.Total.Equal(snap.Total) {
		changes = append(changes, FieldChange{"total", cached.Total.String(), snap.Total.String()})
		cached.Total = snap.Total
	}
	if cached.CustomerName != snap.CustomerName {
		changes = append(changes, FieldChange{"customer_name", cached.CustomerName, snap.CustomerName})
		cached.CustomerName = snap.CustomerName
	}
	if cached.CustomerEmail != snap.CustomerEmail {
		changes = append(changes, FieldChange{"customer_email", cached.CustomerEmail, snap.CustomerEmail})
		cached.CustomerEmail = snap.CustomerEmail
	}
	if cached.CustomerPhone != snap.CustomerPhone {
		changes = append(changes, FieldChange{"customer_phone", cached.CustomerPhone, snap.CustomerPhone})
		cached.CustomerPhone = snap.CustomerPhone
	}
	if cached.CustomerCity != snap.CustomerCity {
		changes = append(changes, FieldChange{"customer_city", cached.CustomerCity, snap.CustomerCity})
		cached.CustomerCity = snap.CustomerCity
	}
	if !cached.OrderDate.Equal(snap.OrderDate) {
		changes = append(changes, FieldChange{"order_date", formatTime(cached.OrderDate), formatTime(snap.OrderDate)})
		cached.OrderDate = snap.OrderDate
	}

	prev := cached.LineItems
	if err := cached.SetItems(snap.Items); err != nil {
		return nil, err
	}
	if prev != cached.LineItems {
		changes = append(changes, FieldChange{"line_items", prev, cached.LineItems})
	}

	return changes, nil
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
