package reconcile

import (
	"fmt"
	"strconv"

	"commerce-sync/feature/catalog/models"

	"github.com/shopspring/decimal"
)

// ValidationError rejects a single record's edit. It never fails a whole
// batch; callers skip the record and report the rule that was violated.
type ValidationError struct {
	Ref   models.RecordRef
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s: %s", e.Ref, e.Field, e.Rule)
}

// Edit is a locally originated change to the writable product fields.
// Nil fields are left untouched.
type Edit struct {
	RegularPrice  *decimal.Decimal
	SalePrice     *decimal.Decimal
	StockQuantity *int
	DisplayName   *string
}

// IsEmpty reports whether the edit changes nothing.
func (e Edit) IsEmpty() bool {
	return e.RegularPrice == nil && e.SalePrice == nil && e.StockQuantity == nil && e.DisplayName == nil
}

// ValidateEdit checks a local edit against the business rules before it
// touches the cache or the source. Values arriving from the source are
// exempt: the source is authoritative for its own state.
func ValidateEdit(cached *models.CachedProduct, edit Edit) error {
	ref := cached.Ref()

	if edit.StockQuantity != nil && *edit.StockQuantity < 0 {
		return &ValidationError{Ref: ref, Field: "stock_quantity", Rule: "must not be negative"}
	}
	if edit.RegularPrice != nil && edit.RegularPrice.IsNegative() {
		return &ValidationError{Ref: ref, Field: "regular_price", Rule: "must not be negative"}
	}
	if edit.SalePrice != nil && edit.SalePrice.IsNegative() {
		return &ValidationError{Ref: ref, Field: "sale_price", Rule: "must not be negative"}
	}

	// The sale price cap applies to the post-edit state of the record.
	regular := cached.RegularPrice
	if edit.RegularPrice != nil {
		regular = *edit.RegularPrice
	}
	sale := cached.SalePrice
	if edit.SalePrice != nil {
		sale = *edit.SalePrice
	}
	if !sale.IsZero() && sale.GreaterThan(regular) {
		return &ValidationError{Ref: ref, Field: "sale_price", Rule: "must not exceed regular price"}
	}

	return nil
}

// ApplyEdit writes a validated edit into the cached record and reports
// what changed.
func ApplyEdit(cached *models.CachedProduct, edit Edit) []FieldChange {
	var changes []FieldChange

	if edit.RegularPrice != nil && !cached.RegularPrice.Equal(*edit.RegularPrice) {
		changes = append(changes, FieldChange{"regular_price", cached.RegularPrice.String(), edit.RegularPrice.String()})
		cached.RegularPrice = *edit.RegularPrice
	}
	if edit.SalePrice != nil && !cached.SalePrice.Equal(*edit.SalePrice) {
		changes = append(changes, FieldChange{"sale_price", cached.SalePrice.String(), edit.SalePrice.String()})
		cached.SalePrice = *edit.SalePrice
	}
	if edit.StockQuantity != nil && !intPtrEqual(cached.StockQuantity, edit.StockQuantity) {
		changes = append(changes, FieldChange{"stock_quantity", fmtIntPtr(cached.StockQuantity), strconv.Itoa(*edit.StockQuantity)})
		v := *edit.StockQuantity
		cached.StockQuantity = &v
	}
	if edit.DisplayName != nil && cached.DisplayName != *edit.DisplayName {
		changes = append(changes, FieldChange{"display_name", cached.DisplayName, *edit.DisplayName})
		cached.DisplayName = *edit.DisplayName
	}

	return changes
}
