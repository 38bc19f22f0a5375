package reconcile

import (
	"testing"

	"commerce-sync/feature/catalog/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidateEditRejectsNegativeStock(t *testing.T) {
	cached := &models.CachedProduct{ProductID: 100}
	minusOne := -1

	err := ValidateEdit(cached, Edit{StockQuantity: &minusOne})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "stock_quantity", vErr.Field)
}

func TestValidateEditRejectsSaleAboveRegular(t *testing.T) {
	cached := &models.CachedProduct{
		ProductID:    100,
		RegularPrice: decimal.RequireFromString("50.00"),
	}

	err := ValidateEdit(cached, Edit{SalePrice: dec("60.00")})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "sale_price", vErr.Field)
}

func TestValidateEditChecksPostEditState(t *testing.T) {
	// Lowering the regular price below the existing sale price is just as
	// invalid as raising the sale price.
	cached := &models.CachedProduct{
		ProductID:    100,
		RegularPrice: decimal.RequireFromString("50.00"),
		SalePrice:    decimal.RequireFromString("40.00"),
	}

	err := ValidateEdit(cached, Edit{RegularPrice: dec("30.00")})
	assert.Error(t, err)

	err = ValidateEdit(cached, Edit{RegularPrice: dec("45.00")})
	assert.NoError(t, err)
}

func TestValidateEditAllowsZeroSalePrice(t *testing.T) {
	cached := &models.CachedProduct{
		ProductID:    100,
		RegularPrice: decimal.RequireFromString("50.00"),
		SalePrice:    decimal.RequireFromString("40.00"),
	}

	// Zero clears the sale; it is not compared against the regular price.
	err := ValidateEdit(cached, Edit{SalePrice: dec("0")})
	assert.NoError(t, err)
}

func TestValidateEditRejectsNegativePrices(t *testing.T) {
	cached := &models.CachedProduct{ProductID: 100}

	assert.Error(t, ValidateEdit(cached, Edit{RegularPrice: dec("-1")}))
	assert.Error(t, ValidateEdit(cached, Edit{SalePrice: dec("-1")}))
}

func TestApplyEdit(t *testing.T) {
	stock := 3
	name := "Chaise en chêne"
	cached := &models.CachedProduct{
		ProductID:    100,
		RegularPrice: decimal.RequireFromString("50.00"),
	}

	changes := ApplyEdit(cached, Edit{
		RegularPrice:  dec("55.00"),
		StockQuantity: &stock,
		DisplayName:   &name,
	})

	require.Len(t, changes, 3)
	assert.True(t, cached.RegularPrice.Equal(decimal.RequireFromString("55.00")))
	assert.Equal(t, 3, *cached.StockQuantity)
	assert.Equal(t, name, cached.DisplayName)

	// Applying the same edit again changes nothing.
	assert.Empty(t, ApplyEdit(cached, Edit{
		RegularPrice:  dec("55.00"),
		StockQuantity: &stock,
		DisplayName:   &name,
	}))
}
