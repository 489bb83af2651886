package models_test

import (
	"testing"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBase(t *testing.T) {
	tests := []struct {
		name       string
		in         models.ConversionInput
		wantQty    string
		wantFactor string
	}{
		{
			name: "boxes of strips",
			in: models.ConversionInput{
				Quantity: dec("5"), QuantityUom: "box",
				BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
				TabletsPerStrip: decPtr("10"), StripsPerBox: decPtr("5"),
			},
			wantQty: "250", wantFactor: "50",
		},
		{
			name: "selling unit uses units per pack",
			in: models.ConversionInput{
				Quantity: dec("3"), QuantityUom: "Strip",
				BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
			},
			wantQty: "30", wantFactor: "10",
		},
		{
			name: "base unit",
			in: models.ConversionInput{
				Quantity: dec("7"), QuantityUom: "tablet",
				BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
			},
			wantQty: "7", wantFactor: "1",
		},
		{
			name: "strips of a box-sold product",
			in: models.ConversionInput{
				Quantity: dec("2"), QuantityUom: "strips",
				BaseUom: "tab", SellingUom: "box", UnitsPerPack: dec("100"),
				TabletsPerStrip: decPtr("10"),
			},
			wantQty: "20", wantFactor: "10",
		},
		{
			name: "fractional quantity",
			in: models.ConversionInput{
				Quantity: dec("1.5"), QuantityUom: "bottle",
				BaseUom: "ml", SellingUom: "bottle", UnitsPerPack: dec("100"),
			},
			wantQty: "150", wantFactor: "100",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, factor, err := models.ConvertToBase(tt.in)
			require.NoError(t, err)
			assert.True(t, qty.Equal(dec(tt.wantQty)), "qty %s", qty)
			assert.True(t, factor.Equal(dec(tt.wantFactor)), "factor %s", factor)
		})
	}
}

func TestConvertToBaseErrors(t *testing.T) {
	t.Run("box without packaging even for zero", func(t *testing.T) {
		_, _, err := models.ConvertToBase(models.ConversionInput{
			Quantity: decimal.Zero, QuantityUom: "box",
			BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
		})
		assert.ErrorIs(t, err, models.ErrMissingPackagingInfo)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
	t.Run("strip without tablets per strip", func(t *testing.T) {
		_, _, err := models.ConvertToBase(models.ConversionInput{
			Quantity: dec("1"), QuantityUom: "strip",
			BaseUom: "tablet", SellingUom: "box", UnitsPerPack: dec("100"),
		})
		assert.ErrorIs(t, err, models.ErrMissingPackagingInfo)
	})
	t.Run("negative quantity", func(t *testing.T) {
		_, _, err := models.ConvertToBase(models.ConversionInput{
			Quantity: dec("-1"), QuantityUom: "tablet",
			BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
		})
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	})
	t.Run("unknown unit", func(t *testing.T) {
		_, _, err := models.ConvertToBase(models.ConversionInput{
			Quantity: dec("1"), QuantityUom: "ml",
			BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: dec("10"),
		})
		assert.ErrorIs(t, err, models.ErrUnsupportedConversion)
	})
	t.Run("zero units per pack", func(t *testing.T) {
		_, _, err := models.ConvertToBase(models.ConversionInput{
			Quantity: dec("1"), QuantityUom: "strip",
			BaseUom: "tablet", SellingUom: "strip", UnitsPerPack: decimal.Zero,
		})
		assert.ErrorIs(t, err, models.ErrInvalidConversionFactor)
	})
}

func TestProductConversionFallsBackToUnitsPerPack(t *testing.T) {
	p := &models.Product{BaseUnit: "tablet", PackUnit: "strip", UnitsPerPack: dec("15")}

	qty, _, err := models.ConvertToBase(p.ProductConversion(dec("2"), "strips"))
	require.NoError(t, err)
	assert.True(t, qty.Equal(dec("30")), "qty %s", qty)

	line := &models.GoodsReceiptLine{Quantity: dec("2"), QuantityUom: "strips", TabletsPerStrip: decPtr("12")}
	qty, _, err = models.ConvertToBase(line.ConversionFor(p))
	require.NoError(t, err)
	assert.True(t, qty.Equal(dec("24")), "line packaging wins, got %s", qty)
}
