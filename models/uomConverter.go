package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	stripAliases  = map[string]bool{"strip": true, "strips": true, "stp": true}
	boxAliases    = map[string]bool{"box": true, "boxes": true, "bx": true, "carton": true}
	tabletAliases = map[string]bool{
		"tablet": true, "tablets": true, "tab": true, "tabs": true,
		"capsule": true, "capsules": true, "cap": true, "caps": true,
	}
)

type ConversionInput struct {
	Quantity        decimal.Decimal
	QuantityUom     string
	BaseUom         string
	SellingUom      string
	UnitsPerPack    decimal.Decimal
	TabletsPerStrip *decimal.Decimal
	StripsPerBox    *decimal.Decimal
}

func normalizeUom(uom string) string {
	return strings.ToLower(strings.TrimSpace(uom))
}

func IsStripUom(uom string) bool  { return stripAliases[normalizeUom(uom)] }
func IsBoxUom(uom string) bool    { return boxAliases[normalizeUom(uom)] }
func IsTabletUom(uom string) bool { return tabletAliases[normalizeUom(uom)] }

// ConvertToBase converts a quantity entered in any supported unit into the product's base unit.
// Rules are evaluated in order: selling unit, base unit, strip (tablet based products), box.
// Packaging ratios are required even when the quantity is zero.
func ConvertToBase(in ConversionInput) (baseQty decimal.Decimal, factor decimal.Decimal, err error) {
	if in.Quantity.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInvalidQuantity
	}

	qtyUom := normalizeUom(in.QuantityUom)
	switch {
	case qtyUom != "" && qtyUom == normalizeUom(in.SellingUom):
		factor = in.UnitsPerPack
	case qtyUom != "" && qtyUom == normalizeUom(in.BaseUom):
		factor = decimal.NewFromInt(1)
	case IsTabletUom(in.BaseUom) && IsStripUom(qtyUom):
		if in.TabletsPerStrip == nil {
			return decimal.Zero, decimal.Zero, &ValidationError{Field: "tablets_per_strip", Detail: "required to convert strips", Err: ErrMissingPackagingInfo}
		}
		factor = *in.TabletsPerStrip
	case IsBoxUom(qtyUom):
		if in.TabletsPerStrip == nil || in.StripsPerBox == nil {
			return decimal.Zero, decimal.Zero, &ValidationError{Field: "tablets_per_strip,strips_per_box", Detail: "required to convert boxes", Err: ErrMissingPackagingInfo}
		}
		factor = in.TabletsPerStrip.Mul(*in.StripsPerBox)
	default:
		return decimal.Zero, decimal.Zero, &ValidationError{Field: "quantity_uom", Detail: "no conversion from " + in.QuantityUom + " to " + in.BaseUom, Err: ErrUnsupportedConversion}
	}

	if !factor.IsPositive() {
		return decimal.Zero, decimal.Zero, &ValidationError{Field: "factor", Detail: factor.String(), Err: ErrInvalidConversionFactor}
	}
	return in.Quantity.Mul(factor), factor, nil
}

// ProductConversion fills the packaging ratios from the product master.
// A product sold by the strip carries tablets-per-strip in units_per_pack when no explicit
// ratio is stored.
func (p *Product) ProductConversion(quantity decimal.Decimal, uom string) ConversionInput {
	tabletsPerStrip := p.TabletsPerStrip
	if tabletsPerStrip == nil && IsStripUom(p.PackUnit) && IsTabletUom(p.BaseUnit) {
		v := p.UnitsPerPack
		tabletsPerStrip = &v
	}
	return ConversionInput{
		Quantity:        quantity,
		QuantityUom:     uom,
		BaseUom:         p.BaseUnit,
		SellingUom:      p.PackUnit,
		UnitsPerPack:    p.UnitsPerPack,
		TabletsPerStrip: tabletsPerStrip,
		StripsPerBox:    p.StripsPerBox,
	}
}
