package utils

import (
	"github.com/shopspring/decimal"
)

const (
	// AmountPlaces is the precision of line level money and tax amounts.
	AmountPlaces int32 = 4
	// CurrencyPlaces is the precision invoice totals are rounded to.
	CurrencyPlaces int32 = 2
)

var decimalOneHundred = decimal.NewFromInt(100)

// RoundHalfUp rounds away from zero at .5, matching the register/tax authority convention.
// decimal.Round already rounds half away from zero.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

type LineTax struct {
	Gross     decimal.Decimal
	Discount  decimal.Decimal
	Taxable   decimal.Decimal
	TaxAmount decimal.Decimal
	LineTotal decimal.Decimal
}

// CalculateLineTax computes qty*rate - discount, then tax on it.
// For tax inclusive pricing the tax is backed out of the taxable amount first.
func CalculateLineTax(qty, rate, discount, taxPercent decimal.Decimal, isTaxInclusive bool) LineTax {
	gross := qty.Mul(rate)
	taxable := gross.Sub(discount)
	if isTaxInclusive && taxPercent.IsPositive() {
		taxable = taxable.Mul(decimalOneHundred).Div(decimalOneHundred.Add(taxPercent))
	}
	taxable = RoundHalfUp(taxable, AmountPlaces)
	taxAmount := RoundHalfUp(taxable.Mul(taxPercent).Div(decimalOneHundred), AmountPlaces)

	return LineTax{
		Gross:     gross,
		Discount:  discount,
		Taxable:   taxable,
		TaxAmount: taxAmount,
		LineTotal: taxable.Add(taxAmount),
	}
}

// RoundOff rounds a net amount to currency precision and returns the difference.
func RoundOff(net decimal.Decimal) (rounded decimal.Decimal, roundOff decimal.Decimal) {
	rounded = RoundHalfUp(net, CurrencyPlaces)
	return rounded, rounded.Sub(net)
}

func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	if discountType == "P" {
		return subTotal.Mul(discount).DivRound(decimalOneHundred, AmountPlaces)
	}
	return discount
}
