package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateLineTax(t *testing.T) {
	tests := []struct {
		name                                string
		qty, rate, discount, taxPercent     string
		inclusive                           bool
		wantTaxable, wantTax, wantLineTotal string
	}{
		{"exclusive", "10", "11.2", "2", "12", false, "110", "13.2", "123.2"},
		{"inclusive", "1", "112", "0", "12", true, "100", "12", "112"},
		{"inclusive without tax", "3", "9.99", "0", "0", true, "29.97", "0", "29.97"},
		{"rounded to four places", "3", "3.3333", "0", "5", false, "9.9999", "0.5", "10.4999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := utils.CalculateLineTax(dec(tt.qty), dec(tt.rate), dec(tt.discount), dec(tt.taxPercent), tt.inclusive)
			assert.True(t, dec(tt.wantTaxable).Equal(got.Taxable), "taxable %s", got.Taxable)
			assert.True(t, dec(tt.wantTax).Equal(got.TaxAmount), "tax %s", got.TaxAmount)
			assert.True(t, dec(tt.wantLineTotal).Equal(got.LineTotal), "total %s", got.LineTotal)
		})
	}
}

func TestRoundOff(t *testing.T) {
	rounded, diff := utils.RoundOff(dec("10.345"))
	assert.True(t, dec("10.35").Equal(rounded))
	assert.True(t, dec("0.005").Equal(diff))

	rounded, diff = utils.RoundOff(dec("10.344"))
	assert.True(t, dec("10.34").Equal(rounded))
	assert.True(t, dec("-0.004").Equal(diff))
}

func TestCalculateDiscountAmount(t *testing.T) {
	assert.True(t, dec("10").Equal(utils.CalculateDiscountAmount(dec("200"), dec("5"), "P")))
	assert.True(t, dec("15").Equal(utils.CalculateDiscountAmount(dec("200"), dec("15"), "A")))
	assert.True(t, utils.CalculateDiscountAmount(dec("200"), dec("0"), "P").IsZero())
	assert.True(t, utils.CalculateDiscountAmount(dec("200"), dec("-4"), "A").IsZero())
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-03-10", " 2026-03-10 ", "2026-03-10T23:30:00+05:30", "2026-03-11T02:00:00+05:30"} {
		got, err := utils.ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s gave %s", in, got)
	}
	_, err := utils.ParseDate("10/03/2026")
	assert.Error(t, err)
}

func TestParseDecimal(t *testing.T) {
	v, err := utils.ParseDecimal(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, dec("12.5").Equal(v))

	_, err = utils.ParseDecimal("")
	assert.Error(t, err)
	_, err = utils.ParseDecimal("abc")
	assert.Error(t, err)
}

func TestNormalizePhoneNumber(t *testing.T) {
	got, err := utils.NormalizePhoneNumber("98123 45678", "IN")
	require.NoError(t, err)
	assert.Equal(t, "+919812345678", got)

	_, err = utils.NormalizePhoneNumber("12", "IN")
	assert.Error(t, err)
}

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	actor := appctx.Actor{ID: 5, Username: "asha", Name: "Asha Patil"}

	token, err := utils.JwtGenerate(actor, "pharmacist")
	require.NoError(t, err)

	got, err := utils.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)

	_, err = utils.ActorFromToken(token + "x")
	assert.Error(t, err)

	t.Setenv("API_SECRET", "rotated")
	_, err = utils.ActorFromToken(token)
	assert.Error(t, err)
}

func TestContextActorFallsBackToSystem(t *testing.T) {
	assert.Equal(t, appctx.SystemActor, utils.GetActorFromContext(context.Background()))

	ctx := utils.SetActorInContext(context.Background(), appctx.Actor{ID: 2, Username: "ravi"})
	assert.Equal(t, "ravi", utils.GetActorFromContext(ctx).Label())

	assert.NotEmpty(t, utils.CorrelationIdOrNew(context.Background()))
	ctx = utils.SetCorrelationIdInContext(ctx, "abc")
	assert.Equal(t, "abc", utils.CorrelationIdOrNew(ctx))
}
