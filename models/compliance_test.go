package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayNDPSEntries(t *testing.T) {
	day1 := testToday
	day2 := testToday.AddDate(0, 0, 1)
	day3 := testToday.AddDate(0, 0, 3)
	entries := []models.NDPSDailyEntry{
		{EntryDate: day3, InQty: decimal.Zero, OutQty: dec("5")},
		{EntryDate: day1, InQty: dec("100"), OutQty: dec("20"), OpeningQty: dec("999")},
		{EntryDate: day2, InQty: dec("10"), OutQty: dec("30")},
	}

	out := models.ReplayNDPSEntries(dec("40"), entries)
	require.Len(t, out, 3)
	assert.True(t, out[0].EntryDate.Equal(day1))
	assert.True(t, out[0].OpeningQty.Equal(dec("40")))
	assert.True(t, out[0].ClosingQty.Equal(dec("120")))
	assert.True(t, out[1].OpeningQty.Equal(dec("120")))
	assert.True(t, out[1].ClosingQty.Equal(dec("100")))
	assert.True(t, out[2].OpeningQty.Equal(dec("100")))
	assert.True(t, out[2].ClosingQty.Equal(dec("95")))
}

func TestUpsertNDPSDailyAccumulates(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	p := createTabletProduct(t, db, "Morphine 10mg", models.ScheduleNDPS)

	_, err := models.UpsertNDPSDaily(ctx, db, p.ID, testToday, dec("50"), decimal.Zero)
	require.NoError(t, err)
	entry, err := models.UpsertNDPSDaily(ctx, db, p.ID, testToday.Add(15*time.Hour), decimal.Zero, dec("12"))
	require.NoError(t, err)

	assert.True(t, entry.InQty.Equal(dec("50")))
	assert.True(t, entry.OutQty.Equal(dec("12")))
	assert.True(t, entry.ClosingQty.Equal(dec("38")))

	rows, err := models.ListNDPSEntries(ctx, db, p.ID, testToday, testToday)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ClosingQty.Equal(dec("38")))
}

func TestH1RegisterEntriesCannotChange(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := testContext()
	entry := models.H1RegisterEntry{
		SalesInvoiceId: 1,
		SalesLineId:    1,
		InvoiceNo:      "INV000001",
		EntryDate:      testToday,
		ProductId:      1,
		ProductName:    "Alprazolam",
		QtyBase:        dec("10"),
		PatientName:    "R. Kumar",
		DoctorName:     "Dr. Mehta",
	}
	require.NoError(t, db.Create(&entry).Error)

	assert.ErrorIs(t, db.Model(&entry).Update("patient_name", "someone else").Error, models.ErrRegisterImmutable)
	assert.ErrorIs(t, db.Delete(&entry).Error, models.ErrRegisterImmutable)

	rows, err := models.ListH1Register(ctx, db, testToday.AddDate(0, 0, -1), testToday)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "R. Kumar", rows[0].PatientName)
}
