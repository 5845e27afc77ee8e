package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestPriceReportName(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "price-report-20240301T080507Z.xlsx", PriceReportName(ts))
}

func TestPriceReport(t *testing.T) {
	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	run := &model.PriceRun{
		ID:        "run-1",
		Stage:     model.PriceStageCompleted,
		Total:     2,
		Processed: 2,
		Succeeded: 1,
		Failed:    1,
		StartedAt: &started,
		Results: []model.PriceResult{
			{
				OfferID:     "o-1",
				EAN:         "4006381333931",
				Condition:   model.ConditionGood,
				OldPrice:    decimal.RequireFromString("12.50"),
				NewPrice:    decimal.RequireFromString("10.95"),
				Outcome:     model.PriceOutcomeUpdated,
				Explanation: "same tier 11.00 - 0.05 = 10.95",
			},
			{
				OfferID:   "o-2",
				EAN:       "96385074",
				Condition: model.ConditionNew,
				OldPrice:  decimal.RequireFromString("20"),
				NewPrice:  decimal.RequireFromString("20"),
				Outcome:   model.PriceOutcomeFailed,
				Error:     "marketplace rate_limited error",
			},
		},
	}

	data, err := PriceReport(run)
	require.NoError(t, err)

	f := open(t, data)

	rows, err := f.GetRows(SheetPrices)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Offer ID", rows[0][0])
	assert.Equal(t, "o-1", rows[1][0])
	assert.Equal(t, "GOOD", rows[1][2])
	assert.Equal(t, "10.95", rows[1][4])
	assert.Equal(t, "updated", rows[1][6])
	assert.Equal(t, "marketplace rate_limited error", rows[2][8])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Run", "run-1"}, summary[0])
	assert.Equal(t, "2024-03-01 08:00:00", summary[2][1])
}

func TestPickingList_SortedByLocation(t *testing.T) {
	items := []model.PickingItem{
		{OrderID: "2", ItemID: "21", Location: "C-01-1", EAN: "96385074", Quantity: 1, Customer: model.Customer{FirstName: "Piet"}},
		{OrderID: "1", ItemID: "11", Location: "A-10-2", EAN: "4006381333931", Quantity: 3, Picked: true},
	}

	data, err := PickingList(items)
	require.NoError(t, err)

	rows, err := open(t, data).GetRows(SheetPicking)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A-10-2", rows[1][0])
	assert.Equal(t, "3", rows[1][5])
	assert.Equal(t, "yes", rows[1][10])
	assert.Equal(t, "C-01-1", rows[2][0])
	assert.Equal(t, "Piet", rows[2][6])

	assert.Equal(t, "2", items[0].OrderID, "input must not be reordered")
}
