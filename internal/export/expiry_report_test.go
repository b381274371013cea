package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

func sampleLots() []*entity.ExpiringLot {
	expiry := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	return []*entity.ExpiringLot{
		{
			Lot: &entity.Lot{
				LotCode:           "L2025-77",
				RemainingQuantity: 6.5,
				Unit:              "KG",
				ArrivalDate:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
				ExpiryDate:        &expiry,
				SupplierName:      "Molino Rossi SRL",
			},
			IngredientName: "Farina 00",
			DaysToExpiry:   2,
			Urgency:        entity.UrgencyCritical,
		},
		{
			Lot: &entity.Lot{
				LotCode:           "L2025-90",
				RemainingQuantity: 3,
				Unit:              "L",
				ArrivalDate:       time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
				SupplierName:      "Oleificio Verdi",
			},
			IngredientName: "Olio EVO",
			DaysToExpiry:   15,
			Urgency:        entity.UrgencyAttention,
		},
	}
}

func TestExcel_RendersWorkbook(t *testing.T) {
	reporter := NewExpiryReporter("Test Kitchen", zap.NewNop())

	data, err := reporter.Excel(sampleLots(), time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{expirySheet}, f.GetSheetList())

	title, err := f.GetCellValue(expirySheet, "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Test Kitchen")
	assert.Contains(t, title, "2025-09-08")

	header, err := f.GetCellValue(expirySheet, "A3")
	require.NoError(t, err)
	assert.Equal(t, "Lot Code", header)

	code, err := f.GetCellValue(expirySheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "L2025-77", code)

	urgency, err := f.GetCellValue(expirySheet, "I4")
	require.NoError(t, err)
	assert.Equal(t, entity.UrgencyCritical, urgency)

	// Second lot has no expiry date; the cell stays blank.
	blank, err := f.GetCellValue(expirySheet, "G5")
	require.NoError(t, err)
	assert.Empty(t, blank)
}

func TestCSV_RendersRecords(t *testing.T) {
	reporter := NewExpiryReporter("Test Kitchen", zap.NewNop())

	data, err := reporter.CSV(sampleLots())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, expiryHeader, records[0])
	assert.Equal(t, "L2025-77", records[1][0])
	assert.Equal(t, "Farina 00", records[1][1])
	assert.Equal(t, "6.5", records[1][3])
	assert.Equal(t, "2025-09-10", records[1][6])
	assert.Equal(t, entity.UrgencyCritical, records[1][8])
	assert.Equal(t, "", records[2][6])
}

func TestCSV_EmptyInput(t *testing.T) {
	reporter := NewExpiryReporter("Test Kitchen", zap.NewNop())

	data, err := reporter.CSV(nil)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, expiryHeader, records[0])
}
