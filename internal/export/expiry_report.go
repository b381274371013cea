// Package export renders ledger data into files for people: expiry
// reports for warehouse rounds and compliance spreadsheets.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

const expirySheet = "Expiring Lots"

var expiryHeader = []string{
	"Lot Code", "Ingredient", "Supplier", "Remaining Qty", "Unit",
	"Arrival Date", "Expiry Date", "Days To Expiry", "Urgency",
}

// ExpiryReporter writes expiring-lot reports.
type ExpiryReporter struct {
	companyName string
	logger      *zap.Logger
}

// NewExpiryReporter creates an expiry reporter.
func NewExpiryReporter(companyName string, logger *zap.Logger) *ExpiryReporter {
	return &ExpiryReporter{companyName: companyName, logger: logger}
}

// Excel renders the expiring lots as a spreadsheet and returns the raw
// workbook bytes.
func (r *ExpiryReporter) Excel(lots []*entity.ExpiringLot, asOf time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(expirySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		r.logger.Warn("Failed to remove default sheet", zap.Error(err))
	}

	r.setCell(f, "A1", fmt.Sprintf("%s - Expiring Lots as of %s", r.companyName, asOf.Format("2006-01-02")))
	for col, title := range expiryHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 3)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		r.setCell(f, cell, title)
	}

	for i, lot := range lots {
		row := i + 4
		values := []interface{}{
			lot.Lot.LotCode,
			lot.IngredientName,
			lot.Lot.SupplierName,
			lot.Lot.RemainingQuantity,
			lot.Lot.Unit,
			lot.Lot.ArrivalDate.Format("2006-01-02"),
			expiryDate(lot.Lot),
			lot.DaysToExpiry,
			lot.Urgency,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			r.setCell(f, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Expiry report rendered",
		zap.Int("lots", len(lots)),
		zap.String("format", "xlsx"))
	return buf.Bytes(), nil
}

// CSV renders the same report as comma-separated text.
func (r *ExpiryReporter) CSV(lots []*entity.ExpiringLot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(expiryHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, lot := range lots {
		record := []string{
			lot.Lot.LotCode,
			lot.IngredientName,
			lot.Lot.SupplierName,
			strconv.FormatFloat(lot.Lot.RemainingQuantity, 'f', -1, 64),
			lot.Lot.Unit,
			lot.Lot.ArrivalDate.Format("2006-01-02"),
			expiryDate(lot.Lot),
			strconv.Itoa(lot.DaysToExpiry),
			lot.Urgency,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *ExpiryReporter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(expirySheet, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func expiryDate(lot *entity.Lot) string {
	if lot.ExpiryDate == nil {
		return ""
	}
	return lot.ExpiryDate.Format("2006-01-02")
}
