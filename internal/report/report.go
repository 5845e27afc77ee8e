// Package report формирует таблицы Excel: отчёт о прогоне цен и лист комплектации.
package report

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

const (
	SheetPrices  = "Prices"
	SheetSummary = "Summary"
	SheetPicking = "Picking"

	timeLayout = "2006-01-02 15:04:05"
)

// PriceReportName возвращает имя файла отчёта для момента t.
func PriceReportName(t time.Time) string {
	return "price-report-" + t.UTC().Format("20060102T150405Z") + ".xlsx"
}

// PriceReport строит отчёт о прогоне: лист с результатами по офферам и лист с итогами.
func PriceReport(run *model.PriceRun) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPrices); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	header := []any{"Offer ID", "EAN", "Condition", "Old price", "New price", "Change", "Outcome", "Explanation", "Error"}
	if err := writeHeader(f, SheetPrices, header); err != nil {
		return nil, err
	}

	for i, r := range run.Results {
		row := []any{
			r.OfferID,
			r.EAN,
			r.Condition.String(),
			r.OldPrice.InexactFloat64(),
			r.NewPrice.InexactFloat64(),
			r.NewPrice.Sub(r.OldPrice).InexactFloat64(),
			string(r.Outcome),
			r.Explanation,
			r.Error,
		}
		if err := setRow(f, SheetPrices, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetPrices, "A", "C", 16)
	_ = f.SetColWidth(SheetPrices, "H", "I", 60)

	summary := [][]any{
		{"Run", run.ID},
		{"Stage", string(run.Stage)},
		{"Started", formatTime(run.StartedAt)},
		{"Finished", formatTime(run.FinishedAt)},
		{"Total", run.Total},
		{"Processed", run.Processed},
		{"Updated", run.Succeeded},
		{"Unchanged", run.Unchanged},
		{"Failed", run.Failed},
		{"Message", run.Message},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 14)
	_ = f.SetColWidth(SheetSummary, "B", "B", 40)

	return write(f)
}

// PickingList строит лист комплектации, упорядоченный по месту хранения для обхода склада.
func PickingList(items []model.PickingItem) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPicking); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"Location", "Order", "Item", "EAN", "Title", "Qty", "Customer", "City", "Package", "Tracking", "Picked", "Shipped"}
	if err := writeHeader(f, SheetPicking, header); err != nil {
		return nil, err
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b model.PickingItem) int {
		return cmp.Or(
			cmp.Compare(a.Location, b.Location),
			cmp.Compare(a.OrderID, b.OrderID),
			cmp.Compare(a.ItemID, b.ItemID),
		)
	})

	for i, it := range sorted {
		row := []any{
			it.Location,
			it.OrderID,
			it.ItemID,
			it.EAN,
			it.Title,
			it.Quantity,
			it.Customer.FullName(),
			it.Customer.City,
			string(it.PackageType),
			it.TrackingNumber,
			yesNo(it.Picked),
			yesNo(it.Shipped),
		}
		if err := setRow(f, SheetPicking, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetPicking, "A", "D", 16)
	_ = f.SetColWidth(SheetPicking, "E", "E", 48)
	_ = f.SetColWidth(SheetPicking, "G", "G", 24)

	return write(f)
}

func writeHeader(f *excelize.File, sheet string, header []any) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func write(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
