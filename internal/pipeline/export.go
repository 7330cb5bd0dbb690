package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"partrec/internal"
)

// ExportRowsToXLSX writes a run's candidates to a spreadsheet for offline
// review, highest confidence first.
func ExportRowsToXLSX(rows []internal.CandidateExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"candidate_id", "store_item_id", "store_part_number", "store_line_code", "store_description", "store_cost",
		"supplier_item_id", "supplier_part_number", "supplier_line_code", "supplier_description", "supplier_cost",
		"method", "match_stage", "confidence", "vendor_action", "status",
		"runner_up_part", "runner_up_score", "features_json",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.CandidateID)
		set(2, row.StoreItemID)
		set(3, row.StorePartNumber)
		set(4, derefString(row.StoreLineCode))
		set(5, derefString(row.StoreDescription))
		set(6, derefFloat(row.StoreCost))
		set(7, row.SupplierItemID)
		set(8, row.SupplierPart)
		set(9, derefString(row.SupplierLineCode))
		set(10, derefString(row.SupplierDesc))
		set(11, derefFloat(row.SupplierCost))
		set(12, row.Method)
		set(13, row.MatchStage)
		set(14, row.Confidence)
		set(15, row.VendorAction)
		set(16, row.Status)
		set(17, derefString(row.RunnerUpPart))
		set(18, derefFloat(row.RunnerUpScore))
		set(19, row.FeaturesJSON)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
