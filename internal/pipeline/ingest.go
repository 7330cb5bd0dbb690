package pipeline

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"partrec/internal"
	"partrec/internal/util"
)

var ingestColumnNames = map[string]string{
	"part_number":   "part",
	"part number":   "part",
	"partnumber":    "part",
	"sku":           "part",
	"line_code":     "line",
	"line code":     "line",
	"linecode":      "line",
	"description":   "desc",
	"desc":          "desc",
	"category":      "category",
	"subcategory":   "subcategory",
	"sub_category":  "subcategory",
	"cost":          "cost",
	"price":         "cost",
	"cost_per_unit": "cost",
}

// ParseRecordsXLSX reads part records from a spreadsheet. The first row that
// names a part-number column becomes the header; rows without a part number
// are skipped.
func ParseRecordsXLSX(path string, projectID *int) ([]internal.PartRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.PartRecord{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		columns := map[string]int{}
		for _, row := range rows {
			if len(columns) == 0 {
				columns = inferIngestColumns(row)
				if _, ok := columns["part"]; ok {
					continue
				}
				columns = map[string]int{}
			}
			if len(columns) == 0 {
				continue
			}

			part := strings.TrimSpace(pickCell(row, columns["part"]))
			if part == "" {
				continue
			}
			rec := internal.PartRecord{
				ProjectID:   projectID,
				PartNumber:  part,
				LineCode:    optionalCell(row, columns, "line"),
				Description: optionalCell(row, columns, "desc"),
				Category:    optionalCell(row, columns, "category"),
				Subcategory: optionalCell(row, columns, "subcategory"),
			}
			if raw := optionalCell(row, columns, "cost"); raw != nil {
				if cost, err := strconv.ParseFloat(strings.ReplaceAll(*raw, ",", "."), 64); err == nil {
					rec.Cost = util.FloatPtr(cost)
				}
			}
			out = append(out, rec)
		}
	}

	return out, nil
}

func inferIngestColumns(row []string) map[string]int {
	columns := map[string]int{}
	for i, cell := range row {
		key := strings.ToLower(strings.TrimSpace(cell))
		if name, ok := ingestColumnNames[key]; ok {
			if _, taken := columns[name]; !taken {
				columns[name] = i
			}
		}
	}
	return columns
}

func pickCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func optionalCell(row []string, columns map[string]int, name string) *string {
	idx, ok := columns[name]
	if !ok {
		return nil
	}
	value := strings.TrimSpace(pickCell(row, idx))
	if value == "" {
		return nil
	}
	return &value
}
