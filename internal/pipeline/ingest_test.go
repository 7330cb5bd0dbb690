package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"partrec/internal"
	"partrec/internal/util"
)

func writeSheet(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestParseRecordsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts.xlsx")
	writeSheet(t, path, [][]any{
		{"Part Number", "Line Code", "Description", "Category", "Cost"},
		{"BLT-3456", "BLT", "Serpentine belt", "Belts", "10,50"},
		{"", "GAT", "row without part number", "", ""},
		{"AUV14717", "", "", "", "n/a"},
	})

	got, err := ParseRecordsXLSX(path, util.IntPtr(3))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}

	first := got[0]
	if first.PartNumber != "BLT-3456" {
		t.Fatalf("part number = %q", first.PartNumber)
	}
	if first.LineCode == nil || *first.LineCode != "BLT" {
		t.Fatalf("line code: %+v", first)
	}
	if first.Description == nil || *first.Description != "Serpentine belt" {
		t.Fatalf("description: %+v", first)
	}
	if first.Cost == nil || *first.Cost != 10.5 {
		t.Fatalf("comma decimal cost must parse: %+v", first.Cost)
	}
	if first.ProjectID == nil || *first.ProjectID != 3 {
		t.Fatalf("project id: %+v", first)
	}

	second := got[1]
	if second.PartNumber != "AUV14717" {
		t.Fatalf("part number = %q", second.PartNumber)
	}
	if second.LineCode != nil || second.Cost != nil {
		t.Fatalf("unparseable optional fields must stay nil: %+v", second)
	}
}

func TestParseRecordsXLSXNoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noheader.xlsx")
	writeSheet(t, path, [][]any{
		{"random", "cells"},
		{"BLT-3456", "not ingested"},
	})

	got, err := ParseRecordsXLSX(path, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rows before a recognized header must be skipped: %+v", got)
	}
}

func TestExportRowsToXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "candidates.xlsx")
	rows := []internal.CandidateExportRow{{
		CandidateID:     1,
		StoreItemID:     10,
		StorePartNumber: "BLT-3456",
		StoreLineCode:   util.StringPtr("BLT"),
		SupplierItemID:  20,
		SupplierPart:    "blt3456",
		Method:          "canonical",
		MatchStage:      1,
		Confidence:      0.99,
		VendorAction:    "NONE",
		Status:          "PENDING",
		FeaturesJSON:    `{"partSimilarity":1}`,
	}}

	if err := ExportRowsToXLSX(rows, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)

	if got, _ := f.GetCellValue(sheet, "A1"); got != "candidate_id" {
		t.Fatalf("header A1 = %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "C2"); got != "BLT-3456" {
		t.Fatalf("store part = %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "H2"); got != "blt3456" {
		t.Fatalf("supplier part = %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "L2"); got != "canonical" {
		t.Fatalf("method = %q", got)
	}
	// Nil runner-up renders as an empty cell.
	if got, _ := f.GetCellValue(sheet, "Q2"); got != "" {
		t.Fatalf("runner up = %q", got)
	}
}
