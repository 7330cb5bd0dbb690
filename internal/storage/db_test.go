package storage

import (
	"path/filepath"
	"testing"

	"partrec/internal"
	"partrec/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertItemsSkipsBlankPartNumbers(t *testing.T) {
	db := openTestDB(t)

	n, err := db.InsertStoreItems([]internal.PartRecord{
		{PartNumber: "BLT-3456"},
		{PartNumber: "   "},
		{PartNumber: "AUV14717"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d", n)
	}

	count, err := db.CountStoreItems(nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d", count)
	}
}

func TestListStoreItemsPagination(t *testing.T) {
	db := openTestDB(t)
	items := []internal.PartRecord{
		{PartNumber: "P1"}, {PartNumber: "P2"}, {PartNumber: "P3"}, {PartNumber: "P4"}, {PartNumber: "P5"},
	}
	if _, err := db.InsertStoreItems(items); err != nil {
		t.Fatalf("insert: %v", err)
	}

	page, err := db.ListStoreItems(nil, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].PartNumber != "P3" || page[1].PartNumber != "P4" {
		t.Fatalf("page: %+v", page)
	}

	all, err := db.ListStoreItems(nil, 0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("all: %+v", all)
	}
}

func TestListStoreItemsProjectFilter(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertStoreItems([]internal.PartRecord{
		{PartNumber: "P1", ProjectID: util.IntPtr(1)},
		{PartNumber: "P2", ProjectID: util.IntPtr(2)},
		{PartNumber: "P3"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.ListStoreItems(util.IntPtr(1), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].PartNumber != "P1" {
		t.Fatalf("filtered: %+v", got)
	}
}

func seedPair(t *testing.T, db *DB) {
	t.Helper()
	if _, err := db.InsertStoreItems([]internal.PartRecord{{PartNumber: "BLT-3456"}}); err != nil {
		t.Fatalf("insert store: %v", err)
	}
	if _, err := db.InsertSupplierItems([]internal.PartRecord{{PartNumber: "blt3456"}, {PartNumber: "BLT3450"}}); err != nil {
		t.Fatalf("insert suppliers: %v", err)
	}
}

func TestReplaceCandidatesClearsPriorRows(t *testing.T) {
	db := openTestDB(t)
	seedPair(t, db)

	first := internal.MatchCandidate{
		StoreItemID: 1, SupplierItemID: 1,
		Method: internal.MethodCanonical, Confidence: 0.95,
		MatchStage: internal.StageDeterministic,
		VendorAction: internal.ActionNone, Status: internal.StatusPending,
	}
	if err := db.ReplaceCandidates("run1", []int{1}, []internal.MatchCandidate{first}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	second := first
	second.SupplierItemID = 2
	second.Method = internal.MethodFuzzy
	if err := db.ReplaceCandidates("run1", []int{1}, []internal.MatchCandidate{second}); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	got, err := db.ListCandidates("run1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].SupplierItemID != 2 {
		t.Fatalf("prior rows must be cleared: %+v", got)
	}

	matched, err := db.MatchedStoreItemIDs("run1")
	if err != nil {
		t.Fatalf("matched: %v", err)
	}
	if _, ok := matched[1]; !ok || len(matched) != 1 {
		t.Fatalf("dedup set: %+v", matched)
	}
}

func TestFindMasterRuleNilSupplier(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertMasterRule(internal.MasterRule{
		StorePartNumber: "BAD999",
		RuleType:        internal.RuleNegativeBlock,
		Scope:           internal.ScopeGlobal,
		Confidence:      1.0,
		Enabled:         true,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := db.FindMasterRule("BAD999", nil, internal.RuleNegativeBlock)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.SupplierPartNumber != nil {
		t.Fatalf("rule: %+v", got)
	}

	got, err = db.FindMasterRule("BAD999", util.StringPtr("OTHER"), internal.RuleNegativeBlock)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != nil {
		t.Fatalf("supplier-specific lookup must not hit the nil-supplier rule: %+v", got)
	}
}

func TestInsertMatchHistoryIdempotent(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 2; i++ {
		if err := db.InsertMatchHistory(internal.HistoryAccepted, "BLT-3456", "blt3456", nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := db.ListMatchHistory(internal.HistoryAccepted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("history: %+v", got)
	}
}

func TestMetadataUpsert(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetMetadata("missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("missing key: %+v", got)
	}

	if err := db.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("set again: %v", err)
	}
	got, err = db.GetMetadata("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || *got != "v2" {
		t.Fatalf("value: %+v", got)
	}
}

func TestGetExportRowsResolvesRunnerUp(t *testing.T) {
	db := openTestDB(t)
	seedPair(t, db)

	cand := internal.MatchCandidate{
		StoreItemID: 1, SupplierItemID: 1,
		Method: internal.MethodFuzzy, Confidence: 0.86,
		MatchStage: internal.StageFuzzy,
		Features: internal.MatchFeatures{
			PartSimilarity: 0.86,
			Reason:         "fuzzy part and description similarity",
			RunnerUpID:     util.IntPtr(2),
			RunnerUpScore:  util.FloatPtr(0.8),
		},
		VendorAction: internal.ActionNone, Status: internal.StatusPending,
	}
	if err := db.ReplaceCandidates("run1", []int{1}, []internal.MatchCandidate{cand}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	rows, err := db.GetExportRows("run1")
	if err != nil {
		t.Fatalf("export rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: %+v", rows)
	}
	row := rows[0]
	if row.StorePartNumber != "BLT-3456" || row.SupplierPart != "blt3456" {
		t.Fatalf("row: %+v", row)
	}
	if row.RunnerUpPart == nil || *row.RunnerUpPart != "BLT3450" {
		t.Fatalf("runner up part: %+v", row)
	}
	if row.RunnerUpScore == nil || *row.RunnerUpScore != 0.8 {
		t.Fatalf("runner up score: %+v", row)
	}
}

func TestUpsertProject(t *testing.T) {
	db := openTestDB(t)

	id, err := db.UpsertProject("acme")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, err := db.UpsertProject("acme")
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if id != again {
		t.Fatalf("ids differ: %d vs %d", id, again)
	}

	exists, err := db.ProjectExists(id)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("project must exist")
	}
	exists, err = db.ProjectExists(999)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("unknown project must not exist")
	}
}
