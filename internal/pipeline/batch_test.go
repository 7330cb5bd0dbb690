package pipeline

import (
	"context"
	"math"
	"testing"

	"partrec/internal"
	"partrec/internal/storage"
	"partrec/internal/util"
)

// seedBatchDB loads the population used by the orchestrator tests:
//
//	store 1 "BLT-3456"  -> supplier 1 "blt3456" via canonical (cost boosted)
//	store 2 "ABH14717"  -> supplier 2 "AUV14717" via interchange (global stage)
//	store 3 "BLT3450"   -> supplier 1 via fuzzy
//	store 4 "ZZZZ8888"  -> no match
func seedBatchDB(t *testing.T, db *storage.DB) {
	t.Helper()
	_, err := db.InsertSupplierItems([]internal.PartRecord{
		{PartNumber: "blt3456", Cost: util.FloatPtr(10), Category: util.StringPtr("Belts")},
		{PartNumber: "AUV14717"},
	})
	if err != nil {
		t.Fatalf("insert suppliers: %v", err)
	}
	_, err = db.InsertStoreItems([]internal.PartRecord{
		{PartNumber: "BLT-3456", Cost: util.FloatPtr(10)},
		{PartNumber: "ABH14717"},
		{PartNumber: "BLT3450"},
		{PartNumber: "ZZZZ8888"},
	})
	if err != nil {
		t.Fatalf("insert stores: %v", err)
	}
	if _, err := db.InsertInterchangeMapping(internal.InterchangeMapping{SourceSku: "abh-14717", TargetSku: "AUV14717", Confidence: 1.0}); err != nil {
		t.Fatalf("insert interchange: %v", err)
	}
}

func candidateByStore(t *testing.T, candidates []internal.MatchCandidate, storeItemID int) internal.MatchCandidate {
	t.Helper()
	for _, c := range candidates {
		if c.StoreItemID == storeItemID {
			return c
		}
	}
	t.Fatalf("no candidate for store item %d in %+v", storeItemID, candidates)
	return internal.MatchCandidate{}
}

func TestRunBatchEndToEnd(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)
	if _, err := db.InsertVendorActionRule(internal.VendorActionRule{
		SupplierLineCode: "BLT", CategoryPattern: "*", SubcategoryPattern: "*",
		Action: internal.ActionContactVendor, Active: true,
	}); err != nil {
		t.Fatalf("insert vendor rule: %v", err)
	}

	o := NewOrchestrator(db, testCfg())
	runID := NewRunID()

	result, err := o.RunBatch(context.Background(), runID, nil, 0, 10)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	// The global-stage interchange candidate is persisted separately; the
	// batch result carries the canonical and fuzzy candidates.
	if len(result.Candidates) != 2 {
		t.Fatalf("batch candidates: %+v", result.Candidates)
	}
	if result.CountsByMethod[internal.MethodCanonical] != 1 || result.CountsByMethod[internal.MethodFuzzy] != 1 {
		t.Fatalf("counts: %+v", result.CountsByMethod)
	}

	all, err := db.ListCandidates(runID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("persisted candidates: %+v", all)
	}

	exact := candidateByStore(t, all, 1)
	if exact.Method != internal.MethodCanonical || math.Abs(exact.Confidence-0.99) > 1e-9 {
		t.Fatalf("canonical candidate: %+v", exact)
	}
	if exact.VendorAction != internal.ActionContactVendor {
		t.Fatalf("vendor action: %+v", exact)
	}

	global := candidateByStore(t, all, 2)
	if global.Method != internal.MethodInterchange || global.MatchStage != internal.StageGlobal || global.Confidence != 1.0 {
		t.Fatalf("interchange candidate: %+v", global)
	}

	fuzzy := candidateByStore(t, all, 3)
	if fuzzy.Method != internal.MethodFuzzy || fuzzy.MatchStage != internal.StageFuzzy {
		t.Fatalf("fuzzy candidate: %+v", fuzzy)
	}
	if math.Abs(fuzzy.Confidence-(1.0-1.0/7.0)) > 1e-9 {
		t.Fatalf("fuzzy confidence: %v", fuzzy.Confidence)
	}

	if marker, err := db.GetMetadata(globalStageKey(runID)); err != nil || marker == nil {
		t.Fatalf("global stage marker missing: %v %v", marker, err)
	}

	p := result.Progress
	if p.Total != 4 || p.Processed != 4 || p.Remaining != 0 || p.HasMore {
		t.Fatalf("progress: %+v", p)
	}
	if len(result.Stages) != 3 {
		t.Fatalf("stages: %+v", result.Stages)
	}
	if result.Stages[0].StageNumber != internal.StageGlobal || result.Stages[0].MatchesFound != 1 {
		t.Fatalf("global stage metrics: %+v", result.Stages[0])
	}
}

func TestRunBatchRepeatIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)
	o := NewOrchestrator(db, testCfg())
	runID := NewRunID()

	if _, err := o.RunBatch(context.Background(), runID, nil, 0, 10); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	result, err := o.RunBatch(context.Background(), runID, nil, 0, 10)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}

	// Everything matchable was claimed by the first pass.
	if len(result.Candidates) != 0 {
		t.Fatalf("re-run produced candidates: %+v", result.Candidates)
	}
	all, err := db.ListCandidates(runID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("duplicate candidates after re-run: %+v", all)
	}
}

func TestRunAllPaginates(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)

	cfg := testCfg()
	cfg.BatchSize = 2
	o := NewOrchestrator(db, cfg)
	runID := NewRunID()

	results, err := o.RunAll(context.Background(), runID, nil)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two batches, got %d", len(results))
	}
	if !results[0].Progress.HasMore || results[0].Progress.NextOffset != 2 {
		t.Fatalf("first batch progress: %+v", results[0].Progress)
	}
	if results[1].Progress.HasMore {
		t.Fatalf("second batch progress: %+v", results[1].Progress)
	}

	all, err := db.ListCandidates(runID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("persisted candidates: %+v", all)
	}
}

func TestRunAllHonorsCancellation(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)
	o := NewOrchestrator(db, testCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.RunAll(ctx, NewRunID(), nil); err == nil {
		t.Fatal("expected a cancellation error")
	}
}

func TestRunBatchHistoryOverrides(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)

	// Store 1's pair was rejected before; store 3's fuzzy pair was accepted.
	if err := db.InsertMatchHistory(internal.HistoryRejected, "BLT3456", "BLT3456", nil); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	if err := db.InsertMatchHistory(internal.HistoryAccepted, "BLT3450", "BLT3456", nil); err != nil {
		t.Fatalf("insert history: %v", err)
	}

	o := NewOrchestrator(db, testCfg())
	runID := NewRunID()
	if _, err := o.RunBatch(context.Background(), runID, nil, 0, 10); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	all, err := db.ListCandidates(runID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	for _, c := range all {
		if c.StoreItemID == 1 {
			t.Fatalf("rejected pair must never persist: %+v", c)
		}
	}

	pinned := candidateByStore(t, all, 3)
	if pinned.Confidence != 1.0 || pinned.Features.Reason != "previously accepted" {
		t.Fatalf("accepted pair must pin full confidence: %+v", pinned)
	}
}

func TestRunBatchMasterRuleBlock(t *testing.T) {
	db := openTestDB(t)
	seedBatchDB(t, db)

	if _, err := db.InsertMasterRule(internal.MasterRule{
		StorePartNumber: "ABH14717",
		RuleType:        internal.RuleNegativeBlock,
		Scope:           internal.ScopeGlobal,
		Confidence:      1.0,
		Enabled:         true,
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	o := NewOrchestrator(db, testCfg())
	runID := NewRunID()
	if _, err := o.RunBatch(context.Background(), runID, nil, 0, 10); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	all, err := db.ListCandidates(runID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	for _, c := range all {
		if c.StoreItemID == 2 {
			t.Fatalf("blocked pair must never persist: %+v", c)
		}
	}
}
