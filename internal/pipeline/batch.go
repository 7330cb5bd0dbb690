package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"partrec/internal"
	"partrec/internal/catalog"
	"partrec/internal/config"
	"partrec/internal/storage"
)

type batchState string

const (
	stateInit    batchState = "INIT"
	stateGlobal  batchState = "STAGE0_GLOBAL"
	stateExact   batchState = "STAGE_EXACT"
	stateFuzzy   batchState = "STAGE_FUZZY"
	statePersist batchState = "PERSIST"
	stateDone    batchState = "DONE"
)

type Orchestrator struct {
	db  *storage.DB
	cfg config.Config
}

func NewOrchestrator(db *storage.DB, cfg config.Config) *Orchestrator {
	return &Orchestrator{db: db, cfg: cfg}
}

func NewRunID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

// snapshot is the read-only input set for one batch. Rule-table failures
// degrade to empty tables so later stages still run; record-table failures
// abort before any stage starts.
type snapshot struct {
	suppliers        []internal.PartRecord
	interchanges     []internal.InterchangeMapping
	partInterchanges []internal.PartNumberInterchange
	rules            []internal.TransformationRule
	translations     []internal.LineCodeTranslation
	masterRules      []internal.MasterRule
	accepted         []internal.MatchHistory
	rejected         []internal.MatchHistory
}

func (o *Orchestrator) loadSnapshot(projectID *int) (*snapshot, error) {
	suppliers, err := o.db.ListSupplierItems(projectID)
	if err != nil {
		return nil, fmt.Errorf("load supplier snapshot: %w", err)
	}

	snap := &snapshot{suppliers: suppliers}
	degrade := func(name string, err error) {
		if err != nil {
			fmt.Printf("warning: %s unavailable, stage degraded: %v\n", name, err)
		}
	}

	snap.interchanges, err = o.db.ListInterchangeMappings(projectID)
	degrade("interchange mappings", err)
	snap.partInterchanges, err = o.db.ListPartNumberInterchanges()
	degrade("part number interchanges", err)
	snap.rules, err = o.db.ListTransformationRules()
	degrade("transformation rules", err)
	snap.translations, err = o.db.ListLineCodeTranslations(projectID)
	degrade("line code translations", err)
	snap.masterRules, err = o.db.ListMasterRules()
	degrade("master rules", err)
	snap.accepted, err = o.db.ListMatchHistory(internal.HistoryAccepted)
	degrade("accepted history", err)
	snap.rejected, err = o.db.ListMatchHistory(internal.HistoryRejected)
	degrade("rejected history", err)

	return snap, nil
}

func globalStageKey(runID string) string {
	return "global_stage_done:" + runID
}

// RunBatch processes one offset-ordered slice of the store population
// through the stage machine. Batches of the same run must be serialized;
// the dedup set is re-read at the start of every batch.
func (o *Orchestrator) RunBatch(ctx context.Context, runID string, projectID *int, offset, limit int) (internal.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return internal.BatchResult{}, err
	}
	if limit <= 0 {
		limit = o.cfg.BatchSize
	}

	snap, err := o.loadSnapshot(projectID)
	if err != nil {
		return internal.BatchResult{}, err
	}
	index := catalog.BuildIndex(snap.suppliers, snap.interchanges, snap.partInterchanges, snap.rules)
	exact := NewExactMatcher(o.cfg, index, snap.translations)
	fuzzy := NewFuzzyMatcher(o.cfg, index)
	scorer := NewScorer(snap.accepted, snap.rejected, snap.masterRules)

	result := internal.BatchResult{
		RunID:          runID,
		CountsByMethod: map[internal.MatchMethod]int{},
	}
	timings := map[string]float64{}

	var batchItems []NormalizedItem
	var exactCandidates, fuzzyCandidates []internal.MatchCandidate
	matchedInBatch := map[int]struct{}{}

	state := stateInit
	for state != stateDone {
		switch state {
		case stateInit:
			if offset == 0 {
				state = stateGlobal
			} else {
				state = stateExact
			}

		case stateGlobal:
			start := time.Now()
			metrics, err := o.runGlobalStage(runID, projectID, index, exact, scorer)
			if err != nil {
				// Losing the global stage would silently drop interchange
				// matches for the whole run, so this one is fatal.
				return internal.BatchResult{}, fmt.Errorf("global stage: %w", err)
			}
			if metrics != nil {
				metrics.ProcessingTimeMs = float64(time.Since(start).Milliseconds())
				result.Stages = append(result.Stages, *metrics)
			}
			state = stateExact

		case stateExact:
			start := time.Now()
			matched, err := o.db.MatchedStoreItemIDs(runID)
			if err != nil {
				return internal.BatchResult{}, fmt.Errorf("load dedup set: %w", err)
			}
			storeSlice, err := o.db.ListStoreItems(projectID, offset, limit)
			if err != nil {
				return internal.BatchResult{}, fmt.Errorf("load store batch: %w", err)
			}
			for _, item := range NormalizeItems(storeSlice) {
				if _, ok := matched[item.ID]; ok {
					continue
				}
				batchItems = append(batchItems, item)
			}

			for _, item := range batchItems {
				candidates := exact.MatchItem(item)
				candidates = o.applyOverrides(scorer, index, item, candidates)
				if len(candidates) == 0 {
					continue
				}
				matchedInBatch[item.ID] = struct{}{}
				exactCandidates = append(exactCandidates, candidates...)
			}
			result.Stages = append(result.Stages, stageMetrics(internal.StageDeterministic, len(batchItems), exactCandidates, time.Since(start)))
			timings["exactMs"] = float64(time.Since(start).Milliseconds())
			state = stateFuzzy

		case stateFuzzy:
			start := time.Now()
			considered := 0
			for _, item := range batchItems {
				if _, ok := matchedInBatch[item.ID]; ok {
					continue
				}
				considered++
				candidate := fuzzy.MatchItem(item)
				if candidate == nil {
					continue
				}
				kept := o.applyOverrides(scorer, index, item, []internal.MatchCandidate{*candidate})
				if len(kept) == 0 {
					continue
				}
				matchedInBatch[item.ID] = struct{}{}
				fuzzyCandidates = append(fuzzyCandidates, kept...)
			}
			result.Stages = append(result.Stages, stageMetrics(internal.StageFuzzy, considered, fuzzyCandidates, time.Since(start)))
			timings["fuzzyMs"] = float64(time.Since(start).Milliseconds())
			state = statePersist

		case statePersist:
			candidates := append(append([]internal.MatchCandidate{}, exactCandidates...), fuzzyCandidates...)
			o.resolveVendorActions(candidates, index)
			for i := range candidates {
				candidates[i].RunID = runID
				result.CountsByMethod[candidates[i].Method]++
			}

			storeIDs := make([]int, 0, len(batchItems))
			for _, item := range batchItems {
				storeIDs = append(storeIDs, item.ID)
			}
			if err := o.db.ReplaceCandidates(runID, storeIDs, candidates); err != nil {
				return internal.BatchResult{}, fmt.Errorf("persist batch: %w", err)
			}
			result.Candidates = candidates

			counts := map[string]int{"items": len(batchItems), "candidates": len(candidates)}
			for method, n := range result.CountsByMethod {
				counts[string(method)] = n
			}
			if err := o.db.InsertRun(runID, offset, timings, counts); err != nil {
				fmt.Printf("warning: run bookkeeping failed: %v\n", err)
			}
			state = stateDone
		}
	}

	total, err := o.db.CountStoreItems(projectID)
	if err != nil {
		return internal.BatchResult{}, err
	}
	processed := offset + limit
	if processed > total {
		processed = total
	}
	result.Progress = internal.BatchProgress{
		Processed:  processed,
		Total:      total,
		Remaining:  total - processed,
		HasMore:    processed < total,
		NextOffset: offset + limit,
	}
	return result, nil
}

// runGlobalStage executes the population-wide deterministic methods once per
// run, guarded by an explicit completion marker so a crash between the
// global stage and batch persistence cannot silently skip it on retry.
func (o *Orchestrator) runGlobalStage(runID string, projectID *int, index *catalog.Index, exact *ExactMatcher, scorer *Scorer) (*internal.StageMetrics, error) {
	marker, err := o.db.GetMetadata(globalStageKey(runID))
	if err != nil {
		return nil, err
	}
	if marker != nil {
		return nil, nil
	}

	allStore, err := o.db.ListStoreItems(projectID, 0, 0)
	if err != nil {
		return nil, err
	}
	matched, err := o.db.MatchedStoreItemIDs(runID)
	if err != nil {
		return nil, err
	}

	candidates := []internal.MatchCandidate{}
	storeIDs := []int{}
	items := NormalizeItems(allStore)
	for _, item := range items {
		if _, ok := matched[item.ID]; ok {
			continue
		}
		found := exact.GlobalMatchItem(item)
		found = o.applyOverrides(scorer, index, item, found)
		if len(found) == 0 {
			continue
		}
		storeIDs = append(storeIDs, item.ID)
		candidates = append(candidates, found...)
	}

	o.resolveVendorActions(candidates, index)
	for i := range candidates {
		candidates[i].RunID = runID
	}
	if err := o.db.ReplaceCandidates(runID, storeIDs, candidates); err != nil {
		return nil, err
	}
	if err := o.db.SetMetadata(globalStageKey(runID), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}

	metrics := stageMetrics(internal.StageGlobal, len(items), candidates, 0)
	return &metrics, nil
}

// applyOverrides consults the scorer before persistence: history and master
// rules win outright, dropping blocked pairs and pinning confirmed ones to
// full confidence.
func (o *Orchestrator) applyOverrides(scorer *Scorer, index *catalog.Index, item NormalizedItem, candidates []internal.MatchCandidate) []internal.MatchCandidate {
	out := candidates[:0]
	for _, c := range candidates {
		target, ok := index.SuppliersByID[c.SupplierItemID]
		if !ok {
			continue
		}
		res := scorer.CalculateMatchScore(ScoreInput{
			StorePartNumber:    item.PartNumber,
			SupplierPartNumber: target.PartNumber,
			StoreDescription:   item.Description,
			SupplierDesc:       target.Description,
			StoreCategory:      item.Category,
			SupplierCategory:   target.Category,
			StoreSubcategory:   item.Subcategory,
			SupplierSubcat:     target.Subcategory,
			ProjectID:          item.ProjectID,
		})
		switch res.Reason {
		case "previously rejected", "master rule negative block", "category mismatch":
			continue
		case "previously accepted", "master rule positive map":
			c.Confidence = 1.0
			c.Features.Reason = res.Reason
		}
		out = append(out, c)
	}
	return out
}

func (o *Orchestrator) resolveVendorActions(candidates []internal.MatchCandidate, index *catalog.Index) {
	if len(candidates) == 0 {
		return
	}

	suppliers := make([]internal.PartRecord, 0, len(candidates))
	for _, c := range candidates {
		if rec, ok := index.SuppliersByID[c.SupplierItemID]; ok {
			suppliers = append(suppliers, rec)
		}
	}
	lineCodes := DistinctLineCodes(suppliers, index.NormalizedByID)
	rules, err := o.db.ListVendorActionRulesByLineCodes(lineCodes)
	if err != nil {
		fmt.Printf("warning: vendor action rules unavailable: %v\n", err)
		return
	}
	resolver := NewVendorResolver(rules)

	for i, c := range candidates {
		rec, ok := index.SuppliersByID[c.SupplierItemID]
		if !ok {
			continue
		}
		line := supplierLinePtr(rec, index.NormalizedByID[rec.ID])
		candidates[i].VendorAction = resolver.Resolve(line, rec.Category, rec.Subcategory)
	}
}

func supplierLinePtr(rec internal.PartRecord, norm internal.NormalizedPart) *string {
	line, _ := catalog.SupplierLineAndPart(rec, norm)
	if line == "" {
		return nil
	}
	return &line
}

func stageMetrics(stage, itemsProcessed int, candidates []internal.MatchCandidate, elapsed time.Duration) internal.StageMetrics {
	found := 0
	confidenceSum := 0.0
	for _, c := range candidates {
		if c.MatchStage == stage {
			found++
			confidenceSum += c.Confidence
		}
	}
	metrics := internal.StageMetrics{
		StageNumber:      stage,
		ItemsProcessed:   itemsProcessed,
		MatchesFound:     found,
		ProcessingTimeMs: float64(elapsed.Milliseconds()),
	}
	if itemsProcessed > 0 {
		metrics.MatchRate = float64(found) / float64(itemsProcessed)
	}
	if found > 0 {
		metrics.AvgConfidence = confidenceSum / float64(found)
	}
	return metrics
}

// RunAll drives batches to completion. Cancellation is checked between
// batches only; each batch commits atomically.
func (o *Orchestrator) RunAll(ctx context.Context, runID string, projectID *int) ([]internal.BatchResult, error) {
	results := []internal.BatchResult{}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := o.RunBatch(ctx, runID, projectID, offset, o.cfg.BatchSize)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		fmt.Printf("batch done run=%s offset=%d candidates=%d remaining=%d\n", runID, offset, len(result.Candidates), result.Progress.Remaining)
		if !result.Progress.HasMore {
			return results, nil
		}
		offset = result.Progress.NextOffset
	}
}
