package pipeline

import (
	"strings"

	"partrec/internal"
	"partrec/internal/catalog"
	"partrec/internal/config"
	"partrec/internal/util"
)

const (
	partWeight = 0.7
	descWeight = 0.3

	// Containment matches get a lowered bar relative to the configured
	// fuzzy threshold.
	containmentThresholdFactor = 0.8

	costBonusWeight  = 0.05
	costBonusCeiling = 0.95
	costPenaltyRatio = 0.9
)

type FuzzyMatcher struct {
	cfg   config.Config
	index *catalog.Index
}

func NewFuzzyMatcher(cfg config.Config, index *catalog.Index) *FuzzyMatcher {
	return &FuzzyMatcher{cfg: cfg, index: index}
}

// MatchItem scores the candidate pool and keeps the single best candidate at
// or above its effective threshold. Candidates are visited in the supplier
// snapshot's slice order and ties go to the first seen, which keeps repeated
// runs over an unchanged snapshot reproducible.
func (m *FuzzyMatcher) MatchItem(item NormalizedItem) *internal.MatchCandidate {
	pool := m.candidatePool(item)
	if len(pool) == 0 {
		return nil
	}

	storeTokens := []string{}
	if item.Description != nil {
		storeTokens = util.Tokenize(*item.Description)
	}

	var best *internal.MatchCandidate
	var runnerUp *internal.MatchCandidate

	for _, target := range pool {
		targetNorm, ok := m.index.NormalizedByID[target.ID]
		if !ok {
			continue
		}

		partSim, method := partSimilarity(item.Norm.Canonical, targetNorm.Canonical)
		threshold := m.cfg.FuzzyThreshold
		if method == internal.MethodSubstring {
			threshold *= containmentThresholdFactor
		}

		// With no description on either side the part number is the only
		// signal, so its weight takes the whole score.
		descSim := 0.0
		score := partSim
		if target.Description != nil && len(storeTokens) > 0 {
			descSim = util.JaccardIndex(storeTokens, util.Tokenize(*target.Description))
			score = partWeight*partSim + descWeight*descSim
		}
		adjusted, costSim := m.adjustForCost(score, item.Cost, target.Cost)
		if adjusted < threshold {
			continue
		}

		cand := internal.MatchCandidate{
			StoreItemID:    item.ID,
			SupplierItemID: target.ID,
			Method:         method,
			Confidence:     util.Clamp01(adjusted),
			MatchStage:     internal.StageFuzzy,
			Features: internal.MatchFeatures{
				PartSimilarity: partSim,
				DescSimilarity: descSim,
				CostSimilarity: costSim,
				Reason:         "fuzzy part and description similarity",
			},
			VendorAction: internal.ActionNone,
			Status:       internal.StatusPending,
		}

		switch {
		case best == nil:
			best = &cand
		case cand.Confidence > best.Confidence:
			runnerUp = best
			best = &cand
		case runnerUp == nil || cand.Confidence > runnerUp.Confidence:
			runnerUp = &cand
		}
	}

	if best != nil && runnerUp != nil {
		best.Features.RunnerUpID = util.IntPtr(runnerUp.SupplierItemID)
		best.Features.RunnerUpScore = util.FloatPtr(runnerUp.Confidence)
	}
	return best
}

// candidatePool prefers the store item's line-code bucket when it is
// non-empty and under the candidate cap, otherwise the full population.
func (m *FuzzyMatcher) candidatePool(item NormalizedItem) []internal.PartRecord {
	line, _ := item.LineAndPart()
	if line != "" {
		bucket := m.index.ByLineCode[line]
		if len(bucket) > 0 && len(bucket) < m.cfg.FuzzyCandidateCap {
			return bucket
		}
	}
	return m.index.Suppliers
}

func partSimilarity(a, b string) (float64, internal.MatchMethod) {
	if a == "" || b == "" {
		return 0, internal.MethodFuzzy
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer), internal.MethodSubstring
	}
	return util.LevenshteinSimilarity(a, b), internal.MethodFuzzy
}

func (m *FuzzyMatcher) adjustForCost(score float64, storeCost, targetCost *float64) (float64, *float64) {
	if storeCost == nil || targetCost == nil {
		return score, nil
	}
	pctDiff := util.PercentDiff(*storeCost, *targetCost)
	costSim := util.CostSimilarity(*storeCost, *targetCost)
	if pctDiff <= m.cfg.CostTolerancePct {
		adjusted := score + costSim*costBonusWeight
		if adjusted > costBonusCeiling {
			adjusted = costBonusCeiling
		}
		return adjusted, &costSim
	}
	if pctDiff > m.cfg.CostPenaltyPct {
		return score * costPenaltyRatio, &costSim
	}
	return score, &costSim
}
