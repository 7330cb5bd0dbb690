package pipeline

import (
	"math"
	"testing"

	"partrec/internal"
	"partrec/internal/util"
)

func TestScorerHistoryOverrides(t *testing.T) {
	s := NewScorer(
		[]internal.MatchHistory{{StorePartNumber: "blt-3456", SupplierPartNumber: "BLT3456"}},
		[]internal.MatchHistory{{StorePartNumber: "RB1486", SupplierPartNumber: "1486"}},
		nil,
	)

	got := s.CalculateMatchScore(ScoreInput{StorePartNumber: "BLT3456", SupplierPartNumber: "blt 3456"})
	if got.Score != 1.0 || got.Reason != "previously accepted" {
		t.Fatalf("accepted pair: %+v", got)
	}

	got = s.CalculateMatchScore(ScoreInput{StorePartNumber: "rb-1486", SupplierPartNumber: "1486"})
	if got.Score != 0 || got.Reason != "previously rejected" {
		t.Fatalf("rejected pair: %+v", got)
	}
}

func TestScorerHistoryBeatsMasterRule(t *testing.T) {
	s := NewScorer(
		[]internal.MatchHistory{{StorePartNumber: "BLT3456", SupplierPartNumber: "BLT3450"}},
		nil,
		[]internal.MasterRule{{
			StorePartNumber: "BLT3456",
			RuleType:        internal.RuleNegativeBlock,
			Scope:           internal.ScopeGlobal,
			Enabled:         true,
		}},
	)

	got := s.CalculateMatchScore(ScoreInput{StorePartNumber: "BLT3456", SupplierPartNumber: "BLT3450"})
	if got.Score != 1.0 {
		t.Fatalf("history must win over rules: %+v", got)
	}
}

func TestScorerMasterRules(t *testing.T) {
	s := NewScorer(nil, nil, []internal.MasterRule{
		{
			StorePartNumber:    "ABH14717",
			SupplierPartNumber: util.StringPtr("AUV14717"),
			RuleType:           internal.RulePositiveMap,
			Scope:              internal.ScopeGlobal,
			Enabled:            true,
		},
		{
			StorePartNumber: "BAD999",
			RuleType:        internal.RuleNegativeBlock,
			Scope:           internal.ScopeGlobal,
			Enabled:         true,
		},
		{
			StorePartNumber:    "DIS123",
			SupplierPartNumber: util.StringPtr("DIS124"),
			RuleType:           internal.RulePositiveMap,
			Scope:              internal.ScopeGlobal,
			Enabled:            false,
		},
	})

	got := s.CalculateMatchScore(ScoreInput{StorePartNumber: "abh-14717", SupplierPartNumber: "AUV14717"})
	if got.Score != 1.0 || got.Reason != "master rule positive map" {
		t.Fatalf("positive map: %+v", got)
	}

	// A block with no supplier part blocks the store part against any target.
	got = s.CalculateMatchScore(ScoreInput{StorePartNumber: "BAD999", SupplierPartNumber: "WHATEVER1"})
	if got.Score != 0 || got.Reason != "master rule negative block" {
		t.Fatalf("negative block: %+v", got)
	}

	got = s.CalculateMatchScore(ScoreInput{StorePartNumber: "DIS123", SupplierPartNumber: "DIS124"})
	if got.Reason == "master rule positive map" {
		t.Fatalf("disabled rule must not apply: %+v", got)
	}
}

func TestScorerProjectScopedRule(t *testing.T) {
	s := NewScorer(nil, nil, []internal.MasterRule{{
		StorePartNumber:    "ABH14717",
		SupplierPartNumber: util.StringPtr("AUV14717"),
		RuleType:           internal.RulePositiveMap,
		Scope:              internal.ScopeProject,
		ProjectID:          util.IntPtr(7),
		Enabled:            true,
	}})

	got := s.CalculateMatchScore(ScoreInput{
		StorePartNumber:    "ABH14717",
		SupplierPartNumber: "AUV14717",
		ProjectID:          util.IntPtr(7),
	})
	if got.Score != 1.0 {
		t.Fatalf("rule must apply inside its project: %+v", got)
	}

	got = s.CalculateMatchScore(ScoreInput{
		StorePartNumber:    "ABH14717",
		SupplierPartNumber: "AUV14717",
		ProjectID:          util.IntPtr(8),
	})
	if got.Reason == "master rule positive map" {
		t.Fatalf("rule must not leak across projects: %+v", got)
	}
}

func TestScorerCategoryHardFilter(t *testing.T) {
	s := NewScorer(nil, nil, nil)

	got := s.CalculateMatchScore(ScoreInput{
		StorePartNumber:    "WIX57035",
		SupplierPartNumber: "WIX57035",
		StoreCategory:      util.StringPtr("Filters"),
		SupplierCategory:   util.StringPtr("Electrical"),
	})
	if got.Score != 0 || got.Reason != "category mismatch" {
		t.Fatalf("conflicting categories must zero the score: %+v", got)
	}
}

func TestScorerWeightedFormula(t *testing.T) {
	s := NewScorer(nil, nil, nil)

	// Exact part, identical description, matching category, subcategory
	// absent on both sides (neutral 0.5).
	got := s.CalculateMatchScore(ScoreInput{
		StorePartNumber:    "BLT3456",
		SupplierPartNumber: "blt-3456",
		StoreDescription:   util.StringPtr("Serpentine belt heavy duty"),
		SupplierDesc:       util.StringPtr("heavy duty serpentine belt"),
		StoreCategory:      util.StringPtr("Belts"),
		SupplierCategory:   util.StringPtr("belts"),
	})
	want := 0.5*1 + 0.3*1 + 0.1*1 + 0.1*0.5
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got.Score, want)
	}
	if got.Reason != "weighted similarity" {
		t.Fatalf("reason = %q", got.Reason)
	}

	// Part number only: descriptions and categories all absent.
	got = s.CalculateMatchScore(ScoreInput{
		StorePartNumber:    "BLT3456",
		SupplierPartNumber: "BLT3456",
	})
	want = 0.5*1 + 0.1*0.5 + 0.1*0.5
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got.Score, want)
	}
}
