package pipeline

import (
	"strings"

	"partrec/internal"
	"partrec/internal/util"
)

const (
	scorePartWeight     = 0.5
	scoreDescWeight     = 0.3
	scoreCategoryWeight = 0.1
	scoreSubcatWeight   = 0.1

	categoryNeutral = 0.5
)

type ScoreInput struct {
	StorePartNumber    string
	SupplierPartNumber string
	StoreDescription   *string
	SupplierDesc       *string
	StoreCategory      *string
	SupplierCategory   *string
	StoreSubcategory   *string
	SupplierSubcat     *string
	ProjectID          *int
}

type ScoreResult struct {
	Score    float64
	Reason   string
	Features internal.MatchFeatures
}

// Scorer computes the weighted confidence for a pair, after consulting the
// terminal overrides: review history and master rules fully determine the
// score when they apply.
type Scorer struct {
	accepted map[string]struct{}
	rejected map[string]struct{}
	rules    []internal.MasterRule
}

func NewScorer(accepted, rejected []internal.MatchHistory, rules []internal.MasterRule) *Scorer {
	s := &Scorer{
		accepted: map[string]struct{}{},
		rejected: map[string]struct{}{},
	}
	for _, h := range accepted {
		s.accepted[pairKey(h.StorePartNumber, h.SupplierPartNumber)] = struct{}{}
	}
	for _, h := range rejected {
		s.rejected[pairKey(h.StorePartNumber, h.SupplierPartNumber)] = struct{}{}
	}
	for _, r := range rules {
		if r.Enabled {
			s.rules = append(s.rules, r)
		}
	}
	return s
}

func pairKey(storePart, supplierPart string) string {
	return util.Canonical(storePart) + "|" + util.Canonical(supplierPart)
}

func (s *Scorer) CalculateMatchScore(in ScoreInput) ScoreResult {
	key := pairKey(in.StorePartNumber, in.SupplierPartNumber)

	if _, ok := s.accepted[key]; ok {
		return ScoreResult{Score: 1.0, Reason: "previously accepted", Features: internal.MatchFeatures{PartSimilarity: 1, Reason: "previously accepted"}}
	}
	if _, ok := s.rejected[key]; ok {
		return ScoreResult{Score: 0, Reason: "previously rejected", Features: internal.MatchFeatures{Reason: "previously rejected"}}
	}

	if rule := s.matchingRule(in); rule != nil {
		switch rule.RuleType {
		case internal.RulePositiveMap:
			return ScoreResult{Score: 1.0, Reason: "master rule positive map", Features: internal.MatchFeatures{PartSimilarity: 1, Reason: "master rule positive map"}}
		case internal.RuleNegativeBlock:
			return ScoreResult{Score: 0, Reason: "master rule negative block", Features: internal.MatchFeatures{Reason: "master rule negative block"}}
		}
	}

	if bothPresent(in.StoreCategory, in.SupplierCategory) && !equalFold(in.StoreCategory, in.SupplierCategory) {
		return ScoreResult{Score: 0, Reason: "category mismatch", Features: internal.MatchFeatures{Reason: "category mismatch"}}
	}

	partSim := scorePartSimilarity(in.StorePartNumber, in.SupplierPartNumber)
	descSim := 0.0
	if in.StoreDescription != nil && in.SupplierDesc != nil {
		descSim = util.JaccardIndex(util.Tokenize(*in.StoreDescription), util.Tokenize(*in.SupplierDesc))
	}
	catMatch := fieldMatch(in.StoreCategory, in.SupplierCategory)
	subcatMatch := fieldMatch(in.StoreSubcategory, in.SupplierSubcat)

	score := util.Clamp01(scorePartWeight*partSim + scoreDescWeight*descSim + scoreCategoryWeight*catMatch + scoreSubcatWeight*subcatMatch)
	return ScoreResult{
		Score:  score,
		Reason: "weighted similarity",
		Features: internal.MatchFeatures{
			PartSimilarity: partSim,
			DescSimilarity: descSim,
			CategoryMatch:  util.FloatPtr(catMatch),
			Reason:         "weighted similarity",
		},
	}
}

// matchingRule returns the first enabled master rule covering the pair.
// POSITIVE_MAP requires both sides to match; NEGATIVE_BLOCK with a nil
// supplier part blocks the store part against any target.
func (s *Scorer) matchingRule(in ScoreInput) *internal.MasterRule {
	storeKey := util.Canonical(in.StorePartNumber)
	supplierKey := util.Canonical(in.SupplierPartNumber)
	for i, r := range s.rules {
		if r.Scope == internal.ScopeProject {
			if r.ProjectID == nil || in.ProjectID == nil || *r.ProjectID != *in.ProjectID {
				continue
			}
		}
		if util.Canonical(r.StorePartNumber) != storeKey {
			continue
		}
		if r.SupplierPartNumber == nil {
			if r.RuleType == internal.RuleNegativeBlock {
				return &s.rules[i]
			}
			continue
		}
		if util.Canonical(*r.SupplierPartNumber) == supplierKey {
			return &s.rules[i]
		}
	}
	return nil
}

// scorePartSimilarity compares punctuation-stripped upper-cased forms, with
// an exact-equality short circuit.
func scorePartSimilarity(a, b string) float64 {
	ca := util.Canonical(a)
	cb := util.Canonical(b)
	if ca == cb && ca != "" {
		return 1
	}
	return util.LevenshteinSimilarity(ca, cb)
}

func fieldMatch(a, b *string) float64 {
	if a == nil || b == nil {
		return categoryNeutral
	}
	if equalFold(a, b) {
		return 1
	}
	return 0
}

func bothPresent(a, b *string) bool {
	return a != nil && strings.TrimSpace(*a) != "" && b != nil && strings.TrimSpace(*b) != ""
}

func equalFold(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*a), strings.TrimSpace(*b))
}
