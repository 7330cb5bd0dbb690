package pipeline

import (
	"strings"

	"partrec/internal"
	"partrec/internal/catalog"
	"partrec/internal/config"
	"partrec/internal/util"
)

// Known house-brand prefixes that suppliers file interchangeable parts
// under. Tried last, and only when no earlier method produced a candidate.
var knownAffixPrefixes = []string{"ABC", "DTN", "RB", "NAP", "GP", "WIX"}

type ExactMatcher struct {
	cfg          config.Config
	index        *catalog.Index
	translations []internal.LineCodeTranslation
}

func NewExactMatcher(cfg config.Config, index *catalog.Index, translations []internal.LineCodeTranslation) *ExactMatcher {
	return &ExactMatcher{cfg: cfg, index: index, translations: translations}
}

// MatchItem applies every deterministic method in priority order. The first
// hit wins within a method; separate methods may each contribute a candidate
// for the same store record as long as the target differs.
func (m *ExactMatcher) MatchItem(item NormalizedItem) []internal.MatchCandidate {
	return m.match(item, false)
}

// GlobalMatchItem runs only the population-wide methods (interchange and the
// transformation-rule sweep), used by the offset-0 global stage.
func (m *ExactMatcher) GlobalMatchItem(item NormalizedItem) []internal.MatchCandidate {
	return m.match(item, true)
}

func (m *ExactMatcher) match(item NormalizedItem, globalOnly bool) []internal.MatchCandidate {
	stage := internal.StageDeterministic
	if globalOnly {
		stage = internal.StageGlobal
	}

	out := []internal.MatchCandidate{}
	paired := map[int]struct{}{}

	emit := func(target internal.PartRecord, method internal.MatchMethod, conf float64, features internal.MatchFeatures) bool {
		if _, ok := paired[target.ID]; ok {
			return false
		}
		paired[target.ID] = struct{}{}
		out = append(out, internal.MatchCandidate{
			StoreItemID:    item.ID,
			SupplierItemID: target.ID,
			Method:         method,
			Confidence:     util.Clamp01(conf),
			MatchStage:     stage,
			Features:       features,
			VendorAction:   internal.ActionNone,
			Status:         internal.StatusPending,
		})
		return true
	}

	firstUnpaired := func(bucket []internal.PartRecord) (internal.PartRecord, bool) {
		for _, rec := range bucket {
			if _, ok := paired[rec.ID]; !ok {
				return rec, true
			}
		}
		return internal.PartRecord{}, false
	}

	m.matchInterchange(item, emit, firstUnpaired)

	if !globalOnly {
		m.matchCanonical(item, emit, firstUnpaired)
		m.matchLineAndPart(item, emit, firstUnpaired)
		m.matchPartOnly(item, emit, firstUnpaired)
		m.matchPrefixStrip(item, emit, firstUnpaired)
		if len(out) == 0 {
			m.matchAffixVariation(item, emit, firstUnpaired)
		}
	}

	m.matchTransformationRules(item, emit, firstUnpaired)

	return out
}

type emitFunc func(internal.PartRecord, internal.MatchMethod, float64, internal.MatchFeatures) bool
type pickFunc func([]internal.PartRecord) (internal.PartRecord, bool)

func (m *ExactMatcher) matchInterchange(item NormalizedItem, emit emitFunc, pick pickFunc) {
	sourceKey := item.FullSku()
	for _, mapping := range m.index.InterchangeBySource[sourceKey] {
		bucket := m.index.ByCanonical[util.Canonical(mapping.TargetSku)]
		target, ok := pick(bucket)
		if !ok {
			continue
		}
		conf := mapping.Confidence
		if conf <= 0 {
			conf = 1.0
		}
		emit(target, internal.MethodInterchange, conf, internal.MatchFeatures{
			PartSimilarity: 1,
			Reason:         "known interchange " + mapping.SourceSku + " -> " + mapping.TargetSku,
		})
		return
	}

	line, part := item.LineAndPart()
	if line == "" {
		return
	}
	best := (*internal.PartNumberInterchange)(nil)
	for i, pi := range m.index.PartInterchangeByKey[line+":"+part] {
		if best == nil || pi.Priority > best.Priority {
			best = &m.index.PartInterchangeByKey[line+":"+part][i]
		}
	}
	if best == nil {
		return
	}
	key := util.Canonical(best.TargetLineCode) + ":" + util.Canonical(best.TargetPartNumber)
	if target, ok := pick(m.index.ByLineAndPart[key]); ok {
		emit(target, internal.MethodInterchange, 1.0, internal.MatchFeatures{
			PartSimilarity: 1,
			Reason:         "part number interchange " + best.SourceLineCode + ":" + best.SourcePartNumber,
		})
	}
}

func (m *ExactMatcher) matchCanonical(item NormalizedItem, emit emitFunc, pick pickFunc) {
	target, ok := pick(m.index.ByCanonical[item.Norm.Canonical])
	if !ok {
		return
	}
	conf, costSim := m.boost(0.95, 0.99, m.cfg.CostTolerancePct, item.Cost, target.Cost)
	emit(target, internal.MethodCanonical, conf, internal.MatchFeatures{
		PartSimilarity: 1,
		CostSimilarity: costSim,
		Reason:         "exact canonical part number",
	})
}

func (m *ExactMatcher) matchLineAndPart(item NormalizedItem, emit emitFunc, pick pickFunc) {
	line, part := item.LineAndPart()
	if line == "" {
		return
	}

	var translated *string
	bucket := m.index.ByLineAndPart[line+":"+part]
	if len(bucket) == 0 {
		if t := m.bestTranslation(line, item.ProjectID); t != nil {
			bucket = m.index.ByLineAndPart[util.Canonical(t.TargetLineCode)+":"+part]
			translated = util.StringPtr(t.TargetLineCode)
		}
	}

	target, ok := pick(bucket)
	if !ok {
		return
	}
	conf, costSim := m.boost(0.90, 0.95, m.cfg.CostTolerancePct, item.Cost, target.Cost)
	emit(target, internal.MethodLineAndPart, conf, internal.MatchFeatures{
		PartSimilarity: 1,
		CostSimilarity: costSim,
		TranslatedLine: translated,
		Reason:         "line code and manufacturer part",
	})
}

func (m *ExactMatcher) matchPartOnly(item NormalizedItem, emit emitFunc, pick pickFunc) {
	if item.Norm.ManufacturerPart == nil {
		return
	}
	target, ok := pick(m.index.ByManufacturerPart[*item.Norm.ManufacturerPart])
	if !ok {
		return
	}

	conf := 0.75
	var costSim *float64
	if util.CostsClose(item.Cost, target.Cost, m.cfg.CostToleranceWidePct) {
		conf += 0.10
		costSim = util.FloatPtr(util.CostSimilarity(*item.Cost, *target.Cost))
	}
	storeLine, _ := item.LineAndPart()
	targetLine, _ := catalog.SupplierLineAndPart(target, m.index.NormalizedByID[target.ID])
	if storeLine != "" && storeLine == targetLine {
		conf += 0.10
	}
	if conf > 0.90 {
		conf = 0.90
	}
	emit(target, internal.MethodPartOnly, conf, internal.MatchFeatures{
		PartSimilarity: 1,
		CostSimilarity: costSim,
		Reason:         "manufacturer part ignoring line code",
	})
}

func (m *ExactMatcher) matchPrefixStrip(item NormalizedItem, emit emitFunc, pick pickFunc) {
	if item.Norm.ManufacturerPart == nil {
		return
	}
	target, ok := pick(m.index.ByCanonical[*item.Norm.ManufacturerPart])
	if !ok {
		return
	}
	conf, costSim := m.boost(0.85, 0.92, m.cfg.CostToleranceWidePct, item.Cost, target.Cost)
	emit(target, internal.MethodPrefixStrip, conf, internal.MatchFeatures{
		PartSimilarity: 1,
		CostSimilarity: costSim,
		StrippedPrefix: item.Norm.LineCode,
		Reason:         "line code prefix stripped",
	})
}

func (m *ExactMatcher) matchAffixVariation(item NormalizedItem, emit emitFunc, pick pickFunc) {
	canonical := item.Norm.Canonical
	for _, prefix := range knownAffixPrefixes {
		if !strings.HasPrefix(canonical, prefix) || len(canonical)-len(prefix) < 2 {
			continue
		}
		target, ok := pick(m.index.ByCanonical[canonical[len(prefix):]])
		if !ok {
			continue
		}
		conf, costSim := m.boost(0.80, 0.88, m.cfg.CostToleranceWidePct, item.Cost, target.Cost)
		emit(target, internal.MethodAffixVariation, conf, internal.MatchFeatures{
			PartSimilarity: 1,
			CostSimilarity: costSim,
			StrippedPrefix: util.StringPtr(prefix),
			Reason:         "known affix variation " + prefix,
		})
		return
	}
}

func (m *ExactMatcher) matchTransformationRules(item NormalizedItem, emit emitFunc, pick pickFunc) {
	raw := strings.ToUpper(strings.TrimSpace(item.PartNumber))
	for _, rule := range m.index.RulesByType[internal.RuleTypePunctuation] {
		substituted := strings.ReplaceAll(raw, strings.ToUpper(rule.FromPattern), strings.ToUpper(rule.ToPattern))
		if substituted == raw {
			continue
		}
		target, ok := pick(m.index.ByCanonical[util.Canonical(substituted)])
		if !ok {
			continue
		}
		emit(target, internal.MethodTransformationRule, rule.Confidence, internal.MatchFeatures{
			PartSimilarity: 1,
			AppliedRule:    util.StringPtr(rule.FromPattern + " -> " + rule.ToPattern),
			Reason:         "transformation rule",
		})
		return
	}
}

// boost lifts a method's base confidence toward its cap in proportion to the
// cost similarity. Cost disagreement never lowers the base.
func (m *ExactMatcher) boost(base, ceiling, tolerancePct float64, storeCost, targetCost *float64) (float64, *float64) {
	if !util.CostsClose(storeCost, targetCost, tolerancePct) {
		return base, nil
	}
	sim := util.CostSimilarity(*storeCost, *targetCost)
	conf := base + (ceiling-base)*sim
	if conf > ceiling {
		conf = ceiling
	}
	return conf, &sim
}

// bestTranslation picks the line-code translation to try: project-scoped
// entries outrank global ones, then higher priority wins.
func (m *ExactMatcher) bestTranslation(sourceLine string, projectID *int) *internal.LineCodeTranslation {
	var best *internal.LineCodeTranslation
	for i, t := range m.translations {
		if util.Canonical(t.SourceLineCode) != sourceLine {
			continue
		}
		if t.ProjectID != nil && (projectID == nil || *t.ProjectID != *projectID) {
			continue
		}
		if best == nil || rankTranslation(t, projectID) > rankTranslation(*best, projectID) {
			best = &m.translations[i]
		}
	}
	return best
}

func rankTranslation(t internal.LineCodeTranslation, projectID *int) int {
	rank := t.Priority
	if t.ProjectID != nil && projectID != nil && *t.ProjectID == *projectID {
		rank += 1 << 20
	}
	return rank
}
