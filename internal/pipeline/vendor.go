package pipeline

import (
	"strings"

	"partrec/internal"
)

const wildcard = "*"

// VendorResolver ranks configured vendor action rules by specificity:
// exact category + exact subcategory (3) beats exact category + wildcard (2)
// beats wildcard + wildcard (1). Other combinations are excluded.
type VendorResolver struct {
	byLineCode map[string][]internal.VendorActionRule
}

func NewVendorResolver(rules []internal.VendorActionRule) *VendorResolver {
	r := &VendorResolver{byLineCode: map[string][]internal.VendorActionRule{}}
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(rule.SupplierLineCode))
		r.byLineCode[key] = append(r.byLineCode[key], rule)
	}
	return r
}

func (r *VendorResolver) Resolve(supplierLineCode *string, category, subcategory *string) internal.VendorAction {
	if supplierLineCode == nil || strings.TrimSpace(*supplierLineCode) == "" {
		return internal.ActionNone
	}

	bestRank := 0
	action := internal.ActionNone
	for _, rule := range r.byLineCode[strings.ToUpper(strings.TrimSpace(*supplierLineCode))] {
		rank := specificity(rule, category, subcategory)
		if rank > bestRank {
			bestRank = rank
			action = rule.Action
		}
	}
	return action
}

func specificity(rule internal.VendorActionRule, category, subcategory *string) int {
	catExact := patternMatchesExact(rule.CategoryPattern, category)
	catWild := rule.CategoryPattern == wildcard
	subExact := patternMatchesExact(rule.SubcategoryPattern, subcategory)
	subWild := rule.SubcategoryPattern == wildcard

	switch {
	case catExact && subExact:
		return 3
	case catExact && subWild:
		return 2
	case catWild && subWild:
		return 1
	default:
		return 0
	}
}

func patternMatchesExact(pattern string, value *string) bool {
	if pattern == wildcard || value == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(pattern), strings.TrimSpace(*value))
}

// DistinctLineCodes collects the supplier line codes present in a batch so
// the orchestrator can fetch rules for all of them in one call.
func DistinctLineCodes(records []internal.PartRecord, norms map[int]internal.NormalizedPart) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range records {
		line := ""
		if norm, ok := norms[rec.ID]; ok && norm.LineCode != nil {
			line = *norm.LineCode
		} else if rec.LineCode != nil {
			line = strings.ToUpper(strings.TrimSpace(*rec.LineCode))
		}
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
