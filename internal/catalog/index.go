package catalog

import (
	"partrec/internal"
	"partrec/internal/util"
)

// Index holds the read-only lookup structures over the supplier population.
// Built once per run, then shared by every matcher stage.
type Index struct {
	SuppliersByID       map[int]internal.PartRecord
	NormalizedByID      map[int]internal.NormalizedPart
	ByCanonical         map[string][]internal.PartRecord
	ByLineAndPart       map[string][]internal.PartRecord
	ByManufacturerPart  map[string][]internal.PartRecord
	ByLineCode          map[string][]internal.PartRecord
	InterchangeBySource map[string][]internal.InterchangeMapping
	PartInterchangeByKey map[string][]internal.PartNumberInterchange
	RulesByType         map[string][]internal.TransformationRule
	Suppliers           []internal.PartRecord
}

func lineAndPartKey(line, part string) string {
	return line + ":" + part
}

func BuildIndex(
	suppliers []internal.PartRecord,
	interchanges []internal.InterchangeMapping,
	partInterchanges []internal.PartNumberInterchange,
	rules []internal.TransformationRule,
) *Index {
	idx := &Index{
		SuppliersByID:        map[int]internal.PartRecord{},
		NormalizedByID:       map[int]internal.NormalizedPart{},
		ByCanonical:          map[string][]internal.PartRecord{},
		ByLineAndPart:        map[string][]internal.PartRecord{},
		ByManufacturerPart:   map[string][]internal.PartRecord{},
		ByLineCode:           map[string][]internal.PartRecord{},
		InterchangeBySource:  map[string][]internal.InterchangeMapping{},
		PartInterchangeByKey: map[string][]internal.PartNumberInterchange{},
		RulesByType:          map[string][]internal.TransformationRule{},
		Suppliers:            suppliers,
	}

	for _, s := range suppliers {
		norm := util.NormalizePart(s.PartNumber)
		if norm.Canonical == "" {
			continue
		}
		idx.SuppliersByID[s.ID] = s
		idx.NormalizedByID[s.ID] = norm
		idx.ByCanonical[norm.Canonical] = append(idx.ByCanonical[norm.Canonical], s)

		line, part := SupplierLineAndPart(s, norm)
		if line != "" {
			idx.ByLineAndPart[lineAndPartKey(line, part)] = append(idx.ByLineAndPart[lineAndPartKey(line, part)], s)
			idx.ByLineCode[line] = append(idx.ByLineCode[line], s)
		}
		idx.ByManufacturerPart[part] = append(idx.ByManufacturerPart[part], s)
	}

	for _, m := range interchanges {
		key := util.Canonical(m.SourceSku)
		if key == "" {
			continue
		}
		idx.InterchangeBySource[key] = append(idx.InterchangeBySource[key], m)
	}

	for _, p := range partInterchanges {
		key := lineAndPartKey(util.Canonical(p.SourceLineCode), util.Canonical(p.SourcePartNumber))
		idx.PartInterchangeByKey[key] = append(idx.PartInterchangeByKey[key], p)
	}

	for _, r := range rules {
		if !r.Active {
			continue
		}
		idx.RulesByType[r.RuleType] = append(idx.RulesByType[r.RuleType], r)
	}

	return idx
}

// SupplierLineAndPart resolves the line code and manufacturer part for a
// record: the derived split wins, an explicit line code column is the
// fallback, and records with neither compare by full canonical number.
func SupplierLineAndPart(rec internal.PartRecord, norm internal.NormalizedPart) (string, string) {
	if norm.LineCode != nil && norm.ManufacturerPart != nil {
		return *norm.LineCode, *norm.ManufacturerPart
	}
	if rec.LineCode != nil {
		return util.Canonical(*rec.LineCode), norm.Canonical
	}
	return "", norm.Canonical
}

// TargetsForSource returns the interchange targets for a source key, highest
// priority first for part-number interchanges.
func (idx *Index) TargetsForSource(sourceKey string) []internal.InterchangeMapping {
	return idx.InterchangeBySource[sourceKey]
}
