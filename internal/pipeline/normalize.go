package pipeline

import (
	"partrec/internal"
	"partrec/internal/catalog"
	"partrec/internal/util"
)

type NormalizedItem struct {
	internal.PartRecord
	Norm internal.NormalizedPart
}

// NormalizeItems computes comparable forms for every record. Records whose
// part number canonicalizes to nothing are dropped here, before any stage
// sees them.
func NormalizeItems(items []internal.PartRecord) []NormalizedItem {
	out := make([]NormalizedItem, 0, len(items))
	for _, item := range items {
		norm := util.NormalizePart(item.PartNumber)
		if norm.Canonical == "" {
			continue
		}
		out = append(out, NormalizedItem{PartRecord: item, Norm: norm})
	}
	return out
}

func (n NormalizedItem) LineAndPart() (string, string) {
	return catalog.SupplierLineAndPart(n.PartRecord, n.Norm)
}

func (n NormalizedItem) FullSku() string {
	return util.FullSku(n.LineCode, n.PartNumber)
}
