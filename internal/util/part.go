package util

import (
	"strings"

	"partrec/internal"
)

// NormalizePart derives all comparable forms of a raw part number. The line
// code is the first 3 characters of the canonical form, accepted only when it
// carries at least 2 letters and leaves a remainder of 2+ characters, which
// guards against splitting purely numeric part numbers.
func NormalizePart(raw string) internal.NormalizedPart {
	canonical := Canonical(raw)
	part := internal.NormalizedPart{
		Original:        raw,
		Canonical:       canonical,
		NormalizedLower: strings.ToLower(canonical),
	}

	if len(canonical) >= 5 {
		prefix := canonical[:3]
		letters := 0
		for _, r := range prefix {
			if r >= 'A' && r <= 'Z' {
				letters++
			}
		}
		remainder := canonical[3:]
		if letters >= 2 && len(remainder) >= 2 {
			part.LineCode = StringPtr(prefix)
			part.ManufacturerPart = StringPtr(remainder)
		}
	}

	return part
}

// FullSku is the canonical line-code-qualified key used for interchange
// lookups. An explicit line code is prepended unless the part number already
// starts with it.
func FullSku(lineCode *string, partNumber string) string {
	canonical := Canonical(partNumber)
	if lineCode == nil {
		return canonical
	}
	line := Canonical(*lineCode)
	if line == "" || strings.HasPrefix(canonical, line) {
		return canonical
	}
	return line + canonical
}

type punctTransform struct {
	signature string
	apply     func(string) string
}

var punctTransforms = []punctTransform{
	{"slash_to_dash", replaceAll("/", "-")},
	{"dash_to_slash", replaceAll("-", "/")},
	{"dot_to_dash", replaceAll(".", "-")},
	{"dash_to_dot", replaceAll("-", ".")},
	{"space_to_dash", replaceAll(" ", "-")},
	{"remove_dash", replaceAll("-", "")},
	{"remove_slash", replaceAll("/", "")},
	{"remove_dot", replaceAll(".", "")},
	{"remove_space", replaceAll(" ", "")},
}

func replaceAll(from, to string) func(string) string {
	return func(s string) string { return strings.ReplaceAll(s, from, to) }
}

// TransformationSignature labels the punctuation-level edit that turns one
// part number into an equivalent one. Nil when the two are not equivalent
// after canonicalization.
func TransformationSignature(from, to string) *string {
	if from == to {
		return nil
	}
	if Canonical(from) != Canonical(to) {
		return nil
	}
	if strings.EqualFold(from, to) {
		return StringPtr("case_change")
	}
	upperFrom := strings.ToUpper(from)
	upperTo := strings.ToUpper(to)
	for _, t := range punctTransforms {
		if t.apply(upperFrom) == upperTo {
			sig := t.signature
			return &sig
		}
	}
	return StringPtr("punct_variant")
}
