package util

import (
	"math"
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var (
	reNonWord    = regexp.MustCompile(`[^a-z0-9\s]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	levenshtein  = metrics.NewLevenshtein()
	minTokenRune = 3
)

// Canonical strips everything except letters and digits and upper-cases.
func Canonical(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func NormalizeLower(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = reNonWord.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize lowers, strips punctuation and keeps words longer than 2 runes.
func Tokenize(input string) []string {
	parts := strings.Split(NormalizeLower(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= minTokenRune {
			out = append(out, p)
		}
	}
	return out
}

func JaccardIndex(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := map[string]struct{}{}
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// LevenshteinSimilarity returns 1 - dist/maxLen over the inputs as given.
func LevenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, levenshtein)
}

// PercentDiff is the absolute difference relative to the larger value, in
// percent. Zero when both values are zero.
func PercentDiff(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger * 100
}

// CostSimilarity decays exponentially with the percent difference.
func CostSimilarity(a, b float64) float64 {
	return math.Exp(-0.1 * PercentDiff(a, b))
}

func CostsClose(a, b *float64, tolerancePct float64) bool {
	if a == nil || b == nil {
		return false
	}
	return PercentDiff(*a, *b) <= tolerancePct
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

func IntPtr(v int) *int { return &v }
