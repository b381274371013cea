package match

import "github.com/stockfood/traceflow/internal/domain/entity"

// Default acceptance thresholds. Callers take their effective values from
// configuration; these are the fallbacks.
const (
	DefaultSuggestThreshold = 40 // surface as a suggestion needing confirmation
	DefaultSimilarThreshold = 60 // auto-propose in mapping-similarity lookups
	DefaultSearchThreshold  = 50 // keep in search-similar result lists
)

// TokenOverlap scores two descriptions symmetrically with a token Dice
// coefficient: 2*|intersection| / (|tokensA|+|tokensB|) * 100. Used when
// comparing a new description against stored mapping descriptions, where
// both sides are supplier phrasing of comparable length.
func TokenOverlap(a, b string) int {
	tokensA := Tokenize(Normalize(a))
	tokensB := Tokenize(Normalize(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}

	seen := make(map[string]bool, len(tokensB))
	common := 0
	for _, t := range tokensB {
		if setA[t] && !seen[t] {
			common++
			seen[t] = true
		}
	}

	return common * 2 * 100 / (len(tokensA) + len(tokensB))
}

// NameCoverage scores a supplier description against a single ingredient
// name asymmetrically: matched name tokens / total name tokens * 100.
// Ingredient names are typically shorter than supplier descriptions, so
// every name token should ideally appear in the description; the symmetric
// form would punish the extra description tokens. Not interchangeable with
// TokenOverlap.
func NameCoverage(description, name string) int {
	nameTokens := Tokenize(Normalize(name))
	if len(nameTokens) == 0 {
		return 0
	}

	descSet := make(map[string]bool)
	for _, t := range Tokenize(Normalize(description)) {
		descSet[t] = true
	}

	matched := 0
	for _, t := range nameTokens {
		if descSet[t] {
			matched++
		}
	}

	return matched * 100 / len(nameTokens)
}

// Suggestion is a scored ingredient candidate for an invoice line.
type Suggestion struct {
	Ingredient *entity.Ingredient `json:"ingredient"`
	Score      int                `json:"score"`
}

// BestIngredient scores a description against every candidate with
// NameCoverage and returns the best suggestion at or above threshold, or
// nil. Ties break to the first highest seen, so candidate order is part of
// the contract and must be stable.
func BestIngredient(description string, candidates []*entity.Ingredient, threshold int) *Suggestion {
	var best *Suggestion
	for _, ing := range candidates {
		score := NameCoverage(description, ing.Name)
		if score < threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Suggestion{Ingredient: ing, Score: score}
		}
	}
	return best
}
