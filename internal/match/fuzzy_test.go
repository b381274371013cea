package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Farina Tipo 00", "farina tipo 00"},
		{"strips diacritics", "Caffè Macinato", "caffe macinato"},
		{"replaces punctuation", "olio extra-vergine (5L)", "olio extra vergine 5l"},
		{"collapses whitespace", "  pasta   di  semola ", "pasta di semola"},
		{"empty", "", ""},
		{"only punctuation", "--/--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestTokenize_DiscardsShortTokens(t *testing.T) {
	tokens := Tokenize("farina di 00 tipo kg")
	assert.Equal(t, []string{"farina", "tipo"}, tokens)
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{"identical after normalization", "Farina Tipo 00 25kg", "farina tipo 00 25KG", 100},
		{"no shared tokens", "farina tipo", "pomodoro pelato", 0},
		{"partial overlap", "farina tipo integrale", "farina tipo manitoba", 66},
		{"empty left", "", "farina", 0},
		{"only short tokens", "di 00 kg", "farina", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TokenOverlap(tt.a, tt.b))
		})
	}
}

func TestNameCoverage(t *testing.T) {
	tests := []struct {
		name        string
		description string
		ingredient  string
		expected    int
	}{
		// Every name token appears in the longer supplier description.
		{"name fully covered", "FARINA TIPO 00 sacco da 25kg", "Farina Tipo 00", 100},
		{"half covered", "farina bianca sacco", "farina manitoba", 50},
		{"zero shared tokens", "pomodoro pelato", "farina tipo", 0},
		{"empty name", "farina", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NameCoverage(tt.description, tt.ingredient))
		})
	}
}

func TestNameCoverage_AsymmetryAgainstTokenOverlap(t *testing.T) {
	desc := "FARINA TIPO 00 confezione sacco carta 25kg molino rossi"
	name := "Farina Tipo 00"

	// The asymmetric form ignores the extra description tokens; the
	// symmetric form does not. This is why line-to-ingredient suggestion
	// uses NameCoverage.
	assert.Equal(t, 100, NameCoverage(desc, name))
	assert.Less(t, TokenOverlap(desc, name), 100)
}

func TestBestIngredient(t *testing.T) {
	candidates := []*entity.Ingredient{
		{ID: 1, Name: "Pomodoro Pelato"},
		{ID: 2, Name: "Farina 00"},
		{ID: 3, Name: "Farina Manitoba"},
	}

	t.Run("picks highest scoring candidate", func(t *testing.T) {
		got := BestIngredient("Farina tipo 00 25kg", candidates, DefaultSuggestThreshold)
		if assert.NotNil(t, got) {
			assert.Equal(t, int64(2), got.Ingredient.ID)
			assert.GreaterOrEqual(t, got.Score, 60)
		}
	})

	t.Run("nil below threshold", func(t *testing.T) {
		got := BestIngredient("acqua minerale naturale", candidates, DefaultSuggestThreshold)
		assert.Nil(t, got)
	})

	t.Run("tie breaks to first seen", func(t *testing.T) {
		tied := []*entity.Ingredient{
			{ID: 10, Name: "Farina Integrale"},
			{ID: 11, Name: "Farina Manitoba"},
		}
		got := BestIngredient("farina sacco 25kg", tied, DefaultSuggestThreshold)
		if assert.NotNil(t, got) {
			assert.Equal(t, int64(10), got.Ingredient.ID)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		assert.Nil(t, BestIngredient("farina", nil, DefaultSuggestThreshold))
	})
}
