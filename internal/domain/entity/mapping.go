package entity

import "time"

// SupplierProductMapping is a learned association between a supplier's
// free-text product description and an internal ingredient. Keyed by
// (supplier tax id, normalized description); reused as a fast path that
// bypasses fuzzy matching on repeat imports. Soft-disabled, never deleted.
type SupplierProductMapping struct {
	ID                    int64   `json:"id"`
	SupplierTaxID         string  `json:"supplier_tax_id"`
	NormalizedDescription string  `json:"normalized_description"`
	IngredientID          int64   `json:"ingredient_id"`
	IngredientName        string  `json:"ingredient_name"`
	IngredientCategory    string  `json:"ingredient_category,omitempty"`
	ConversionFactor      float64 `json:"conversion_factor"`

	UsageCount        int       `json:"usage_count"`
	LastUsedAt        time.Time `json:"last_used_at"`
	ConfirmedManually bool      `json:"confirmed_manually"`
	SimilarityScore   *int      `json:"similarity_score,omitempty"`
	Active            bool      `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoredMapping is a mapping candidate ranked against a new description.
type ScoredMapping struct {
	Mapping *SupplierProductMapping `json:"mapping"`
	Score   int                     `json:"score"`
}
