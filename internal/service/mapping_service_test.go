package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

func seedMapping(t *testing.T, env *testEnv, taxID, normalized string, ingredientID int64, name string) *entity.SupplierProductMapping {
	t.Helper()
	m := &entity.SupplierProductMapping{
		SupplierTaxID:         taxID,
		NormalizedDescription: normalized,
		IngredientID:          ingredientID,
		IngredientName:        name,
		ConversionFactor:      1,
	}
	require.NoError(t, env.mappings.Upsert(nil, m))
	stored, err := env.mappings.Lookup(taxID, normalized)
	require.NoError(t, err)
	return stored
}

func TestMappingLookup_NormalizesInput(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	seedMapping(t, env, "12345678901", "farina tipo 00 25kg", flourID, "Farina 00")

	m, err := env.mappingSvc.Lookup("12345678901", "  FARINA tipo 00, 25kg!")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, flourID, m.IngredientID)

	missing, err := env.mappingSvc.Lookup("12345678901", "olio di semi")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSearchSimilar_RanksByOverlap(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	oilID := env.seedIngredient(t, "Olio EVO", "L")

	seedMapping(t, env, "12345678901", "farina tipo 00 sacco 25kg", flourID, "Farina 00")
	seedMapping(t, env, "12345678901", "farina integrale sacco", flourID, "Farina 00")
	seedMapping(t, env, "12345678901", "olio extravergine lattina", oilID, "Olio EVO")

	scored, err := env.mappingSvc.SearchSimilar("12345678901", "Farina tipo 00 sacco grande")
	require.NoError(t, err)

	// The oil mapping shares no tokens and must not appear.
	require.NotEmpty(t, scored)
	for _, s := range scored {
		assert.NotEqual(t, "olio extravergine lattina", s.Mapping.NormalizedDescription)
	}
	assert.Equal(t, "farina tipo 00 sacco 25kg", scored[0].Mapping.NormalizedDescription)
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
}

func TestSearchSimilar_EmptyDescription(t *testing.T) {
	env := newTestEnv(t)
	scored, err := env.mappingSvc.SearchSimilar("12345678901", "!!!")
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestRepoint_RedirectsAndConfirms(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	manitobaID := env.seedIngredient(t, "Farina Manitoba", "KG")
	m := seedMapping(t, env, "12345678901", "farina speciale", flourID, "Farina 00")

	updated, err := env.mappingSvc.Repoint(m.ID, manitobaID)
	require.NoError(t, err)
	assert.Equal(t, manitobaID, updated.IngredientID)
	assert.Equal(t, "Farina Manitoba", updated.IngredientName)
	assert.True(t, updated.ConfirmedManually)
	assert.Equal(t, m.UsageCount, updated.UsageCount)
}

func TestRepoint_RejectsInactiveIngredient(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	retiredID := env.seedIngredient(t, "Strutto", "KG")
	env.deactivateIngredient(t, retiredID)
	m := seedMapping(t, env, "12345678901", "farina speciale", flourID, "Farina 00")

	_, err := env.mappingSvc.Repoint(m.ID, retiredID)
	assert.Error(t, err)
}

func TestDeactivate_RemovesFromLookup(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	m := seedMapping(t, env, "12345678901", "farina tipo 00", flourID, "Farina 00")

	require.NoError(t, env.mappingSvc.Deactivate(m.ID))

	gone, err := env.mappingSvc.Lookup("12345678901", "farina tipo 00")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// The row survives for audit, it just drops out of the active list.
	stored, err := env.mappings.GetByID(m.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	_, total, err := env.mappingSvc.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
