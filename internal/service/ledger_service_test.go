package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
)

func seedLot(t *testing.T, env *testEnv, ingredientID int64, code string, quantity float64, expiry *time.Time) *entity.Lot {
	t.Helper()
	lot := &entity.Lot{
		IngredientID:      ingredientID,
		LotCode:           code,
		InitialQuantity:   quantity,
		RemainingQuantity: quantity,
		Unit:              "KG",
		ArrivalDate:       time.Now().AddDate(0, 0, -1),
		ExpiryDate:        expiry,
		SupplierName:      "Molino Rossi SRL",
		SupplierTaxID:     "12345678901",
		Status:            entity.LotStatusAvailable,
	}
	require.NoError(t, env.lots.Create(nil, lot))
	return lot
}

func TestConsume_DrawsAndRecordsMovement(t *testing.T) {
	env := newTestEnv(t)
	ingredientID := env.seedIngredient(t, "Farina 00", "KG")
	lot := seedLot(t, env, ingredientID, "L-1", 10, nil)

	updated, err := env.ledger.Consume(lot.ID, 4, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, updated.RemainingQuantity)
	assert.Equal(t, entity.LotStatusInUse, updated.Status)
	require.Len(t, updated.Consumptions, 1)
	assert.Equal(t, "ORD-1", updated.Consumptions[0].OrderRef)

	movements, err := env.movements.ListByDocumentRef(nil, "ORD-1")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, entity.MovementTypeOut, movements[0].Type)
	assert.Equal(t, -4.0, movements[0].Quantity)
}

func TestConsume_ExhaustsLot(t *testing.T) {
	env := newTestEnv(t)
	ingredientID := env.seedIngredient(t, "Farina 00", "KG")
	lot := seedLot(t, env, ingredientID, "L-2", 10, nil)

	updated, err := env.ledger.Consume(lot.ID, 10, "ORD-2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, updated.RemainingQuantity)
	assert.Equal(t, entity.LotStatusExhausted, updated.Status)
}

func TestConsume_InsufficientQuantityLeavesLotUntouched(t *testing.T) {
	env := newTestEnv(t)
	ingredientID := env.seedIngredient(t, "Farina 00", "KG")
	lot := seedLot(t, env, ingredientID, "L-3", 5, nil)

	_, err := env.ledger.Consume(lot.ID, 6, "ORD-3")
	assert.ErrorIs(t, err, repository.ErrInsufficientQuantity)

	unchanged, err := env.lots.GetByID(lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, unchanged.RemainingQuantity)
	assert.Empty(t, unchanged.Consumptions)

	// The rejected draw left no movement behind either.
	movements, err := env.movements.ListByDocumentRef(nil, "ORD-3")
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestConsume_UnknownLot(t *testing.T) {
	env := newTestEnv(t)
	env.seedIngredient(t, "Farina 00", "KG")

	_, err := env.ledger.Consume(404, 1, "ORD-4")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
