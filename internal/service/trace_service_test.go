package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
)

func TestTraceByLot_FollowsDocumentAndDraws(t *testing.T) {
	env := newTestEnv(t)
	env.seedIngredient(t, "Farina 00", "KG")

	doc := invoiceXML("12345678901", "Molino Rossi SRL", "FT-500", "2025-05-01", []lineSpec{
		{desc: "Farina 00", qty: "10.00", price: "1.20", lot: "L-500"},
	})
	analyzed := analyzeOne(t, env, "ft-500.xml", doc)
	_, err := env.reconcile.Commit(context.Background(), analyzed.Invoice.ID, CommitOptions{})
	require.NoError(t, err)

	lot, err := env.lots.FindByCode("L-500")
	require.NoError(t, err)
	_, err = env.ledger.Consume(lot.ID, 3, "ORD-500")
	require.NoError(t, err)

	trace, err := env.trace.TraceByLot("L-500")
	require.NoError(t, err)
	assert.Equal(t, "Farina 00", trace.IngredientName)
	require.NotNil(t, trace.SourceInvoice)
	assert.Equal(t, "FT-500", trace.SourceInvoice.DocumentNumber)
	require.Len(t, trace.Lot.Consumptions, 1)
	assert.Equal(t, "ORD-500", trace.Lot.Consumptions[0].OrderRef)
}

func TestTraceByLot_UnknownCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.trace.TraceByLot("NOPE")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTraceByOrder_ListsEveryDraw(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	oilID := env.seedIngredient(t, "Olio EVO", "L")
	flourLot := seedLot(t, env, flourID, "L-F", 10, nil)
	oilLot := seedLot(t, env, oilID, "L-O", 5, nil)

	_, err := env.ledger.Consume(flourLot.ID, 2, "ORD-600")
	require.NoError(t, err)
	_, err = env.ledger.Consume(oilLot.ID, 1, "ORD-600")
	require.NoError(t, err)
	_, err = env.ledger.Consume(flourLot.ID, 1, "ORD-601")
	require.NoError(t, err)

	trace, err := env.trace.TraceByOrder("ORD-600")
	require.NoError(t, err)
	require.Len(t, trace.Draws, 2)
	assert.Equal(t, "L-F", trace.Draws[0].Lot.LotCode)
	assert.Equal(t, "Farina 00", trace.Draws[0].IngredientName)
	assert.Equal(t, "L-O", trace.Draws[1].Lot.LotCode)
}

func TestSearch_BySupplier(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")
	seedLot(t, env, flourID, "L-700", 10, nil)

	lots, err := env.trace.Search(repository.SearchFilter{SupplierName: "Rossi"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "L-700", lots[0].LotCode)

	none, err := env.trace.Search(repository.SearchFilter{SupplierName: "Bianchi"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpiringSoon_TagsUrgency(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")

	day := 24 * time.Hour
	past := time.Now().Add(-2 * day)
	soon := time.Now().Add(2 * day)
	week := time.Now().Add(6 * day)
	later := time.Now().Add(20 * day)
	farAway := time.Now().Add(90 * day)

	seedLot(t, env, flourID, "L-EXPIRED", 5, &past)
	seedLot(t, env, flourID, "L-CRITICAL", 5, &soon)
	seedLot(t, env, flourID, "L-URGENT", 5, &week)
	seedLot(t, env, flourID, "L-ATTENTION", 5, &later)
	seedLot(t, env, flourID, "L-FINE", 5, &farAway)

	expiring, err := env.trace.ExpiringSoon(30)
	require.NoError(t, err)
	require.Len(t, expiring, 4)

	byCode := map[string]string{}
	for _, e := range expiring {
		byCode[e.Lot.LotCode] = e.Urgency
	}
	assert.Equal(t, entity.UrgencyExpired, byCode["L-EXPIRED"])
	assert.Equal(t, entity.UrgencyCritical, byCode["L-CRITICAL"])
	assert.Equal(t, entity.UrgencyUrgent, byCode["L-URGENT"])
	assert.Equal(t, entity.UrgencyAttention, byCode["L-ATTENTION"])
	assert.NotContains(t, byCode, "L-FINE")

	// Soonest expiry first.
	assert.Equal(t, "L-EXPIRED", expiring[0].Lot.LotCode)
}

func TestExpiringSoon_SkipsEmptyLots(t *testing.T) {
	env := newTestEnv(t)
	flourID := env.seedIngredient(t, "Farina 00", "KG")

	expiry := time.Now().Add(48 * time.Hour)
	lot := seedLot(t, env, flourID, "L-DRAINED", 5, &expiry)
	_, err := env.ledger.Consume(lot.ID, 5, "ORD-700")
	require.NoError(t, err)

	expiring, err := env.trace.ExpiringSoon(7)
	require.NoError(t, err)
	assert.Empty(t, expiring)
}
