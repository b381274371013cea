package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/cache"
	"github.com/stockfood/traceflow/internal/config"
	"github.com/stockfood/traceflow/internal/dedup"
	"github.com/stockfood/traceflow/internal/repository"
	"github.com/stockfood/traceflow/pkg/database"
)

// testEnv wires the full service stack onto a fresh on-disk database.
type testEnv struct {
	db        *database.DB
	invoices  *repository.InvoiceRepository
	mappings  *repository.MappingRepository
	lots      *repository.LotRepository
	movements *repository.MovementRepository

	ledger     *LedgerService
	reconcile  *ReconcileService
	mappingSvc *MappingService
	trace      *TraceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations(filepath.Join("..", "..", "migrations")))

	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	mappingRepo := repository.NewMappingRepository(db.DB, logger)
	ingredientRepo := repository.NewIngredientRepository(db.DB, logger)
	lotRepo := repository.NewLotRepository(db.DB, logger)
	movementRepo := repository.NewMovementRepository(db.DB, logger)

	matching := config.MatchingConfig{
		SuggestThreshold: 40,
		SimilarThreshold: 60,
		SearchThreshold:  50,
		SearchLimit:      50,
	}

	ingredients := NewIngredientProvider(ingredientRepo, cache.NoopIngredientCache{}, time.Minute, logger)
	gate := dedup.NewGate(invoiceRepo, logger)
	ledger := NewLedgerService(db, lotRepo, movementRepo, logger)

	return &testEnv{
		db:        db,
		invoices:  invoiceRepo,
		mappings:  mappingRepo,
		lots:      lotRepo,
		movements: movementRepo,

		ledger:     ledger,
		reconcile:  NewReconcileService(db, invoiceRepo, mappingRepo, ledger, gate, ingredients, matching, logger),
		mappingSvc: NewMappingService(mappingRepo, ingredients, matching, logger),
		trace:      NewTraceService(lotRepo, invoiceRepo, ingredients, logger),
	}
}

func (e *testEnv) seedIngredient(t *testing.T, name, unit string) int64 {
	t.Helper()
	res, err := e.db.Exec(
		`INSERT INTO ingredients (name, category, unit, active) VALUES (?, '', ?, 1)`, name, unit)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (e *testEnv) deactivateIngredient(t *testing.T, id int64) {
	t.Helper()
	_, err := e.db.Exec(`UPDATE ingredients SET active = 0 WHERE id = ?`, id)
	require.NoError(t, err)
}

// lineSpec describes one invoice line in a generated test document.
type lineSpec struct {
	desc   string
	qty    string
	price  string
	lot    string
	expiry string
}

// invoiceXML builds a minimal but valid electronic-invoice document.
func invoiceXML(taxID, supplier, number, date string, lines []lineSpec) []byte {
	var body strings.Builder
	for i, l := range lines {
		body.WriteString(fmt.Sprintf(`
      <DettaglioLinee>
        <NumeroLinea>%d</NumeroLinea>
        <Descrizione>%s</Descrizione>
        <Quantita>%s</Quantita>
        <UnitaMisura>KG</UnitaMisura>
        <PrezzoUnitario>%s</PrezzoUnitario>
        <PrezzoTotale>%s</PrezzoTotale>
        <AliquotaIVA>22.00</AliquotaIVA>`, i+1, l.desc, l.qty, l.price, l.price))
		if l.lot != "" {
			body.WriteString(fmt.Sprintf(`
        <AltriDatiGestionali>
          <TipoDato>LOTTO</TipoDato>
          <RiferimentoTesto>%s</RiferimentoTesto>
        </AltriDatiGestionali>`, l.lot))
		}
		if l.expiry != "" {
			body.WriteString(fmt.Sprintf(`
        <AltriDatiGestionali>
          <TipoDato>SCADENZA</TipoDato>
          <RiferimentoData>%s</RiferimentoData>
        </AltriDatiGestionali>`, l.expiry))
		}
		body.WriteString(`
      </DettaglioLinee>`)
	}

	doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<p:FatturaElettronica versione="FPR12" xmlns:p="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2">
  <FatturaElettronicaHeader>
    <CedentePrestatore>
      <DatiAnagrafici>
        <IdFiscaleIVA>
          <IdPaese>IT</IdPaese>
          <IdCodice>%s</IdCodice>
        </IdFiscaleIVA>
        <Anagrafica>
          <Denominazione>%s</Denominazione>
        </Anagrafica>
      </DatiAnagrafici>
    </CedentePrestatore>
  </FatturaElettronicaHeader>
  <FatturaElettronicaBody>
    <DatiGenerali>
      <DatiGeneraliDocumento>
        <TipoDocumento>TD24</TipoDocumento>
        <Divisa>EUR</Divisa>
        <Data>%s</Data>
        <Numero>%s</Numero>
      </DatiGeneraliDocumento>
    </DatiGenerali>
    <DatiBeniServizi>%s
    </DatiBeniServizi>
  </FatturaElettronicaBody>
</p:FatturaElettronica>`, taxID, supplier, date, number, body.String())

	return []byte(doc)
}
