package fattura

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

const sampleInvoice = `<?xml version="1.0" encoding="UTF-8"?>
<p:FatturaElettronica versione="FPR12" xmlns:p="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2">
  <FatturaElettronicaHeader>
    <CedentePrestatore>
      <DatiAnagrafici>
        <IdFiscaleIVA>
          <IdPaese>IT</IdPaese>
          <IdCodice>12345678901</IdCodice>
        </IdFiscaleIVA>
        <Anagrafica>
          <Denominazione>Molino Rossi SRL</Denominazione>
        </Anagrafica>
      </DatiAnagrafici>
      <Sede>
        <Indirizzo>Via Roma 1</Indirizzo>
        <CAP>37100</CAP>
        <Comune>Verona</Comune>
        <Provincia>VR</Provincia>
      </Sede>
    </CedentePrestatore>
  </FatturaElettronicaHeader>
  <FatturaElettronicaBody>
    <DatiGenerali>
      <DatiGeneraliDocumento>
        <TipoDocumento>TD24</TipoDocumento>
        <Divisa>EUR</Divisa>
        <Data>2025-03-10</Data>
        <Numero>FT-100</Numero>
        <ImportoTotaleDocumento>14.64</ImportoTotaleDocumento>
      </DatiGeneraliDocumento>
      <DatiDDT>
        <NumeroDDT>DDT-55</NumeroDDT>
        <DataDDT>2025-03-08</DataDDT>
      </DatiDDT>
    </DatiGenerali>
    <DatiBeniServizi>
      <DettaglioLinee>
        <NumeroLinea>1</NumeroLinea>
        <CodiceArticolo>
          <CodiceTipo>FORNITORE</CodiceTipo>
          <CodiceValore>F-0025</CodiceValore>
        </CodiceArticolo>
        <Descrizione>Farina tipo 00 25kg</Descrizione>
        <Quantita>10.00</Quantita>
        <UnitaMisura>KG</UnitaMisura>
        <PrezzoUnitario>1.20</PrezzoUnitario>
        <PrezzoTotale>12.00</PrezzoTotale>
        <AliquotaIVA>22.00</AliquotaIVA>
        <AltriDatiGestionali>
          <TipoDato>LOTTO</TipoDato>
          <RiferimentoTesto>L2025-77</RiferimentoTesto>
        </AltriDatiGestionali>
        <AltriDatiGestionali>
          <TipoDato>SCADENZA</TipoDato>
          <RiferimentoData>2025-09-10</RiferimentoData>
        </AltriDatiGestionali>
      </DettaglioLinee>
      <DatiRiepilogo>
        <ImponibileImporto>12.00</ImponibileImporto>
        <Imposta>2.64</Imposta>
      </DatiRiepilogo>
    </DatiBeniServizi>
  </FatturaElettronicaBody>
</p:FatturaElettronica>`

func TestParse_FullDocument(t *testing.T) {
	inv, err := Parse([]byte(sampleInvoice))
	require.NoError(t, err)

	assert.Equal(t, "Molino Rossi SRL", inv.SupplierName)
	assert.Equal(t, "12345678901", inv.SupplierTaxID)
	assert.Equal(t, "Via Roma 1, 37100, Verona, VR", inv.SupplierAddress)
	assert.Equal(t, "TD24", inv.DocumentType)
	assert.Equal(t, "FT-100", inv.DocumentNumber)
	assert.Equal(t, 2025, inv.DocumentYear)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, 12.00, inv.TaxableAmount)
	assert.Equal(t, 2.64, inv.TaxAmount)
	assert.Equal(t, 14.64, inv.TotalAmount)

	require.Len(t, inv.Shipments, 1)
	assert.Equal(t, "DDT-55", inv.Shipments[0].Number)

	require.Len(t, inv.Lines, 1)
	line := inv.Lines[0]
	assert.Equal(t, 1, line.LineNumber)
	assert.Equal(t, "Farina tipo 00 25kg", line.Description)
	assert.Equal(t, "F-0025", line.SupplierCode)
	assert.Equal(t, 10.0, line.Quantity)
	assert.Equal(t, "KG", line.Unit)
	assert.Equal(t, 1.20, line.UnitPrice)
	assert.Equal(t, 12.00, line.Total)
	assert.Equal(t, 22.00, line.TaxRate)
	assert.Equal(t, "L2025-77", line.SupplierLotCode)
	require.NotNil(t, line.SupplierExpiry)
	assert.Equal(t, time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), *line.SupplierExpiry)
	assert.Equal(t, entity.LineStatusUnmatched, line.Status)
}

func TestParse_WrappedRootAndDifferentPrefix(t *testing.T) {
	wrapped := `<?xml version="1.0"?>
<Envelope>
  <Payload>
    <ns3:FatturaElettronica xmlns:ns3="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2">
      <ns3:FatturaElettronicaHeader>
        <ns3:CedentePrestatore>
          <ns3:DatiAnagrafici>
            <ns3:IdFiscaleIVA><ns3:IdCodice>99988877766</ns3:IdCodice></ns3:IdFiscaleIVA>
            <ns3:Anagrafica><ns3:Denominazione>Caseificio Bianchi</ns3:Denominazione></ns3:Anagrafica>
          </ns3:DatiAnagrafici>
        </ns3:CedentePrestatore>
      </ns3:FatturaElettronicaHeader>
      <ns3:FatturaElettronicaBody>
        <ns3:DatiGenerali>
          <ns3:DatiGeneraliDocumento>
            <ns3:Numero>77</ns3:Numero>
            <ns3:Data>2025-01-05</ns3:Data>
          </ns3:DatiGeneraliDocumento>
        </ns3:DatiGenerali>
        <ns3:DatiBeniServizi>
          <ns3:DettaglioLinee>
            <ns3:Descrizione>Mozzarella fiordilatte</ns3:Descrizione>
          </ns3:DettaglioLinee>
        </ns3:DatiBeniServizi>
      </ns3:FatturaElettronicaBody>
    </ns3:FatturaElettronica>
  </Payload>
</Envelope>`

	inv, err := Parse([]byte(wrapped))
	require.NoError(t, err)
	assert.Equal(t, "Caseificio Bianchi", inv.SupplierName)
	assert.Equal(t, "99988877766", inv.SupplierTaxID)
	assert.Equal(t, "77", inv.DocumentNumber)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "Mozzarella fiordilatte", inv.Lines[0].Description)
}

func TestParse_RepeatedNodesNormalizeToLists(t *testing.T) {
	inv, err := Parse([]byte(multiLineInvoice))
	require.NoError(t, err)
	assert.Len(t, inv.Lines, 2)
	assert.Len(t, inv.Shipments, 2)
	// Two summary rows are accumulated.
	assert.Equal(t, 30.0, inv.TaxableAmount)
}

const multiLineInvoice = `<FatturaElettronica>
  <FatturaElettronicaHeader>
    <CedentePrestatore>
      <DatiAnagrafici>
        <IdFiscaleIVA><IdCodice>11122233344</IdCodice></IdFiscaleIVA>
        <Anagrafica><Denominazione>Ortofrutta Verde</Denominazione></Anagrafica>
      </DatiAnagrafici>
    </CedentePrestatore>
  </FatturaElettronicaHeader>
  <FatturaElettronicaBody>
    <DatiGenerali>
      <DatiGeneraliDocumento><Numero>9</Numero><Data>2025-02-01</Data></DatiGeneraliDocumento>
      <DatiDDT><NumeroDDT>A1</NumeroDDT></DatiDDT>
      <DatiDDT><NumeroDDT>A2</NumeroDDT></DatiDDT>
    </DatiGenerali>
    <DatiBeniServizi>
      <DettaglioLinee><NumeroLinea>1</NumeroLinea><Descrizione>Pomodoro</Descrizione></DettaglioLinee>
      <DettaglioLinee><NumeroLinea>2</NumeroLinea><Descrizione>Basilico</Descrizione></DettaglioLinee>
      <DatiRiepilogo><ImponibileImporto>10.00</ImponibileImporto></DatiRiepilogo>
      <DatiRiepilogo><ImponibileImporto>20.00</ImponibileImporto></DatiRiepilogo>
    </DatiBeniServizi>
  </FatturaElettronicaBody>
</FatturaElettronica>`

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"not an invoice", `<root><other/></root>`, ErrNoInvoiceRoot},
		{"missing header", `<FatturaElettronica><FatturaElettronicaBody><DatiGenerali/></FatturaElettronicaBody></FatturaElettronica>`, ErrMissingHeader},
		{"missing body", `<FatturaElettronica><FatturaElettronicaHeader><CedentePrestatore/></FatturaElettronicaHeader></FatturaElettronica>`, ErrMissingBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParse_DefaultsForMissingFields(t *testing.T) {
	minimal := `<FatturaElettronica>
  <FatturaElettronicaHeader>
    <CedentePrestatore>
      <DatiAnagrafici>
        <IdFiscaleIVA><IdCodice>55566677788</IdCodice></IdFiscaleIVA>
        <Anagrafica><Nome>Mario</Nome><Cognome>Verdi</Cognome></Anagrafica>
      </DatiAnagrafici>
    </CedentePrestatore>
  </FatturaElettronicaHeader>
  <FatturaElettronicaBody>
    <DatiGenerali><DatiGeneraliDocumento><Numero>3</Numero></DatiGeneraliDocumento></DatiGenerali>
    <DatiBeniServizi>
      <DettaglioLinee><Descrizione>Sale grosso</Descrizione><Quantita>not-a-number</Quantita></DettaglioLinee>
    </DatiBeniServizi>
  </FatturaElettronicaBody>
</FatturaElettronica>`

	before := time.Now()
	inv, err := Parse([]byte(minimal))
	require.NoError(t, err)

	// Person name fallback when Denominazione is absent.
	assert.Equal(t, "Mario Verdi", inv.SupplierName)
	// Missing date defaults to now, not to zero.
	assert.False(t, inv.DocumentDate.Before(before.Truncate(time.Second)))
	assert.Equal(t, 0.0, inv.TotalAmount)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, 0.0, inv.Lines[0].Quantity)
	// Missing NumeroLinea falls back to position.
	assert.Equal(t, 1, inv.Lines[0].LineNumber)
}
