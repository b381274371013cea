// Package fattura parses Italian electronic invoices (FatturaPA-shaped XML)
// into the canonical import DTO. Parsing is a pure transformation: no
// persistence, no lookups.
package fattura

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

var (
	// ErrNoInvoiceRoot is returned when no FatturaElettronica element is found.
	ErrNoInvoiceRoot = errors.New("no electronic invoice root element found")

	// ErrMissingHeader is returned when the supplier header is absent.
	ErrMissingHeader = errors.New("invoice header (supplier identity) missing")

	// ErrMissingBody is returned when the document body is absent.
	ErrMissingBody = errors.New("invoice body (document data) missing")
)

// AltriDatiGestionali type codes commonly used by food suppliers to carry
// batch data on a line.
const (
	datoTipoLotto    = "LOTTO"
	datoTipoScadenza = "SCADENZA"
)

type xmlDocument struct {
	Header *xmlHeader `xml:"FatturaElettronicaHeader"`
	Bodies []xmlBody  `xml:"FatturaElettronicaBody"`
}

type xmlHeader struct {
	Supplier *xmlSupplier `xml:"CedentePrestatore"`
}

type xmlSupplier struct {
	Registry struct {
		VATNumber struct {
			Country string `xml:"IdPaese"`
			Code    string `xml:"IdCodice"`
		} `xml:"IdFiscaleIVA"`
		FiscalCode string `xml:"CodiceFiscale"`
		Name       struct {
			Company   string `xml:"Denominazione"`
			FirstName string `xml:"Nome"`
			LastName  string `xml:"Cognome"`
		} `xml:"Anagrafica"`
	} `xml:"DatiAnagrafici"`
	Address struct {
		Street   string `xml:"Indirizzo"`
		ZIP      string `xml:"CAP"`
		City     string `xml:"Comune"`
		Province string `xml:"Provincia"`
	} `xml:"Sede"`
}

type xmlBody struct {
	General struct {
		Document struct {
			Type     string `xml:"TipoDocumento"`
			Currency string `xml:"Divisa"`
			Date     string `xml:"Data"`
			Number   string `xml:"Numero"`
			Total    string `xml:"ImportoTotaleDocumento"`
		} `xml:"DatiGeneraliDocumento"`
		Shipments []xmlShipment `xml:"DatiDDT"`
	} `xml:"DatiGenerali"`
	GoodsServices struct {
		Lines     []xmlLine    `xml:"DettaglioLinee"`
		Summaries []xmlSummary `xml:"DatiRiepilogo"`
	} `xml:"DatiBeniServizi"`
}

type xmlShipment struct {
	Number string `xml:"NumeroDDT"`
	Date   string `xml:"DataDDT"`
}

type xmlSummary struct {
	TaxableAmount string `xml:"ImponibileImporto"`
	TaxAmount     string `xml:"Imposta"`
}

type xmlLine struct {
	Number      string `xml:"NumeroLinea"`
	Description string `xml:"Descrizione"`
	Codes       []struct {
		Type  string `xml:"CodiceTipo"`
		Value string `xml:"CodiceValore"`
	} `xml:"CodiceArticolo"`
	Quantity  string `xml:"Quantita"`
	Unit      string `xml:"UnitaMisura"`
	UnitPrice string `xml:"PrezzoUnitario"`
	Total     string `xml:"PrezzoTotale"`
	TaxRate   string `xml:"AliquotaIVA"`
	Extra     []struct {
		Type string `xml:"TipoDato"`
		Text string `xml:"RiferimentoTesto"`
		Date string `xml:"RiferimentoData"`
	} `xml:"AltriDatiGestionali"`
}

// Parse converts a raw electronic-invoice document into the canonical
// Invoice DTO. Namespace prefixes are tolerated on every tag; the invoice
// root is located by local name regardless of wrapper elements; fields that
// may appear once or repeated (shipment refs, tax summaries, lines) are
// always normalized to lists. Missing numeric fields default to zero and
// missing dates to now, so partially malformed documents stay analyzable.
func Parse(raw []byte) (*entity.Invoice, error) {
	doc, err := decodeInvoiceRoot(raw)
	if err != nil {
		return nil, err
	}

	if doc.Header == nil || doc.Header.Supplier == nil {
		return nil, ErrMissingHeader
	}
	if len(doc.Bodies) == 0 {
		return nil, ErrMissingBody
	}
	// Multi-body envelopes (lotto di fatture) are rare in this flow; the
	// first body is the document being imported.
	body := doc.Bodies[0]

	supplier := doc.Header.Supplier
	taxID := supplier.Registry.VATNumber.Code
	if taxID == "" {
		taxID = supplier.Registry.FiscalCode
	}

	name := supplier.Registry.Name.Company
	if name == "" {
		name = strings.TrimSpace(supplier.Registry.Name.FirstName + " " + supplier.Registry.Name.LastName)
	}

	docDate := parseDate(body.General.Document.Date, time.Now())

	inv := &entity.Invoice{
		SupplierName:    name,
		SupplierTaxID:   taxID,
		SupplierAddress: formatAddress(supplier),
		DocumentType:    body.General.Document.Type,
		DocumentNumber:  body.General.Document.Number,
		DocumentDate:    docDate,
		DocumentYear:    docDate.Year(),
		Currency:        body.General.Document.Currency,
		TotalAmount:     parseAmount(body.General.Document.Total),
	}

	for _, s := range body.GoodsServices.Summaries {
		inv.TaxableAmount += parseAmount(s.TaxableAmount)
		inv.TaxAmount += parseAmount(s.TaxAmount)
	}
	if inv.TotalAmount == 0 {
		inv.TotalAmount = inv.TaxableAmount + inv.TaxAmount
	}

	for _, s := range body.General.Shipments {
		ref := &entity.ShipmentRef{Number: s.Number}
		if d := parseDate(s.Date, time.Time{}); !d.IsZero() {
			ref.Date = &d
		}
		inv.Shipments = append(inv.Shipments, ref)
	}

	for i, l := range body.GoodsServices.Lines {
		line := &entity.InvoiceLine{
			LineNumber:  parseIntDefault(l.Number, i+1),
			Description: strings.TrimSpace(l.Description),
			Quantity:    parseAmount(l.Quantity),
			Unit:        strings.TrimSpace(l.Unit),
			UnitPrice:   parseAmount(l.UnitPrice),
			Total:       parseAmount(l.Total),
			TaxRate:     parseAmount(l.TaxRate),
			Status:      entity.LineStatusUnmatched,
		}
		if len(l.Codes) > 0 {
			line.SupplierCode = l.Codes[0].Value
		}
		for _, extra := range l.Extra {
			switch strings.ToUpper(strings.TrimSpace(extra.Type)) {
			case datoTipoLotto:
				line.SupplierLotCode = strings.TrimSpace(extra.Text)
			case datoTipoScadenza:
				if d := parseDate(firstNonEmpty(extra.Date, extra.Text), time.Time{}); !d.IsZero() {
					line.SupplierExpiry = &d
				}
			}
		}
		inv.Lines = append(inv.Lines, line)
	}

	return inv, nil
}

// decodeInvoiceRoot walks the token stream until it finds the first element
// whose local name ends in "FatturaElettronica", whatever envelope or
// namespace prefix wraps it, and decodes from there.
func decodeInvoiceRoot(raw []byte) (*xmlDocument, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, ErrNoInvoiceRoot
		}
		if err != nil {
			return nil, fmt.Errorf("malformed XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if strings.HasSuffix(start.Name.Local, "FatturaElettronica") {
			var doc xmlDocument
			if err := dec.DecodeElement(&doc, &start); err != nil {
				return nil, fmt.Errorf("malformed invoice element: %w", err)
			}
			return &doc, nil
		}
	}
}

func formatAddress(s *xmlSupplier) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Address.Street, s.Address.ZIP, s.Address.City, s.Address.Province} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// parseAmount reads a decimal that may use a comma separator; absent or
// unreadable values become 0.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// parseDate reads a FatturaPA date (YYYY-MM-DD, with or without a time
// suffix); unreadable values fall back to def.
func parseDate(s string, def time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return def
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
