package entity

import (
	"fmt"
	"time"
)

// Invoice represents one ingested supplier document (fattura elettronica).
// It is never physically deleted: cancellation is a status transition plus
// compensating ledger writes.
type Invoice struct {
	ID          int64  `json:"id"`
	BusinessKey string `json:"business_key"`
	ContentHash string `json:"content_hash"`

	SupplierName    string `json:"supplier_name"`
	SupplierTaxID   string `json:"supplier_tax_id"`
	SupplierAddress string `json:"supplier_address"`

	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"document_number"`
	DocumentDate   time.Time `json:"document_date"`
	DocumentYear   int       `json:"document_year"`
	Currency       string    `json:"currency"`

	TaxableAmount float64 `json:"taxable_amount"`
	TaxAmount     float64 `json:"tax_amount"`
	TotalAmount   float64 `json:"total_amount"`

	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`

	Status        string `json:"status"`
	CountImported int    `json:"count_imported"`
	CountIgnored  int    `json:"count_ignored"`
	CountErrored  int    `json:"count_errored"`
	CountManual   int    `json:"count_manual"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines     []*InvoiceLine `json:"lines,omitempty"`
	Shipments []*ShipmentRef `json:"shipments,omitempty"`
}

// InvoiceLine is one row of an invoice body with its resolution state.
type InvoiceLine struct {
	ID                    int64      `json:"id"`
	InvoiceID             int64      `json:"invoice_id"`
	LineNumber            int        `json:"line_number"`
	Description           string     `json:"description"`
	NormalizedDescription string     `json:"normalized_description"`
	SupplierCode          string     `json:"supplier_code,omitempty"`
	Quantity              float64    `json:"quantity"`
	Unit                  string     `json:"unit"`
	UnitPrice             float64    `json:"unit_price"`
	Total                 float64    `json:"total"`
	TaxRate               float64    `json:"tax_rate"`
	SupplierLotCode       string     `json:"supplier_lot_code,omitempty"`
	SupplierExpiry        *time.Time `json:"supplier_expiry,omitempty"`

	Status       string `json:"status"`
	IngredientID *int64 `json:"ingredient_id,omitempty"`
	MatchScore   *int   `json:"match_score,omitempty"`
	MatchSource  string `json:"match_source,omitempty"`
	MovementID   *int64 `json:"movement_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ShipmentRef is a transport-document (DDT) reference attached to an invoice.
type ShipmentRef struct {
	ID        int64      `json:"id"`
	InvoiceID int64      `json:"invoice_id"`
	Number    string     `json:"number"`
	Date      *time.Time `json:"date,omitempty"`
}

// BuildBusinessKey forms the logical identity of a document. It fails when
// either component is missing, which callers must treat as a parse error
// rather than a duplicate.
func BuildBusinessKey(supplierTaxID, documentNumber string, year int) (string, error) {
	if supplierTaxID == "" {
		return "", fmt.Errorf("cannot build business key: missing supplier tax id")
	}
	if documentNumber == "" {
		return "", fmt.Errorf("cannot build business key: missing document number")
	}
	return fmt.Sprintf("%s_%s_%d", supplierTaxID, documentNumber, year), nil
}

// PriorInvoiceRef points at an earlier import of the same document, returned
// to callers on a duplicate outcome.
type PriorInvoiceRef struct {
	InvoiceID      int64     `json:"invoice_id"`
	Status         string    `json:"status"`
	DocumentNumber string    `json:"document_number"`
	ImportedAt     time.Time `json:"imported_at"`
}
