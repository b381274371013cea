package entity

import "time"

// Lot is a traceable batch of an ingredient received from one document.
type Lot struct {
	ID                int64      `json:"id"`
	IngredientID      int64      `json:"ingredient_id"`
	LotCode           string     `json:"lot_code"`
	InitialQuantity   float64    `json:"initial_quantity"`
	RemainingQuantity float64    `json:"remaining_quantity"`
	Unit              string     `json:"unit"`
	UnitPrice         float64    `json:"unit_price"`
	ArrivalDate       time.Time  `json:"arrival_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`

	SupplierName  string `json:"supplier_name"`
	SupplierTaxID string `json:"supplier_tax_id"`

	// Originating-document reference. InvoiceID is nil once the source
	// document has been cancelled and the lot could not be removed because
	// other transactions had already consumed from it.
	InvoiceID         *int64 `json:"invoice_id,omitempty"`
	InvoiceLineNumber int    `json:"invoice_line_number"`
	SupplierLotCode   string `json:"supplier_lot_code,omitempty"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Consumptions []*LotConsumption `json:"consumptions,omitempty"`
}

// PercentConsumed reports how much of the lot has been drawn, 0-100.
func (l *Lot) PercentConsumed() float64 {
	if l.InitialQuantity <= 0 {
		return 0
	}
	return (l.InitialQuantity - l.RemainingQuantity) / l.InitialQuantity * 100
}

// LotConsumption is one draw against a lot by a customer order.
type LotConsumption struct {
	ID         int64     `json:"id"`
	LotID      int64     `json:"lot_id"`
	OrderRef   string    `json:"order_ref"`
	Quantity   float64   `json:"quantity"`
	ConsumedAt time.Time `json:"consumed_at"`
}

// ExpiringLot is a lot annotated with its urgency for expiry queries.
type ExpiringLot struct {
	Lot            *Lot   `json:"lot"`
	IngredientName string `json:"ingredient_name"`
	DaysToExpiry   int    `json:"days_to_expiry"`
	Urgency        string `json:"urgency"`
}
