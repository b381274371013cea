package entity

import "time"

// StockMovement is an append-only ledger entry. Cancellation of an invoice
// removes the movements it created so the net stock effect is undone;
// history of unrelated documents is never touched.
type StockMovement struct {
	ID           int64     `json:"id"`
	IngredientID int64     `json:"ingredient_id"`
	LotID        *int64    `json:"lot_id,omitempty"`
	Quantity     float64   `json:"quantity"` // signed: positive in, negative out
	Unit         string    `json:"unit"`
	Type         string    `json:"type"`
	DocumentRef  string    `json:"document_ref"`
	CreatedAt    time.Time `json:"created_at"`
}
