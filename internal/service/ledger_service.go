package service

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
	"github.com/stockfood/traceflow/pkg/database"
)

// stornoPrefix marks compensating movements written when a document is
// cancelled after its lots were partly consumed.
const stornoPrefix = "STORNO:"

// LedgerService owns lots and the stock-movement ledger: arrivals at
// commit time, draws by orders, and reversal on cancellation.
type LedgerService struct {
	db        *database.DB
	lots      *repository.LotRepository
	movements *repository.MovementRepository
	logger    *zap.Logger
}

// NewLedgerService creates a ledger service.
func NewLedgerService(
	db *database.DB,
	lots *repository.LotRepository,
	movements *repository.MovementRepository,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{db: db, lots: lots, movements: movements, logger: logger}
}

// CreateLotParams collects everything a commit knows about one arrival.
type CreateLotParams struct {
	IngredientID    int64
	LotCode         string
	Quantity        float64
	Unit            string
	UnitPrice       float64
	ArrivalDate     time.Time
	ExpiryDate      *time.Time
	SupplierName    string
	SupplierTaxID   string
	InvoiceID       int64
	LineNumber      int
	SupplierLotCode string
}

// CreateLot creates a lot and its inbound movement inside the caller's
// transaction, returning both.
func (s *LedgerService) CreateLot(tx *sql.Tx, p CreateLotParams, documentRef string) (*entity.Lot, *entity.StockMovement, error) {
	lot := &entity.Lot{
		IngredientID:      p.IngredientID,
		LotCode:           p.LotCode,
		InitialQuantity:   p.Quantity,
		RemainingQuantity: p.Quantity,
		Unit:              p.Unit,
		UnitPrice:         p.UnitPrice,
		ArrivalDate:       p.ArrivalDate,
		ExpiryDate:        p.ExpiryDate,
		SupplierName:      p.SupplierName,
		SupplierTaxID:     p.SupplierTaxID,
		InvoiceID:         &p.InvoiceID,
		InvoiceLineNumber: p.LineNumber,
		SupplierLotCode:   p.SupplierLotCode,
		Status:            entity.LotStatusAvailable,
	}
	if err := s.lots.Create(tx, lot); err != nil {
		return nil, nil, err
	}

	movement := &entity.StockMovement{
		IngredientID: p.IngredientID,
		LotID:        &lot.ID,
		Quantity:     p.Quantity,
		Unit:         p.Unit,
		Type:         entity.MovementTypeIn,
		DocumentRef:  documentRef,
	}
	if err := s.movements.Create(tx, movement); err != nil {
		return nil, nil, err
	}
	return lot, movement, nil
}

// Consume draws quantity from a lot for an order, atomically. The guarded
// decrement rejects over-consumption outright; the outbound movement
// referencing the order is written in the same transaction.
func (s *LedgerService) Consume(lotID int64, quantity float64, orderRef string) (*entity.Lot, error) {
	// Unit and ingredient never change after creation, so reading them
	// outside the transaction is safe. The decrement itself is guarded.
	lot, err := s.lots.GetByID(lotID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.lots.Consume(tx, lotID, quantity, orderRef); err != nil {
			return err
		}
		movement := &entity.StockMovement{
			IngredientID: lot.IngredientID,
			LotID:        &lotID,
			Quantity:     -quantity,
			Unit:         lot.Unit,
			Type:         entity.MovementTypeOut,
			DocumentRef:  orderRef,
		}
		return s.movements.Create(tx, movement)
	})
	if err != nil {
		return nil, err
	}
	return s.lots.GetByID(lotID)
}

// ReverseResult reports what a cancellation undid.
type ReverseResult struct {
	MovementsReversed int      `json:"movements_reversed"`
	LotsRemoved       int      `json:"lots_removed"`
	LotsWrittenOff    int      `json:"lots_written_off"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Reverse undoes the ledger effect of one document inside the caller's
// transaction. Lots never consumed are deleted along with their movements.
// A lot already consumed by orders is not deleted: its remaining quantity
// is written off with a compensating outbound movement, its document
// linkage cleared, and the situation is surfaced as a warning.
func (s *LedgerService) Reverse(tx *sql.Tx, invoiceID int64, documentRef string) (*ReverseResult, error) {
	result := &ReverseResult{}

	lots, err := s.lots.ListByInvoice(tx, invoiceID)
	if err != nil {
		return nil, err
	}

	for _, lot := range lots {
		consumed, err := s.lots.HasConsumptions(tx, lot.ID)
		if err != nil {
			return nil, err
		}

		if !consumed {
			n, err := s.movements.DeleteByLotAndDocument(tx, lot.ID, documentRef)
			if err != nil {
				return nil, err
			}
			if err := s.lots.Delete(tx, lot.ID); err != nil {
				return nil, err
			}
			result.MovementsReversed += n
			result.LotsRemoved++
			continue
		}

		if lot.RemainingQuantity > 0 {
			storno := &entity.StockMovement{
				IngredientID: lot.IngredientID,
				LotID:        &lot.ID,
				Quantity:     -lot.RemainingQuantity,
				Unit:         lot.Unit,
				Type:         entity.MovementTypeOut,
				DocumentRef:  stornoPrefix + documentRef,
			}
			if err := s.movements.Create(tx, storno); err != nil {
				return nil, err
			}
		}
		if err := s.lots.WriteOff(tx, lot.ID); err != nil {
			return nil, err
		}
		result.MovementsReversed++
		result.LotsWrittenOff++
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"lot %s was already consumed by other transactions; wrote off %.3f %s instead of deleting it",
			lot.LotCode, lot.RemainingQuantity, lot.Unit,
		))
		s.logger.Warn("Cancellation hit a partially consumed lot",
			zap.String("lot_code", lot.LotCode),
			zap.String("document_ref", documentRef))
	}

	// Movements not tied to any lot (none in the normal flow, but a line
	// could have produced a movement without a lot).
	n, err := s.movements.DeleteOrphansByDocumentRef(tx, documentRef)
	if err != nil {
		return nil, err
	}
	result.MovementsReversed += n

	return result, nil
}

// StockLevel sums the signed movement ledger for one ingredient.
func (s *LedgerService) StockLevel(ingredientID int64) (float64, error) {
	return s.movements.StockByIngredient(ingredientID)
}
