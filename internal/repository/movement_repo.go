package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// MovementRepository handles the append-only stock-movement ledger
type MovementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *sql.DB, logger *zap.Logger) *MovementRepository {
	return &MovementRepository{db: db, logger: logger}
}

// Create appends a movement to the ledger.
func (r *MovementRepository) Create(tx *sql.Tx, m *entity.StockMovement) error {
	q := on(r.db, tx)
	res, err := q.Exec(`
		INSERT INTO stock_movements (ingredient_id, lot_id, quantity, unit, type, document_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.IngredientID, m.LotID, m.Quantity, m.Unit, m.Type, m.DocumentRef, time.Now(),
	)
	if err != nil {
		r.logger.Error("Failed to create movement", zap.String("document_ref", m.DocumentRef), zap.Error(err))
		return fmt.Errorf("failed to create movement: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// ListByDocumentRef returns every movement caused by the given document.
func (r *MovementRepository) ListByDocumentRef(tx *sql.Tx, documentRef string) ([]*entity.StockMovement, error) {
	q := on(r.db, tx)
	rows, err := q.Query(selectMovement+` WHERE document_ref = ? ORDER BY id`, documentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

// ListByLot returns every movement touching the given lot.
func (r *MovementRepository) ListByLot(lotID int64) ([]*entity.StockMovement, error) {
	rows, err := r.db.Query(selectMovement+` WHERE lot_id = ? ORDER BY id`, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements by lot: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

// DeleteOrphansByDocumentRef removes a document's movements that are not
// tied to any lot. Lot-bound movements are reversed per lot so that a
// written-off lot keeps its arrival on the ledger. Returns the number of
// movements removed.
func (r *MovementRepository) DeleteOrphansByDocumentRef(tx *sql.Tx, documentRef string) (int, error) {
	q := on(r.db, tx)
	res, err := q.Exec(`DELETE FROM stock_movements WHERE document_ref = ? AND lot_id IS NULL`, documentRef)
	if err != nil {
		return 0, fmt.Errorf("failed to delete movements for %s: %w", documentRef, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteByLotAndDocument removes the movements a document created against
// one lot. Used when the lot itself is being removed by a cancellation.
func (r *MovementRepository) DeleteByLotAndDocument(tx *sql.Tx, lotID int64, documentRef string) (int, error) {
	q := on(r.db, tx)
	res, err := q.Exec(
		`DELETE FROM stock_movements WHERE lot_id = ? AND document_ref = ?`,
		lotID, documentRef,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete movements for lot %d: %w", lotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// StockByIngredient sums the signed ledger for one ingredient.
func (r *MovementRepository) StockByIngredient(ingredientID int64) (float64, error) {
	var total float64
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_movements WHERE ingredient_id = ?`,
		ingredientID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock: %w", err)
	}
	return total, nil
}

const selectMovement = `
	SELECT id, ingredient_id, lot_id, quantity, unit, type, document_ref, created_at
	FROM stock_movements`

func collectMovements(rows *sql.Rows) ([]*entity.StockMovement, error) {
	var out []*entity.StockMovement
	for rows.Next() {
		var m entity.StockMovement
		var lotID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.IngredientID, &lotID, &m.Quantity, &m.Unit, &m.Type, &m.DocumentRef, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if lotID.Valid {
			m.LotID = &lotID.Int64
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
