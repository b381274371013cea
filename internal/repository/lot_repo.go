package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// LotRepository handles lot and consumption-event database operations
type LotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *sql.DB, logger *zap.Logger) *LotRepository {
	return &LotRepository{db: db, logger: logger}
}

// Create persists a lot created at commit time from a matched line.
func (r *LotRepository) Create(tx *sql.Tx, lot *entity.Lot) error {
	q := on(r.db, tx)
	res, err := q.Exec(`
		INSERT INTO lots (
			ingredient_id, lot_code, initial_quantity, remaining_quantity, unit, unit_price,
			arrival_date, expiry_date, supplier_name, supplier_tax_id,
			invoice_id, invoice_line_number, supplier_lot_code, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.IngredientID, lot.LotCode, lot.InitialQuantity, lot.RemainingQuantity, lot.Unit, lot.UnitPrice,
		lot.ArrivalDate, lot.ExpiryDate, lot.SupplierName, lot.SupplierTaxID,
		lot.InvoiceID, lot.InvoiceLineNumber, lot.SupplierLotCode, lot.Status, time.Now(),
	)
	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("Failed to create lot", zap.String("lot_code", lot.LotCode), zap.Error(err))
		}
		return fmt.Errorf("failed to create lot: %w", err)
	}
	lot.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetByID retrieves a lot with its consumption events.
func (r *LotRepository) GetByID(id int64) (*entity.Lot, error) {
	lot, err := r.scanLot(r.db.QueryRow(selectLot+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	lot.Consumptions, err = r.ConsumptionsByLot(lot.ID)
	return lot, err
}

// FindByCode retrieves the most recent lot with the given code, with its
// consumption events. Codes are unique per ingredient, not globally, so the
// newest arrival wins when two ingredients share a code.
func (r *LotRepository) FindByCode(lotCode string) (*entity.Lot, error) {
	lot, err := r.scanLot(r.db.QueryRow(
		selectLot+` WHERE lot_code = ? ORDER BY created_at DESC, id DESC LIMIT 1`, lotCode,
	))
	if err != nil {
		return nil, err
	}
	lot.Consumptions, err = r.ConsumptionsByLot(lot.ID)
	return lot, err
}

// ListByInvoice returns every lot originating from the given invoice.
func (r *LotRepository) ListByInvoice(tx *sql.Tx, invoiceID int64) ([]*entity.Lot, error) {
	q := on(r.db, tx)
	rows, err := q.Query(selectLot+` WHERE invoice_id = ? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots by invoice: %w", err)
	}
	defer rows.Close()
	return r.collectLots(rows)
}

// Consume atomically draws quantity from a lot. The guarded UPDATE is the
// whole race-safety story: if another consumer got there first and the
// remainder is too small, zero rows change and ErrInsufficientQuantity is
// returned with the lot untouched.
func (r *LotRepository) Consume(tx *sql.Tx, lotID int64, quantity float64, orderRef string) error {
	if quantity <= 0 {
		return fmt.Errorf("consumption quantity must be positive")
	}
	q := on(r.db, tx)

	res, err := q.Exec(`
		UPDATE lots
		SET remaining_quantity = remaining_quantity - ?,
			status = CASE
				WHEN remaining_quantity - ? <= 0 THEN ?
				ELSE ?
			END
		WHERE id = ? AND remaining_quantity >= ? AND status NOT IN (?, ?)`,
		quantity, quantity, entity.LotStatusExhausted, entity.LotStatusInUse,
		lotID, quantity, entity.LotStatusRecalled, entity.LotStatusQuarantined,
	)
	if err != nil {
		return fmt.Errorf("failed to consume from lot %d: %w", lotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing lot from an over-consumption.
		var exists int
		if err := q.QueryRow(`SELECT COUNT(*) FROM lots WHERE id = ?`, lotID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check lot %d: %w", lotID, err)
		}
		if exists == 0 {
			return fmt.Errorf("lot %d: %w", lotID, ErrNotFound)
		}
		return fmt.Errorf("lot %d: %w", lotID, ErrInsufficientQuantity)
	}

	if _, err := q.Exec(
		`INSERT INTO lot_consumptions (lot_id, order_ref, quantity, consumed_at) VALUES (?, ?, ?, ?)`,
		lotID, orderRef, quantity, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to record consumption: %w", err)
	}
	return nil
}

// HasConsumptions reports whether any order has drawn from the lot.
func (r *LotRepository) HasConsumptions(tx *sql.Tx, lotID int64) (bool, error) {
	q := on(r.db, tx)
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM lot_consumptions WHERE lot_id = ?`, lotID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count consumptions: %w", err)
	}
	return n > 0, nil
}

// Delete removes a lot that was never consumed, as part of cancelling its
// originating document.
func (r *LotRepository) Delete(tx *sql.Tx, lotID int64) error {
	q := on(r.db, tx)
	if _, err := q.Exec(`DELETE FROM lots WHERE id = ?`, lotID); err != nil {
		return fmt.Errorf("failed to delete lot %d: %w", lotID, err)
	}
	return nil
}

// WriteOff neutralizes a lot whose source document was cancelled after
// other transactions had already consumed from it: remaining quantity goes
// to zero, the lot is exhausted, and the originating-document linkage is
// cleared. Consumption history stays.
func (r *LotRepository) WriteOff(tx *sql.Tx, lotID int64) error {
	q := on(r.db, tx)
	if _, err := q.Exec(`
		UPDATE lots
		SET remaining_quantity = 0, status = ?, invoice_id = NULL
		WHERE id = ?`,
		entity.LotStatusExhausted, lotID,
	); err != nil {
		return fmt.Errorf("failed to write off lot %d: %w", lotID, err)
	}
	return nil
}

// UpdateStatus applies a manual status change (recall, quarantine).
func (r *LotRepository) UpdateStatus(lotID int64, status string) error {
	res, err := r.db.Exec(`UPDATE lots SET status = ? WHERE id = ?`, status, lotID)
	if err != nil {
		return fmt.Errorf("failed to update lot %d status: %w", lotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lot %d: %w", lotID, ErrNotFound)
	}
	return nil
}

// ConsumptionsByLot returns a lot's draw history, oldest first.
func (r *LotRepository) ConsumptionsByLot(lotID int64) ([]*entity.LotConsumption, error) {
	rows, err := r.db.Query(
		`SELECT id, lot_id, order_ref, quantity, consumed_at
		 FROM lot_consumptions WHERE lot_id = ? ORDER BY consumed_at, id`,
		lotID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumptions: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

// ConsumptionsByOrder returns every draw referencing the given order.
func (r *LotRepository) ConsumptionsByOrder(orderRef string) ([]*entity.LotConsumption, error) {
	rows, err := r.db.Query(
		`SELECT id, lot_id, order_ref, quantity, consumed_at
		 FROM lot_consumptions WHERE order_ref = ? ORDER BY consumed_at, id`,
		orderRef,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumptions by order: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

// SearchFilter narrows lot searches for traceability lookups.
type SearchFilter struct {
	SupplierName   string // substring
	DocumentNumber string // substring
	SupplierTaxID  string // exact
}

// Search finds lots by supplier-name substring, originating-document number
// substring, or exact supplier tax id.
func (r *LotRepository) Search(filter SearchFilter) ([]*entity.Lot, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.SupplierName != "" {
		where = append(where, "l.supplier_name LIKE ?")
		args = append(args, "%"+filter.SupplierName+"%")
	}
	if filter.DocumentNumber != "" {
		where = append(where, "l.invoice_id IN (SELECT id FROM invoices WHERE document_number LIKE ?)")
		args = append(args, "%"+filter.DocumentNumber+"%")
	}
	if filter.SupplierTaxID != "" {
		where = append(where, "l.supplier_tax_id = ?")
		args = append(args, filter.SupplierTaxID)
	}

	rows, err := r.db.Query(
		selectLotAliased+` WHERE `+strings.Join(where, " AND ")+` ORDER BY l.arrival_date DESC, l.id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search lots: %w", err)
	}
	defer rows.Close()
	return r.collectLots(rows)
}

// Expiring returns non-exhausted, non-recalled lots whose expiry falls on
// or before the horizon, soonest first. Already-expired lots come first of
// all; callers tag urgency.
func (r *LotRepository) Expiring(horizon time.Time) ([]*entity.Lot, error) {
	rows, err := r.db.Query(
		selectLot+` WHERE expiry_date IS NOT NULL AND expiry_date <= ?
			AND status NOT IN (?, ?)
			AND remaining_quantity > 0
			ORDER BY expiry_date, id`,
		horizon, entity.LotStatusExhausted, entity.LotStatusRecalled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring lots: %w", err)
	}
	defer rows.Close()
	return r.collectLots(rows)
}

const selectLot = `
	SELECT id, ingredient_id, lot_code, initial_quantity, remaining_quantity, unit, unit_price,
		arrival_date, expiry_date, supplier_name, supplier_tax_id,
		invoice_id, invoice_line_number, supplier_lot_code, status, created_at
	FROM lots`

const selectLotAliased = `
	SELECT l.id, l.ingredient_id, l.lot_code, l.initial_quantity, l.remaining_quantity, l.unit, l.unit_price,
		l.arrival_date, l.expiry_date, l.supplier_name, l.supplier_tax_id,
		l.invoice_id, l.invoice_line_number, l.supplier_lot_code, l.status, l.created_at
	FROM lots l`

func scanLotFields(row rowScanner) (*entity.Lot, error) {
	var lot entity.Lot
	var expiry sql.NullTime
	var invoiceID sql.NullInt64
	err := row.Scan(
		&lot.ID, &lot.IngredientID, &lot.LotCode, &lot.InitialQuantity, &lot.RemainingQuantity,
		&lot.Unit, &lot.UnitPrice, &lot.ArrivalDate, &expiry, &lot.SupplierName, &lot.SupplierTaxID,
		&invoiceID, &lot.InvoiceLineNumber, &lot.SupplierLotCode, &lot.Status, &lot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		lot.ExpiryDate = &expiry.Time
	}
	if invoiceID.Valid {
		lot.InvoiceID = &invoiceID.Int64
	}
	return &lot, nil
}

func (r *LotRepository) scanLot(row *sql.Row) (*entity.Lot, error) {
	lot, err := scanLotFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to scan lot", zap.Error(err))
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

func (r *LotRepository) collectLots(rows *sql.Rows) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for rows.Next() {
		lot, err := scanLotFields(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot row: %w", err)
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

func collectConsumptions(rows *sql.Rows) ([]*entity.LotConsumption, error) {
	var out []*entity.LotConsumption
	for rows.Next() {
		var c entity.LotConsumption
		if err := rows.Scan(&c.ID, &c.LotID, &c.OrderRef, &c.Quantity, &c.ConsumedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
