package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// InvoiceRepository handles import-record database operations
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

// Create persists an invoice with its lines and shipment references. The
// partial unique indexes on business_key/content_hash reject a concurrent
// re-ingestion; callers detect that with IsUniqueViolation.
func (r *InvoiceRepository) Create(tx *sql.Tx, inv *entity.Invoice) error {
	q := on(r.db, tx)

	now := time.Now()
	res, err := q.Exec(`
		INSERT INTO invoices (
			business_key, content_hash, supplier_name, supplier_tax_id, supplier_address,
			document_type, document_number, document_date, document_year, currency,
			taxable_amount, tax_amount, total_amount, original_filename, file_size,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.BusinessKey, inv.ContentHash, inv.SupplierName, inv.SupplierTaxID, inv.SupplierAddress,
		inv.DocumentType, inv.DocumentNumber, inv.DocumentDate, inv.DocumentYear, inv.Currency,
		inv.TaxableAmount, inv.TaxAmount, inv.TotalAmount, inv.OriginalFilename, inv.FileSize,
		inv.Status, now, now,
	)
	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("Failed to create invoice", zap.Error(err))
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	inv.ID = id
	inv.CreatedAt = now
	inv.UpdatedAt = now

	for _, line := range inv.Lines {
		line.InvoiceID = id
		if err := r.createLine(q, line); err != nil {
			return err
		}
	}
	for _, ref := range inv.Shipments {
		ref.InvoiceID = id
		if _, err := q.Exec(
			`INSERT INTO invoice_shipments (invoice_id, number, date) VALUES (?, ?, ?)`,
			id, ref.Number, ref.Date,
		); err != nil {
			return fmt.Errorf("failed to create shipment ref: %w", err)
		}
	}

	return nil
}

func (r *InvoiceRepository) createLine(q dbtx, line *entity.InvoiceLine) error {
	res, err := q.Exec(`
		INSERT INTO invoice_lines (
			invoice_id, line_number, description, normalized_description, supplier_code,
			quantity, unit, unit_price, total, tax_rate,
			supplier_lot_code, supplier_expiry, status, ingredient_id, match_score, match_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		line.InvoiceID, line.LineNumber, line.Description, line.NormalizedDescription, line.SupplierCode,
		line.Quantity, line.Unit, line.UnitPrice, line.Total, line.TaxRate,
		line.SupplierLotCode, line.SupplierExpiry, line.Status, line.IngredientID, line.MatchScore, line.MatchSource,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice line: %w", err)
	}
	line.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice with its lines and shipment references.
func (r *InvoiceRepository) GetByID(id int64) (*entity.Invoice, error) {
	inv, err := r.scanInvoice(r.db.QueryRow(selectInvoice+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if inv.Lines, err = r.linesByInvoice(inv.ID); err != nil {
		return nil, err
	}
	if inv.Shipments, err = r.shipmentsByInvoice(inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

// FindActiveByBusinessKey returns the non-cancelled invoice with the given
// business key, or ErrNotFound. Cancelled imports are invisible here so a
// reversed document can be re-ingested.
func (r *InvoiceRepository) FindActiveByBusinessKey(businessKey string) (*entity.Invoice, error) {
	return r.scanInvoice(r.db.QueryRow(
		selectInvoice+` WHERE business_key = ? AND status != ?`,
		businessKey, entity.InvoiceStatusCancelled,
	))
}

// FindActiveByContentHash returns the non-cancelled invoice with the given
// content hash, or ErrNotFound.
func (r *InvoiceRepository) FindActiveByContentHash(contentHash string) (*entity.Invoice, error) {
	return r.scanInvoice(r.db.QueryRow(
		selectInvoice+` WHERE content_hash = ? AND status != ?`,
		contentHash, entity.InvoiceStatusCancelled,
	))
}

// FindConflicting returns a non-cancelled invoice with the same business
// key but a different id, used for the commit-time re-verification.
func (r *InvoiceRepository) FindConflicting(businessKey string, excludeID int64) (*entity.Invoice, error) {
	return r.scanInvoice(r.db.QueryRow(
		selectInvoice+` WHERE business_key = ? AND status != ? AND id != ?`,
		businessKey, entity.InvoiceStatusCancelled, excludeID,
	))
}

// UpdateCommitResult records the outcome of a commit: final status plus the
// per-category counters.
func (r *InvoiceRepository) UpdateCommitResult(tx *sql.Tx, inv *entity.Invoice) error {
	q := on(r.db, tx)
	_, err := q.Exec(`
		UPDATE invoices
		SET status = ?, count_imported = ?, count_ignored = ?, count_errored = ?, count_manual = ?, updated_at = ?
		WHERE id = ?`,
		inv.Status, inv.CountImported, inv.CountIgnored, inv.CountErrored, inv.CountManual, time.Now(), inv.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice commit result", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return nil
}

// MarkCancelled flips an invoice to cancelled with its audit fields.
func (r *InvoiceRepository) MarkCancelled(tx *sql.Tx, id int64, actor, reason string, at time.Time) error {
	q := on(r.db, tx)
	_, err := q.Exec(`
		UPDATE invoices
		SET status = ?, cancelled_at = ?, cancelled_by = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ?`,
		entity.InvoiceStatusCancelled, at, actor, reason, at, id,
	)
	if err != nil {
		r.logger.Error("Failed to cancel invoice", zap.Int64("invoice_id", id), zap.Error(err))
		return fmt.Errorf("failed to cancel invoice: %w", err)
	}
	return nil
}

// UpdateLineResolution records the commit-time outcome for one line.
func (r *InvoiceRepository) UpdateLineResolution(tx *sql.Tx, line *entity.InvoiceLine) error {
	q := on(r.db, tx)
	_, err := q.Exec(`
		UPDATE invoice_lines
		SET status = ?, ingredient_id = ?, match_score = ?, match_source = ?, movement_id = ?, error_message = ?
		WHERE id = ?`,
		line.Status, line.IngredientID, line.MatchScore, line.MatchSource, line.MovementID, line.ErrorMessage, line.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice line %d: %w", line.ID, err)
	}
	return nil
}

// ClearLineMovements detaches movement references from the lines of a
// cancelled invoice so no live reference survives the reversal.
func (r *InvoiceRepository) ClearLineMovements(tx *sql.Tx, invoiceID int64) error {
	q := on(r.db, tx)
	if _, err := q.Exec(
		`UPDATE invoice_lines SET movement_id = NULL WHERE invoice_id = ?`, invoiceID,
	); err != nil {
		return fmt.Errorf("failed to clear line movements: %w", err)
	}
	return nil
}

// ListFilter narrows and pages invoice listings.
type ListFilter struct {
	Status        string
	SupplierTaxID string
	DateFrom      *time.Time
	DateTo        *time.Time
	Limit         int
	Offset        int
}

// List returns a page of invoices plus the unpaged total.
func (r *InvoiceRepository) List(filter ListFilter) ([]*entity.Invoice, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SupplierTaxID != "" {
		where = append(where, "supplier_tax_id = ?")
		args = append(args, filter.SupplierTaxID)
	}
	if filter.DateFrom != nil {
		where = append(where, "document_date >= ?")
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, "document_date <= ?")
		args = append(args, *filter.DateTo)
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM invoices WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(
		selectInvoice+` WHERE `+cond+` ORDER BY document_date DESC, id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := r.scanInvoiceRows(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// StatusCount is one row of the by-status aggregate.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// SupplierStat is one row of the by-supplier aggregate.
type SupplierStat struct {
	SupplierTaxID string    `json:"supplier_tax_id"`
	SupplierName  string    `json:"supplier_name"`
	Count         int       `json:"count"`
	TotalAmount   float64   `json:"total_amount"`
	LastImportAt  time.Time `json:"last_import_at"`
}

// CountByStatus aggregates invoices per lifecycle status.
func (r *InvoiceRepository) CountByStatus() ([]StatusCount, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM invoices GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// StatsBySupplier aggregates non-cancelled imports per supplier.
func (r *InvoiceRepository) StatsBySupplier() ([]SupplierStat, error) {
	rows, err := r.db.Query(`
		SELECT supplier_tax_id, MAX(supplier_name), COUNT(*), COALESCE(SUM(total_amount), 0), MAX(created_at)
		FROM invoices
		WHERE status != ?
		GROUP BY supplier_tax_id
		ORDER BY COUNT(*) DESC`,
		entity.InvoiceStatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by supplier: %w", err)
	}
	defer rows.Close()

	var out []SupplierStat
	for rows.Next() {
		var s SupplierStat
		var lastImport sql.NullString
		if err := rows.Scan(&s.SupplierTaxID, &s.SupplierName, &s.Count, &s.TotalAmount, &lastImport); err != nil {
			return nil, err
		}
		if lastImport.Valid {
			t, err := parseStoredTime(lastImport.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse last import time: %w", err)
			}
			s.LastImportAt = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// sqlite stores time values as text, and an aggregate expression loses the
// column's declared type, so the driver hands the raw string back instead
// of a time.Time.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseStoredTime(value string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

const selectInvoice = `
	SELECT id, business_key, content_hash, supplier_name, supplier_tax_id, supplier_address,
		document_type, document_number, document_date, document_year, currency,
		taxable_amount, tax_amount, total_amount, original_filename, file_size,
		status, count_imported, count_ignored, count_errored, count_manual,
		cancelled_at, cancelled_by, cancel_reason, created_at, updated_at
	FROM invoices`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoiceFields(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var cancelledAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.BusinessKey, &inv.ContentHash, &inv.SupplierName, &inv.SupplierTaxID, &inv.SupplierAddress,
		&inv.DocumentType, &inv.DocumentNumber, &inv.DocumentDate, &inv.DocumentYear, &inv.Currency,
		&inv.TaxableAmount, &inv.TaxAmount, &inv.TotalAmount, &inv.OriginalFilename, &inv.FileSize,
		&inv.Status, &inv.CountImported, &inv.CountIgnored, &inv.CountErrored, &inv.CountManual,
		&cancelledAt, &inv.CancelledBy, &inv.CancelReason, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		inv.CancelledAt = &cancelledAt.Time
	}
	return &inv, nil
}

func (r *InvoiceRepository) scanInvoice(row *sql.Row) (*entity.Invoice, error) {
	inv, err := scanInvoiceFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to scan invoice", zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) scanInvoiceRows(rows *sql.Rows) (*entity.Invoice, error) {
	inv, err := scanInvoiceFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice row: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) linesByInvoice(invoiceID int64) ([]*entity.InvoiceLine, error) {
	rows, err := r.db.Query(`
		SELECT id, invoice_id, line_number, description, normalized_description, supplier_code,
			quantity, unit, unit_price, total, tax_rate,
			supplier_lot_code, supplier_expiry, status, ingredient_id, match_score, match_source,
			movement_id, error_message
		FROM invoice_lines WHERE invoice_id = ? ORDER BY line_number`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []*entity.InvoiceLine
	for rows.Next() {
		var line entity.InvoiceLine
		var expiry sql.NullTime
		var ingredientID, movementID, score sql.NullInt64
		err := rows.Scan(
			&line.ID, &line.InvoiceID, &line.LineNumber, &line.Description, &line.NormalizedDescription,
			&line.SupplierCode, &line.Quantity, &line.Unit, &line.UnitPrice, &line.Total, &line.TaxRate,
			&line.SupplierLotCode, &expiry, &line.Status, &ingredientID, &score, &line.MatchSource,
			&movementID, &line.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		if expiry.Valid {
			line.SupplierExpiry = &expiry.Time
		}
		if ingredientID.Valid {
			line.IngredientID = &ingredientID.Int64
		}
		if movementID.Valid {
			line.MovementID = &movementID.Int64
		}
		if score.Valid {
			v := int(score.Int64)
			line.MatchScore = &v
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

func (r *InvoiceRepository) shipmentsByInvoice(invoiceID int64) ([]*entity.ShipmentRef, error) {
	rows, err := r.db.Query(
		`SELECT id, invoice_id, number, date FROM invoice_shipments WHERE invoice_id = ? ORDER BY id`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment refs: %w", err)
	}
	defer rows.Close()

	var refs []*entity.ShipmentRef
	for rows.Next() {
		var ref entity.ShipmentRef
		var date sql.NullTime
		if err := rows.Scan(&ref.ID, &ref.InvoiceID, &ref.Number, &date); err != nil {
			return nil, fmt.Errorf("failed to scan shipment ref: %w", err)
		}
		if date.Valid {
			ref.Date = &date.Time
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}
