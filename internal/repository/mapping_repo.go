package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// MappingRepository handles learned supplier-product mapping operations
type MappingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *sql.DB, logger *zap.Logger) *MappingRepository {
	return &MappingRepository{db: db, logger: logger}
}

// Lookup is the exact-key fast path: active mapping for (supplier tax id,
// normalized description), or ErrNotFound.
func (r *MappingRepository) Lookup(supplierTaxID, normalizedDescription string) (*entity.SupplierProductMapping, error) {
	return r.scanMapping(r.db.QueryRow(
		selectMapping+` WHERE supplier_tax_id = ? AND normalized_description = ? AND active = 1`,
		supplierTaxID, normalizedDescription,
	))
}

// GetByID retrieves a mapping regardless of active flag.
func (r *MappingRepository) GetByID(id int64) (*entity.SupplierProductMapping, error) {
	return r.scanMapping(r.db.QueryRow(selectMapping+` WHERE id = ?`, id))
}

// Upsert creates the mapping on first confirmation or atomically bumps
// usage_count and last_used_at on reuse. The single ON CONFLICT statement
// keeps concurrent imports from the same supplier from losing updates.
// A reused mapping is reactivated and repointed at the confirmed ingredient.
func (r *MappingRepository) Upsert(tx *sql.Tx, m *entity.SupplierProductMapping) error {
	q := on(r.db, tx)
	now := time.Now()
	_, err := q.Exec(`
		INSERT INTO supplier_product_mappings (
			supplier_tax_id, normalized_description, ingredient_id, ingredient_name, ingredient_category,
			conversion_factor, usage_count, last_used_at, confirmed_manually, similarity_score,
			active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (supplier_tax_id, normalized_description) DO UPDATE SET
			usage_count = usage_count + 1,
			last_used_at = excluded.last_used_at,
			ingredient_id = excluded.ingredient_id,
			ingredient_name = excluded.ingredient_name,
			ingredient_category = excluded.ingredient_category,
			confirmed_manually = confirmed_manually OR excluded.confirmed_manually,
			active = 1,
			updated_at = excluded.updated_at`,
		m.SupplierTaxID, m.NormalizedDescription, m.IngredientID, m.IngredientName, m.IngredientCategory,
		m.ConversionFactor, now, m.ConfirmedManually, m.SimilarityScore, now, now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert mapping",
			zap.String("supplier_tax_id", m.SupplierTaxID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Reinforce bumps an already-learned mapping that a confirmed resolution
// reused under a different phrasing of the same article: usage_count and
// last_used_at move exactly as on an exact-key reuse, without inserting a
// row for the variant description.
func (r *MappingRepository) Reinforce(tx *sql.Tx, id int64, confirmedManually bool) error {
	q := on(r.db, tx)
	now := time.Now()
	res, err := q.Exec(`
		UPDATE supplier_product_mappings
		SET usage_count = usage_count + 1,
			last_used_at = ?,
			confirmed_manually = confirmed_manually OR ?,
			active = 1,
			updated_at = ?
		WHERE id = ?`,
		now, confirmedManually, now, id,
	)
	if err != nil {
		r.logger.Error("Failed to reinforce mapping",
			zap.Int64("mapping_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to reinforce mapping %d: %w", id, err)
	}
	return r.requireRow(res, id)
}

// TopBySupplier returns the supplier's active mappings ranked by prior
// usage, bounded to limit. Candidate pool for search-similar.
func (r *MappingRepository) TopBySupplier(supplierTaxID string, limit int) ([]*entity.SupplierProductMapping, error) {
	rows, err := r.db.Query(
		selectMapping+` WHERE supplier_tax_id = ? AND active = 1 ORDER BY usage_count DESC, id LIMIT ?`,
		supplierTaxID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query supplier mappings: %w", err)
	}
	defer rows.Close()
	return r.collectMappings(rows)
}

// Repoint changes the resolved ingredient of a mapping and flags it as
// manually confirmed. usage_count is deliberately untouched.
func (r *MappingRepository) Repoint(id int64, ingredientID int64, name, category string) error {
	res, err := r.db.Exec(`
		UPDATE supplier_product_mappings
		SET ingredient_id = ?, ingredient_name = ?, ingredient_category = ?,
			confirmed_manually = 1, updated_at = ?
		WHERE id = ?`,
		ingredientID, name, category, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to repoint mapping %d: %w", id, err)
	}
	return r.requireRow(res, id)
}

// Deactivate soft-disables a mapping; it stays for audit but lookups skip it.
func (r *MappingRepository) Deactivate(id int64) error {
	res, err := r.db.Exec(
		`UPDATE supplier_product_mappings SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate mapping %d: %w", id, err)
	}
	return r.requireRow(res, id)
}

// List returns a page of active mappings sorted by usage.
func (r *MappingRepository) List(limit, offset int) ([]*entity.SupplierProductMapping, int, error) {
	var total int
	if err := r.db.QueryRow(
		`SELECT COUNT(*) FROM supplier_product_mappings WHERE active = 1`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count mappings: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		selectMapping+` WHERE active = 1 ORDER BY usage_count DESC, last_used_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	mappings, err := r.collectMappings(rows)
	return mappings, total, err
}

func (r *MappingRepository) requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mapping %d: %w", id, ErrNotFound)
	}
	return nil
}

const selectMapping = `
	SELECT id, supplier_tax_id, normalized_description, ingredient_id, ingredient_name, ingredient_category,
		conversion_factor, usage_count, last_used_at, confirmed_manually, similarity_score, active,
		created_at, updated_at
	FROM supplier_product_mappings`

func (r *MappingRepository) scanMapping(row *sql.Row) (*entity.SupplierProductMapping, error) {
	m, err := scanMappingFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to scan mapping", zap.Error(err))
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return m, nil
}

func scanMappingFields(row rowScanner) (*entity.SupplierProductMapping, error) {
	var m entity.SupplierProductMapping
	var score sql.NullInt64
	err := row.Scan(
		&m.ID, &m.SupplierTaxID, &m.NormalizedDescription, &m.IngredientID, &m.IngredientName,
		&m.IngredientCategory, &m.ConversionFactor, &m.UsageCount, &m.LastUsedAt,
		&m.ConfirmedManually, &score, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		m.SimilarityScore = &v
	}
	return &m, nil
}

func (r *MappingRepository) collectMappings(rows *sql.Rows) ([]*entity.SupplierProductMapping, error) {
	var out []*entity.SupplierProductMapping
	for rows.Next() {
		m, err := scanMappingFields(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
