package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
)

// IngredientRepository reads the ingredient directory. The directory is
// owned by the stock module; this engine never writes to it.
type IngredientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIngredientRepository creates a new ingredient repository
func NewIngredientRepository(db *sql.DB, logger *zap.Logger) *IngredientRepository {
	return &IngredientRepository{db: db, logger: logger}
}

// ListActive returns all active ingredients in stable id order. Stable
// order matters: fuzzy-match ties break to the first highest seen.
func (r *IngredientRepository) ListActive() ([]*entity.Ingredient, error) {
	rows, err := r.db.Query(
		`SELECT id, name, category, unit, active FROM ingredients WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer rows.Close()

	var out []*entity.Ingredient
	for rows.Next() {
		var ing entity.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Category, &ing.Unit, &ing.Active); err != nil {
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		out = append(out, &ing)
	}
	return out, rows.Err()
}

// GetByID retrieves one ingredient, active or not, or ErrNotFound.
func (r *IngredientRepository) GetByID(id int64) (*entity.Ingredient, error) {
	var ing entity.Ingredient
	err := r.db.QueryRow(
		`SELECT id, name, category, unit, active FROM ingredients WHERE id = ?`, id,
	).Scan(&ing.ID, &ing.Name, &ing.Category, &ing.Unit, &ing.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get ingredient", zap.Int64("ingredient_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get ingredient: %w", err)
	}
	return &ing, nil
}
