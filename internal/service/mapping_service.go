package service

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/config"
	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/match"
	"github.com/stockfood/traceflow/internal/repository"
)

// MappingService exposes the learned supplier-product dictionary:
// exact lookups, similarity search over a supplier's history, and the
// curation operations (repoint, deactivate).
type MappingService struct {
	mappings    *repository.MappingRepository
	ingredients *IngredientProvider
	matching    config.MatchingConfig
	logger      *zap.Logger
}

// NewMappingService creates a mapping service.
func NewMappingService(
	mappings *repository.MappingRepository,
	ingredients *IngredientProvider,
	matching config.MatchingConfig,
	logger *zap.Logger,
) *MappingService {
	return &MappingService{
		mappings:    mappings,
		ingredients: ingredients,
		matching:    matching,
		logger:      logger,
	}
}

// Lookup returns the active mapping for an exact supplier and normalized
// description, or nil when none is learned. The raw description is
// normalized here so callers pass what the supplier wrote.
func (s *MappingService) Lookup(supplierTaxID, description string) (*entity.SupplierProductMapping, error) {
	m, err := s.mappings.Lookup(supplierTaxID, match.Normalize(description))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// SearchSimilar ranks a supplier's learned mappings against a new
// description by token overlap. Only scores strictly above the search
// threshold qualify; results come back best first.
func (s *MappingService) SearchSimilar(supplierTaxID, description string) ([]*entity.ScoredMapping, error) {
	normalized := match.Normalize(description)
	if normalized == "" {
		return []*entity.ScoredMapping{}, nil
	}

	candidates, err := s.mappings.TopBySupplier(supplierTaxID, s.matching.SearchLimit)
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredMapping, 0, len(candidates))
	for _, m := range candidates {
		score := match.TokenOverlap(normalized, m.NormalizedDescription)
		if score <= s.matching.SearchThreshold {
			continue
		}
		scored = append(scored, &entity.ScoredMapping{Mapping: m, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Repoint redirects a mapping to a different ingredient, marking it
// manually confirmed. Usage history stays intact: the supplier still says
// the same words, we just learned what they mean.
func (s *MappingService) Repoint(id, ingredientID int64) (*entity.SupplierProductMapping, error) {
	ing, err := s.ingredients.Get(ingredientID)
	if err != nil {
		return nil, err
	}
	if !ing.Active {
		return nil, errors.New("cannot repoint a mapping to an inactive ingredient")
	}

	if err := s.mappings.Repoint(id, ing.ID, ing.Name, ing.Category); err != nil {
		return nil, err
	}
	s.logger.Info("Mapping repointed",
		zap.Int64("mapping_id", id),
		zap.Int64("ingredient_id", ing.ID))
	return s.mappings.GetByID(id)
}

// Deactivate soft-disables a mapping so it stops feeding the analysis
// fast path. The row survives for audit.
func (s *MappingService) Deactivate(id int64) error {
	if err := s.mappings.Deactivate(id); err != nil {
		return err
	}
	s.logger.Info("Mapping deactivated", zap.Int64("mapping_id", id))
	return nil
}

// List returns a page of mappings plus the unpaged total.
func (s *MappingService) List(limit, offset int) ([]*entity.SupplierProductMapping, int, error) {
	return s.mappings.List(limit, offset)
}
