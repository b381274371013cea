package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/config"
	"github.com/stockfood/traceflow/internal/dedup"
	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/domain/workflow"
	"github.com/stockfood/traceflow/internal/fattura"
	"github.com/stockfood/traceflow/internal/match"
	"github.com/stockfood/traceflow/internal/repository"
	"github.com/stockfood/traceflow/pkg/database"
)

// AnalyzeOutcomeParseError marks a file the analyzer could not read at all.
// The dedup outcomes come from the gate.
const AnalyzeOutcomeParseError = "PARSE_ERROR"

// ReconcileService drives the import lifecycle: analyze incoming documents,
// commit or cancel them, and keep the learned mappings current.
type ReconcileService struct {
	db          *database.DB
	invoices    *repository.InvoiceRepository
	mappings    *repository.MappingRepository
	ledger      *LedgerService
	gate        *dedup.Gate
	ingredients *IngredientProvider
	matching    config.MatchingConfig
	logger      *zap.Logger
}

// NewReconcileService creates a reconcile service.
func NewReconcileService(
	db *database.DB,
	invoices *repository.InvoiceRepository,
	mappings *repository.MappingRepository,
	ledger *LedgerService,
	gate *dedup.Gate,
	ingredients *IngredientProvider,
	matching config.MatchingConfig,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		db:          db,
		invoices:    invoices,
		mappings:    mappings,
		ledger:      ledger,
		gate:        gate,
		ingredients: ingredients,
		matching:    matching,
		logger:      logger,
	}
}

// AnalyzeInput is one uploaded file.
type AnalyzeInput struct {
	Filename string
	Content  []byte
}

// AnalyzeResult is the per-file verdict of a batch analysis.
type AnalyzeResult struct {
	Filename      string                  `json:"filename"`
	Outcome       string                  `json:"outcome"`
	Invoice       *entity.Invoice         `json:"invoice,omitempty"`
	Prior         *entity.PriorInvoiceRef `json:"prior,omitempty"`
	SupplierKnown bool                    `json:"supplier_known"`
	Error         string                  `json:"error,omitempty"`
}

// AnalyzeBatch runs Analyze over every file independently. One bad file
// never aborts the batch; its result carries the error instead.
func (s *ReconcileService) AnalyzeBatch(ctx context.Context, inputs []AnalyzeInput) []*AnalyzeResult {
	results := make([]*AnalyzeResult, 0, len(inputs))
	for _, in := range inputs {
		result, err := s.Analyze(ctx, in)
		if err != nil {
			s.logger.Error("Analysis failed",
				zap.String("filename", in.Filename), zap.Error(err))
			result = &AnalyzeResult{
				Filename: in.Filename,
				Outcome:  AnalyzeOutcomeParseError,
				Error:    err.Error(),
			}
		}
		results = append(results, result)
	}
	return results
}

// Analyze parses one document, screens it for duplicates, resolves every
// line against learned mappings and the ingredient directory, and persists
// the result in the ANALYZED state. Nothing touches stock here.
func (s *ReconcileService) Analyze(ctx context.Context, in AnalyzeInput) (*AnalyzeResult, error) {
	inv, err := fattura.Parse(in.Content)
	if err != nil {
		return &AnalyzeResult{
			Filename: in.Filename,
			Outcome:  AnalyzeOutcomeParseError,
			Error:    err.Error(),
		}, nil
	}

	businessKey, err := entity.BuildBusinessKey(inv.SupplierTaxID, inv.DocumentNumber, inv.DocumentYear)
	if err != nil {
		// Identity cannot be established, so dedup cannot run. Treat it as
		// a document defect, not a duplicate.
		return &AnalyzeResult{
			Filename: in.Filename,
			Outcome:  AnalyzeOutcomeParseError,
			Error:    err.Error(),
		}, nil
	}
	inv.BusinessKey = businessKey
	inv.OriginalFilename = in.Filename
	inv.FileSize = int64(len(in.Content))
	inv.Status = entity.InvoiceStatusAnalyzed

	verdict, err := s.gate.Check(in.Content, businessKey)
	if err != nil {
		return nil, err
	}
	inv.ContentHash = verdict.ContentHash
	if verdict.Outcome != entity.DedupOutcomeNew {
		return &AnalyzeResult{
			Filename: in.Filename,
			Outcome:  verdict.Outcome,
			Prior:    verdict.Prior,
		}, nil
	}

	supplierKnown, err := s.resolveLines(ctx, inv)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.invoices.Create(tx, inv)
	})
	if err != nil {
		// Two concurrent uploads of the same document can both pass the
		// gate; the partial unique indexes decide the race. Re-check so
		// the loser gets a duplicate verdict, not a constraint error.
		if repository.IsUniqueViolation(err) {
			verdict, gerr := s.gate.Check(in.Content, businessKey)
			if gerr == nil && verdict.Outcome != entity.DedupOutcomeNew {
				return &AnalyzeResult{
					Filename: in.Filename,
					Outcome:  verdict.Outcome,
					Prior:    verdict.Prior,
				}, nil
			}
		}
		return nil, err
	}

	s.logger.Info("Document analyzed",
		zap.String("business_key", businessKey),
		zap.Int64("invoice_id", inv.ID),
		zap.Int("lines", len(inv.Lines)))

	return &AnalyzeResult{
		Filename:      in.Filename,
		Outcome:       entity.DedupOutcomeNew,
		Invoice:       inv,
		SupplierKnown: supplierKnown,
	}, nil
}

// resolveLines fills each line's resolution: exact learned mapping first,
// close variant of a learned mapping second, fuzzy suggestion third,
// unmatched otherwise. Returns whether the supplier has any prior
// mappings at all.
func (s *ReconcileService) resolveLines(ctx context.Context, inv *entity.Invoice) (bool, error) {
	candidates, err := s.ingredients.Active(ctx)
	if err != nil {
		return false, err
	}
	prior, err := s.mappings.TopBySupplier(inv.SupplierTaxID, s.matching.SearchLimit)
	if err != nil {
		return false, err
	}

	for _, line := range inv.Lines {
		line.NormalizedDescription = match.Normalize(line.Description)

		mapping, err := s.mappings.Lookup(inv.SupplierTaxID, line.NormalizedDescription)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		if mapping != nil {
			line.Status = entity.LineStatusMatchedMapping
			line.IngredientID = &mapping.IngredientID
			line.MatchScore = mapping.SimilarityScore
			line.MatchSource = entity.MatchSourceMapping
			continue
		}

		// The supplier may phrase a learned article differently between
		// documents (case, spacing, reordered units). A close enough
		// learned entry is proposed ahead of fuzzy scoring.
		if similar, score := bestSimilarMapping(prior, line.NormalizedDescription, s.matching.SimilarThreshold); similar != nil {
			line.Status = entity.LineStatusMatchedSuggested
			line.IngredientID = &similar.IngredientID
			line.MatchScore = &score
			line.MatchSource = entity.MatchSourceMapping
			continue
		}

		if best := match.BestIngredient(line.NormalizedDescription, candidates, s.matching.SuggestThreshold); best != nil {
			score := best.Score
			line.Status = entity.LineStatusMatchedSuggested
			line.IngredientID = &best.Ingredient.ID
			line.MatchScore = &score
			line.MatchSource = entity.MatchSourceFuzzy
			continue
		}

		line.Status = entity.LineStatusUnmatched
	}

	return len(prior) > 0, nil
}

// bestSimilarMapping returns the learned entry whose stored phrasing
// overlaps the new description at or above threshold, best score first.
func bestSimilarMapping(candidates []*entity.SupplierProductMapping, normalized string, threshold int) (*entity.SupplierProductMapping, int) {
	var best *entity.SupplierProductMapping
	bestScore := 0
	for _, m := range candidates {
		score := match.TokenOverlap(normalized, m.NormalizedDescription)
		if score < threshold || score <= bestScore {
			continue
		}
		best, bestScore = m, score
	}
	return best, bestScore
}

// LineResolution is a pre-commit correction for one line.
type LineResolution struct {
	LineNumber   int    `json:"line_number"`
	IngredientID *int64 `json:"ingredient_id,omitempty"`
	Ignore       bool   `json:"ignore"`
}

// ResolveLine applies a manual correction to an analyzed document: assign
// an ingredient by hand, or mark the line ignored. Only documents still in
// the ANALYZED state accept corrections.
func (s *ReconcileService) ResolveLine(ctx context.Context, invoiceID int64, res LineResolution) (*entity.Invoice, error) {
	inv, err := s.invoices.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != entity.InvoiceStatusAnalyzed {
		return nil, fmt.Errorf("%w: document is %s", ErrInvalidState, inv.Status)
	}

	line := lineByNumber(inv, res.LineNumber)
	if line == nil {
		return nil, fmt.Errorf("%w: line %d", repository.ErrNotFound, res.LineNumber)
	}

	switch {
	case res.Ignore:
		line.Status = entity.LineStatusIgnored
		line.IngredientID = nil
		line.MatchScore = nil
		line.MatchSource = ""
	case res.IngredientID != nil:
		ing, err := s.ingredients.Get(*res.IngredientID)
		if err != nil {
			return nil, err
		}
		if !ing.Active {
			return nil, fmt.Errorf("ingredient %d is inactive", ing.ID)
		}
		line.Status = entity.LineStatusMatchedManual
		line.IngredientID = &ing.ID
		line.MatchScore = nil
		line.MatchSource = entity.MatchSourceManual
	default:
		return nil, fmt.Errorf("resolution must assign an ingredient or ignore the line")
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.invoices.UpdateLineResolution(tx, line)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CommitOptions tunes one commit.
type CommitOptions struct {
	// LotOverrides maps line numbers to operator-chosen lot codes, taking
	// precedence over the supplier's declared code.
	LotOverrides map[int]string `json:"lot_overrides,omitempty"`
}

// CommitResult reports what a commit produced.
type CommitResult struct {
	Invoice     *entity.Invoice `json:"invoice"`
	LotsCreated int             `json:"lots_created"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// Commit turns an analyzed document into stock: one lot plus one inbound
// movement per matched line, learned mappings reinforced, ignored and
// unresolved lines skipped without stock. The whole commit is one
// transaction; the final status comes from the lifecycle machine based on
// the line counters.
func (s *ReconcileService) Commit(ctx context.Context, invoiceID int64, opts CommitOptions) (*CommitResult, error) {
	inv, err := s.invoices.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}

	machine := workflow.NewImportMachine(workflow.State(inv.Status))
	if !machine.CanFire(workflow.TriggerCommit) {
		return nil, fmt.Errorf("%w: cannot commit a %s document", ErrInvalidState, inv.Status)
	}

	// A different active document may have claimed the same business key
	// since analysis (analyze, cancel, re-analyze elsewhere).
	if conflicting, err := s.invoices.FindConflicting(inv.BusinessKey, inv.ID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	} else if conflicting != nil {
		return nil, fmt.Errorf("%w: business key %s already active as invoice %d",
			ErrConflict, inv.BusinessKey, conflicting.ID)
	}

	result := &CommitResult{Invoice: inv}
	inv.CountImported, inv.CountIgnored, inv.CountErrored, inv.CountManual = 0, 0, 0, 0

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		for _, line := range inv.Lines {
			if err := s.commitLine(tx, inv, line, opts, result); err != nil {
				return err
			}
			if err := s.invoices.UpdateLineResolution(tx, line); err != nil {
				return err
			}
		}

		trigger := commitTrigger(inv)
		if err := machine.Fire(ctx, trigger); err != nil {
			return err
		}
		inv.Status = string(machine.State())
		return s.invoices.UpdateCommitResult(tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Document committed",
		zap.String("business_key", inv.BusinessKey),
		zap.String("status", inv.Status),
		zap.Int("lots_created", result.LotsCreated),
		zap.Int("errored", inv.CountErrored))
	return result, nil
}

// commitLine imports one line. Failures on a single line degrade that line
// to an error and let the rest of the document proceed.
func (s *ReconcileService) commitLine(tx *sql.Tx, inv *entity.Invoice, line *entity.InvoiceLine, opts CommitOptions, result *CommitResult) error {
	if line.Status == entity.LineStatusIgnored {
		inv.CountIgnored++
		return nil
	}
	if !entity.IsMatched(line.Status) {
		// No resolution was chosen. The line is recorded as seen but
		// moves no stock.
		line.Status = entity.LineStatusIgnored
		line.IngredientID = nil
		line.MatchScore = nil
		line.MatchSource = ""
		inv.CountIgnored++
		return nil
	}

	ing, err := s.ingredients.Get(*line.IngredientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.failLine(inv, line, fmt.Sprintf("ingredient %d no longer exists", *line.IngredientID))
			return nil
		}
		return err
	}
	if !ing.Active {
		s.failLine(inv, line, fmt.Sprintf("ingredient %s is inactive", ing.Name))
		return nil
	}

	lotCode := opts.LotOverrides[line.LineNumber]
	if lotCode == "" {
		lotCode = line.SupplierLotCode
	}
	if lotCode == "" {
		lotCode = generatedLotCode(inv, line)
	}

	_, movement, err := s.ledger.CreateLot(tx, CreateLotParams{
		IngredientID:    ing.ID,
		LotCode:         lotCode,
		Quantity:        line.Quantity,
		Unit:            line.Unit,
		UnitPrice:       line.UnitPrice,
		ArrivalDate:     inv.DocumentDate,
		ExpiryDate:      line.SupplierExpiry,
		SupplierName:    inv.SupplierName,
		SupplierTaxID:   inv.SupplierTaxID,
		InvoiceID:       inv.ID,
		LineNumber:      line.LineNumber,
		SupplierLotCode: line.SupplierLotCode,
	}, inv.BusinessKey)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			s.failLine(inv, line, fmt.Sprintf("lot code %s already exists for %s", lotCode, ing.Name))
			return nil
		}
		return err
	}

	line.MovementID = &movement.ID
	inv.CountImported++
	if line.Status == entity.LineStatusMatchedManual {
		inv.CountManual++
	}
	result.LotsCreated++

	return s.learnMapping(tx, inv, line, ing)
}

// learnMapping feeds the supplier dictionary after a line imports. When the
// exact key is already learned the upsert bumps it. Otherwise a confirmed
// resolution phrased close to an entry already learned for the same
// ingredient reinforces that entry instead of adding a row per phrasing;
// only a genuinely new association inserts.
func (s *ReconcileService) learnMapping(tx *sql.Tx, inv *entity.Invoice, line *entity.InvoiceLine, ing *entity.Ingredient) error {
	confirmed := line.Status == entity.LineStatusMatchedManual

	existing, err := s.mappings.Lookup(inv.SupplierTaxID, line.NormalizedDescription)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if existing == nil {
		prior, err := s.mappings.TopBySupplier(inv.SupplierTaxID, s.matching.SearchLimit)
		if err != nil {
			return err
		}
		var sibling *entity.SupplierProductMapping
		siblingScore := 0
		for _, m := range prior {
			if m.NormalizedDescription == line.NormalizedDescription || m.IngredientID != ing.ID {
				continue
			}
			score := match.TokenOverlap(line.NormalizedDescription, m.NormalizedDescription)
			if score > s.matching.SearchThreshold && score > siblingScore {
				sibling, siblingScore = m, score
			}
		}
		if sibling != nil {
			return s.mappings.Reinforce(tx, sibling.ID, confirmed)
		}
	}

	return s.mappings.Upsert(tx, &entity.SupplierProductMapping{
		SupplierTaxID:         inv.SupplierTaxID,
		NormalizedDescription: line.NormalizedDescription,
		IngredientID:          ing.ID,
		IngredientName:        ing.Name,
		IngredientCategory:    ing.Category,
		ConversionFactor:      1,
		ConfirmedManually:     confirmed,
		SimilarityScore:       line.MatchScore,
	})
}

func (s *ReconcileService) failLine(inv *entity.Invoice, line *entity.InvoiceLine, message string) {
	line.Status = entity.LineStatusError
	line.IngredientID = nil
	line.MovementID = nil
	line.ErrorMessage = message
	inv.CountErrored++
	s.logger.Warn("Line skipped at commit",
		zap.String("business_key", inv.BusinessKey),
		zap.Int("line", line.LineNumber),
		zap.String("reason", message))
}

// commitTrigger picks the lifecycle transition from the line counters.
func commitTrigger(inv *entity.Invoice) workflow.Trigger {
	switch {
	case inv.CountImported == 0 && inv.CountErrored > 0:
		return workflow.TriggerFail
	case inv.CountImported == 0:
		// Every line ignored. The document stays committed so dedup keeps
		// rejecting re-uploads, it just moved no stock.
		return workflow.TriggerIgnore
	case inv.CountErrored > 0:
		return workflow.TriggerCommitPartial
	default:
		return workflow.TriggerCommit
	}
}

// Ignore commits a document with every line ignored: no lots, no
// movements, but the record stays active so the same document cannot be
// re-imported by accident.
func (s *ReconcileService) Ignore(ctx context.Context, invoiceID int64) (*entity.Invoice, error) {
	inv, err := s.invoices.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}

	machine := workflow.NewImportMachine(workflow.State(inv.Status))
	if !machine.CanFire(workflow.TriggerIgnore) {
		return nil, fmt.Errorf("%w: cannot ignore a %s document", ErrInvalidState, inv.Status)
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		for _, line := range inv.Lines {
			line.Status = entity.LineStatusIgnored
			line.IngredientID = nil
			line.MatchScore = nil
			line.MatchSource = ""
			line.MovementID = nil
			line.ErrorMessage = ""
			if err := s.invoices.UpdateLineResolution(tx, line); err != nil {
				return err
			}
		}
		inv.CountImported, inv.CountErrored, inv.CountManual = 0, 0, 0
		inv.CountIgnored = len(inv.Lines)

		if err := machine.Fire(ctx, workflow.TriggerIgnore); err != nil {
			return err
		}
		inv.Status = string(machine.State())
		return s.invoices.UpdateCommitResult(tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Document ignored", zap.String("business_key", inv.BusinessKey))
	return inv, nil
}

// CancelResult reports what a cancellation undid.
type CancelResult struct {
	Invoice  *entity.Invoice `json:"invoice"`
	Reversed *ReverseResult  `json:"reversed,omitempty"`
}

// Cancel reverses a document: its lots and movements are undone, its
// record flips to CANCELLED, and the business key and content hash become
// free for re-import. An analyzed document cancels without ledger work.
// Lots already consumed by orders cannot vanish; they are written off and
// reported as warnings.
func (s *ReconcileService) Cancel(ctx context.Context, invoiceID int64, actor, reason string) (*CancelResult, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	inv, err := s.invoices.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == entity.InvoiceStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	machine := workflow.NewImportMachine(workflow.State(inv.Status))
	if !machine.CanFire(workflow.TriggerCancel) {
		return nil, fmt.Errorf("%w: cannot cancel a %s document", ErrInvalidState, inv.Status)
	}

	result := &CancelResult{Invoice: inv}
	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		if inv.Status != entity.InvoiceStatusAnalyzed {
			reversed, err := s.ledger.Reverse(tx, inv.ID, inv.BusinessKey)
			if err != nil {
				return err
			}
			result.Reversed = reversed
			if err := s.invoices.ClearLineMovements(tx, inv.ID); err != nil {
				return err
			}
		}

		if err := machine.Fire(ctx, workflow.TriggerCancel); err != nil {
			return err
		}
		now := time.Now()
		if err := s.invoices.MarkCancelled(tx, inv.ID, actor, reason, now); err != nil {
			return err
		}
		inv.Status = string(machine.State())
		inv.CancelledAt = &now
		inv.CancelledBy = actor
		inv.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Document cancelled",
		zap.String("business_key", inv.BusinessKey),
		zap.String("actor", actor),
		zap.String("reason", reason))
	return result, nil
}

// Get returns one document with its lines and shipment references.
func (s *ReconcileService) Get(invoiceID int64) (*entity.Invoice, error) {
	return s.invoices.GetByID(invoiceID)
}

// List returns a filtered page of documents plus the unpaged total.
func (s *ReconcileService) List(filter repository.ListFilter) ([]*entity.Invoice, int, error) {
	return s.invoices.List(filter)
}

// Stats aggregates the import history.
type Stats struct {
	ByStatus   []repository.StatusCount  `json:"by_status"`
	BySupplier []repository.SupplierStat `json:"by_supplier"`
}

// Stats returns import counts per status and per supplier.
func (s *ReconcileService) Stats() (*Stats, error) {
	byStatus, err := s.invoices.CountByStatus()
	if err != nil {
		return nil, err
	}
	bySupplier, err := s.invoices.StatsBySupplier()
	if err != nil {
		return nil, err
	}
	return &Stats{ByStatus: byStatus, BySupplier: bySupplier}, nil
}

func lineByNumber(inv *entity.Invoice, lineNumber int) *entity.InvoiceLine {
	for _, line := range inv.Lines {
		if line.LineNumber == lineNumber {
			return line
		}
	}
	return nil
}

func generatedLotCode(inv *entity.Invoice, line *entity.InvoiceLine) string {
	return fmt.Sprintf("AUTO-%s-%d-R%d", inv.SupplierTaxID, inv.ID, line.LineNumber)
}
