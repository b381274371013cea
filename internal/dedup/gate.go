// Package dedup decides whether an incoming document has been seen before.
// It reads prior-import state and never writes; rejection carries a
// reference to the earlier record for display.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
)

// priorLookup is the slice of the invoice repository the gate needs.
type priorLookup interface {
	FindActiveByContentHash(contentHash string) (*entity.Invoice, error)
	FindActiveByBusinessKey(businessKey string) (*entity.Invoice, error)
}

// Result is the gate's verdict for one document.
type Result struct {
	Outcome     string                  `json:"outcome"`
	ContentHash string                  `json:"content_hash"`
	Prior       *entity.PriorInvoiceRef `json:"prior,omitempty"`
}

// Gate checks incoming documents against prior non-cancelled imports.
type Gate struct {
	invoices priorLookup
	logger   *zap.Logger
}

// NewGate creates a deduplication gate over the invoice store.
func NewGate(invoices priorLookup, logger *zap.Logger) *Gate {
	return &Gate{invoices: invoices, logger: logger}
}

// HashContent hashes the raw document bytes. Hashing bytes rather than the
// parsed structure means byte-identical re-uploads are caught even if the
// parser changes between submissions.
func HashContent(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Check classifies a document as new or duplicate. The hash check runs
// first: it is filename-independent and cheaper to explain to the user.
// Cancelled prior imports never count, so a reversed document can be
// re-ingested.
func (g *Gate) Check(raw []byte, businessKey string) (*Result, error) {
	hash := HashContent(raw)

	prior, err := g.invoices.FindActiveByContentHash(hash)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("dedup hash check failed: %w", err)
	}
	if prior != nil {
		g.logger.Info("Duplicate document by content hash",
			zap.String("business_key", businessKey),
			zap.Int64("prior_invoice_id", prior.ID))
		return &Result{
			Outcome:     entity.DedupOutcomeDuplicateHash,
			ContentHash: hash,
			Prior:       priorRef(prior),
		}, nil
	}

	prior, err = g.invoices.FindActiveByBusinessKey(businessKey)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("dedup business-key check failed: %w", err)
	}
	if prior != nil {
		g.logger.Info("Duplicate document by business key",
			zap.String("business_key", businessKey),
			zap.Int64("prior_invoice_id", prior.ID))
		return &Result{
			Outcome:     entity.DedupOutcomeDuplicateBusinessKey,
			ContentHash: hash,
			Prior:       priorRef(prior),
		}, nil
	}

	return &Result{Outcome: entity.DedupOutcomeNew, ContentHash: hash}, nil
}

func priorRef(inv *entity.Invoice) *entity.PriorInvoiceRef {
	return &entity.PriorInvoiceRef{
		InvoiceID:      inv.ID,
		Status:         inv.Status,
		DocumentNumber: inv.DocumentNumber,
		ImportedAt:     inv.CreatedAt,
	}
}
