package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/domain/entity"
	"github.com/stockfood/traceflow/internal/repository"
)

// Expiry urgency windows, in days.
const (
	criticalWindowDays = 3
	urgentWindowDays   = 7
)

// TraceService answers provenance questions over the ledger: where did a
// lot come from, what went into an order, what is about to expire.
type TraceService struct {
	lots        *repository.LotRepository
	invoices    *repository.InvoiceRepository
	ingredients *IngredientProvider
	logger      *zap.Logger
}

// NewTraceService creates a trace service.
func NewTraceService(
	lots *repository.LotRepository,
	invoices *repository.InvoiceRepository,
	ingredients *IngredientProvider,
	logger *zap.Logger,
) *TraceService {
	return &TraceService{lots: lots, invoices: invoices, ingredients: ingredients, logger: logger}
}

// LotTrace is the full provenance of one lot: its ingredient, the
// document that brought it in, and every draw against it.
type LotTrace struct {
	Lot            *entity.Lot     `json:"lot"`
	IngredientName string          `json:"ingredient_name"`
	SourceInvoice  *entity.Invoice `json:"source_invoice,omitempty"`
}

// TraceByLot resolves a lot code to its provenance. The lot's source
// document is included when it still exists; a lot orphaned by a
// cancellation traces without one.
func (s *TraceService) TraceByLot(lotCode string) (*LotTrace, error) {
	lot, err := s.lots.FindByCode(lotCode)
	if err != nil {
		return nil, err
	}

	trace := &LotTrace{Lot: lot}
	if ing, err := s.ingredients.Get(lot.IngredientID); err == nil {
		trace.IngredientName = ing.Name
	}
	if lot.InvoiceID != nil {
		inv, err := s.invoices.GetByID(*lot.InvoiceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		trace.SourceInvoice = inv
	}
	return trace, nil
}

// OrderTrace lists every lot an order drew from, with the draw amounts.
type OrderTrace struct {
	OrderRef string       `json:"order_ref"`
	Draws    []*OrderDraw `json:"draws"`
}

// OrderDraw is one consumption event expanded with its lot's provenance.
type OrderDraw struct {
	Consumption    *entity.LotConsumption `json:"consumption"`
	Lot            *entity.Lot            `json:"lot"`
	IngredientName string                 `json:"ingredient_name"`
}

// TraceByOrder walks backward from a customer order to the supplier lots
// that went into it.
func (s *TraceService) TraceByOrder(orderRef string) (*OrderTrace, error) {
	consumptions, err := s.lots.ConsumptionsByOrder(orderRef)
	if err != nil {
		return nil, err
	}

	trace := &OrderTrace{OrderRef: orderRef, Draws: make([]*OrderDraw, 0, len(consumptions))}
	for _, c := range consumptions {
		lot, err := s.lots.GetByID(c.LotID)
		if err != nil {
			return nil, err
		}
		draw := &OrderDraw{Consumption: c, Lot: lot}
		if ing, err := s.ingredients.Get(lot.IngredientID); err == nil {
			draw.IngredientName = ing.Name
		}
		trace.Draws = append(trace.Draws, draw)
	}
	return trace, nil
}

// Search finds lots by supplier name, originating-document number, or
// supplier tax id, for the recall question "what did we get from X".
func (s *TraceService) Search(filter repository.SearchFilter) ([]*entity.Lot, error) {
	return s.lots.Search(filter)
}

// ExpiringSoon returns lots expiring within the given number of days,
// tagged by urgency: already expired, critical inside three days, urgent
// inside a week, attention beyond that.
func (s *TraceService) ExpiringSoon(days int) ([]*entity.ExpiringLot, error) {
	now := time.Now()
	horizon := now.AddDate(0, 0, days)

	lots, err := s.lots.Expiring(horizon)
	if err != nil {
		return nil, err
	}

	expiring := make([]*entity.ExpiringLot, 0, len(lots))
	for _, lot := range lots {
		e := &entity.ExpiringLot{
			Lot:          lot,
			DaysToExpiry: daysUntil(now, *lot.ExpiryDate),
		}
		e.Urgency = urgencyFor(e.DaysToExpiry)
		if ing, err := s.ingredients.Get(lot.IngredientID); err == nil {
			e.IngredientName = ing.Name
		}
		expiring = append(expiring, e)
	}
	return expiring, nil
}

// daysUntil counts whole calendar days from now to the expiry, negative
// once past.
func daysUntil(now, expiry time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	expDay := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, now.Location())
	return int(expDay.Sub(nowDay).Hours() / 24)
}

func urgencyFor(daysToExpiry int) string {
	switch {
	case daysToExpiry < 0:
		return entity.UrgencyExpired
	case daysToExpiry <= criticalWindowDays:
		return entity.UrgencyCritical
	case daysToExpiry <= urgentWindowDays:
		return entity.UrgencyUrgent
	default:
		return entity.UrgencyAttention
	}
}
