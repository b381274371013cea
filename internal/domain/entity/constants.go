package entity

// Status constants for Invoice (import record lifecycle)
const (
	InvoiceStatusAnalyzed           = "ANALYZED"
	InvoiceStatusCommitted          = "COMMITTED"
	InvoiceStatusPartiallyCommitted = "PARTIALLY_COMMITTED"
	InvoiceStatusCancelled          = "CANCELLED"
	InvoiceStatusError              = "ERROR"
)

// Resolution status constants for InvoiceLine
const (
	LineStatusUnmatched        = "UNMATCHED"
	LineStatusMatchedMapping   = "MATCHED_MAPPING"
	LineStatusMatchedSuggested = "MATCHED_SUGGESTED"
	LineStatusMatchedManual    = "MATCHED_MANUAL"
	LineStatusIgnored          = "IGNORED"
	LineStatusError            = "ERROR"
)

// Status constants for Lot
const (
	LotStatusAvailable   = "AVAILABLE"
	LotStatusInUse       = "IN_USE"
	LotStatusExhausted   = "EXHAUSTED"
	LotStatusExpired     = "EXPIRED"
	LotStatusRecalled    = "RECALLED"
	LotStatusQuarantined = "QUARANTINED"
)

// Movement type constants
const (
	MovementTypeIn  = "IN"
	MovementTypeOut = "OUT"
)

// How a line resolution was decided
const (
	MatchSourceMapping = "mapping"
	MatchSourceFuzzy   = "fuzzy"
	MatchSourceManual  = "manual"
)

// Dedup outcome constants
const (
	DedupOutcomeNew                  = "NEW"
	DedupOutcomeDuplicateHash        = "DUPLICATE_BY_HASH"
	DedupOutcomeDuplicateBusinessKey = "DUPLICATE_BY_BUSINESS_KEY"
)

// Expiry urgency tags for expiring-lot queries
const (
	UrgencyExpired   = "EXPIRED"
	UrgencyCritical  = "CRITICAL"
	UrgencyUrgent    = "URGENT"
	UrgencyAttention = "ATTENTION"
)

// IsMatched reports whether a line resolution status carries an ingredient.
func IsMatched(lineStatus string) bool {
	switch lineStatus {
	case LineStatusMatchedMapping, LineStatusMatchedSuggested, LineStatusMatchedManual:
		return true
	}
	return false
}
