package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/export"
	"github.com/stockfood/traceflow/internal/repository"
	"github.com/stockfood/traceflow/internal/service"
)

// maxUploadBytes bounds a single uploaded document.
const maxUploadBytes = 10 << 20

// Handlers contains all HTTP request handlers
type Handlers struct {
	reconcile *service.ReconcileService
	mappings  *service.MappingService
	trace     *service.TraceService
	ledger    *service.LedgerService
	reporter  *export.ExpiryReporter
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	reconcile *service.ReconcileService,
	mappings *service.MappingService,
	trace *service.TraceService,
	ledger *service.LedgerService,
	reporter *export.ExpiryReporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		reconcile: reconcile,
		mappings:  mappings,
		trace:     trace,
		ledger:    ledger,
		reporter:  reporter,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Error: message})
}

// failErr maps service errors onto HTTP statuses.
func (h *Handlers) failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, repository.ErrInsufficientQuantity):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrReasonRequired):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AnalyzeImports handles POST /api/v1/imports/analyze. It accepts a
// multipart batch under the "files" field; each file gets an independent
// verdict.
func (h *Handlers) AnalyzeImports(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "expected multipart form upload")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, "no files uploaded under field 'files'")
		return
	}

	inputs := make([]service.AnalyzeInput, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadBytes {
			fail(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file %s exceeds the upload limit", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("cannot open file %s", fh.Filename))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("cannot read file %s", fh.Filename))
			return
		}
		inputs = append(inputs, service.AnalyzeInput{Filename: fh.Filename, Content: content})
	}

	ok(c, h.reconcile.AnalyzeBatch(c.Request.Context(), inputs))
}

// ListImports handles GET /api/v1/imports
func (h *Handlers) ListImports(c *gin.Context) {
	filter := repository.ListFilter{
		Status:        c.Query("status"),
		SupplierTaxID: c.Query("supplier_tax_id"),
		Limit:         intQuery(c, "limit", 20),
		Offset:        intQuery(c, "offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if from, ok := dateQuery(c, "date_from"); ok {
		filter.DateFrom = &from
	}
	if to, ok := dateQuery(c, "date_to"); ok {
		filter.DateTo = &to
	}

	invoices, total, err := h.reconcile.List(filter)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"items": invoices, "total": total})
}

// ImportStats handles GET /api/v1/imports/stats
func (h *Handlers) ImportStats(c *gin.Context) {
	stats, err := h.reconcile.Stats()
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, stats)
}

// GetImport handles GET /api/v1/imports/:id
func (h *Handlers) GetImport(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid import id")
		return
	}
	inv, err := h.reconcile.Get(id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, inv)
}

type resolveLineRequest struct {
	IngredientID *int64 `json:"ingredient_id"`
	Ignore       bool   `json:"ignore"`
}

// ResolveLine handles PATCH /api/v1/imports/:id/lines/:line
func (h *Handlers) ResolveLine(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid import id")
		return
	}
	lineNumber, err := strconv.Atoi(c.Param("line"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid line number")
		return
	}
	var req resolveLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.reconcile.ResolveLine(c.Request.Context(), id, service.LineResolution{
		LineNumber:   lineNumber,
		IngredientID: req.IngredientID,
		Ignore:       req.Ignore,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, inv)
}

type commitRequest struct {
	// Lot overrides keyed by line number. JSON object keys are strings.
	LotOverrides map[string]string `json:"lot_overrides"`
}

// CommitImport handles POST /api/v1/imports/:id/commit
func (h *Handlers) CommitImport(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid import id")
		return
	}

	var req commitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	overrides := make(map[int]string, len(req.LotOverrides))
	for key, code := range req.LotOverrides {
		lineNumber, err := strconv.Atoi(key)
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("invalid line number %q in lot_overrides", key))
			return
		}
		overrides[lineNumber] = code
	}

	result, err := h.reconcile.Commit(c.Request.Context(), id, service.CommitOptions{LotOverrides: overrides})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, result)
}

// IgnoreImport handles POST /api/v1/imports/:id/ignore
func (h *Handlers) IgnoreImport(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid import id")
		return
	}
	inv, err := h.reconcile.Ignore(c.Request.Context(), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, inv)
}

type cancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// CancelImport handles POST /api/v1/imports/:id/cancel
func (h *Handlers) CancelImport(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid import id")
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.reconcile.Cancel(c.Request.Context(), id, req.Actor, req.Reason)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, result)
}

// ListMappings handles GET /api/v1/mappings
func (h *Handlers) ListMappings(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	mappings, total, err := h.mappings.List(limit, offset)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"items": mappings, "total": total})
}

// SearchMappings handles GET /api/v1/mappings/search
func (h *Handlers) SearchMappings(c *gin.Context) {
	supplierTaxID := c.Query("supplier_tax_id")
	description := c.Query("description")
	if supplierTaxID == "" || description == "" {
		fail(c, http.StatusBadRequest, "supplier_tax_id and description are required")
		return
	}

	scored, err := h.mappings.SearchSimilar(supplierTaxID, description)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, scored)
}

type repointRequest struct {
	IngredientID int64 `json:"ingredient_id" binding:"required"`
}

// RepointMapping handles PUT /api/v1/mappings/:id
func (h *Handlers) RepointMapping(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid mapping id")
		return
	}
	var req repointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "ingredient_id is required")
		return
	}

	mapping, err := h.mappings.Repoint(id, req.IngredientID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, mapping)
}

// DeactivateMapping handles DELETE /api/v1/mappings/:id
func (h *Handlers) DeactivateMapping(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid mapping id")
		return
	}
	if err := h.mappings.Deactivate(id); err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, gin.H{"deactivated": id})
}

// TraceLot handles GET /api/v1/trace/lots/:code
func (h *Handlers) TraceLot(c *gin.Context) {
	trace, err := h.trace.TraceByLot(c.Param("code"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, trace)
}

// TraceOrder handles GET /api/v1/trace/orders/:ref
func (h *Handlers) TraceOrder(c *gin.Context) {
	trace, err := h.trace.TraceByOrder(c.Param("ref"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, trace)
}

// SearchLots handles GET /api/v1/trace/search
func (h *Handlers) SearchLots(c *gin.Context) {
	filter := repository.SearchFilter{
		SupplierName:   c.Query("supplier"),
		DocumentNumber: c.Query("document"),
		SupplierTaxID:  c.Query("supplier_tax_id"),
	}
	if filter.SupplierName == "" && filter.DocumentNumber == "" && filter.SupplierTaxID == "" {
		fail(c, http.StatusBadRequest, "at least one of supplier, document, supplier_tax_id is required")
		return
	}

	lots, err := h.trace.Search(filter)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, lots)
}

// ExpiringLots handles GET /api/v1/lots/expiring
func (h *Handlers) ExpiringLots(c *gin.Context) {
	days := intQuery(c, "days", 7)
	if days < 0 {
		fail(c, http.StatusBadRequest, "days must not be negative")
		return
	}
	lots, err := h.trace.ExpiringSoon(days)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, lots)
}

// ExportExpiringLots handles GET /api/v1/lots/expiring/export
func (h *Handlers) ExportExpiringLots(c *gin.Context) {
	days := intQuery(c, "days", 7)
	if days < 0 {
		fail(c, http.StatusBadRequest, "days must not be negative")
		return
	}
	lots, err := h.trace.ExpiringSoon(days)
	if err != nil {
		h.failErr(c, err)
		return
	}

	asOf := time.Now()
	filename := fmt.Sprintf("expiring-lots-%s", asOf.Format("2006-01-02"))

	switch c.DefaultQuery("format", "xlsx") {
	case "csv":
		data, err := h.reporter.CSV(lots)
		if err != nil {
			h.failErr(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", data)
	case "xlsx":
		data, err := h.reporter.Excel(lots, asOf)
		if err != nil {
			h.failErr(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", filename))
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		fail(c, http.StatusBadRequest, "format must be xlsx or csv")
	}
}

type consumeRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
	OrderRef string  `json:"order_ref" binding:"required"`
}

// ConsumeLot handles POST /api/v1/lots/:id/consume
func (h *Handlers) ConsumeLot(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid lot id")
		return
	}
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "quantity and order_ref are required")
		return
	}
	if req.Quantity <= 0 {
		fail(c, http.StatusBadRequest, "quantity must be positive")
		return
	}

	lot, err := h.ledger.Consume(id, req.Quantity, req.OrderRef)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, lot)
}

func idParam(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func dateQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
