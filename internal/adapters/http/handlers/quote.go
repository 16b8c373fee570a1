package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotebook/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotebook/internal/app"
	"github.com/jsamuelsen/quotebook/internal/domain"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
)

// importFormField is the multipart field carrying an import file.
const importFormField = "file"

// QuoteHandler serves the /quotes endpoints.
type QuoteHandler struct {
	service *app.QuoteService
	syncer  *app.Syncer
}

// NewQuoteHandler creates a quote handler. syncer may be nil, in which case
// POST /quotes/sync answers 503.
func NewQuoteHandler(service *app.QuoteService, syncer *app.Syncer) *QuoteHandler {
	return &QuoteHandler{service: service, syncer: syncer}
}

// ListQuotes handles GET /api/v1/quotes.
//
// @Summary List quotes
// @Tags quotes
// @Produce json
// @Param category query string false "Category filter"
// @Param cursor query string false "Cursor from a previous page"
// @Param limit query int false "Page size (1-100)"
// @Success 200 {object} dto.PaginatedResponse[dto.Quote]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	var req dto.ListQuotesRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondBindError(c, err)
		return
	}

	offset, err := req.Offset()
	if err != nil {
		dto.RespondWithValidationErrors(c, map[string]string{"cursor": err.Error()})
		return
	}

	quotes := h.service.List(c.Request.Context())

	if filter := domain.CategoryFilter(req.Category); !filter.IsAll() {
		matched := quotes[:0]
		for _, q := range quotes {
			if filter.Matches(q) {
				matched = append(matched, q)
			}
		}

		quotes = matched
	}

	c.JSON(http.StatusOK, dto.Paginate(dto.FromDomainList(quotes), offset, req.GetLimit()))
}

// AddQuote handles POST /api/v1/quotes.
//
// @Summary Add a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param quote body dto.AddQuoteRequest true "Quote"
// @Success 201 {object} dto.AddQuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) AddQuote(c *gin.Context) {
	var req dto.AddQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondBindError(c, err)
		return
	}

	q, err := h.service.Add(c.Request.Context(), req.Text, req.Category)
	if err != nil && !domain.IsPersistence(err) {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.AddQuoteResponse{
		Quote:   dto.FromDomain(q),
		Warning: warning(err),
	})
}

// RandomQuote handles GET /api/v1/quotes/random. A category parameter filters
// this pick only; without one the saved filter is used. The saved filter
// changes through PUT /selection, which sits behind the write middleware.
//
// @Summary Pick a random quote
// @Tags quotes
// @Produce json
// @Param category query string false "Category filter, All for every quote"
// @Success 200 {object} dto.RandomQuoteResponse
// @Router /api/v1/quotes/random [get]
func (h *QuoteHandler) RandomQuote(c *gin.Context) {
	ctx := c.Request.Context()

	var resp dto.RandomQuoteResponse

	category, given := c.GetQuery("category")
	if !given {
		category = h.service.SelectedCategory(ctx)
	}

	filter := domain.CategoryFilter(category)
	if filter.IsAll() {
		category = domain.AllCategories
	}

	q, ok := h.service.Random(ctx, filter)
	if ok {
		out := dto.FromDomain(q)
		resp.Quote = &out
	}

	resp.Display = domain.Render(q, ok)
	resp.Category = category

	c.JSON(http.StatusOK, resp)
}

// Categories handles GET /api/v1/quotes/categories.
//
// @Summary List categories
// @Tags quotes
// @Produce json
// @Success 200 {object} dto.CategoriesResponse
// @Router /api/v1/quotes/categories [get]
func (h *QuoteHandler) Categories(c *gin.Context) {
	ctx := c.Request.Context()

	c.JSON(http.StatusOK, dto.CategoriesResponse{
		Categories: h.service.Categories(ctx),
		Selected:   h.service.SelectedCategory(ctx),
	})
}

// GetSelection handles GET /api/v1/quotes/selection.
func (h *QuoteHandler) GetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SelectionResponse{
		Category: h.service.SelectedCategory(c.Request.Context()),
	})
}

// PutSelection handles PUT /api/v1/quotes/selection.
//
// @Summary Save the selected category
// @Tags quotes
// @Accept json
// @Produce json
// @Param selection body dto.SelectionRequest true "Category"
// @Success 200 {object} dto.SelectionResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/quotes/selection [put]
func (h *QuoteHandler) PutSelection(c *gin.Context) {
	var req dto.SelectionRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondBindError(c, err)
		return
	}

	if err := h.service.SelectCategory(c.Request.Context(), req.Category); err != nil {
		dto.HandleError(c, err)
		return
	}

	category := req.Category
	if domain.CategoryFilter(category).IsAll() {
		category = domain.AllCategories
	}

	c.JSON(http.StatusOK, dto.SelectionResponse{Category: category})
}

// ImportQuotes handles POST /api/v1/quotes/import. The document is either
// the raw request body or a multipart "file" part named *.json.
//
// @Summary Import a JSON document
// @Tags quotes
// @Accept json,mpfd
// @Produce json
// @Success 200 {object} dto.ImportResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/quotes/import [post]
func (h *QuoteHandler) ImportQuotes(c *gin.Context) {
	data, err := readImportDocument(c)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			dto.Abort(c, dto.ErrorCodeBadRequest, fmt.Sprintf("document exceeds %d bytes", maxErr.Limit))
			return
		}

		dto.RespondWithValidationErrors(c, map[string]string{importFormField: err.Error()})

		return
	}

	report, err := h.service.Import(c.Request.Context(), data)
	if err != nil && !domain.IsPersistence(err) {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ImportResponse{
		ImportReport: report,
		Summary:      report.Summary(),
		Warning:      warning(err),
	})
}

func readImportDocument(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return io.ReadAll(c.Request.Body)
	}

	header, err := c.FormFile(importFormField)
	if err != nil {
		return nil, fmt.Errorf("a %q part is required: %w", importFormField, err)
	}

	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		return nil, errors.New("must be a .json file")
	}

	return readPart(header)
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return io.ReadAll(f)
}

// ExportQuotes handles GET /api/v1/quotes/export.
//
// @Summary Download the quote list
// @Tags quotes
// @Produce json
// @Success 200 {file} file
// @Router /api/v1/quotes/export [get]
func (h *QuoteHandler) ExportQuotes(c *gin.Context) {
	export, err := h.service.Export(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", export.Data)
}

// SyncNow handles POST /api/v1/quotes/sync. A remote that cannot be reached
// yields an empty report, not an error.
//
// @Summary Reconcile with the remote source now
// @Tags quotes
// @Produce json
// @Success 200 {object} dto.SyncResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/quotes/sync [post]
func (h *QuoteHandler) SyncNow(c *gin.Context) {
	if h.syncer == nil {
		dto.Abort(c, dto.ErrorCodeUnavailable, "remote sync is disabled")
		return
	}

	ctx := c.Request.Context()

	report, err := h.syncer.SyncOnce(ctx)
	if err != nil && !domain.IsPersistence(err) {
		dto.HandleError(c, err)
		return
	}

	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "sync applied but not saved", slog.Any("error", err))
	}

	resp := dto.SyncResponse{MergeReport: report, Warning: warning(err)}
	if last := h.service.LastSync(); !last.IsZero() {
		resp.LastSync = &last
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterQuoteRoutes registers the read routes on rg and the mutating
// routes on write. Pass the same group twice when no auth is required.
func (h *QuoteHandler) RegisterQuoteRoutes(rg, write *gin.RouterGroup) {
	rg.GET("/quotes", h.ListQuotes)
	rg.GET("/quotes/random", h.RandomQuote)
	rg.GET("/quotes/categories", h.Categories)
	rg.GET("/quotes/selection", h.GetSelection)
	rg.GET("/quotes/export", h.ExportQuotes)

	write.POST("/quotes", h.AddQuote)
	write.PUT("/quotes/selection", h.PutSelection)
	write.POST("/quotes/import", h.ImportQuotes)
	write.POST("/quotes/sync", h.SyncNow)
}

// warning renders a non-fatal error for the response body.
func warning(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
