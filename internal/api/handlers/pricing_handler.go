package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/ingest"
	"github.com/andresuchdata/pricing-model/backend-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PricingService is what the HTTP layer needs from the run orchestrator.
type PricingService interface {
	Run(ctx context.Context, in domain.PricingInputs, opts domain.RunOptions) (*domain.RunResult, error)
	RunWorkbook(ctx context.Context, r io.Reader, opts domain.RunOptions) (*domain.RunResult, error)
	GetRun(ctx context.Context, runID string) (*domain.PricingRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.PricingRun, error)
	ListItems(ctx context.Context, runID string, filter domain.ItemFilter) ([]domain.PricedProduct, int, error)
	InvalidateCache(ctx context.Context) error
}

const (
	maxUploadBytes = 32 << 20
	exportPageSize = 1000
)

type PricingHandler struct {
	service  PricingService
	defaults domain.RunOptions
}

// NewPricingHandler takes the options applied when a request leaves them unset.
func NewPricingHandler(svc PricingService, defaults domain.RunOptions) *PricingHandler {
	return &PricingHandler{service: svc, defaults: defaults}
}

type runRequest struct {
	Inputs          domain.PricingInputs `json:"inputs"`
	Category        string               `json:"category"`
	TargetMarginPct *float64             `json:"target_margin_pct"`
	DayOfWeek       string               `json:"day_of_week"`
}

// CreateRun prices either a JSON snapshot or an uploaded workbook ("file").
func (h *PricingHandler) CreateRun(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.createRunFromUpload(c)
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	opts := h.options(req.Category, req.TargetMarginPct, req.DayOfWeek)
	if err := opts.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	result, err := h.service.Run(c.Request.Context(), req.Inputs, opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *PricingHandler) createRunFromUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("multipart field \"file\" is required"))
		return
	}

	var margin *float64
	if v := c.PostForm("target_margin_pct"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("target_margin_pct must be a number"))
			return
		}
		margin = &pct
	}
	opts := h.options(c.PostForm("category"), margin, c.PostForm("day_of_week"))
	if err := opts.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	defer f.Close()

	result, err := h.service.RunWorkbook(c.Request.Context(), f, opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *PricingHandler) options(category string, margin *float64, day string) domain.RunOptions {
	opts := h.defaults
	if category != "" {
		opts.Category = category
	}
	if margin != nil {
		opts.TargetMarginPct = margin
	}
	if day != "" {
		opts.DayOfWeek = day
	}
	return opts
}

func (h *PricingHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (h *PricingHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *PricingHandler) ListItems(c *gin.Context) {
	filter := domain.ItemFilter{
		City: strings.TrimSpace(c.Query("city")),
		Tier: strings.TrimSpace(c.Query("tier")),
	}
	if filter.Tier != "" {
		if _, ok := domain.ParseKVITier(filter.Tier); !ok {
			respondError(c, http.StatusBadRequest, fmt.Errorf("unknown tier %q", filter.Tier))
			return
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 0 {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "100")); err == nil && size > 0 {
		filter.PageSize = size
	}

	items, total, err := h.service.ListItems(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      items,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// Export streams every priced row of a run as CSV (default) or XLSX.
func (h *PricingHandler) Export(c *gin.Context) {
	runID := c.Param("id")
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	if format != "csv" && format != "xlsx" {
		respondError(c, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}

	var items []domain.PricedProduct
	for page := 1; ; page++ {
		batch, total, err := h.service.ListItems(c.Request.Context(), runID, domain.ItemFilter{Page: page, PageSize: exportPageSize})
		if err != nil {
			respondServiceError(c, err)
			return
		}
		items = append(items, batch...)
		if len(batch) == 0 || len(items) >= total {
			break
		}
	}

	filename := fmt.Sprintf("pricing_%s.%s", runID, format)
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	if format == "xlsx" {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := ingest.WriteXLSX(c.Writer, ingest.Rows(items)); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("export: xlsx write failed")
		}
		return
	}

	c.Header("Content-Type", "text/csv")
	if err := ingest.WriteCSV(c.Writer, items); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("export: csv write failed")
	}
}

func (h *PricingHandler) InvalidateCache(c *gin.Context) {
	if err := h.service.InvalidateCache(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondServiceError(c *gin.Context, err error) {
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		respondError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrRunNotFound):
		respondError(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrPersistenceDisabled):
		respondError(c, http.StatusNotImplemented, err)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("pricing request failed")
		respondError(c, http.StatusInternalServerError, err)
	}
}

func respondError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
