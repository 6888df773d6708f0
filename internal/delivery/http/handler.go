package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/winemarket/backend/internal/domain"
)

// WineRefresher runs offer refreshes
type WineRefresher interface {
	RefreshWine(ctx context.Context, wineID, sourceID string) domain.WineRefreshResult
	RefreshAll(ctx context.Context, limit int) domain.BatchRefreshResult
}

// Diagnoser runs a traced refresh without persisting anything
type Diagnoser interface {
	Diagnose(ctx context.Context, wineID, sourceID string) domain.DiagnosticTrace
}

// PlatformDetector guesses the adapter type of a storefront
type PlatformDetector func(ctx context.Context, baseURL string) (string, error)

// Handler holds dependencies for HTTP handlers. Nil dependencies make the
// matching endpoints answer 503.
type Handler struct {
	refresher   WineRefresher
	diagnostics Diagnoser
	offers      domain.OfferRepository
	detect      PlatformDetector
	logger      *zap.Logger
}

// HandlerDeps groups the services exposed over HTTP
type HandlerDeps struct {
	Refresher   WineRefresher
	Diagnostics Diagnoser
	Offers      domain.OfferRepository
	Detect      PlatformDetector
	Logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		refresher:   deps.Refresher,
		diagnostics: deps.Diagnostics,
		offers:      deps.Offers,
		detect:      deps.Detect,
		logger:      logger.Named("http"),
	}
}

// DetectRequest is the body of POST /sources/detect
type DetectRequest struct {
	BaseURL string `json:"baseUrl" binding:"required"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "winemarket-offers",
		"version": "1.0.0",
	})
}

// RefreshWine refreshes offers for one wine, optionally restricted to one source
func (h *Handler) RefreshWine(c *gin.Context) {
	if h.refresher == nil {
		notConfigured(c, "refresh")
		return
	}

	wineID := strings.TrimSpace(c.Param("wineId"))
	if wineID == "" {
		badRequest(c, "wineId is required")
		return
	}

	result := h.refresher.RefreshWine(c.Request.Context(), wineID, strings.TrimSpace(c.Query("sourceId")))
	c.JSON(http.StatusOK, result)
}

// RefreshAll refreshes every catalog wine, up to ?limit= when given
func (h *Handler) RefreshAll(c *gin.Context) {
	if h.refresher == nil {
		notConfigured(c, "refresh")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, h.refresher.RefreshAll(c.Request.Context(), limit))
}

// Diagnose returns the full trace of a refresh of one (wine, source) pair
func (h *Handler) Diagnose(c *gin.Context) {
	if h.diagnostics == nil {
		notConfigured(c, "diagnostics")
		return
	}

	wineID := strings.TrimSpace(c.Query("wineId"))
	sourceID := strings.TrimSpace(c.Query("sourceId"))
	if wineID == "" || sourceID == "" {
		badRequest(c, "wineId and sourceId are required")
		return
	}

	c.JSON(http.StatusOK, h.diagnostics.Diagnose(c.Request.Context(), wineID, sourceID))
}

// DetectPlatform guesses which adapter fits a storefront
func (h *Handler) DetectPlatform(c *gin.Context) {
	if h.detect == nil {
		notConfigured(c, "platform detection")
		return
	}

	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "baseUrl is required")
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		badRequest(c, "baseUrl must be an absolute http(s) URL")
		return
	}

	adapterType, err := h.detect(c.Request.Context(), u.String())
	if err != nil {
		h.logger.Warn("platform detection failed", zap.String("baseUrl", u.String()), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"adapterType": adapterType, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapterType": adapterType})
}

// ListWineOffers returns the stored offers of one wine, best match first
func (h *Handler) ListWineOffers(c *gin.Context) {
	if h.offers == nil {
		notConfigured(c, "offer storage")
		return
	}

	wineID := strings.TrimSpace(c.Param("wineId"))
	offers, err := h.offers.ListOffersForWine(c.Request.Context(), wineID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			badRequest(c, err.Error())
			return
		}
		h.logger.Error("list offers failed", zap.String("wineId", wineID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load offers"})
		return
	}
	if offers == nil {
		offers = []domain.ExternalOffer{}
	}

	c.JSON(http.StatusOK, gin.H{"wineId": wineID, "offers": offers})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notConfigured(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}
