package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
	"github.com/grantwell/grantwell/internal/service"
	"gorm.io/gorm"
)

// GrantHandler handles grant corpus browsing and administration.
type GrantHandler struct {
	grants    *repository.GrantRepository
	summaries *service.SummaryService
	vocab     *service.VocabularyCache
}

// NewGrantHandler creates a new grant handler.
func NewGrantHandler(grants *repository.GrantRepository, summaries *service.SummaryService, vocab *service.VocabularyCache) *GrantHandler {
	return &GrantHandler{grants: grants, summaries: summaries, vocab: vocab}
}

// ListGrants handles GET /api/v1/grants with limit/offset pagination.
func (h *GrantHandler) ListGrants(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	grants, err := h.grants.List(ctx, limit, offset)
	if err != nil {
		logger.CtxError(ctx, "Grant listing failed: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list grants"})
		return
	}

	total, err := h.grants.Count(ctx)
	if err != nil {
		logger.CtxError(ctx, "Grant count failed: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list grants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grants": grants,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetGrant handles GET /api/v1/grants/:id, returning the structured record
// together with its summary document when one exists.
func (h *GrantHandler) GetGrant(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	grant, err := h.grants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "grant not found"})
			return
		}
		logger.CtxError(ctx, "Grant lookup failed: grant_id=%s, error=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch grant"})
		return
	}

	summary, err := h.summaries.GetSummary(ctx, id)
	if err != nil {
		logger.CtxWarn(ctx, "Summary fetch failed: grant_id=%s, error=%v", id, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"grant":   grant,
		"summary": summary,
	})
}

// GetVocabulary handles GET /api/v1/vocabulary, exposing the cached
// category and agency vocabularies used for query classification.
func (h *GrantHandler) GetVocabulary(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"categories": h.vocab.Get(ctx, service.VocabCategory),
		"agencies":   h.vocab.Get(ctx, service.VocabAgency),
	})
}

// UpsertGrantRequest is the POST body for the admin grant upsert.
type UpsertGrantRequest struct {
	ID        string               `json:"id" binding:"required"`
	Name      string               `json:"name" binding:"required"`
	Category  string               `json:"category"`
	Agency    string               `json:"agency"`
	GrantType string               `json:"grantType"`
	Status    domain.GrantStatus   `json:"status"`
	Summary   *domain.GrantSummary `json:"summary,omitempty"`
}

// UpsertGrant handles POST /api/v1/admin/grants. Writes the structured
// record and, when a summary is supplied, the summary document alongside it.
func (h *GrantHandler) UpsertGrant(c *gin.Context) {
	var req UpsertGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and name are required"})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.GrantStatusActive
	}

	grant := &domain.Grant{
		ID:        req.ID,
		Name:      req.Name,
		Category:  req.Category,
		Agency:    req.Agency,
		GrantType: req.GrantType,
		Status:    status,
	}

	ctx := c.Request.Context()
	if err := h.grants.Upsert(ctx, grant); err != nil {
		logger.CtxError(ctx, "Grant upsert failed: grant_id=%s, error=%v", req.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upsert grant"})
		return
	}

	if req.Summary != nil {
		if err := h.summaries.PutSummary(ctx, req.ID, req.Summary); err != nil {
			logger.CtxError(ctx, "Summary upload failed: grant_id=%s, error=%v", req.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "grant saved but summary upload failed"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"grant": grant})
}
