package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/grantwell/grantwell/internal/domain"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/service"
	"gorm.io/gorm"
)

// RecommendHandler handles the hybrid recommendation endpoints.
type RecommendHandler struct {
	recommendations *service.RecommendationService
}

// NewRecommendHandler creates a new recommendation handler.
func NewRecommendHandler(recommendations *service.RecommendationService) *RecommendHandler {
	return &RecommendHandler{recommendations: recommendations}
}

// RecommendRequest is the POST body for a recommendation query.
type RecommendRequest struct {
	Query           string            `json:"query" binding:"required"`
	UserPreferences *domain.FilterSet `json:"userPreferences,omitempty"`
}

// Recommend handles POST /api/v1/recommendations.
// Runs the immediate structural phase synchronously and the semantic phase
// inline when it finishes within the soft timeout; otherwise the response
// carries a pending ragStatus and the jobId to poll.
func (h *RecommendHandler) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "query is required",
		})
		return
	}

	resp, err := h.recommendations.Recommend(c.Request.Context(), service.RecommendRequest{
		Query:           req.Query,
		UserPreferences: req.UserPreferences,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.CtxError(c.Request.Context(), "Recommendation failed: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendation failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ContinueRAGRequest is the POST body for the async semantic continuation.
// The caller passes back the phase-1 state it already holds so the semantic
// phase can deduplicate without re-running the structural queries.
type ContinueRAGRequest struct {
	JobID          string               `json:"jobId" binding:"required"`
	Query          string               `json:"query" binding:"required"`
	Filters        domain.FilterSet     `json:"filters"`
	FilteredGrants domain.CandidateList `json:"filteredGrants"`
}

// ContinueRAG handles POST /api/v1/recommendations/rag.
func (h *RecommendHandler) ContinueRAG(c *gin.Context) {
	var req ContinueRAGRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "jobId and query are required",
		})
		return
	}

	count, err := h.recommendations.ContinueRAG(c.Request.Context(), service.RAGTask{
		JobID:      req.JobID,
		Query:      req.Query,
		Filters:    req.Filters,
		ExcludeIDs: req.FilteredGrants.IDs(),
	})
	if err != nil {
		logger.CtxError(c.Request.Context(), "Semantic continuation failed: job_id=%s, error=%v", req.JobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"ragGrantsCount": count,
	})
}

// GetJob handles GET /api/v1/recommendations/jobs/:id.
// Expired jobs read as absent even before the janitor removes them.
func (h *RecommendHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.recommendations.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		logger.CtxError(c.Request.Context(), "Job lookup failed: job_id=%s, error=%v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch job"})
		return
	}

	c.JSON(http.StatusOK, job)
}
