package api

import (
	"github.com/gin-gonic/gin"
	"github.com/grantwell/grantwell/internal/api/handler"
	"github.com/grantwell/grantwell/internal/api/middleware"
	"github.com/grantwell/grantwell/internal/logger"
	"github.com/grantwell/grantwell/internal/repository"
	"github.com/grantwell/grantwell/internal/service"
)

// RouterDeps bundles the services the routes are built from.
type RouterDeps struct {
	Recommendations *service.RecommendationService
	Grants          *repository.GrantRepository
	Summaries       *service.SummaryService
	Vocab           *service.VocabularyCache
	Log             *logger.Logger
	CORS            middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler()
	recommendHandler := handler.NewRecommendHandler(deps.Recommendations)
	grantHandler := handler.NewGrantHandler(deps.Grants, deps.Summaries, deps.Vocab)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Hybrid search
		v1.POST("/recommendations", recommendHandler.Recommend)
		v1.POST("/recommendations/rag", recommendHandler.ContinueRAG)
		v1.GET("/recommendations/jobs/:id", recommendHandler.GetJob)

		// Corpus browsing
		v1.GET("/grants", grantHandler.ListGrants)
		v1.GET("/grants/:id", grantHandler.GetGrant)
		v1.GET("/vocabulary", grantHandler.GetVocabulary)

		// Administration
		v1.POST("/admin/grants", grantHandler.UpsertGrant)
	}

	return r
}
