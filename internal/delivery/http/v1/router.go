package v1

import (
	"net/http"
	"time"

	"go-candidate-tracker/config"
	"go-candidate-tracker/internal/delivery/http/middleware"
	"go-candidate-tracker/internal/delivery/http/response"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/usecase"
	"go-candidate-tracker/pkg/audit"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	CandidateUC  domain.CandidateUsecase
	Drafts       *usecase.DraftRegistry
	Details      *usecase.DetailWatcher
	Photos       PhotoStore
	RateLimiter  *middleware.RateLimiter
	Audit        *audit.Logger
	Config       *config.Config
	Health       usecase.HealthUsecase
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	window := time.Duration(deps.Config.RateLimitWindowSeconds) * time.Second

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.Config.FrontendURL)) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(deps.RateLimiter.Middleware(middleware.RateLimitConfig{
		Limit:     deps.Config.RateLimitGlobalThreshold,
		Window:    window,
		KeyPrefix: "rl:ip:",
	}))

	v1 := r.Group("/v1")

	v1.GET("/health", healthHandler(deps.Health))
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	uploadLimit := deps.RateLimiter.Middleware(middleware.RateLimitConfig{
		Limit:     deps.Config.RateLimitUploadThreshold,
		Window:    window,
		KeyPrefix: "rl:upload:",
	})

	NewCandidateHandler(v1, deps.CandidateUC, deps.Details, deps.Photos)
	NewDraftHandler(v1, deps.Drafts, deps.Photos, deps.Audit, deps.Config.PhotoMaxUploadBytes, uploadLimit)

	return r
}

// healthHandler godoc
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /health [get]
func healthHandler(health usecase.HealthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, healthy := health.Check(c.Request.Context())
		if !healthy {
			response.Error(c, http.StatusServiceUnavailable, "System degraded", status)
			return
		}
		response.Success(c, http.StatusOK, "System operational", status)
	}
}
