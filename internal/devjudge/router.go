// Package devjudge is a local judge that accepts submissions and settles
// them on a timer, serving the same HTTP contract the remote judge does.
package devjudge

import (
	"net/http"

	"ojwatch/internal/common/cache"
	commonmw "ojwatch/internal/common/http/middleware"
	"ojwatch/internal/devjudge/controller"
	"ojwatch/internal/devjudge/middleware"
	"ojwatch/internal/devjudge/service"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Deps wires the router.
type Deps struct {
	Judge *service.JudgeService
	Auth  *service.AuthService
	Cache cache.Cache
	// EnableTokenIssue exposes POST /api/v1/dev/token.
	EnableTokenIssue bool
}

// NewRouter builds the judge HTTP handler.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if deps.Cache != nil {
			if err := deps.Cache.Ping(c.Request.Context()); err != nil {
				response.Error(c, appErr.Wrapf(err, appErr.ServiceUnavailable, "cache unavailable"))
				return
			}
		}
		response.Success(c, gin.H{"status": "ok"})
	})

	if deps.EnableTokenIssue {
		tokenController := controller.NewTokenController(deps.Auth)
		router.POST("/api/v1/dev/token", tokenController.Issue)
	}

	submissions := router.Group("/api/v1/submissions")
	submissions.Use(middleware.AuthMiddleware(deps.Auth))
	submissionController := controller.NewSubmissionController(deps.Judge)
	submissions.POST("", submissionController.Create)
	submissions.GET("", submissionController.List)
	submissions.GET("/:id", submissionController.Get)

	router.NoRoute(func(c *gin.Context) {
		response.ErrorWithCode(c, appErr.NotFound, http.StatusText(http.StatusNotFound))
	})
	return router
}
