package controller

import (
	"strconv"

	"ojwatch/internal/devjudge/middleware"
	"ojwatch/internal/devjudge/service"
	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	judgeService *service.JudgeService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(judgeService *service.JudgeService) *SubmissionController {
	return &SubmissionController{judgeService: judgeService}
}

// Create accepts a new submission.
func (h *SubmissionController) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.ErrorWithCode(c, appErr.Unauthorized, "")
		return
	}
	var req model.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, appErr.InvalidParams, "Invalid request parameters")
		return
	}

	id, err := h.judgeService.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, model.CreateResponse{ID: id})
}

// Get returns the current snapshot of one submission.
func (h *SubmissionController) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.ErrorWithCode(c, appErr.Unauthorized, "")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithCode(c, appErr.InvalidParams, "Invalid submission id")
		return
	}
	sub, err := h.judgeService.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sub)
}

// List returns the caller's submissions, newest first.
func (h *SubmissionController) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.ErrorWithCode(c, appErr.Unauthorized, "")
		return
	}
	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.ErrorWithCode(c, appErr.InvalidParams, "Invalid query parameters")
		return
	}
	items, err := h.judgeService.List(c.Request.Context(), userID, service.ListInput{
		ProblemID: query.ProblemID,
		Skip:      query.Skip,
		Limit:     query.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// ListQuery defines list query parameters.
type ListQuery struct {
	ProblemID int64 `form:"problem_id"`
	Skip      int   `form:"skip"`
	Limit     int   `form:"limit"`
}
