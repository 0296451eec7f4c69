package controller

import (
	"context"
	"strconv"
	"strings"

	commonmw "recruitoj/internal/common/http/middleware"
	"recruitoj/internal/contest/model"
	"recruitoj/internal/contest/service"
	appErr "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ContestService is the orchestrator surface used by the handlers.
type ContestService interface {
	Submit(ctx context.Context, input service.SubmitInput) (*service.SubmitResult, error)
	Run(ctx context.Context, input service.RunInput) (*service.RunResult, error)
	ListSubmissions(ctx context.Context, userID string, problemID *int) ([]model.Submission, error)
	GetScore(ctx context.Context, userID string) (model.Score, error)
}

// ContestController handles contest HTTP endpoints. Routes must sit behind JWTAuth.
type ContestController struct {
	contestService ContestService
}

// NewContestController creates a new ContestController.
func NewContestController(contestService ContestService) *ContestController {
	return &ContestController{contestService: contestService}
}

// Register mounts the contest routes on group.
func (h *ContestController) Register(group *gin.RouterGroup) {
	group.POST("/submissions", h.Submit)
	group.GET("/submissions", h.ListSubmissions)
	group.POST("/run", h.Run)
	group.GET("/score", h.GetScore)
}

// Submit grades a submission against every test case.
func (h *ContestController) Submit(c *gin.Context) {
	identity, ok := commonmw.IdentityFrom(c)
	if !ok {
		response.Error(c, appErr.UnauthorizedError(""))
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.contestService.Submit(c.Request.Context(), service.SubmitInput{
		UserID:     identity.UserID,
		ProblemID:  req.ProblemID,
		SourceCode: req.SourceCode,
		LanguageID: req.LanguageID,
		Year:       identity.Year,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID:   result.Submission.ID,
		Status:         string(result.Submission.Status),
		Verdict:        string(result.Verdict),
		AllTestsPassed: result.AllTestsPassed,
		PassedCount:    result.PassedCount,
		TotalCount:     result.TotalCount,
		Scored:         result.Scored,
		TestResults:    result.TestResults,
	})
}

// Run executes code against the first test case without grading.
func (h *ContestController) Run(c *gin.Context) {
	identity, ok := commonmw.IdentityFrom(c)
	if !ok {
		response.Error(c, appErr.UnauthorizedError(""))
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	result, err := h.contestService.Run(c.Request.Context(), service.RunInput{
		UserID:     identity.UserID,
		ProblemID:  req.ProblemID,
		SourceCode: req.SourceCode,
		LanguageID: req.LanguageID,
		Year:       identity.Year,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ListSubmissions returns the caller's submissions, optionally for one problem.
func (h *ContestController) ListSubmissions(c *gin.Context) {
	identity, ok := commonmw.IdentityFrom(c)
	if !ok {
		response.Error(c, appErr.UnauthorizedError(""))
		return
	}
	var problemID *int
	if raw := strings.TrimSpace(c.Query("problem_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			response.BadRequest(c, "Invalid problem id")
			return
		}
		problemID = &id
	}
	list, err := h.contestService.ListSubmissions(c.Request.Context(), identity.UserID, problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]SubmissionItem, 0, len(list))
	for _, s := range list {
		items = append(items, SubmissionItem{
			SubmissionID: s.ID,
			ProblemID:    s.ProblemID,
			LanguageID:   s.LanguageID,
			Status:       string(s.Status),
			PassedCount:  s.PassedCount,
			TotalCount:   s.TotalCount,
			SourceCode:   s.SourceCode,
			CreatedAt:    s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	response.Success(c, ListResponse{Items: items})
}

// GetScore returns the caller's contest score.
func (h *ContestController) GetScore(c *gin.Context) {
	identity, ok := commonmw.IdentityFrom(c)
	if !ok {
		response.Error(c, appErr.UnauthorizedError(""))
		return
	}
	score, err := h.contestService.GetScore(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, score)
}

// CodeRequest is the payload for submit and run.
type CodeRequest struct {
	ProblemID  int    `json:"problem_id" binding:"required"`
	LanguageID int    `json:"language_id" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitResponse defines the graded submission payload.
type SubmitResponse struct {
	SubmissionID   string             `json:"submission_id"`
	Status         string             `json:"status"`
	Verdict        string             `json:"verdict"`
	AllTestsPassed bool               `json:"all_tests_passed"`
	PassedCount    int                `json:"passed_test_count"`
	TotalCount     int                `json:"total_tests"`
	Scored         bool               `json:"scored"`
	TestResults    []model.TestResult `json:"test_results"`
}

// SubmissionItem is one row of the submission history.
type SubmissionItem struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    int    `json:"problem_id"`
	LanguageID   int    `json:"language_id"`
	Status       string `json:"status"`
	PassedCount  int    `json:"passed_test_count"`
	TotalCount   int    `json:"total_tests"`
	SourceCode   string `json:"source_code"`
	CreatedAt    string `json:"created_at"`
}

// ListResponse wraps the submission history.
type ListResponse struct {
	Items []SubmissionItem `json:"items"`
}
