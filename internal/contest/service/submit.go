package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"recruitoj/internal/contest/event"
	"recruitoj/internal/contest/judge0"
	"recruitoj/internal/contest/model"
	"recruitoj/internal/contest/repository"
	"recruitoj/internal/contest/verdict"
	appErr "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitInput describes a graded submission request.
type SubmitInput struct {
	UserID     string
	ProblemID  int
	SourceCode string
	LanguageID int
	Year       int
}

// SubmitResult is the outcome of a graded submission.
type SubmitResult struct {
	Submission     model.Submission   `json:"submission"`
	TestResults    []model.TestResult `json:"test_results"`
	AllTestsPassed bool               `json:"all_tests_passed"`
	PassedCount    int                `json:"passed_test_count"`
	TotalCount     int                `json:"total_tests"`
	Verdict        model.Verdict      `json:"verdict"`
	Scored         bool               `json:"scored"`
}

// Submit grades source against every test case of the problem. Once the
// submission row exists it always reaches a terminal status: failures mark it
// ERROR and the original error is returned.
func (s *ContestService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if err := s.checkProblemAccess(input.Year, input.ProblemID); err != nil {
		return nil, err
	}
	if err := s.validateCode(input.SourceCode, input.LanguageID); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, rateSubmitKeyPrefix+input.UserID, s.rateLimit.SubmitMax); err != nil {
		return nil, err
	}
	cases, err := s.loadTestCases(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}

	// Grading outlives the caller's request.
	ctx = context.WithoutCancel(ctx)

	submission := &model.Submission{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		ProblemID:  input.ProblemID,
		SourceCode: input.SourceCode,
		LanguageID: input.LanguageID,
		Status:     model.StatusPending,
		TotalCount: len(cases),
		CreatedAt:  time.Now(),
	}
	submission.SourceKey = s.archiveSource(ctx, submission)
	if err := s.createSubmission(ctx, submission); err != nil {
		return nil, err
	}
	logger.Info(ctx, "submission created",
		zap.String("submission_id", submission.ID),
		zap.Int("problem_id", submission.ProblemID),
		zap.Int("cases", len(cases)),
	)

	tokens, err := s.judge.SubmitBatch(ctx, input.SourceCode, input.LanguageID, cases)
	if err != nil {
		return nil, s.fail(ctx, submission, err)
	}
	results, err := judge0.Poll(ctx, s.poll.Submit,
		func(ctx context.Context) ([]model.ExecutionResult, error) {
			return s.judge.PollBatch(ctx, tokens)
		},
		judge0.AllFinal,
	)
	if err != nil {
		return nil, s.fail(ctx, submission, err)
	}
	results, err = judge0.Correlate(tokens, results)
	if err != nil {
		return nil, s.fail(ctx, submission, err)
	}

	testResults, summary := verdict.Reconcile(results, cases)
	status := model.StatusRejected
	if summary.AllPassed() {
		status = model.StatusAccepted
	}
	scored, err := s.finalize(ctx, repository.Outcome{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Status:       status,
		PassedCount:  summary.PassedCount,
		TotalCount:   summary.TotalCount,
	})
	if err != nil {
		return nil, s.fail(ctx, submission, err)
	}

	submission.Status = status
	submission.PassedCount = summary.PassedCount
	submission.TotalCount = summary.TotalCount
	submission.UpdatedAt = time.Now()
	logger.Info(ctx, "submission judged",
		zap.String("submission_id", submission.ID),
		zap.String("verdict", string(summary.Verdict)),
		zap.Int("passed", summary.PassedCount),
		zap.Int("total", summary.TotalCount),
		zap.Bool("scored", scored),
	)
	s.publishJudged(ctx, event.SubmissionJudged{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Status:       status,
		Verdict:      summary.Verdict,
		PassedCount:  summary.PassedCount,
		TotalCount:   summary.TotalCount,
		Scored:       scored,
		JudgedAt:     submission.UpdatedAt,
	})

	return &SubmitResult{
		Submission:     *submission,
		TestResults:    testResults,
		AllTestsPassed: summary.AllPassed(),
		PassedCount:    summary.PassedCount,
		TotalCount:     summary.TotalCount,
		Verdict:        summary.Verdict,
		Scored:         scored,
	}, nil
}

// fail marks submission ERROR and returns cause unchanged.
func (s *ContestService) fail(ctx context.Context, submission *model.Submission, cause error) error {
	reason := truncateUTF8(cause.Error(), maxErrorMessageLen)
	ctxDB := withTimeout(context.WithoutCancel(ctx), s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.MarkError(ctxDB.ctx, submission.UserID, submission.ID, reason); err != nil {
		logger.Error(ctx, "mark submission error failed",
			zap.String("submission_id", submission.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return cause
	}
	logger.Warn(ctx, "submission failed",
		zap.String("submission_id", submission.ID),
		zap.Int("error_code", int(appErr.GetCode(cause))),
		zap.Error(cause),
	)
	submission.Status = model.StatusError
	submission.ErrorMessage = reason
	s.publishJudged(ctx, event.SubmissionJudged{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Status:       model.StatusError,
		TotalCount:   submission.TotalCount,
		Error:        reason,
	})
	return cause
}

func (s *ContestService) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, submission); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create submission failed")
	}
	return nil
}

func (s *ContestService) finalize(ctx context.Context, outcome repository.Outcome) (bool, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	scored, err := s.submissionRepo.Finalize(ctxDB.ctx, outcome)
	if err != nil {
		if errors.Is(err, repository.ErrNotPending) {
			return false, appErr.Wrapf(err, appErr.DatabaseError, "submission %s is no longer pending", outcome.SubmissionID)
		}
		return false, appErr.Wrapf(err, appErr.DatabaseError, "persist verdict failed")
	}
	return scored, nil
}

// archiveSource stores the source in the object store and returns its key.
// Archiving is best-effort; an empty key means it was skipped or failed.
func (s *ContestService) archiveSource(ctx context.Context, submission *model.Submission) string {
	if s.storage == nil {
		return ""
	}
	key := fmt.Sprintf("%s/%d/%s/source.code", s.sourceKeyPrefix, submission.ProblemID, submission.ID)
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	err := s.storage.PutObject(ctxStorage.ctx, s.sourceBucket, key,
		strings.NewReader(submission.SourceCode), int64(len(submission.SourceCode)), "text/plain; charset=utf-8")
	if err != nil {
		logger.Warn(ctx, "archive source failed", zap.String("submission_id", submission.ID), zap.Error(err))
		return ""
	}
	return key
}

func (s *ContestService) publishJudged(ctx context.Context, evt event.SubmissionJudged) {
	if s.events == nil {
		return
	}
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.events.PublishJudged(ctxMQ.ctx, evt); err != nil {
		logger.Warn(ctx, "publish judged event failed", zap.String("submission_id", evt.SubmissionID), zap.Error(err))
	}
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
