package service

import (
	"context"

	"recruitoj/internal/contest/judge0"
	"recruitoj/internal/contest/model"
	"recruitoj/internal/contest/verdict"
)

// RunInput describes an ungraded run against the first test case.
type RunInput struct {
	// UserID is only used for rate limiting and may be empty.
	UserID     string
	ProblemID  int
	SourceCode string
	LanguageID int
	Year       int
}

// RunResult is the outcome of a single-case run. Nothing is persisted.
type RunResult struct {
	Output          string  `json:"output"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	MemoryKB        int64   `json:"memory_kb"`
	Status          string  `json:"status"`
	Passed          bool    `json:"passed"`
	Expected        string  `json:"expected"`
	Input           string  `json:"input"`
}

// Run executes source against test case 0 of the problem.
func (s *ContestService) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	if err := s.checkProblemAccess(input.Year, input.ProblemID); err != nil {
		return nil, err
	}
	if err := s.validateCode(input.SourceCode, input.LanguageID); err != nil {
		return nil, err
	}
	if input.UserID != "" {
		if err := s.checkRateLimit(ctx, rateRunKeyPrefix+input.UserID, s.rateLimit.RunMax); err != nil {
			return nil, err
		}
	}
	cases, err := s.loadTestCases(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	first := cases[0]

	token, err := s.judge.SubmitSingle(ctx, input.SourceCode, input.LanguageID, first)
	if err != nil {
		return nil, err
	}
	result, err := judge0.Poll(ctx, s.poll.Run,
		func(ctx context.Context) (model.ExecutionResult, error) {
			return s.judge.PollSingle(ctx, token)
		},
		model.ExecutionResult.IsFinal,
	)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Output:          result.Stdout,
		Error:           result.ErrorOutput(),
		ExecutionTimeMs: result.TimeMs,
		MemoryKB:        result.MemoryKB,
		Status:          result.StatusDescription,
		Passed:          verdict.Passed(result, first),
		Expected:        first.ExpectedOutput,
		Input:           first.Input,
	}, nil
}
