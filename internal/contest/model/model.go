// Package model holds the contest grading domain types shared across packages.
package model

import "time"

// TestCase is one input/expected-output pair. Index is zero-based and determines order.
type TestCase struct {
	Index          int    `json:"index"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// SubmissionStatus is the lifecycle state of a graded submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "PENDING"
	StatusAccepted SubmissionStatus = "ACCEPTED"
	StatusRejected SubmissionStatus = "REJECTED"
	StatusError    SubmissionStatus = "ERROR"
)

// IsTerminal reports whether the status can no longer change.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusError:
		return true
	default:
		return false
	}
}

// Submission is one grading attempt.
type Submission struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	ProblemID    int              `json:"problem_id"`
	SourceCode   string           `json:"source_code"`
	LanguageID   int              `json:"language_id"`
	Status       SubmissionStatus `json:"status"`
	PassedCount  int              `json:"passed_count"`
	TotalCount   int              `json:"total_count"`
	SourceKey    string           `json:"source_key,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	IsDeleted    bool             `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Judge engine status ids. Only 1 and 2 are in progress.
const (
	JudgeStatusInQueue     = 1
	JudgeStatusProcessing  = 2
	JudgeStatusAccepted    = 3
	JudgeStatusWrongAnswer = 4
	JudgeStatusTimeLimit   = 5
	JudgeStatusCompile     = 6
	JudgeStatusInternal    = 13
)

// ExecutionResult is the engine's report for one test case.
type ExecutionResult struct {
	Token             string  `json:"token"`
	StatusID          int     `json:"status_id"`
	StatusDescription string  `json:"status"`
	Stdout            string  `json:"stdout"`
	Stderr            string  `json:"stderr"`
	CompileOutput     string  `json:"compile_output,omitempty"`
	Message           string  `json:"message,omitempty"`
	TimeMs            float64 `json:"time_ms"`
	MemoryKB          int64   `json:"memory_kb"`
}

// IsFinal reports whether the engine has finished with this case.
func (r ExecutionResult) IsFinal() bool {
	return r.StatusID != JudgeStatusInQueue && r.StatusID != JudgeStatusProcessing
}

// ErrorOutput returns the most specific diagnostic text the engine produced.
func (r ExecutionResult) ErrorOutput() string {
	switch {
	case r.CompileOutput != "":
		return r.CompileOutput
	case r.Stderr != "":
		return r.Stderr
	default:
		return r.Message
	}
}

// Verdict is the aggregate classification of a graded submission.
type Verdict string

const (
	VerdictAllPass Verdict = "ALL_PASS"
	VerdictPartial Verdict = "PARTIAL"
	VerdictReject  Verdict = "REJECT"
)

// TestResult is the per-case outcome returned to the caller.
type TestResult struct {
	Index    int     `json:"index"`
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Error    string  `json:"error,omitempty"`
	Status   string  `json:"status"`
	TimeMs   float64 `json:"time_ms"`
	MemoryKB int64   `json:"memory_kb"`
	Passed   bool    `json:"passed"`
}

// Score is a user's cumulative contest score.
type Score struct {
	UserID         string `json:"user_id"`
	Score          int    `json:"score"`
	SolvedProblems []int  `json:"solved_problems"`
}
