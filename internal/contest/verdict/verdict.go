// Package verdict turns raw engine results into per-case outcomes and an aggregate verdict.
package verdict

import (
	"strings"

	"recruitoj/internal/contest/model"
)

// Summary is the aggregate of one reconciled batch.
type Summary struct {
	Verdict     model.Verdict `json:"verdict"`
	PassedCount int           `json:"passed_count"`
	TotalCount  int           `json:"total_count"`
}

// AllPassed reports whether every case passed.
func (s Summary) AllPassed() bool {
	return s.Verdict == model.VerdictAllPass
}

// Passed reports whether result satisfies tc: the engine accepted it and the
// output matches after trimming surrounding whitespace.
func Passed(result model.ExecutionResult, tc model.TestCase) bool {
	if result.StatusID != model.JudgeStatusAccepted {
		return false
	}
	return strings.TrimSpace(result.Stdout) == strings.TrimSpace(tc.ExpectedOutput)
}

// Aggregate classifies a list of per-case outcomes. An empty list is a reject.
func Aggregate(passed []bool) model.Verdict {
	count := 0
	for _, ok := range passed {
		if ok {
			count++
		}
	}
	switch {
	case len(passed) == 0 || count == 0:
		return model.VerdictReject
	case count == len(passed):
		return model.VerdictAllPass
	default:
		return model.VerdictPartial
	}
}

// Reconcile pairs results with cases by position. Callers correlate results to
// cases before calling; a missing result counts as a failed case.
func Reconcile(results []model.ExecutionResult, cases []model.TestCase) ([]model.TestResult, Summary) {
	out := make([]model.TestResult, 0, len(cases))
	passed := make([]bool, 0, len(cases))
	for i, tc := range cases {
		tr := model.TestResult{
			Index:    tc.Index,
			Input:    tc.Input,
			Expected: tc.ExpectedOutput,
		}
		if i < len(results) {
			r := results[i]
			tr.Actual = r.Stdout
			tr.Error = r.ErrorOutput()
			tr.Status = r.StatusDescription
			tr.TimeMs = r.TimeMs
			tr.MemoryKB = r.MemoryKB
			tr.Passed = Passed(r, tc)
		} else {
			tr.Status = "Missing"
		}
		out = append(out, tr)
		passed = append(passed, tr.Passed)
	}

	summary := Summary{Verdict: Aggregate(passed), TotalCount: len(cases)}
	for _, ok := range passed {
		if ok {
			summary.PassedCount++
		}
	}
	return out, summary
}
