package repl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	httpclient "recruitoj/internal/cli/http"
	pkgerrors "recruitoj/pkg/errors"
)

type testResultView struct {
	Index    int     `json:"index"`
	Status   string  `json:"status"`
	Passed   bool    `json:"passed"`
	TimeMs   float64 `json:"time_ms"`
	MemoryKB int64   `json:"memory_kb"`
	Error    string  `json:"error"`
}

type submitView struct {
	SubmissionID   string           `json:"submission_id"`
	Status         string           `json:"status"`
	Verdict        string           `json:"verdict"`
	AllTestsPassed bool             `json:"all_tests_passed"`
	PassedCount    int              `json:"passed_test_count"`
	TotalCount     int              `json:"total_tests"`
	Scored         bool             `json:"scored"`
	TestResults    []testResultView `json:"test_results"`
}

type runView struct {
	Output          string  `json:"output"`
	Error           string  `json:"error"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	MemoryKB        int64   `json:"memory_kb"`
	Status          string  `json:"status"`
	Passed          bool    `json:"passed"`
	Expected        string  `json:"expected"`
	Input           string  `json:"input"`
}

type listView struct {
	Items []struct {
		SubmissionID string `json:"submission_id"`
		ProblemID    int    `json:"problem_id"`
		LanguageID   int    `json:"language_id"`
		Status       string `json:"status"`
		PassedCount  int    `json:"passed_test_count"`
		TotalCount   int    `json:"total_tests"`
		CreatedAt    string `json:"created_at"`
	} `json:"items"`
}

type scoreView struct {
	Score          int   `json:"score"`
	SolvedProblems []int `json:"solved_problems"`
}

func (s *Session) render(name string, resp httpclient.ResponseInfo) error {
	env, err := resp.Decode()
	if err != nil {
		s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
		s.printLine("%s", string(resp.Body))
		return err
	}
	if env.Code != int(pkgerrors.Success) {
		s.printLine("HTTP %d: %s (code %d, trace %s)", resp.StatusCode, env.Message, env.Code, resp.TraceID)
		keys := make([]string, 0, len(env.Details))
		for k := range env.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.printLine("  %s: %v", k, env.Details[k])
		}
		return nil
	}
	if s.prettyJSON {
		var out bytes.Buffer
		if err := json.Indent(&out, env.Data, "", "  "); err == nil {
			s.printLine("%s", out.String())
			return nil
		}
	}

	switch name {
	case "submit":
		var v submitView
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return fmt.Errorf("decode submit result failed: %w", err)
		}
		s.renderSubmit(v)
	case "run":
		var v runView
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return fmt.Errorf("decode run result failed: %w", err)
		}
		s.renderRun(v)
	case "list":
		var v listView
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return fmt.Errorf("decode submissions failed: %w", err)
		}
		s.renderList(v)
	case "score":
		var v scoreView
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return fmt.Errorf("decode score failed: %w", err)
		}
		s.printLine("score: %d", v.Score)
		s.printLine("solved: %s", joinInts(v.SolvedProblems))
	default:
		s.printLine("%s", string(env.Data))
	}
	return nil
}

func (s *Session) renderSubmit(v submitView) {
	s.printLine("%s %s  %d/%d passed  (%s)", v.Verdict, v.Status, v.PassedCount, v.TotalCount, v.SubmissionID)
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, r := range v.TestResults {
		mark := "FAIL"
		if r.Passed {
			mark = "ok"
		}
		line := fmt.Sprintf("  #%d\t%s\t%s\t%.0fms\t%dKB", r.Index, mark, r.Status, r.TimeMs, r.MemoryKB)
		if r.Error != "" {
			line += "\t" + firstLine(r.Error)
		}
		_, _ = fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
	if v.Scored {
		s.printLine("point awarded")
	}
}

func (s *Session) renderRun(v runView) {
	result := "wrong answer"
	if v.Passed {
		result = "matches expected output"
	}
	s.printLine("%s: %s  (%.0fms, %dKB)", v.Status, result, v.ExecutionTimeMs, v.MemoryKB)
	s.printLine("input:\n%s", v.Input)
	s.printLine("output:\n%s", v.Output)
	if !v.Passed {
		s.printLine("expected:\n%s", v.Expected)
	}
	if v.Error != "" {
		s.printLine("error:\n%s", v.Error)
	}
}

func (s *Session) renderList(v listView) {
	if len(v.Items) == 0 {
		s.printLine("no submissions")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPROBLEM\tLANG\tSTATUS\tPASSED\tCREATED")
	for _, item := range v.Items {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d/%d\t%s\n",
			item.SubmissionID, item.ProblemID, item.LanguageID, item.Status, item.PassedCount, item.TotalCount, item.CreatedAt)
	}
	_ = tw.Flush()
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
