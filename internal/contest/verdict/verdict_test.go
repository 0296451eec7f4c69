package verdict

import (
	"testing"

	"recruitoj/internal/contest/model"
)

func accepted(stdout string) model.ExecutionResult {
	return model.ExecutionResult{StatusID: model.JudgeStatusAccepted, StatusDescription: "Accepted", Stdout: stdout}
}

func TestPassedTrimEquality(t *testing.T) {
	tests := []struct {
		name     string
		result   model.ExecutionResult
		expected string
		want     bool
	}{
		{"exact", accepted("3"), "3", true},
		{"trailing newline in expected", accepted("3"), "3\n", true},
		{"trailing spaces in actual", accepted("1 2  \n\n"), "1 2", true},
		{"leading whitespace", accepted("\t42"), "42", true},
		{"internal whitespace differs", accepted("1  2"), "1 2", false},
		{"internal newline differs", accepted("1\n2"), "1 2", false},
		{"wrong answer status", model.ExecutionResult{StatusID: model.JudgeStatusWrongAnswer, Stdout: "3"}, "3", false},
		{"compile error", model.ExecutionResult{StatusID: model.JudgeStatusCompile}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Passed(tt.result, model.TestCase{ExpectedOutput: tt.expected})
			if got != tt.want {
				t.Errorf("Passed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		passed []bool
		want   model.Verdict
	}{
		{"empty", nil, model.VerdictReject},
		{"all pass", []bool{true, true}, model.VerdictAllPass},
		{"partial", []bool{true, false, true}, model.VerdictPartial},
		{"none", []bool{false, false}, model.VerdictReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.passed); got != tt.want {
				t.Errorf("Aggregate(%v) = %s, want %s", tt.passed, got, tt.want)
			}
		})
	}
}

func TestReconcilePartial(t *testing.T) {
	cases := []model.TestCase{
		{Index: 0, Input: "1", ExpectedOutput: "1"},
		{Index: 1, Input: "2", ExpectedOutput: "2"},
		{Index: 2, Input: "3", ExpectedOutput: "3"},
	}
	results := []model.ExecutionResult{
		accepted("1\n"),
		{StatusID: model.JudgeStatusWrongAnswer, StatusDescription: "Wrong Answer", Stdout: "x", Stderr: "warn"},
		accepted("3"),
	}

	got, summary := Reconcile(results, cases)
	if summary.Verdict != model.VerdictPartial || summary.PassedCount != 2 || summary.TotalCount != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.AllPassed() {
		t.Error("partial summary reports all passed")
	}
	if len(got) != 3 {
		t.Fatalf("got %d results", len(got))
	}
	if got[1].Passed || got[1].Actual != "x" || got[1].Error != "warn" || got[1].Status != "Wrong Answer" {
		t.Errorf("second result = %+v", got[1])
	}
	if !got[0].Passed || got[0].Expected != "1" || got[0].Input != "1" {
		t.Errorf("first result = %+v", got[0])
	}
}

func TestReconcileMissingResult(t *testing.T) {
	cases := []model.TestCase{{Index: 0, ExpectedOutput: "a"}, {Index: 1, ExpectedOutput: "b"}}
	got, summary := Reconcile([]model.ExecutionResult{accepted("a")}, cases)
	if summary.Verdict != model.VerdictPartial || summary.PassedCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if got[1].Passed || got[1].Status != "Missing" {
		t.Errorf("missing result = %+v", got[1])
	}
}
