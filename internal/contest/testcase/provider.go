package testcase

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

// Provider loads the ordered test cases of a problem. Loading has no side effects and may be repeated.
type Provider interface {
	Load(ctx context.Context, problemID int) ([]model.TestCase, error)
}

const (
	kindInput  = "input"
	kindOutput = "output"
)

var caseFilePattern = regexp.MustCompile(`^(input|output)(\d+)(?:\.txt)?$`)

// parseCaseFile splits "input12.txt" into ("input", 12). Unrelated names report ok=false.
func parseCaseFile(name string) (kind string, index int, ok bool) {
	m := caseFilePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], index, true
}

// caseSet accumulates file contents by index before they are paired.
type caseSet struct {
	problemID int
	inputs    map[int]string
	outputs   map[int]string
}

func newCaseSet(problemID int) *caseSet {
	return &caseSet{
		problemID: problemID,
		inputs:    make(map[int]string),
		outputs:   make(map[int]string),
	}
}

func (s *caseSet) add(kind string, index int, content string) error {
	target := s.inputs
	if kind == kindOutput {
		target = s.outputs
	}
	if _, dup := target[index]; dup {
		return appErr.Newf(appErr.TestCaseInvalid, "problem %d has duplicate %s file for case %d", s.problemID, kind, index)
	}
	target[index] = content
	return nil
}

// build pairs inputs with outputs in numeric index order.
func (s *caseSet) build() ([]model.TestCase, error) {
	if len(s.inputs) == 0 {
		return nil, appErr.Newf(appErr.TestCaseNotFound, "no test cases for problem %d", s.problemID)
	}
	indexes := make([]int, 0, len(s.inputs))
	for idx := range s.inputs {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	cases := make([]model.TestCase, 0, len(indexes))
	for _, idx := range indexes {
		expected, ok := s.outputs[idx]
		if !ok {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "problem %d: input %d has no expected output", s.problemID, idx).
				WithDetail("case", idx)
		}
		cases = append(cases, model.TestCase{
			Index:          idx,
			Input:          s.inputs[idx],
			ExpectedOutput: expected,
		})
	}
	return cases, nil
}

func problemDir(problemID int) string {
	return strconv.Itoa(problemID)
}
