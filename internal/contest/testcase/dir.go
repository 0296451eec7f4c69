package testcase

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

// DirProvider reads <root>/<problemID>/input<N>[.txt] and output<N>[.txt] from the local filesystem.
type DirProvider struct {
	root string
}

func NewDirProvider(root string) *DirProvider {
	return &DirProvider{root: root}
}

func (p *DirProvider) Load(ctx context.Context, problemID int) ([]model.TestCase, error) {
	dir := filepath.Join(p.root, problemDir(problemID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErr.Newf(appErr.TestCaseNotFound, "no test cases for problem %d", problemID)
		}
		return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "read test case directory failed")
	}

	set := newCaseSet(problemID)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, index, ok := parseCaseFile(entry.Name())
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "read test case file %s failed", entry.Name())
		}
		if err := set.add(kind, index, string(data)); err != nil {
			return nil, err
		}
	}
	return set.build()
}
