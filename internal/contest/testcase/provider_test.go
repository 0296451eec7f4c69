package testcase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestParseCaseFile(t *testing.T) {
	tests := []struct {
		name      string
		wantKind  string
		wantIndex int
		wantOK    bool
	}{
		{"input0", kindInput, 0, true},
		{"input12.txt", kindInput, 12, true},
		{"output3", kindOutput, 3, true},
		{"output3.txt", kindOutput, 3, true},
		{"input.txt", "", 0, false},
		{"readme.md", "", 0, false},
		{"input1.in", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, index, ok := parseCaseFile(tt.name)
			if kind != tt.wantKind || index != tt.wantIndex || ok != tt.wantOK {
				t.Errorf("parseCaseFile(%q) = (%q, %d, %v)", tt.name, kind, index, ok)
			}
		})
	}
}

func TestDirProviderNumericOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "3"), map[string]string{
		"input0":      "a",
		"output0":     "A",
		"input10.txt": "k",
		"output10":    "K",
		"input2":      "c",
		"output2.txt": "C",
		"notes.md":    "ignored",
	})

	cases, err := NewDirProvider(root).Load(context.Background(), 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []model.TestCase{
		{Index: 0, Input: "a", ExpectedOutput: "A"},
		{Index: 2, Input: "c", ExpectedOutput: "C"},
		{Index: 10, Input: "k", ExpectedOutput: "K"},
	}
	if len(cases) != len(want) {
		t.Fatalf("got %d cases, want %d", len(cases), len(want))
	}
	for i := range want {
		if cases[i] != want[i] {
			t.Errorf("case %d = %+v, want %+v", i, cases[i], want[i])
		}
	}
}

func TestDirProviderErrors(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "1"), map[string]string{
		"input0":  "1",
		"output0": "1",
		"input1":  "2",
	})
	writeFiles(t, filepath.Join(root, "2"), map[string]string{
		"input0":     "1",
		"input0.txt": "1",
		"output0":    "1",
	})
	writeFiles(t, filepath.Join(root, "4"), map[string]string{"output0": "1"})

	p := NewDirProvider(root)
	cases := []struct {
		name      string
		problemID int
		code      appErr.ErrorCode
	}{
		{"missing directory", 9, appErr.TestCaseNotFound},
		{"missing expected output", 1, appErr.TestCaseInvalid},
		{"duplicate index", 2, appErr.TestCaseInvalid},
		{"outputs only", 4, appErr.TestCaseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Load(context.Background(), tc.problemID)
			if !appErr.Is(err, tc.code) {
				t.Fatalf("err = %v, want code %d", err, tc.code)
			}
		})
	}
}

type fakeObjectStorage struct {
	objects map[string]string
	listErr error
}

func (f *fakeObjectStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	content, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeObjectStorage) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return err
	}
	f.objects[key] = buf.String()
	return nil
}

func (f *fakeObjectStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	out := make(chan storage.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		out <- storage.ObjectInfo{Err: f.listErr}
	}
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out <- storage.ObjectInfo{Key: key}
		}
	}
	close(out)
	return out
}

func TestObjectProvider(t *testing.T) {
	store := &fakeObjectStorage{objects: map[string]string{
		"cases/5/input1.txt":   "one",
		"cases/5/output1.txt":  "ONE",
		"cases/5/input0":       "zero",
		"cases/5/output0":      "ZERO",
		"cases/5/extra/input9": "nested",
		"cases/50/input0":      "other problem",
		"cases/50/output0":     "other problem",
	}}
	p := NewObjectProvider(store, "contest", "/cases/")

	cases, err := p.Load(context.Background(), 5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cases) != 2 || cases[0].Input != "zero" || cases[1].ExpectedOutput != "ONE" {
		t.Fatalf("unexpected cases: %+v", cases)
	}

	if _, err := p.Load(context.Background(), 7); !appErr.Is(err, appErr.TestCaseNotFound) {
		t.Errorf("missing problem err = %v", err)
	}

	store.listErr = errors.New("bucket unavailable")
	if _, err := p.Load(context.Background(), 5); !appErr.Is(err, appErr.StorageError) {
		t.Errorf("list failure err = %v", err)
	}
}

type countingProvider struct {
	calls int
	cases []model.TestCase
	err   error
}

func (p *countingProvider) Load(ctx context.Context, problemID int) ([]model.TestCase, error) {
	p.calls++
	return p.cases, p.err
}

func TestCachedProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	inner := &countingProvider{cases: []model.TestCase{{Index: 0, Input: "1 2", ExpectedOutput: "3"}}}
	p := NewCachedProvider(inner, redisCache, time.Minute)

	for i := 0; i < 3; i++ {
		cases, err := p.Load(context.Background(), 4)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(cases) != 1 || cases[0].ExpectedOutput != "3" {
			t.Fatalf("cases = %+v", cases)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner provider called %d times, want 1", inner.calls)
	}

	missing := &countingProvider{err: appErr.New(appErr.TestCaseNotFound)}
	p = NewCachedProvider(missing, redisCache, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := p.Load(context.Background(), 8); !appErr.Is(err, appErr.TestCaseNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if missing.calls != 2 {
		t.Errorf("not-found results must not be cached, calls = %d", missing.calls)
	}
}
