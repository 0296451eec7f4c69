package testcase

import (
	"context"
	"io"
	"path"
	"strings"

	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"
)

// ObjectProvider reads test cases stored under <prefix>/<problemID>/ in an object store bucket.
type ObjectProvider struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
}

func NewObjectProvider(objStorage storage.ObjectStorage, bucket, prefix string) *ObjectProvider {
	return &ObjectProvider{
		storage: objStorage,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (p *ObjectProvider) Load(ctx context.Context, problemID int) ([]model.TestCase, error) {
	prefix := problemDir(problemID) + "/"
	if p.prefix != "" {
		prefix = p.prefix + "/" + prefix
	}

	// Cancelling stops the listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	set := newCaseSet(problemID)
	for obj := range p.storage.ListObjects(ctx, p.bucket, prefix) {
		if obj.Err != nil {
			return nil, appErr.Wrapf(obj.Err, appErr.StorageError, "list test cases for problem %d failed", problemID)
		}
		kind, index, ok := parseCaseFile(path.Base(obj.Key))
		if !ok || path.Dir(obj.Key) != strings.TrimSuffix(prefix, "/") {
			continue
		}
		content, err := p.read(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		if err := set.add(kind, index, content); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return set.build()
}

func (p *ObjectProvider) read(ctx context.Context, key string) (string, error) {
	reader, err := p.storage.GetObject(ctx, p.bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "open test case %s failed", key)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read test case %s failed", key)
	}
	return string(data), nil
}
