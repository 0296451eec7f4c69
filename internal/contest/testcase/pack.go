package testcase

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"recruitoj/internal/common/storage"
	"recruitoj/internal/contest/model"
	appErr "recruitoj/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

const (
	packSuffix       = ".tar.zst"
	maxCaseFileBytes = 16 << 20
)

// PackProvider reads a problem's cases from one zstd-compressed tar,
// <prefix>/<problemID>.tar.zst. Directories inside the archive are ignored;
// only the base name of each entry is matched.
type PackProvider struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
}

func NewPackProvider(objStorage storage.ObjectStorage, bucket, prefix string) *PackProvider {
	return &PackProvider{
		storage: objStorage,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (p *PackProvider) Load(ctx context.Context, problemID int) ([]model.TestCase, error) {
	key := problemDir(problemID) + packSuffix
	if p.prefix != "" {
		key = p.prefix + "/" + key
	}

	reader, err := p.storage.GetObject(ctx, p.bucket, key)
	if err != nil {
		return nil, p.openError(err, problemID, key)
	}
	defer reader.Close()

	set, err := readPack(reader, problemID)
	if err != nil {
		return nil, p.openError(err, problemID, key)
	}
	return set.build()
}

func (p *PackProvider) openError(err error, problemID int, key string) error {
	var coded *appErr.Error
	if errors.As(err, &coded) {
		return err
	}
	if storage.IsNotFound(err) {
		return appErr.Wrapf(err, appErr.TestCaseNotFound, "no test case pack for problem %d", problemID)
	}
	return appErr.Wrapf(err, appErr.StorageError, "read test case pack %s failed", key)
}

func readPack(r io.Reader, problemID int) (*caseSet, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "problem %d pack is not a readable zstd tar", problemID)
	}
	defer zr.Close()

	set := newCaseSet(problemID)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "problem %d pack is not a readable zstd tar", problemID)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		kind, index, ok := parseCaseFile(path.Base(hdr.Name))
		if !ok {
			continue
		}
		if hdr.Size > maxCaseFileBytes {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "problem %d: %s exceeds %d bytes", problemID, hdr.Name, maxCaseFileBytes)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxCaseFileBytes))
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "problem %d: read %s failed", problemID, hdr.Name)
		}
		if err := set.add(kind, index, string(data)); err != nil {
			return nil, err
		}
	}
	return set, nil
}
