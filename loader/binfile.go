package loader

import (
	"os"

	"github.com/pkg/errors"

	"github.com/elfwalk/elfwalk/models"
)

// MinHeaderSize is the smallest possible ELF header (the 32-bit one); files
// shorter than this can't be ELF at all.
const MinHeaderSize = 52

// BinFile is an opened, validated, read-only byte source for one path. It
// lives only as long as the extraction of its node; nothing holds one after
// Extract returns.
type BinFile struct {
	path string
	data []byte
}

// Open reads path into memory and verifies it could plausibly hold an ELF
// header. Every failure wraps one of the models sentinel errors.
func Open(path string) (*BinFile, error) {
	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, errors.Wrap(models.ErrNotFound, path)
	case os.IsPermission(err):
		return nil, errors.Wrap(models.ErrPermission, path)
	case err != nil:
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Wrap(models.ErrNotAFile, path)
	}
	if fi.Size() < MinHeaderSize {
		return nil, errors.Wrap(models.ErrTooSmall, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.Wrap(models.ErrPermission, path)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return &BinFile{path: path, data: data}, nil
}

func (bf *BinFile) Path() string {
	return bf.path
}

func (bf *BinFile) Size() uint64 {
	return uint64(len(bf.data))
}

// Bytes returns n bytes starting at off. Reads past the end of the file are
// an ErrTruncated failure, never a short read.
func (bf *BinFile) Bytes(off, n uint64) ([]byte, error) {
	end := off + n
	if end < off || end > uint64(len(bf.data)) {
		return nil, errors.Wrapf(models.ErrTruncated,
			"%s: %d bytes at offset %#x", bf.path, n, off)
	}
	return bf.data[off:end], nil
}
