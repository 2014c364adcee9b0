package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrNotAFile         = errors.New("not a regular file")
	ErrPermission       = errors.New("permission denied")
	ErrTooSmall         = errors.New("file too small to hold an ELF header")
	ErrTruncated        = errors.New("read past end of file")
	ErrNotElf           = errors.New("not an ELF file")
	ErrUnsupportedClass = errors.New("unsupported ELF class")
)

// CorruptDynamicError marks a binary whose header parsed but whose dynamic
// section references data outside the file, or is otherwise unreadable.
type CorruptDynamicError struct {
	Path   string
	Reason string
}

func (e *CorruptDynamicError) Error() string {
	return fmt.Sprintf("%s: corrupt dynamic section: %s", e.Path, e.Reason)
}
