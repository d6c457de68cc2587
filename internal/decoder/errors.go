package decoder

import (
	"fmt"
	"os"

	"github.com/tphakala/automarker/internal/errors"
)

// Sentinel errors. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	ErrFileNotFound      = errors.NewStd("audio file not found")
	ErrUnsupportedFormat = errors.NewStd("unsupported audio format")
	ErrDecodeFailed      = errors.NewStd("audio decode failed")
	ErrAllocation        = errors.NewStd("decoded audio exceeds size limit")
)

// wrapErr builds an enhanced error that wraps sentinel with the cause text.
func wrapErr(sentinel error, category errors.ErrorCategory, path, op string, cause error) error {
	var err error
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", sentinel, path, cause)
	} else {
		err = fmt.Errorf("%w: %s", sentinel, path)
	}

	return errors.New(err).
		Component("decoder").
		Category(category).
		Context("operation", op).
		FileContext(path, fileSize(path)).
		Build()
}

// fileSize returns the size of the file at path, or 0 when it cannot be
// stat'ed.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return 0
	}
	return fi.Size()
}
