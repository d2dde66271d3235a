package crawler

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse marks a transport failure: no HTTP response was received.
	ErrEmptyResponse = errors.New("empty response")
	// ErrNoContent marks an article whose text could not be extracted.
	ErrNoContent = errors.New("no extractable content")
	// ErrNotPopulated is returned when a populate targets a row that no longer exists.
	ErrNotPopulated = errors.New("row not found for populate")
)

// Recoverable reports whether err is an expected per-URL failure that the
// traversal skips rather than aborts on.
func Recoverable(err error) bool {
	return errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrNoContent)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
