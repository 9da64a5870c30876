package files

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// ErrNotFound is returned for tokens that do not resolve to a record.
	// Malformed, deleted, and never-issued tokens are indistinguishable.
	ErrNotFound = errors.New("file not found")

	// ErrFileTooLarge is returned when an upload exceeds the per-file ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrQuotaExceeded is the sentinel wrapped by QuotaError.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrNotOwner is returned when a source tries to delete a file it did
	// not upload.
	ErrNotOwner = errors.New("not the uploader of this file")
)

// QuotaError reports a denied upload together with the ledger state that
// caused the denial, so the boundary can tell the uploader how much room is
// left.
type QuotaError struct {
	Limit int64
	Used  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: used %s of %s",
		humanize.IBytes(uint64(e.Used)), humanize.IBytes(uint64(e.Limit)))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Remaining returns the bytes still available to the source, never negative.
func (e *QuotaError) Remaining() int64 {
	if r := e.Limit - e.Used; r > 0 {
		return r
	}
	return 0
}
