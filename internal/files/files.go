package files

import (
	"context"
	"io"
	"time"
)

// File represents the metadata of a stored file. Records are immutable after
// creation; the token is the only way to reach one.
type File struct {
	Token      string    `json:"token"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`

	// SourceID identifies the uploader (IP address or chat identity) for
	// quota accounting. Never serialized to clients.
	SourceID string `json:"-"`

	// StorageName locates the blob inside the storage backend. Owned by the
	// registry; clients only ever see token-mediated URLs.
	StorageName string `json:"-"`
}

// FileRepository defines the interface for the persisted metadata index.
type FileRepository interface {
	// Create stores a record. The record must be durable when Create returns.
	Create(ctx context.Context, file *File) error

	// FindByToken retrieves a record by token. Unknown and malformed tokens
	// are both reported as ErrNotFound.
	FindByToken(ctx context.Context, token string) (*File, error)

	// ListAll retrieves all records, most recent first.
	ListAll(ctx context.Context) ([]*File, error)

	// ListBySource retrieves the records uploaded by one source, most recent
	// first.
	ListBySource(ctx context.Context, sourceID string) ([]*File, error)

	// Delete removes a record by token.
	Delete(ctx context.Context, token string) error
}

// QuotaLedger tracks cumulative uploaded bytes per source identifier.
type QuotaLedger interface {
	// Usage returns the running total for a source, zero if unseen.
	Usage(ctx context.Context, sourceID string) (int64, error)

	// Add atomically increments the running total for a source. The total is
	// never decremented, not even when files are deleted, so that
	// delete-and-reupload cycles cannot evade the ceiling.
	Add(ctx context.Context, sourceID string, n int64) error
}

// BlobStorage defines the interface for the physical byte storage.
type BlobStorage interface {
	// Save streams content into a blob and returns the number of bytes
	// written. A failed write must leave no partial blob behind.
	Save(name string, content io.Reader) (int64, error)

	// Open returns a reader for the blob content.
	Open(name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(name string) error
}
