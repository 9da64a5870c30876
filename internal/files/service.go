package files

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dongurihub/filedrop/internal/token"
)

const defaultSnippetLimit = 4000

// Service is the file registry: it assigns tokens to uploads, persists their
// metadata, enforces the per-file and per-source ceilings, and resolves tokens
// back to records for retrieval.
type Service struct {
	storage BlobStorage
	repo    FileRepository
	quota   QuotaLedger

	maxFileBytes   int64
	maxSourceBytes int64
	snippetLimit   int

	// mu serializes the final quota check with registration so that
	// concurrent uploads from one source cannot race past the ceiling.
	mu sync.Mutex
}

// NewService creates a new file registry service. A ceiling of zero means
// unlimited.
func NewService(storage BlobStorage, repo FileRepository, quota QuotaLedger, maxFileBytes, maxSourceBytes int64) *Service {
	return &Service{
		storage:        storage,
		repo:           repo,
		quota:          quota,
		maxFileBytes:   maxFileBytes,
		maxSourceBytes: maxSourceBytes,
		snippetLimit:   defaultSnippetLimit,
	}
}

// UploadRequest represents a file upload request.
type UploadRequest struct {
	Filename string
	SourceID string

	// DeclaredSize is the size announced by the client, or a value <= 0 when
	// unknown (multipart bodies carry no per-part length).
	DeclaredSize int64

	Content io.Reader
}

// Upload streams an upload into storage and registers it. On any failure
// after bytes have been written the partial blob is removed; the quota ledger
// is only incremented once the record is durable.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*File, error) {
	if s.maxFileBytes > 0 && req.DeclaredSize > s.maxFileBytes {
		return nil, ErrFileTooLarge
	}
	if err := s.checkQuota(ctx, req.SourceID, max(req.DeclaredSize, 0)); err != nil {
		return nil, err
	}

	tok := token.Generate()
	storageName := tok + "-" + sanitizeFilename(req.Filename)

	content := req.Content
	if s.maxFileBytes > 0 {
		// One extra byte so an over-limit body is detectable.
		content = io.LimitReader(content, s.maxFileBytes+1)
	}
	size, err := s.storage.Save(storageName, content)
	if err != nil {
		return nil, fmt.Errorf("failed to save file content: %w", err)
	}
	if s.maxFileBytes > 0 && size > s.maxFileBytes {
		s.storage.Delete(storageName)
		return nil, ErrFileTooLarge
	}

	file := &File{
		Token:       tok,
		Filename:    req.Filename,
		Size:        size,
		MimeType:    guessMimeType(req.Filename),
		UploadedAt:  time.Now(),
		SourceID:    req.SourceID,
		StorageName: storageName,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The declared size was only advisory; re-check with the actual size now
	// that it is known, before the record becomes visible.
	if err := s.checkQuota(ctx, req.SourceID, size); err != nil {
		s.storage.Delete(storageName)
		return nil, err
	}
	if err := s.repo.Create(ctx, file); err != nil {
		s.storage.Delete(storageName)
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}
	if err := s.quota.Add(ctx, req.SourceID, size); err != nil {
		s.repo.Delete(ctx, tok)
		s.storage.Delete(storageName)
		return nil, fmt.Errorf("failed to update quota ledger: %w", err)
	}

	return file, nil
}

// Lookup resolves a token to its record.
func (s *Service) Lookup(ctx context.Context, tok string) (*File, error) {
	return s.repo.FindByToken(ctx, tok)
}

// List returns all records, most recent first.
func (s *Service) List(ctx context.Context) ([]*File, error) {
	return s.repo.ListAll(ctx)
}

// ListBySource returns the records uploaded by one source, most recent first.
func (s *Service) ListBySource(ctx context.Context, sourceID string) ([]*File, error) {
	return s.repo.ListBySource(ctx, sourceID)
}

// Download resolves a token and opens its content for streaming. A record
// whose blob has gone missing is reported as ErrNotFound.
func (s *Service) Download(ctx context.Context, tok string) (*File, io.ReadCloser, error) {
	file, err := s.repo.FindByToken(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.storage.Open(file.StorageName)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	return file, content, nil
}

// Resolve looks up a record and classifies it for preview rendering. Text
// files get a snippet of at most the snippet ceiling, with Truncated set when
// content remains beyond it.
func (s *Service) Resolve(ctx context.Context, tok string) (*File, *Preview, error) {
	file, err := s.repo.FindByToken(ctx, tok)
	if err != nil {
		return nil, nil, err
	}

	preview := &Preview{Kind: classify(file.Filename, file.MimeType)}
	if preview.Kind != PreviewText {
		return file, preview, nil
	}

	content, err := s.storage.Open(file.StorageName)
	if err != nil {
		return file, &Preview{Kind: PreviewNone, Message: "preview unavailable"}, nil
	}
	defer content.Close()

	snippet, truncated, err := readSnippet(content, s.snippetLimit)
	if err != nil {
		return file, &Preview{Kind: PreviewNone, Message: "preview unavailable"}, nil
	}
	if snippet == "" {
		return file, &Preview{Kind: PreviewNone}, nil
	}
	preview.Snippet = snippet
	preview.Truncated = truncated
	return file, preview, nil
}

// Delete removes a record and its blob, provided the caller is the source
// that uploaded it. The quota ledger is deliberately left untouched.
func (s *Service) Delete(ctx context.Context, tok, sourceID string) error {
	file, err := s.repo.FindByToken(ctx, tok)
	if err != nil {
		return err
	}
	if file.SourceID != sourceID {
		return ErrNotOwner
	}
	if err := s.storage.Delete(file.StorageName); err != nil {
		return fmt.Errorf("failed to delete file content: %w", err)
	}
	if err := s.repo.Delete(ctx, tok); err != nil {
		return fmt.Errorf("failed to delete file metadata: %w", err)
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, sourceID string, incoming int64) error {
	if s.maxSourceBytes <= 0 {
		return nil
	}
	used, err := s.quota.Usage(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to read quota ledger: %w", err)
	}
	if used >= s.maxSourceBytes || used+incoming > s.maxSourceBytes {
		return &QuotaError{Limit: s.maxSourceBytes, Used: used}
	}
	return nil
}

// sanitizeFilename reduces a user-supplied name to a safe storage suffix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

func guessMimeType(filename string) string {
	mt := mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
	if mt == "" {
		return ""
	}
	// Drop parameters such as "; charset=utf-8".
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
