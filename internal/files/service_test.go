package files_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongurihub/filedrop/internal/files"
	"github.com/dongurihub/filedrop/internal/fs"
	"github.com/dongurihub/filedrop/internal/sqlite"
)

func newTestService(t *testing.T, maxFileBytes, maxSourceBytes int64) (*files.Service, *sqlite.Repository, string) {
	t.Helper()

	dataDir := t.TempDir()
	repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	storage := fs.NewStorage(dataDir)
	return files.NewService(storage, repo, repo, maxFileBytes, maxSourceBytes), repo, dataDir
}

func upload(t *testing.T, svc *files.Service, filename, source, content string) (*files.File, error) {
	t.Helper()
	return svc.Upload(context.Background(), &files.UploadRequest{
		Filename:     filename,
		SourceID:     source,
		DeclaredSize: -1,
		Content:      strings.NewReader(content),
	})
}

func storedBlobs(t *testing.T, dataDir string) int {
	t.Helper()
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	return len(entries)
}

func TestUploadThenLookup(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	uploaded, err := upload(t, svc, "notes.txt", "203.0.113.7", "hello there")
	require.NoError(t, err)
	require.NotEmpty(t, uploaded.Token)

	found, err := svc.Lookup(context.Background(), uploaded.Token)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", found.Filename)
	assert.Equal(t, int64(len("hello there")), found.Size)
	assert.Equal(t, "text/plain", found.MimeType)
}

func TestLookupUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	// Unknown and malformed tokens are the same failure.
	for _, tok := range []string{"ffffffffffffffffffffffffffffffff", "not-a-token", ""} {
		_, err := svc.Lookup(context.Background(), tok)
		assert.ErrorIs(t, err, files.ErrNotFound)
	}
}

func TestUploadOverFileCeilingWritesNothing(t *testing.T) {
	svc, _, dataDir := newTestService(t, 100, 0)

	_, err := upload(t, svc, "big.bin", "203.0.113.7", strings.Repeat("x", 101))
	assert.ErrorIs(t, err, files.ErrFileTooLarge)
	assert.Equal(t, 0, storedBlobs(t, dataDir))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadDeclaredOversizeRejectedEarly(t *testing.T) {
	svc, _, dataDir := newTestService(t, 100, 0)

	_, err := svc.Upload(context.Background(), &files.UploadRequest{
		Filename:     "big.bin",
		SourceID:     "203.0.113.7",
		DeclaredSize: 101,
		Content:      strings.NewReader("tiny"),
	})
	assert.ErrorIs(t, err, files.ErrFileTooLarge)
	assert.Equal(t, 0, storedBlobs(t, dataDir))
}

func TestQuotaSecondUploadDenied(t *testing.T) {
	svc, repo, dataDir := newTestService(t, 0, 1000)
	ctx := context.Background()

	_, err := upload(t, svc, "first.bin", "203.0.113.7", strings.Repeat("a", 600))
	require.NoError(t, err)

	_, err = upload(t, svc, "second.bin", "203.0.113.7", strings.Repeat("b", 600))
	assert.ErrorIs(t, err, files.ErrQuotaExceeded)

	var quotaErr *files.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, int64(1000), quotaErr.Limit)
	assert.Equal(t, int64(600), quotaErr.Used)
	assert.Equal(t, int64(400), quotaErr.Remaining())

	// The denied upload leaves no trace: ledger stays at 600, one blob.
	used, err := repo.Usage(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(600), used)
	assert.Equal(t, 1, storedBlobs(t, dataDir))
}

func TestQuotaFullSourceDeniedBeforeWrite(t *testing.T) {
	svc, repo, dataDir := newTestService(t, 0, 1000)

	require.NoError(t, repo.Add(context.Background(), "203.0.113.7", 1000))

	_, err := svc.Upload(context.Background(), &files.UploadRequest{
		Filename:     "late.bin",
		SourceID:     "203.0.113.7",
		DeclaredSize: 10,
		Content:      strings.NewReader("0123456789"),
	})
	assert.ErrorIs(t, err, files.ErrQuotaExceeded)
	assert.Equal(t, 0, storedBlobs(t, dataDir))
}

func TestQuotaDistinctSourcesIndependent(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 1000)

	_, err := upload(t, svc, "a.bin", "203.0.113.7", strings.Repeat("a", 900))
	require.NoError(t, err)

	_, err = upload(t, svc, "b.bin", "198.51.100.1", strings.Repeat("b", 900))
	require.NoError(t, err)
}

func TestConcurrentUploads(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = upload(t, svc,
				fmt.Sprintf("file-%d.bin", i),
				fmt.Sprintf("203.0.113.%d", i),
				"0123456789")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "upload %d failed", i)
	}

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, n)

	seen := make(map[string]struct{}, n)
	for _, f := range list {
		seen[f.Token] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestResolveTextTruncation(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	long := strings.Repeat("a", 4000) + "overflow"
	uploaded, err := upload(t, svc, "big.txt", "203.0.113.7", long)
	require.NoError(t, err)

	_, preview, err := svc.Resolve(context.Background(), uploaded.Token)
	require.NoError(t, err)
	assert.Equal(t, files.PreviewText, preview.Kind)
	assert.True(t, preview.Truncated)
	assert.Len(t, preview.Snippet, 4000)
}

func TestResolveShortTextNotTruncated(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	uploaded, err := upload(t, svc, "short.md", "203.0.113.7", "just a note")
	require.NoError(t, err)

	_, preview, err := svc.Resolve(context.Background(), uploaded.Token)
	require.NoError(t, err)
	assert.Equal(t, files.PreviewText, preview.Kind)
	assert.False(t, preview.Truncated)
	assert.Equal(t, "just a note", preview.Snippet)
}

func TestResolveClassification(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	tests := []struct {
		filename string
		kind     string
	}{
		{"photo.png", files.PreviewImage},
		{"photo.JPG", files.PreviewImage},
		{"clip.mp4", files.PreviewVideo},
		{"song.mp3", files.PreviewAudio},
		{"paper.pdf", files.PreviewPDF},
		{"data.json", files.PreviewText},
		{"archive.zip", files.PreviewNone},
		{"mystery", files.PreviewNone},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			uploaded, err := upload(t, svc, tt.filename, "203.0.113.7", "content")
			require.NoError(t, err)

			_, preview, err := svc.Resolve(context.Background(), uploaded.Token)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, preview.Kind)
		})
	}
}

func TestDeleteOnlyByUploader(t *testing.T) {
	svc, repo, dataDir := newTestService(t, 0, 0)
	ctx := context.Background()

	uploaded, err := upload(t, svc, "mine.txt", "203.0.113.7", "keep out")
	require.NoError(t, err)

	err = svc.Delete(ctx, uploaded.Token, "198.51.100.1")
	assert.ErrorIs(t, err, files.ErrNotOwner)

	_, err = svc.Lookup(ctx, uploaded.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, uploaded.Token, "203.0.113.7"))
	_, err = svc.Lookup(ctx, uploaded.Token)
	assert.ErrorIs(t, err, files.ErrNotFound)
	assert.Equal(t, 0, storedBlobs(t, dataDir))

	// Deletion never refunds quota.
	used, err := repo.Usage(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, int64(len("keep out")), used)
}

func TestDownloadStreamsContent(t *testing.T) {
	svc, _, _ := newTestService(t, 0, 0)

	uploaded, err := upload(t, svc, "notes.txt", "203.0.113.7", "stream me")
	require.NoError(t, err)

	record, content, err := svc.Download(context.Background(), uploaded.Token)
	require.NoError(t, err)
	defer content.Close()

	data, err := io.ReadAll(content)
	require.NoError(t, err)
	assert.Equal(t, "stream me", string(data))
	assert.Equal(t, "notes.txt", record.Filename)
}
