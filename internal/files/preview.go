package files

import (
	"io"
	"path"
	"strings"
)

// Preview kinds understood by the retrieval page.
const (
	PreviewImage = "image"
	PreviewVideo = "video"
	PreviewAudio = "audio"
	PreviewPDF   = "pdf"
	PreviewText  = "text"
	PreviewNone  = "none"
)

// Preview describes how a file can be rendered inline, with an optional
// bounded snippet for text content.
type Preview struct {
	Kind      string `json:"kind"`
	Snippet   string `json:"snippet,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Message   string `json:"message,omitempty"`
}

var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".ogg": true, ".m4a": true,
		".aac": true, ".flac": true,
	}
	textExtensions = map[string]bool{
		".txt": true, ".md": true, ".log": true, ".json": true, ".csv": true,
		".py": true, ".js": true, ".ts": true, ".html": true, ".css": true,
		".yaml": true, ".yml": true, ".ini": true, ".cfg": true, ".go": true,
	}
)

// classify maps a stored mime type and filename extension to a preview kind.
// It is driven entirely by the recorded type; content is never sniffed.
func classify(filename, mimeType string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case strings.HasPrefix(mimeType, "image/") || imageExtensions[ext]:
		return PreviewImage
	case strings.HasPrefix(mimeType, "video/") || videoExtensions[ext]:
		return PreviewVideo
	case strings.HasPrefix(mimeType, "audio/") || audioExtensions[ext]:
		return PreviewAudio
	case mimeType == "application/pdf" || ext == ".pdf":
		return PreviewPDF
	case strings.HasPrefix(mimeType, "text/") || mimeType == "application/json" || textExtensions[ext]:
		return PreviewText
	default:
		return PreviewNone
	}
}

// readSnippet reads at most limit bytes from r and reports whether more
// content remained beyond the snippet.
func readSnippet(r io.Reader, limit int) (string, bool, error) {
	buf := make([]byte, limit+1)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", false, err
	}
	if n > limit {
		return string(buf[:limit]), true, nil
	}
	return string(buf[:n]), false, nil
}
