package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/dongurihub/filedrop/internal/auth"
	"github.com/dongurihub/filedrop/internal/files"
)

const uploadedAtFormat = "2006/01/02 15:04:05"

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// uploadFile accepts a multipart upload, enforces ceilings, and registers the
// file. The body is streamed; it is never buffered whole in memory.
func uploadFile(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Reject a declared oversize before reading anything.
		if cfg.MaxUploadBytes > 0 && r.ContentLength > cfg.MaxUploadBytes {
			writeTooLarge(w, cfg.MaxUploadBytes)
			return
		}
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}

		reader, err := r.MultipartReader()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "expected multipart form data")
			return
		}

		part, err := nextFilePart(reader)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer part.Close()

		result, err := fileService.Upload(r.Context(), &files.UploadRequest{
			Filename:     part.FileName(),
			SourceID:     sourceID(r),
			DeclaredSize: r.ContentLength,
			Content:      part,
		})
		if err != nil {
			writeUploadError(w, r, cfg, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"token": result.Token,
			"url":   filePageURL(cfg, r, result.Token),
		})
	}
}

// nextFilePart advances the multipart reader to the part named "file".
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func writeUploadError(w http.ResponseWriter, r *http.Request, cfg *Config, err error) {
	var quotaErr *files.QuotaError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":     "upload quota for this source exceeded",
			"limit":     humanize.IBytes(uint64(quotaErr.Limit)),
			"used":      humanize.IBytes(uint64(quotaErr.Used)),
			"remaining": humanize.IBytes(uint64(quotaErr.Remaining())),
		})
	case errors.Is(err, files.ErrFileTooLarge), errors.As(err, &maxBytesErr):
		writeTooLarge(w, cfg.MaxUploadBytes)
	default:
		slog.Error("Upload failed", "error", err, "remote_addr", r.RemoteAddr)
		writeJSONError(w, http.StatusInternalServerError, "upload failed")
	}
}

// listFiles returns every record for the authenticated listing page, newest
// first.
func listFiles(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := fileService.List(r.Context())
		if err != nil {
			slog.Error("List files failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to list files")
			return
		}

		items := make([]listItem, 0, len(records))
		for _, record := range records {
			items = append(items, newListItem(cfg, r, record))
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// listMine returns the records uploaded by the caller's own source.
func listMine(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := fileService.ListBySource(r.Context(), sourceID(r))
		if err != nil {
			slog.Error("List own files failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to list files")
			return
		}

		items := make([]listItem, 0, len(records))
		for _, record := range records {
			items = append(items, newListItem(cfg, r, record))
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type listItem struct {
	Token        string `json:"token"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	SizeReadable string `json:"size_readable"`
	UploadedAt   string `json:"uploaded_at"`
	FileType     string `json:"file_type"`
	URL          string `json:"url"`
}

func newListItem(cfg *Config, r *http.Request, record *files.File) listItem {
	fileType := record.MimeType
	if fileType == "" {
		fileType = "unknown"
	}
	return listItem{
		Token:        record.Token,
		Filename:     record.Filename,
		Size:         record.Size,
		SizeReadable: humanize.IBytes(uint64(record.Size)),
		UploadedAt:   record.UploadedAt.Format(uploadedAtFormat),
		FileType:     fileType,
		URL:          filePageURL(cfg, r, record.Token),
	}
}

// fileInfo returns the preview descriptor for one token.
func fileInfo(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		record, preview, err := fileService.Resolve(r.Context(), token)
		if err != nil {
			writeLookupError(w, err)
			return
		}

		baseURL := filePageURL(cfg, r, record.Token)
		writeJSON(w, http.StatusOK, map[string]any{
			"token":         record.Token,
			"filename":      record.Filename,
			"size":          record.Size,
			"size_readable": humanize.IBytes(uint64(record.Size)),
			"timestamp":     record.UploadedAt.Unix(),
			"uploaded_at":   record.UploadedAt.Format(uploadedAtFormat),
			"mime_type":     record.MimeType,
			"download_url":  baseURL + "?raw=1",
			"inline_url":    baseURL + "?raw=inline",
			"base_url":      baseURL,
			"preview":       preview,
		})
	}
}

// downloadFile streams the raw content for a token. ?raw=inline serves it
// inline, anything else as an attachment under the original filename.
func downloadFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		record, content, err := fileService.Download(r.Context(), token)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		defer content.Close()

		mimeType := record.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", record.Size))
		if r.URL.Query().Get("raw") != "inline" {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%q", record.Filename))
		}

		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, content); err != nil {
			slog.Error("Download stream interrupted", "error", err, "token", token)
		}
	}
}

// deleteFile removes a record and its content; only the uploading source may
// delete it. The quota ledger is never decremented.
func deleteFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		err := fileService.Delete(r.Context(), token, sourceID(r))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, files.ErrNotFound):
			writeLookupError(w, err)
		case errors.Is(err, files.ErrNotOwner):
			writeJSONError(w, http.StatusForbidden, "not allowed")
		default:
			slog.Error("Delete failed", "error", err, "token", token)
			writeJSONError(w, http.StatusInternalServerError, "delete failed")
		}
	}
}

// loginSubmit verifies credentials from the login form and sets the session
// cookie. Failures redirect back to the login page with an error flag; the
// response never says whether the username or the password was wrong.
func loginSubmit(gate *auth.Gate, sessions *auth.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Redirect(w, r, "/login?error=1", http.StatusFound)
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		next := sanitizeNext(r.PostFormValue("next"))

		if !gate.Enabled(r.Context()) {
			http.Redirect(w, r, next, http.StatusFound)
			return
		}

		token, err := gate.Login(r.Context(), username, password)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				slog.Error("Login failed", "error", err)
			}
			http.Redirect(w, r, loginURL(next, true), http.StatusFound)
			return
		}

		sessions.SetCookie(w, token)
		http.Redirect(w, r, next, http.StatusFound)
	}
}

func logout(sessions *auth.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.ClearCookie(w)
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

// addUser is the operation behind the chat bot's add-authorized-user command.
// Duplicate usernames overwrite the stored credentials.
func addUser(gate *auth.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := gate.AddUser(r.Context(), req.Username, req.Password); err != nil {
			slog.Error("Add user failed", "error", err)
			writeJSONError(w, http.StatusBadRequest, "failed to add user")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- helpers ---

// sourceID extracts the quota-accounting key for a request. RealIP middleware
// has already resolved forwarded headers into RemoteAddr.
func sourceID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}

// baseURL returns the configured public base URL, or one derived from the
// request when none is configured.
func baseURL(cfg *Config, r *http.Request) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func filePageURL(cfg *Config, r *http.Request, token string) string {
	return baseURL(cfg, r) + "/files/" + token
}

// sanitizeNext restricts a post-login redirect target to a local absolute
// path, so the login flow cannot be abused as an open redirect.
func sanitizeNext(target string) string {
	if target == "" {
		return "/"
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

func loginURL(next string, failed bool) string {
	params := url.Values{}
	if next != "" && next != "/" {
		params.Set("next", next)
	}
	if failed {
		params.Set("error", "1")
	}
	if len(params) == 0 {
		return "/login"
	}
	return "/login?" + params.Encode()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, files.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("Lookup failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
		"error": "file too large",
		"limit": humanize.IBytes(uint64(limit)),
	})
}
