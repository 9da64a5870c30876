package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dongurihub/filedrop/internal/auth"
	"github.com/dongurihub/filedrop/internal/files"
	"github.com/dongurihub/filedrop/internal/fs"
	"github.com/dongurihub/filedrop/internal/sqlite"
)

// New wires up storage, registry, access gate, and HTTP routes, and returns
// the configured server.
func New(cfg *Config) *http.Server {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	storage := fs.NewStorage(cfg.DataDir)
	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize repository", "error", err)
		panic(fmt.Sprintf("Failed to initialize repository: %v", err))
	}

	fileService := files.NewService(storage, repo, repo, cfg.MaxUploadBytes, cfg.MaxSourceBytes)

	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies)
	gate := auth.NewGate(repo, sessions)
	if cfg.AuthUsername != "" && cfg.AuthPassword != "" {
		if err := gate.AddUser(context.Background(), cfg.AuthUsername, cfg.AuthPassword); err != nil {
			slog.Error("Failed to seed listing user", "error", err)
			panic(fmt.Sprintf("Failed to seed listing user: %v", err))
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)

	r.Get("/healthz", healthz)
	r.Post("/api/upload", uploadFile(cfg, fileService))
	r.Get("/api/files", sessionAuth(gate, listFiles(cfg, fileService)))
	r.Get("/api/file/{token}", fileInfo(cfg, fileService))
	r.Get("/api/mine", listMine(cfg, fileService))
	r.Delete("/api/delete/{token}", deleteFile(fileService))
	r.Get("/files/{token}", downloadFile(fileService))
	r.Post("/login", loginSubmit(gate, sessions))
	r.Get("/logout", logout(sessions))
	r.Post("/logout", logout(sessions))
	r.Post("/api/users", adminAuth(cfg.AdminToken, addUser(gate)))

	return &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
		// No read/write timeouts: uploads and downloads may be large and
		// slow. Header reads are still bounded.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
