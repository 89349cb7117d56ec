// Package server is the HTTP facade: JSON endpoints mapped one-to-one
// onto catalog, expander, and downloader operations, plus static file
// serving and prometheus metrics. All handlers share one exclusive mutex,
// so catalog writes are totally ordered.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/download"
	"github.com/anekos/noir/store"
)

// Config wires the facade's collaborators.
type Config struct {
	// Store is the catalog handle shared by all handlers.
	Store *store.Store

	// Aliases is the global alias table, read at startup. The facade
	// never writes it; POST /alias goes to the catalog-local table.
	Aliases *alias.Table

	// Root is the static file directory; empty disables static serving.
	Root string

	// DownloadTo is the download destination root; empty disables the
	// downloader.
	DownloadTo string

	// Worker is the download worker, nil when DownloadTo is empty.
	Worker *download.Worker
}

// Server dispatches requests over the shared application state.
type Server struct {
	mu sync.Mutex
	Config
}

// New creates a server over cfg.
func New(cfg Config) *Server {
	return &Server{Config: cfg}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /alias/{name}", s.handleGetAlias)
	mux.HandleFunc("POST /alias/{name}", s.handlePostAlias)
	mux.HandleFunc("DELETE /alias/{name}", s.handleDeleteAlias)
	mux.HandleFunc("GET /aliases", s.handleAliases)
	mux.HandleFunc("GET /tags", s.handleTags)
	mux.HandleFunc("POST /tags", s.handlePostTags)
	mux.HandleFunc("GET /file", s.handleFile)
	mux.HandleFunc("GET /file/tags", s.handleFileTags)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /similar", s.handleSimilar)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /download", s.handleDownload)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.Root != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.Root)))
	}

	return logMiddleware(recoveryMiddleware(corsMiddleware(mux)))
}

// Run serves on the given port until the process exits.
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf(":%d", port)
	slog.Info("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}
