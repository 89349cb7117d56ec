package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/download"
	"github.com/anekos/noir/expander"
	"github.com/anekos/noir/imagemeta"
)

var searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "noir_searches_total",
	Help: "Search requests served.",
})

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// writeError maps catalog errors onto the wire: explicit not-found cases
// are 404 with an empty body, everything else 400 with the error text.
func writeError(w http.ResponseWriter, err error) {
	var notFound *noir.PathNotFoundError
	if errors.As(err, &notFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

// expanderFor merges catalog-local aliases over the global table.
func (s *Server) expanderFor(r *http.Request) (*expander.Expander, error) {
	local, err := s.Store.Aliases(r.Context())
	if err != nil {
		return nil, err
	}
	return expander.New(local, s.Aliases.Map()), nil
}

// GET /alias/{name}
func (s *Server) handleGetAlias(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, err := s.expanderFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if a, ok := x.Get(r.PathValue("name")); ok {
		writeJSON(w, a)
		return
	}
	writeJSON(w, nil)
}

// POST /alias/{name}
func (s *Server) handlePostAlias(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body alias.Alias
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.UpsertAlias(r.Context(), r.PathValue("name"), body.Expression, body.Recursive); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}

// DELETE /alias/{name}
func (s *Server) handleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Store.DeleteAlias(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}

// GET /aliases
func (s *Server) handleAliases(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, err := s.expanderFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, x.Names())
}

// GET /tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.Store.Tags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, tags)
}

type tagsRequest struct {
	Path string              `json:"path"`
	Tags download.TagRequest `json:"tags"`
}

// POST /tags
func (s *Server) handlePostTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}
	tags, err := noir.NewTags(body.Tags.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	canonical, err := noir.Canonical(body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	source := body.Tags.Source
	if source == "" {
		source = "unknown"
	}
	if err := s.Store.AddTags(r.Context(), canonical, tags, source); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}

// GET /file?path=...
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.lookup(r, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := os.ReadFile(meta.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/"+meta.Format)
	w.Header().Set("Cache-Control", "public,immutable,max-age=3600")
	w.Write(data)
}

// GET /file/tags?path=...
func (s *Server) handleFileTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.lookup(r, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	tags, err := s.Store.TagsByPath(r.Context(), meta.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, tags)
}

// lookup canonicalises path and fetches its catalog row.
func (s *Server) lookup(r *http.Request, path string) (*imagemeta.Meta, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	meta, err := s.Store.Get(r.Context(), path)
	if err != nil {
		return nil, &noir.PathNotFoundError{Path: path}
	}
	if meta == nil {
		return nil, &noir.PathNotFoundError{Path: path}
	}
	return meta, nil
}

type searchRequest struct {
	Expression string `json:"expression"`
	Record     bool   `json:"record,omitempty"`
}

type searchResult struct {
	Items      []*imagemeta.Meta `json:"items"`
	Expression string            `json:"expression"`
}

// POST /search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err)
		return
	}

	x, err := s.expanderFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	expanded, err := x.Expand(body.Expression)
	if err != nil {
		writeError(w, err)
		return
	}

	if body.Record {
		if err := s.Store.AddSearchHistory(r.Context(), body.Expression); err != nil {
			writeError(w, err)
			return
		}
	}

	items := []*imagemeta.Meta{}
	err = s.Store.Select(r.Context(), expanded, false, func(meta *imagemeta.Meta, _ bool) error {
		items = append(items, meta)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	searchesTotal.Inc()
	writeJSON(w, searchResult{Items: items, Expression: expanded})
}

// GET /similar?path=...&limit=N
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.lookup(r, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	if meta.Dhash == nil {
		writeError(w, fmt.Errorf("no dhash recorded for %s", meta.Path))
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	similar, err := s.Store.Similar(r.Context(), *meta.Dhash, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, similar)
}

// GET /history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.Store.SearchHistory(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, history)
}

// POST /download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Worker == nil || s.DownloadTo == "" {
		writeError(w, fmt.Errorf("downloading is disabled; start the server with --download-to"))
		return
	}

	var job download.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, err)
		return
	}
	if job.URL == "" || job.To == "" {
		writeError(w, fmt.Errorf("url and to are required"))
		return
	}

	if err := s.Worker.Enqueue(r.Context(), s.Store, job); err != nil {
		if errors.Is(err, download.ErrQueueFull) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, true)
}
