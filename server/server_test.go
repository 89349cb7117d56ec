//go:build cgo

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/imagemeta"
	"github.com/anekos/noir/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	aliases, err := alias.Open(filepath.Join(t.TempDir(), "aliases.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	aliases.Add("cats", "#feline", true)

	return New(Config{Store: st, Aliases: aliases}), st
}

func ingest(t *testing.T, st *store.Store, dir, name string, dhash *string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("\x89PNG fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	canonical, err := noir.Canonical(path)
	if err != nil {
		t.Fatal(err)
	}
	modified := time.Now().UTC()
	meta := &imagemeta.Meta{
		Path:        canonical,
		Width:       64,
		Height:      48,
		RatioWidth:  4,
		RatioHeight: 3,
		Format:      "png",
		Size:        9,
		Dhash:       dhash,
		Modified:    &modified,
	}
	if err := st.UpsertImage(context.Background(), meta); err != nil {
		t.Fatal(err)
	}
	return canonical
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAliasEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/alias/big", `{"expression":"width > 2000","recursive":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /alias: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "GET", "/alias/big", "")
	got := decode[alias.Alias](t, rec)
	if got.Expression != "width > 2000" {
		t.Fatalf("got %+v", got)
	}

	// Unknown aliases answer null, not an error.
	rec = do(t, s, "GET", "/alias/nope", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("GET unknown alias: %d %q", rec.Code, rec.Body)
	}

	rec = do(t, s, "GET", "/aliases", "")
	names := decode[[]string](t, rec)
	want := map[string]bool{"big": true, "cats": true}
	if len(names) != 2 || !want[names[0]] || !want[names[1]] {
		t.Fatalf("names %v", names)
	}

	rec = do(t, s, "DELETE", "/alias/big", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /alias: %d", rec.Code)
	}
	rec = do(t, s, "GET", "/alias/big", "")
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("alias survived deletion: %q", rec.Body)
	}
}

func TestSearchEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	dir := t.TempDir()
	path := ingest(t, st, dir, "a.png", nil)
	if err := st.AddTags(context.Background(), path, []noir.Tag{"feline"}, "noir"); err != nil {
		t.Fatal(err)
	}
	ingest(t, st, dir, "b.png", nil)

	rec := do(t, s, "POST", "/search", `{"expression":"cats","record":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /search: %d %s", rec.Code, rec.Body)
	}
	var result struct {
		Items      []imagemeta.Meta `json:"items"`
		Expression string           `json:"expression"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 1 || result.Items[0].Path != path {
		t.Fatalf("items %+v", result.Items)
	}
	if result.Expression != "(path in (SELECT path FROM tags WHERE tag = 'feline'))" {
		t.Fatalf("expression %q", result.Expression)
	}

	// record:true appended to history.
	rec = do(t, s, "GET", "/history", "")
	history := decode[[]store.HistoryEntry](t, rec)
	if len(history) != 1 || history[0].Expression != "cats" || history[0].Uses != 1 {
		t.Fatalf("history %+v", history)
	}
}

func TestSearchBadExpression(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/search", `{"expression":"nonsense((("}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("error body empty")
	}
}

func TestTagsEndpoints(t *testing.T) {
	s, st := newTestServer(t)
	path := ingest(t, st, t.TempDir(), "a.png", nil)

	body := `{"path":"` + path + `","tags":{"items":["x","y"],"source":"noir"}}`
	rec := do(t, s, "POST", "/tags", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /tags: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "GET", "/tags", "")
	tags := decode[[]string](t, rec)
	if len(tags) != 2 {
		t.Fatalf("tags %v", tags)
	}

	rec = do(t, s, "GET", "/file/tags?path="+path, "")
	tags = decode[[]string](t, rec)
	if len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Fatalf("file tags %v", tags)
	}
}

func TestFileEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	path := ingest(t, st, t.TempDir(), "a.png", nil)

	rec := do(t, s, "GET", "/file?path="+path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /file: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public,immutable,max-age=3600" {
		t.Errorf("cache control %q", got)
	}
	if rec.Body.String() != "\x89PNG fake" {
		t.Errorf("body %q", rec.Body.String())
	}
}

func TestFileNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "GET", "/file?path=/no/such/file.png", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("404 body should be empty, got %q", rec.Body)
	}
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "GET", "/tags", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("origin %q", got)
	}

	rec = do(t, s, "OPTIONS", "/tags", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE" {
		t.Errorf("methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("max-age %q", got)
	}
}

func TestDownloadDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/download", `{"url":"http://example.com/a.png","to":"a.png"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSimilarEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	dir := t.TempDir()
	h1 := "0000000000000000"
	h2 := "0000000000000003"
	a := ingest(t, st, dir, "a.png", &h1)
	ingest(t, st, dir, "b.png", &h2)

	rec := do(t, s, "GET", "/similar?path="+a+"&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /similar: %d %s", rec.Code, rec.Body)
	}
	similar := decode[[]store.SimilarImage](t, rec)
	if len(similar) != 2 {
		t.Fatalf("got %d results", len(similar))
	}
	if similar[0].Meta.Path != a || similar[0].Distance != 0 {
		t.Fatalf("nearest %+v", similar[0])
	}
	if similar[1].Distance != 2 {
		t.Fatalf("second %+v", similar[1])
	}
}
