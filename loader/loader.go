// Package loader walks directories and path lists, extracts metadata, and
// upserts the results into the catalog in batches, optionally running an
// external tag generator per ingested file.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/anekos/noir"
	"github.com/anekos/noir/imagemeta"
	"github.com/anekos/noir/store"
)

// batchSize is the commit cadence: every batchSize upserts the current
// transaction is committed and a new one begun, bounding memory on long
// runs.
const batchSize = 100

// DefaultTagSource is the provenance written when none is configured.
const DefaultTagSource = "unknown"

// imageExtensions is the allow-list applied by CheckExtension.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Config enumerates the ingest options.
type Config struct {
	// CheckExtension skips files without a known image extension.
	CheckExtension bool

	// ComputeDhash asks the extractor for the perceptual hash.
	ComputeDhash bool

	// DryRun logs each candidate and performs no writes.
	DryRun bool

	// SkipErrors logs and continues on per-file errors.
	SkipErrors bool

	// Update re-ingests files whose path is already catalogued.
	Update bool

	// TagGenerator, when set, is run with the canonical path as its
	// argument; non-empty stdout lines become the file's tags.
	TagGenerator string

	// TagSource is the provenance for generated tags.
	TagSource string
}

// Loader ingests files into a catalog. Callers run it inside an enclosing
// transaction; the loader commits and re-begins it every batchSize files.
type Loader struct {
	store  *store.Store
	config Config
	count  int
}

// New creates a loader over st.
func New(st *store.Store, config Config) *Loader {
	if config.TagSource == "" {
		config.TagSource = DefaultTagSource
	}
	return &Loader{store: st, config: config}
}

// Load ingests path: directories are walked recursively (following
// symlinks, visiting regular files only), single files directly.
func (l *Loader) Load(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return noir.WithPath(err, path)
	}
	if info.IsDir() {
		return l.walk(ctx, path)
	}
	return l.loadFile(ctx, path)
}

// LoadList reads one path per line and loads each.
func (l *Loader) LoadList(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := l.Load(ctx, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (l *Loader) walk(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return noir.WithPath(err, dir)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		// Stat, not Lstat: symlinks are followed.
		info, err := os.Stat(path)
		if err != nil {
			if l.config.SkipErrors {
				slog.Warn("skipping unreadable entry", "path", path, "error", err)
				continue
			}
			return noir.WithPath(err, path)
		}
		if info.IsDir() {
			if err := l.walk(ctx, path); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := l.loadFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, path string) error {
	err := l.loadFileInner(ctx, path)
	if err != nil && l.config.SkipErrors {
		slog.Warn("skipping file", "path", path, "error", err)
		return nil
	}
	return err
}

func (l *Loader) loadFileInner(ctx context.Context, path string) error {
	canonical, err := noir.Canonical(path)
	if err != nil {
		return noir.WithPath(err, path)
	}

	if l.config.CheckExtension && !imageExtensions[strings.ToLower(filepath.Ext(canonical))] {
		return nil
	}

	if !l.config.Update {
		exists, err := l.store.PathExists(ctx, canonical)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	if l.config.DryRun {
		slog.Info("dry run", "path", canonical)
		fmt.Println(canonical)
		return nil
	}

	meta, err := imagemeta.FromFile(canonical, l.config.ComputeDhash)
	if err != nil {
		return noir.WithPath(err, canonical)
	}
	if err := l.store.UpsertImage(ctx, meta); err != nil {
		return noir.WithPath(err, canonical)
	}

	l.count++
	if l.count%batchSize == 0 {
		if err := l.store.Commit(ctx); err != nil {
			return err
		}
		if err := l.store.Begin(ctx); err != nil {
			return err
		}
		slog.Debug("batch committed", "count", l.count)
	}

	if l.config.TagGenerator != "" {
		tags, err := l.generateTags(ctx, canonical)
		if err != nil {
			return noir.WithPath(err, canonical)
		}
		if err := l.store.SetTags(ctx, canonical, tags, l.config.TagSource); err != nil {
			return err
		}
	}

	return nil
}

// generateTags runs the configured generator with the canonical path as
// its argument. The generator must exit 0 and print UTF-8; each non-empty
// stdout line is one tag.
func (l *Loader) generateTags(ctx context.Context, path string) ([]noir.Tag, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.config.TagGenerator, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &noir.TagGeneratorError{Stderr: strings.TrimSpace(stderr.String())}
	}
	if !utf8.Valid(stdout.Bytes()) {
		return nil, &noir.TagGeneratorError{Stderr: strings.TrimSpace(stderr.String())}
	}

	var tags []noir.Tag
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tag, err := noir.NewTag(line)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}
