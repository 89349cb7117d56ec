// Package store is the catalog engine: a single-connection SQLite
// database holding images, tags, local aliases, search history, and the
// persisted download queue, with the noir scalar functions registered on
// every connection and a sqlite-vec index over perceptual hashes.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/imagemeta"
)

func init() {
	sqlite_vec.Auto()
}

// SelectPrefix is what compiled WHERE fragments are appended to.
const SelectPrefix = "SELECT * FROM images WHERE "

// timeLayout keeps stored instants lexicographically comparable.
const timeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t the way the catalog stores instants.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Store is one connection to the catalog database. The connection
// alternates between autocommit and in-transaction states; at most one
// transaction is active at a time.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates parent directories, opens the catalog at path, and creates
// tables and indexes if absent. Scalar functions arrive via the driver's
// connect hook.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Transaction discipline is per connection; keep exactly one.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Clone opens a second, independent connection to the same catalog file.
// The download worker owns one so its ingestion can interleave with HTTP
// handlers; busy errors under that interleaving are the retry wrapper's
// job.
func (s *Store) Clone() (*Store, error) {
	return Open(s.path)
}

// --- Transactions ---

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "BEGIN")
	return err
}

// Commit commits the current transaction.
func (s *Store) Commit(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "COMMIT")
	return err
}

// Tx is a scoped transaction guard. Release commits best-effort: a commit
// failure is logged, not raised. Callers that must observe it use Commit
// directly.
type Tx struct {
	s        *Store
	released bool
}

// Transaction begins a transaction and returns its guard.
func (s *Store) Transaction(ctx context.Context) (*Tx, error) {
	if err := s.Begin(ctx); err != nil {
		return nil, err
	}
	return &Tx{s: s}, nil
}

// Release commits the transaction if it is still open.
func (t *Tx) Release() {
	if t.released {
		return
	}
	t.released = true
	if err := t.s.Commit(context.Background()); err != nil {
		slog.Error("commit failed", "error", err)
	}
}

// --- Images ---

const imageColumns = "path, width, height, ratio_w, ratio_h, format, animation, file_size, dhash, created, modified, accessed"

// UpsertImage overwrites a present row and inserts an absent one: an
// update by path followed by an insert-or-ignore over the same parameter
// tuple. Callers run inside an enclosing transaction.
func (s *Store) UpsertImage(ctx context.Context, meta *imagemeta.Meta) error {
	args := []any{
		meta.Path,
		meta.Width,
		meta.Height,
		meta.RatioWidth,
		meta.RatioHeight,
		meta.Format,
		meta.Animation,
		meta.Size,
		nullString(meta.Dhash),
		nullTime(meta.Created),
		nullTime(meta.Modified),
		nullTime(meta.Accessed),
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE images SET width = ?2, height = ?3, ratio_w = ?4, ratio_h = ?5,
			format = ?6, animation = ?7, file_size = ?8, dhash = ?9,
			created = ?10, modified = ?11, accessed = ?12
		WHERE path = ?1`, args...); err != nil {
		return fmt.Errorf("updating image: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO images (`+imageColumns+`)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12)`, args...); err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}

	return s.indexDhash(ctx, meta.Path, meta.Dhash)
}

// indexDhash keeps vec_dhash in step with an image row.
func (s *Store) indexDhash(ctx context.Context, path string, dhash *string) error {
	var rowid int64
	err := s.db.QueryRowContext(ctx, "SELECT rowid FROM images WHERE path = ?", path).Scan(&rowid)
	if err != nil {
		return fmt.Errorf("resolving image rowid: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vec_dhash WHERE image_rowid = ?", rowid); err != nil {
		return fmt.Errorf("clearing dhash index: %w", err)
	}
	if dhash == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO vec_dhash (image_rowid, dhash) VALUES (?, vec_bit(?))",
		rowid, hashVector(*dhash)); err != nil {
		return fmt.Errorf("indexing dhash: %w", err)
	}
	return nil
}

// hashVector serialises a 16-hex dhash as the bit[64] vector blob.
func hashVector(dhash string) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, parseHash(dhash))
	return buf
}

// Get canonicalises path and returns its row, or nil when absent.
func (s *Store) Get(ctx context.Context, path string) (*imagemeta.Meta, error) {
	canonical, err := noir.Canonical(path)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE path = ?", canonical)
	meta, err := scanMeta(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return meta, err
}

// PathExists reports whether a row with the exact path is present.
func (s *Store) PathExists(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM images WHERE path = ?", path).Scan(&n)
	return n > 0, err
}

// Select runs the compiled WHERE fragment and yields each row. With
// vacuum, rows whose file no longer exists are deleted (cascading to tag
// bindings) and yielded with vacuumed=true.
func (s *Store) Select(ctx context.Context, where string, vacuum bool, yield func(meta *imagemeta.Meta, vacuumed bool) error) error {
	rows, err := s.db.QueryContext(ctx, SelectPrefix+where)
	if err != nil {
		return fmt.Errorf("selecting images: %w", err)
	}

	// Materialise before yielding: deletions reuse the single connection.
	var metas []*imagemeta.Meta
	for rows.Next() {
		meta, err := scanMeta(rows.Scan)
		if err != nil {
			rows.Close()
			return err
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, meta := range metas {
		vacuumed := false
		if vacuum {
			if _, err := os.Stat(meta.Path); os.IsNotExist(err) {
				if err := s.deleteImage(ctx, meta.Path); err != nil {
					return err
				}
				vacuumed = true
			}
		}
		if err := yield(meta, vacuumed); err != nil {
			return err
		}
	}
	return nil
}

// deleteImage removes one image row, its dhash vector, and (via cascade)
// its tag bindings.
func (s *Store) deleteImage(ctx context.Context, path string) error {
	var rowid int64
	err := s.db.QueryRowContext(ctx, "SELECT rowid FROM images WHERE path = ?", path).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vec_dhash WHERE image_rowid = ?", rowid); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM images WHERE path = ?", path)
	return err
}

// Vacuum scans rows whose path starts with prefix (all rows when empty),
// deletes those missing from disk, and reports each with a running count.
func (s *Store) Vacuum(ctx context.Context, prefix string, report func(path string, n int) error) error {
	query := "SELECT path FROM images"
	var args []any
	if prefix != "" {
		query += " WHERE path LIKE ? ESCAPE '\\'"
		args = append(args, likePrefix(prefix)+"%")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scanning images: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	n := 0
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			continue
		}
		if err := s.deleteImage(ctx, p); err != nil {
			return err
		}
		n++
		if report != nil {
			if err := report(p, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset drops the images and tags tables (and the dhash index) and
// recreates them. Aliases and history survive.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resetSQL); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("recreating schema: %w", err)
	}
	return nil
}

// --- Tags ---

// AddTags binds tags to path under source. The image must already be
// catalogued; insertions are idempotent per (path, tag, source).
func (s *Store) AddTags(ctx context.Context, path string, tags []noir.Tag, source string) error {
	ok, err := s.PathExists(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return &noir.PathNotFoundError{Path: path}
	}
	for _, tag := range tags {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO tags (path, tag, source) VALUES (?, ?, ?)",
			path, string(tag), source); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}
	return nil
}

// DeleteTags removes the matching (path, tag, source) triples.
func (s *Store) DeleteTags(ctx context.Context, path string, tags []noir.Tag, source string) error {
	for _, tag := range tags {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM tags WHERE path = ? AND tag = ? AND source = ?",
			path, string(tag), source); err != nil {
			return fmt.Errorf("deleting tag: %w", err)
		}
	}
	return nil
}

// ClearTags removes every binding with the given source from path.
func (s *Store) ClearTags(ctx context.Context, path, source string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM tags WHERE path = ? AND source = ?", path, source)
	return err
}

// SetTags replaces the path's bindings for source with tags.
func (s *Store) SetTags(ctx context.Context, path string, tags []noir.Tag, source string) error {
	if err := s.ClearTags(ctx, path, source); err != nil {
		return err
	}
	return s.AddTags(ctx, path, tags, source)
}

// Tags returns the distinct tag names ordered by length.
func (s *Store) Tags(ctx context.Context) ([]string, error) {
	return s.stringList(ctx, "SELECT DISTINCT tag FROM tags ORDER BY length(tag), tag")
}

// TagsByPath returns the tags bound to the exact path.
func (s *Store) TagsByPath(ctx context.Context, path string) ([]string, error) {
	return s.stringList(ctx, "SELECT DISTINCT tag FROM tags WHERE path = ? ORDER BY tag", path)
}

func (s *Store) stringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// --- Local aliases ---

// UpsertAlias inserts or replaces a catalog-local alias.
func (s *Store) UpsertAlias(ctx context.Context, name, expression string, recursive bool) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE aliases SET expression = ?2, recursive = ?3 WHERE name = ?1",
		name, expression, recursive); err != nil {
		return fmt.Errorf("updating alias: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO aliases (name, expression, recursive) VALUES (?1, ?2, ?3)",
		name, expression, recursive); err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

// DeleteAlias removes a catalog-local alias.
func (s *Store) DeleteAlias(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM aliases WHERE name = ?", name)
	return err
}

// Aliases returns the catalog-local alias map.
func (s *Store) Aliases(ctx context.Context) (map[string]alias.Alias, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, expression, recursive FROM aliases")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]alias.Alias{}
	for rows.Next() {
		var name string
		var a alias.Alias
		if err := rows.Scan(&name, &a.Expression, &a.Recursive); err != nil {
			return nil, err
		}
		result[name] = a
	}
	return result, rows.Err()
}

// --- Search history ---

// HistoryEntry is one remembered search expression.
type HistoryEntry struct {
	Expression string `json:"expression"`
	Uses       int64  `json:"uses"`
}

// AddSearchHistory records expression: present rows get uses+1 and a
// fresh modified instant; absent rows start at uses=1.
func (s *Store) AddSearchHistory(ctx context.Context, expression string) error {
	expression = strings.TrimSpace(expression)
	now := FormatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		"UPDATE search_history SET uses = uses + 1, modified = ?2 WHERE expression = ?1",
		expression, now)
	if err != nil {
		return fmt.Errorf("updating history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO search_history (expression, uses, modified) VALUES (?, 1, ?)",
			expression, now); err != nil {
			return fmt.Errorf("inserting history: %w", err)
		}
	}
	return nil
}

// SearchHistory returns past expressions, most recently used first.
func (s *Store) SearchHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT expression, uses FROM search_history ORDER BY modified DESC, rowid DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Expression, &e.Uses); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- Download queue ---

// QueuedJob is one persisted download job.
type QueuedJob struct {
	ID  int64
	URL string
	Job string
}

// EnqueueDownload persists a job and returns its identifier.
func (s *Store) EnqueueDownload(ctx context.Context, url, job string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO download_queue (url, job) VALUES (?, ?)", url, job)
	if err != nil {
		return 0, fmt.Errorf("enqueueing download: %w", err)
	}
	return res.LastInsertId()
}

// DeleteDownload removes a job after successful ingestion.
func (s *Store) DeleteDownload(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM download_queue WHERE id = ?", id)
	return err
}

// PendingDownloads returns the persisted queue in enqueue order. Failed
// jobs remain visible here for operator inspection.
func (s *Store) PendingDownloads(ctx context.Context) ([]QueuedJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, url, job FROM download_queue ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueuedJob
	for rows.Next() {
		var j QueuedJob
		if err := rows.Scan(&j.ID, &j.URL, &j.Job); err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// --- Near-duplicate search ---

// SimilarImage pairs a catalog row with its Hamming distance from the
// probe hash.
type SimilarImage struct {
	Meta     *imagemeta.Meta `json:"meta"`
	Distance int64           `json:"distance"`
}

// Similar returns the k images nearest to dhash in Hamming distance,
// via the vec_dhash index.
func (s *Store) Similar(ctx context.Context, dhash string, k int) ([]SimilarImage, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+`, v.distance
		FROM (
			SELECT image_rowid, distance FROM vec_dhash
			WHERE dhash MATCH vec_bit(?) AND k = ?
		) v
		JOIN images i ON i.rowid = v.image_rowid
		ORDER BY v.distance`,
		hashVector(dhash), k)
	if err != nil {
		return nil, fmt.Errorf("querying dhash index: %w", err)
	}
	defer rows.Close()

	var result []SimilarImage
	for rows.Next() {
		var (
			meta           imagemeta.Meta
			dh, cr, mo, ac sql.NullString
			distance       float64
		)
		if err := rows.Scan(
			&meta.Path, &meta.Width, &meta.Height,
			&meta.RatioWidth, &meta.RatioHeight,
			&meta.Format, &meta.Animation, &meta.Size,
			&dh, &cr, &mo, &ac, &distance); err != nil {
			return nil, err
		}
		fillNullables(&meta, dh, cr, mo, ac)
		result = append(result, SimilarImage{Meta: &meta, Distance: int64(distance)})
	}
	return result, rows.Err()
}

// --- Row plumbing ---

func scanMeta(scan func(dest ...any) error) (*imagemeta.Meta, error) {
	var (
		meta           imagemeta.Meta
		dh, cr, mo, ac sql.NullString
	)
	err := scan(
		&meta.Path, &meta.Width, &meta.Height,
		&meta.RatioWidth, &meta.RatioHeight,
		&meta.Format, &meta.Animation, &meta.Size,
		&dh, &cr, &mo, &ac)
	if err != nil {
		return nil, err
	}
	fillNullables(&meta, dh, cr, mo, ac)
	return &meta, nil
}

func fillNullables(meta *imagemeta.Meta, dh, cr, mo, ac sql.NullString) {
	if dh.Valid {
		v := dh.String
		meta.Dhash = &v
	}
	meta.Created = parseTime(cr)
	meta.Modified = parseTime(mo)
	meta.Accessed = parseTime(ac)
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return FormatTime(*v)
}


// likePrefix escapes LIKE metacharacters in a literal path prefix.
func likePrefix(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}
