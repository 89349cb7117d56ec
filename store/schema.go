package store

// schemaSQL is the catalog DDL. Everything is IF NOT EXISTS so open is
// idempotent. vec_dhash mirrors images rows that carry a dhash; bit[64]
// vectors use hamming distance, which is exactly dist() on the hex form.
const schemaSQL = `
-- Image catalog keyed by canonical path
CREATE TABLE IF NOT EXISTS images (
    path TEXT PRIMARY KEY,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    ratio_w INTEGER NOT NULL,
    ratio_h INTEGER NOT NULL,
    format TEXT NOT NULL,
    animation BOOLEAN NOT NULL,
    file_size INTEGER NOT NULL,
    dhash TEXT,
    created TEXT,
    modified TEXT,
    accessed TEXT
);

-- Tag bindings with provenance
CREATE TABLE IF NOT EXISTS tags (
    path TEXT NOT NULL REFERENCES images(path) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'unknown',
    PRIMARY KEY (path, tag, source)
);
CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

-- Catalog-local aliases (override the global YAML table on expansion)
CREATE TABLE IF NOT EXISTS aliases (
    name TEXT PRIMARY KEY,
    expression TEXT NOT NULL,
    recursive BOOLEAN NOT NULL
);

-- Search history, unique by normalised expression
CREATE TABLE IF NOT EXISTS search_history (
    expression TEXT PRIMARY KEY,
    uses INTEGER NOT NULL DEFAULT 1,
    modified TEXT NOT NULL
);

-- Persisted download jobs; rows survive until successful ingestion
CREATE TABLE IF NOT EXISTS download_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    job TEXT NOT NULL
);

-- Near-duplicate index over dhash via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_dhash USING vec0(
    image_rowid INTEGER PRIMARY KEY,
    dhash bit[64]
);
`

// resetSQL drops the image data; Reset then re-runs schemaSQL to recreate it.
const resetSQL = `
DROP TABLE IF EXISTS tags;
DROP TABLE IF EXISTS images;
DROP TABLE IF EXISTS vec_dhash;
`
