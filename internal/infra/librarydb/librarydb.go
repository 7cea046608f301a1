// Package librarydb persists indexed tracks in a SQLite database.
package librarydb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/mediad/internal/domain/track"
)

const (
	appName    = "mediad"
	dbFileName = "library.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	artist      TEXT NOT NULL DEFAULT '',
	album       TEXT NOT NULL DEFAULT '',
	genre       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	source      TEXT NOT NULL,
	art_url     TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL,
	indexed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_position ON tracks(position);
`

// DB is a track library database.
type DB struct {
	db *sql.DB
}

// DefaultPath returns the default database path under the XDG data directory.
func DefaultPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve library database path")
	}
	return path, nil
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create library directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open library database")
	}
	// A single connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// ReplaceTracks replaces the whole library with tracks, keeping their order.
func (d *DB) ReplaceTracks(ctx context.Context, tracks []track.Track) error {
	now := time.Now().Unix()
	return withTx(ctx, d.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks`); err != nil {
			return errors.Wrap(err, "failed to clear tracks")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO tracks
				(id, title, artist, album, genre, duration_ms, source, art_url, position, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare insert")
		}
		defer stmt.Close()

		for i, t := range tracks {
			if _, err := stmt.ExecContext(ctx,
				t.ID, t.Title, t.Artist, t.Album, t.Genre,
				t.Duration.Milliseconds(), t.Source, t.ArtURL, i, now,
			); err != nil {
				return errors.Wrapf(err, "failed to insert track %s", t.ID)
			}
		}
		return nil
	})
}

// Tracks returns all tracks in insertion order.
func (d *DB) Tracks(ctx context.Context) ([]track.Track, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title, artist, album, genre, duration_ms, source, art_url
		FROM tracks ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracks")
	}
	defer rows.Close()

	var tracks []track.Track
	for rows.Next() {
		var t track.Track
		var durationMs int64
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.Genre, &durationMs, &t.Source, &t.ArtURL); err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		t.Playable = true
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tracks")
	}
	return tracks, nil
}

// Count returns the number of tracks.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count tracks")
	}
	return n, nil
}

// withTx executes fn within a transaction.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}
