// Package storage is the durable local-library catalogue (§3's "Library
// track record" addition): one row per Track ever loaded, with play counts
// and a checksum for de-duplication. It does not replace the spec's literal
// flat-JSON state files (.musicapp_state.json, .lyricCache.json,
// .player_recommend_data.json) — those remain plain atomic-write JSON.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/pkg/types"
)

// Database wraps the library catalogue's single sqlite connection.
type Database struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	debug  bool
}

// NewDatabase opens (creating if necessary) the library catalogue at
// cfg.Storage.LibraryDBPath and runs pending migrations.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dbDir := filepath.Dir(cfg.Storage.LibraryDBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := openDatabase(cfg.Storage.LibraryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Database{db: db, debug: cfg.Debug}

	if err := store.runMigrations(); err != nil {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("[DB] close after migration error: %v", closeErr)
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

func openDatabase(dbPath string) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Printf("[DB] creating new library catalogue at %s", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=memory",
		"PRAGMA cache_size=-64000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				log.Printf("[DB] close after pragma error: %v", closeErr)
			}
			return nil, fmt.Errorf("execute pragma %s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("[DB] close after ping error: %v", closeErr)
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func (d *Database) debugLog(operation string, err error, duration time.Duration) {
	if !d.debug || err == nil {
		return
	}
	log.Printf("[DB] %s failed in %v: %v", operation, duration, err)
}

func (d *Database) checkClosed() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("database is closed")
	}
	return nil
}

// UpsertTrack records t in the catalogue, preserving first_seen_at and
// play_count if the row already exists (checksum/duration/tags refreshed).
func (d *Database) UpsertTrack(ctx context.Context, t types.LibraryTrack) error {
	start := time.Now()
	if err := d.checkClosed(); err != nil {
		return err
	}

	query := `
		INSERT INTO tracks (path, artist, title, duration_ms, format, checksum, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE((SELECT first_seen_at FROM tracks WHERE path = ?), CURRENT_TIMESTAMP))
		ON CONFLICT(path) DO UPDATE SET
			artist = excluded.artist,
			title = excluded.title,
			duration_ms = excluded.duration_ms,
			format = excluded.format,
			checksum = excluded.checksum
	`
	_, err := d.db.ExecContext(ctx, query,
		t.Path, t.Artist, t.Title, t.Duration.Milliseconds(), t.Format, t.Checksum, t.Path,
	)
	d.debugLog("UpsertTrack", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

// RecordPlay increments play_count and sets last_played_at for path.
func (d *Database) RecordPlay(ctx context.Context, path string) error {
	start := time.Now()
	if err := d.checkClosed(); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`UPDATE tracks SET play_count = play_count + 1, last_played_at = ? WHERE path = ?`,
		time.Now(), path,
	)
	d.debugLog("RecordPlay", err, time.Since(start))
	return err
}

// AllTracks returns every catalogued track, used to seed the shuffler and
// search index at startup.
func (d *Database) AllTracks(ctx context.Context) ([]types.LibraryTrack, error) {
	start := time.Now()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT path, artist, title, duration_ms, format, checksum, first_seen_at, last_played_at, play_count
		FROM tracks ORDER BY path
	`)
	if err != nil {
		d.debugLog("AllTracks", err, time.Since(start))
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Printf("[DB] close rows: %v", closeErr)
		}
	}()

	var out []types.LibraryTrack
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			d.debugLog("AllTracks", err, time.Since(start))
			return nil, fmt.Errorf("scan track: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrack(scanner interface{ Scan(dest ...interface{}) error }) (types.LibraryTrack, error) {
	var t types.LibraryTrack
	var durationMS int64
	var lastPlayed sql.NullTime

	err := scanner.Scan(&t.Path, &t.Artist, &t.Title, &durationMS, &t.Format, &t.Checksum,
		&t.FirstSeenAt, &lastPlayed, &t.PlayCount)
	if err != nil {
		return t, err
	}
	t.Duration = time.Duration(durationMS) * time.Millisecond
	if lastPlayed.Valid {
		t.LastPlayedAt = lastPlayed.Time
	}
	return t, nil
}

// Close releases the underlying sqlite connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.db != nil {
		if _, err := d.db.Exec("PRAGMA optimize"); err != nil {
			log.Printf("[DB] optimize on close: %v", err)
		}
		return d.db.Close()
	}
	return nil
}
