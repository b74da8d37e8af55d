package storage

import "fmt"

func (d *Database) runMigrations() error {
	migrations := []string{createTables, createIndexes}
	for i, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

const createTables = `
CREATE TABLE IF NOT EXISTS tracks (
	path TEXT PRIMARY KEY,
	artist TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	format TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	first_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_played_at TIMESTAMP,
	play_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lyric_cache (
	cache_key TEXT PRIMARY KEY,
	lines_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	hash_key TEXT NOT NULL DEFAULT ''
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);
CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title);
CREATE INDEX IF NOT EXISTS idx_tracks_checksum ON tracks(checksum);
CREATE INDEX IF NOT EXISTS idx_tracks_last_played ON tracks(last_played_at);
CREATE INDEX IF NOT EXISTS idx_lyric_cache_created ON lyric_cache(created_at);
`
