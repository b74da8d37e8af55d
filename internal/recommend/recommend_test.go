package recommend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRecommender(t *testing.T) (*Recommender, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recommend.json")
	r := New(path, time.Hour)
	t.Cleanup(func() { r.Close() })
	return r, path
}

func TestLogSongPlayIncrementsNestedCounter(t *testing.T) {
	r, _ := newTestRecommender(t)
	r.LogSongPlay("Daft Punk", "One More Time")
	r.LogSongPlay("Daft Punk", "One More Time")
	r.LogSongPlay("Daft Punk", "Harder Better Faster Stronger")

	top := r.TopSongs(10)
	if len(top) != 2 {
		t.Fatalf("expected 2 distinct songs, got %d: %+v", len(top), top)
	}
	if top[0].Artist != "daft punk" || top[0].Title != "one more time" {
		t.Fatalf("expected most-played song first, got %+v", top[0])
	}
}

func TestLogSongPlaySkipsUnknownArtist(t *testing.T) {
	r, _ := newTestRecommender(t)
	r.LogSongPlay("Unknown", "Some Track")
	r.LogSongPlay("", "Some Other Track")

	if len(r.TopSongs(10)) != 0 {
		t.Fatalf("expected unknown/empty artist plays to be ignored")
	}
}

func TestLogSearchStripsStopWordsAndTokenizes(t *testing.T) {
	r, _ := newTestRecommender(t)
	r.LogSearch("the best of daft punk")
	r.LogSearch("best daft punk songs")

	suggestions := r.SuggestTerms("", 10)
	found := map[string]bool{}
	for _, w := range suggestions {
		found[w] = true
	}
	for _, stop := range []string{"the", "of"} {
		if found[stop] {
			t.Fatalf("expected stop word %q to be excluded, got %v", stop, suggestions)
		}
	}
	if !found["best"] || !found["daft"] || !found["punk"] {
		t.Fatalf("expected content words present, got %v", suggestions)
	}
}

func TestSuggestTermsExcludesWordsFromCurrentQuery(t *testing.T) {
	r, _ := newTestRecommender(t)
	r.LogSearch("daft punk")
	r.LogSearch("daft punk")
	r.LogSearch("justice")

	suggestions := r.SuggestTerms("daft punk", 10)
	for _, w := range suggestions {
		if w == "daft" || w == "punk" {
			t.Fatalf("expected current-query words excluded, got %v", suggestions)
		}
	}
	if len(suggestions) != 1 || suggestions[0] != "justice" {
		t.Fatalf("expected only justice to remain, got %v", suggestions)
	}
}

func TestTopArtistsOrdersByTotalPlaysDescending(t *testing.T) {
	r, _ := newTestRecommender(t)
	r.LogSongPlay("Artist A", "Song 1")
	r.LogSongPlay("Artist B", "Song 1")
	r.LogSongPlay("Artist B", "Song 2")
	r.LogSongPlay("Artist B", "Song 2")

	top := r.TopArtists(10)
	if len(top) != 2 || top[0] != "artist b" {
		t.Fatalf("expected artist b first with 3 plays, got %v", top)
	}
}

func TestCloseFlushesToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommend.json")
	r := New(path, time.Hour)
	r.LogSongPlay("Artist A", "Song 1")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to exist after Close, got: %v", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal persisted file: %v", err)
	}
	if p.SongPlays["artist a"]["song 1"] != 1 {
		t.Fatalf("expected persisted play count, got %+v", p.SongPlays)
	}
}

func TestNewReloadsExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommend.json")
	r1 := New(path, time.Hour)
	r1.LogSongPlay("Artist A", "Song 1")
	if err := r1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2 := New(path, time.Hour)
	defer r2.Close()
	top := r2.TopSongs(10)
	if len(top) != 1 || top[0].Artist != "artist a" {
		t.Fatalf("expected reloaded data, got %+v", top)
	}
}

func TestNewToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	r := New(path, time.Hour)
	defer r.Close()
	if len(r.TopArtists(10)) != 0 {
		t.Fatalf("expected empty recommender for a missing file")
	}
}
