package playlist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBootstrapURLsSkipsBlankAndCommentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Playlists.txt")
	content := "# a comment\nhttp://example.com/a.mp3\n\nhttp://example.com/b.mp3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	urls := LoadBootstrapURLs(path)
	if len(urls) != 2 || urls[0] != "http://example.com/a.mp3" || urls[1] != "http://example.com/b.mp3" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestLoadBootstrapURLsCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Playlists.txt")

	urls := LoadBootstrapURLs(path)
	if urls != nil {
		t.Fatalf("expected no urls for a missing file, got %v", urls)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created, got: %v", err)
	}
}
