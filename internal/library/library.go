// Package library scans a music directory into the Track/LibraryTrack pairs
// that seed the shuffler, the search engine, and the local catalogue (§3's
// "library track record" domain-stack addition). Grounded on
// arung-agamani-denpa-radio's internal/playlist/track.go: tag-or-filename
// metadata resolution via dhowden/tag and a content checksum per file.
package library

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/lanwave/radio/internal/audio"
	"github.com/lanwave/radio/pkg/types"
)

var supportedExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true, ".aac": true,
}

// Entry pairs the in-memory Track with its durable catalogue row; ScanDir
// returns both since every caller needs the former and the storage layer
// needs the latter.
type Entry struct {
	Track   types.Track
	Library types.LibraryTrack
}

// ScanDir walks root recursively and builds an Entry for every supported
// audio file found. A file whose checksum cannot be computed is logged and
// skipped; a tag-read failure falls back to the filename for the title and
// a duration-probe failure records a duration of 0. A single bad file never
// aborts the walk.
func ScanDir(root string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		entry, scanErr := scanFile(path)
		if scanErr != nil {
			log.Printf("[LIBRARY] skipping %q: %v", path, scanErr)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func scanFile(path string) (Entry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	checksum, err := checksumFile(absPath)
	if err != nil {
		return Entry{}, err
	}

	artist, title := readTags(absPath)
	if title == "" {
		base := filepath.Base(absPath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	duration, err := audio.ProbeDuration(absPath)
	if err != nil {
		// Metadata is still useful even if the decoder can't probe length;
		// the engine's own Load will retry and fall back to zero itself.
		duration = 0
	}

	track := types.Track{Path: absPath, Artist: artist, Title: title, Duration: duration}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(absPath)), ".")
	now := time.Now()
	libTrack := types.LibraryTrack{
		Path:        absPath,
		Artist:      artist,
		Title:       title,
		Duration:    duration,
		Format:      format,
		Checksum:    checksum,
		FirstSeenAt: now,
	}

	return Entry{Track: track, Library: libTrack}, nil
}

func readTags(path string) (artist, title string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return m.Artist(), m.Title()
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
