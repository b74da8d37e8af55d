// Package recommend implements the recommender/shared-state counters (C10):
// append-only song-play and search-word tallies, flushed to disk on a
// dirty-flag-gated interval. Ported from
// original_source/playerRecommend.py's PlayerRecommender, with the
// periodic-save goroutine grounded on the teacher's
// internal/services/play_sync_service.go PlaySyncService.Start ticker
// idiom.
package recommend

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// stopWords mirrors PlayerRecommender.STOP_WORDS exactly.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "with": {}, "about": {}, "to": {},
	"from": {}, "by": {}, "of": {}, "is": {}, "it": {}, "was": {}, "were": {},
}

var wordPattern = regexp.MustCompile(`\w+`)

// persisted is the on-disk shape of .player_recommend_data.json (§6).
type persisted struct {
	SongPlays        map[string]map[string]int `json:"song_plays"`
	SearchWordCounts map[string]int            `json:"search_word_counts"`
}

// TrackKey identifies a song within the play-count tally.
type TrackKey struct {
	Artist string
	Title  string
}

// Recommender tallies listening and search activity in memory, persisting
// on a timer only when something has actually changed.
type Recommender struct {
	path         string
	saveInterval time.Duration

	mu               sync.Mutex
	songPlays        map[string]map[string]int
	searchWordCounts map[string]int
	dirty            bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New loads path (if it exists) and starts the periodic background saver.
// A missing or corrupt file starts the recommender with empty counters,
// matching the original's _load's own tolerance for a missing/unparsable
// file.
func New(path string, saveInterval time.Duration) *Recommender {
	if saveInterval <= 0 {
		saveInterval = 60 * time.Second
	}

	r := &Recommender{
		path:             path,
		saveInterval:     saveInterval,
		songPlays:        map[string]map[string]int{},
		searchWordCounts: map[string]int{},
		stopCh:           make(chan struct{}),
	}
	r.load()
	r.startSaveLoop()
	return r
}

func (r *Recommender) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[RECOMMEND] could not read %s: %v", r.path, err)
		}
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[RECOMMEND] could not parse %s: %v", r.path, err)
		return
	}
	if p.SongPlays != nil {
		r.songPlays = p.SongPlays
	}
	if p.SearchWordCounts != nil {
		r.searchWordCounts = p.SearchWordCounts
	}
}

func (r *Recommender) startSaveLoop() {
	ticker := time.NewTicker(r.saveInterval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.save()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// save atomically persists the current counters if anything has changed
// since the last save (mirroring _save's dirty-flag short-circuit and
// temp-file-plus-rename write).
func (r *Recommender) save() {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	p := persisted{SongPlays: r.songPlays, SearchWordCounts: r.searchWordCounts}
	r.dirty = false
	r.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Printf("[RECOMMEND] marshal: %v", err)
		return
	}

	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		log.Printf("[RECOMMEND] mkdir: %v", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Printf("[RECOMMEND] write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		log.Printf("[RECOMMEND] rename %s: %v", tmp, err)
	}
}

// Close stops the periodic saver and performs one final, unconditional
// flush (§4.10 "final flush on shutdown").
func (r *Recommender) Close() error {
	close(r.stopCh)
	r.wg.Wait()
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
	r.save()
	return nil
}

// LogSongPlay records one listen. Entries with an empty or "unknown"
// artist are ignored, matching the original's explicit "Unknown" filter.
func (r *Recommender) LogSongPlay(artist, title string) {
	if artist == "" || title == "" {
		return
	}
	artistNorm := strings.ToLower(strings.TrimSpace(artist))
	titleNorm := strings.ToLower(strings.TrimSpace(title))
	if strings.Contains(artistNorm, "unknown") {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	songs := r.songPlays[artistNorm]
	if songs == nil {
		songs = map[string]int{}
		r.songPlays[artistNorm] = songs
	}
	songs[titleNorm]++
	r.dirty = true
}

// LogSearch tokenizes query on word boundaries, drops stop words, and
// tallies the remainder.
func (r *Recommender) LogSearch(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	queryNorm := strings.ToLower(query)
	if strings.Contains(queryNorm, "unknown") {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, word := range wordPattern.FindAllString(queryNorm, -1) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		r.searchWordCounts[word]++
		r.dirty = true
	}
}

// TopArtists returns up to n artists by total plays, descending, ties
// broken alphabetically for determinism (the original relies on Counter's
// insertion-order tie-break, which Go's map iteration cannot reproduce).
func (r *Recommender) TopArtists(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	type entry struct {
		artist string
		plays  int
	}
	entries := make([]entry, 0, len(r.songPlays))
	for artist, songs := range r.songPlays {
		total := 0
		for _, plays := range songs {
			total += plays
		}
		entries = append(entries, entry{artist, total})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].plays != entries[j].plays {
			return entries[i].plays > entries[j].plays
		}
		return entries[i].artist < entries[j].artist
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.artist
	}
	return out
}

// TopSongs returns up to n (artist, title) keys by total plays, descending.
func (r *Recommender) TopSongs(n int) []TrackKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	type entry struct {
		key   TrackKey
		plays int
	}
	entries := make([]entry, 0)
	for artist, songs := range r.songPlays {
		for title, plays := range songs {
			entries = append(entries, entry{TrackKey{Artist: artist, Title: title}, plays})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].plays != entries[j].plays {
			return entries[i].plays > entries[j].plays
		}
		if entries[i].key.Artist != entries[j].key.Artist {
			return entries[i].key.Artist < entries[j].key.Artist
		}
		return entries[i].key.Title < entries[j].key.Title
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	out := make([]TrackKey, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

// SuggestTerms returns up to n of the most frequently searched words that
// do not appear in currentQuery, most frequent first.
func (r *Recommender) SuggestTerms(currentQuery string, n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	exclude := map[string]struct{}{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(strings.TrimSpace(currentQuery)), -1) {
		exclude[w] = struct{}{}
	}

	type entry struct {
		word  string
		count int
	}
	entries := make([]entry, 0, len(r.searchWordCounts))
	for word, count := range r.searchWordCounts {
		entries = append(entries, entry{word, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].word < entries[j].word
	})

	out := make([]string, 0, n)
	for _, e := range entries {
		if _, excluded := exclude[e.word]; excluded {
			continue
		}
		out = append(out, e.word)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}
