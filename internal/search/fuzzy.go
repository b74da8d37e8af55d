// Package search implements the orchestrator's Search operation (§4.5): a
// tiered literal scorer (title/combined/artist/path/fuzzy) over the
// in-memory track set, with lithammer/fuzzysearch backing the fuzzy tier's
// character-set overlap.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/lanwave/radio/pkg/types"
)

const (
	scoreTitle    = 100
	scoreCombined = 75
	scoreArtist   = 50
	scorePath     = 25
	scoreFuzzy    = 10

	fuzzyOverlapThreshold = 0.7
	defaultLimit          = 50
)

// Engine scores a fixed track set against a query. It holds no state beyond
// the tracks themselves and is safe to rebuild cheaply whenever the
// library catalogue changes.
type Engine struct {
	tracks []types.Track
}

// NewEngine builds a search Engine over tracks.
func NewEngine(tracks []types.Track) *Engine {
	return &Engine{tracks: tracks}
}

// Search returns up to limit matches for query, scored and stable-sorted
// by descending score. limit <= 0 uses the spec's default of 50. An empty
// (after trim) query returns no results.
func (e *Engine) Search(query string, limit int) []types.SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	results := make([]types.SearchResult, 0, len(e.tracks))
	for _, t := range e.tracks {
		score, ok := scoreTrack(t, q)
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{Title: t.Title, Path: t.Path, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreTrack(t types.Track, q string) (int, bool) {
	title := strings.ToLower(t.Title)
	artist := strings.ToLower(t.Artist)
	combined := artist + " " + title
	path := strings.ToLower(t.Path)

	switch {
	case strings.Contains(title, q):
		return scoreTitle, true
	case strings.Contains(combined, q):
		return scoreCombined, true
	case strings.Contains(artist, q):
		return scoreArtist, true
	case strings.Contains(path, q):
		return scorePath, true
	case characterSetOverlap(q, combined) >= fuzzyOverlapThreshold:
		return scoreFuzzy, true
	}
	return 0, false
}

// characterSetOverlap is |set(a) ∩ set(b)| / |set(a) ∪ set(b)| over runes,
// used as the fuzzy tier's similarity signal (§4.5). fuzzy.Match gates out
// strings with no plausible subsequence relationship before the more
// expensive set computation runs.
func characterSetOverlap(a, b string) float64 {
	if !fuzzy.Match(a, b) && !fuzzy.Match(b, a) {
		return 0
	}

	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	union := make(map[rune]struct{}, len(setA)+len(setB))
	for r := range setA {
		union[r] = struct{}{}
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	for r := range setB {
		union[r] = struct{}{}
	}

	return float64(intersection) / float64(len(union))
}

func runeSet(s string) map[rune]struct{} {
	out := make(map[rune]struct{}, len(s))
	for _, r := range s {
		if r == ' ' {
			continue
		}
		out[r] = struct{}{}
	}
	return out
}
