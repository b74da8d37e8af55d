// Package titleclean canonicalizes raw "Artist - Title" strings into a
// consistent shape, used both by the lyric pipeline's query cleaning and
// by the radio host's title display formatting (§Glossary: Title cleaner).
package titleclean

import (
	"regexp"
	"strings"
)

var splitPattern = regexp.MustCompile(`(?: - |\(|\||\[)`)

// suffixRule is a (old, new) pair: if the raw string ends with old, old is
// stripped before cleaning and the replacement is applied (and reattached)
// afterward.
type suffixRule struct {
	old, new string
}

var defaultRules = []suffixRule{
	{"*=*", " -[Paused]-"},
	{"*+*", " -[Repeat]-"},
}

// Cleaner applies defaultRules unless constructed with WithRules.
type Cleaner struct {
	rules []suffixRule
}

// New builds a Cleaner using the default suffix/replacement rules.
func New() *Cleaner {
	return &Cleaner{rules: defaultRules}
}

// Clean canonicalizes raw into "Artist - Title" form, handling:
//   - "Artist - Track"
//   - "Track" only
//   - "Artist - Track - Artist" (symmetric ends collapse to one artist)
//   - "Context - Artist - Track" (three parts, ends differ)
//   - arbitrary extra " - " separated segments (first part is artist, rest is track)
//
// and stripping a parenthetical/bracketed suffix from the track half.
func (c *Cleaner) Clean(raw string) string {
	coreText := strings.TrimSpace(raw)

	suffixToStrip := ""
	for _, r := range c.rules {
		if strings.HasSuffix(coreText, r.old) {
			suffixToStrip = r.old
			break
		}
	}
	if suffixToStrip != "" {
		coreText = strings.TrimSpace(coreText[:len(coreText)-len(suffixToStrip)])
	}

	artist, track := splitArtistTrack(coreText)
	mainTitle := extractMainTitle(track)

	var parts []string
	if strings.TrimSpace(artist) != "" {
		parts = append(parts, strings.TrimSpace(artist))
	}
	if strings.TrimSpace(mainTitle) != "" {
		parts = append(parts, strings.TrimSpace(mainTitle))
	}
	intermediate := strings.Join(parts, " - ")

	result := intermediate + suffixToStrip
	if intermediate == "" && suffixToStrip == "" {
		result = ""
	}

	for _, r := range c.rules {
		result = strings.ReplaceAll(result, r.old, r.new)
	}
	return strings.TrimSpace(result)
}

func splitArtistTrack(coreText string) (artist, track string) {
	rawParts := strings.Split(coreText, " - ")
	parts := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) == 0:
		return "", ""
	case len(parts) == 1:
		return "", parts[0]
	case len(parts) == 2:
		return parts[0], parts[1]
	case strings.EqualFold(parts[0], parts[len(parts)-1]):
		return parts[0], strings.Join(parts[1:len(parts)-1], " - ")
	case len(parts) == 3:
		return parts[1], parts[2]
	default:
		return parts[0], strings.Join(parts[1:], " - ")
	}
}

func extractMainTitle(track string) string {
	if track == "" {
		return ""
	}
	loc := splitPattern.FindStringIndex(track)
	if loc == nil {
		return track
	}
	candidate := strings.TrimSpace(track[:loc[0]])
	if candidate == "" {
		return track
	}
	return candidate
}

// PairCache canonicalizes (artist, title) pairs with a bounded LRU-style
// cache: once over 1000 entries, the oldest half (by insertion order) is
// evicted in one pass, matching the lyric pipeline's _clean_title_for_lyrics.
type PairCache struct {
	cleaner *Cleaner
	order   []string
	entries map[string][2]string
}

const pairCacheLimit = 1000
const pairCacheEvictTo = 500

// NewPairCache builds an empty PairCache.
func NewPairCache() *PairCache {
	return &PairCache{cleaner: New(), entries: make(map[string][2]string)}
}

// Clean returns the cleaned (artist, title) pair for the given raw
// artist/title, using a cached result when available.
func (c *PairCache) Clean(artist, title string) (cleanArtist, cleanTitle string) {
	key := artist + "|" + title
	if v, ok := c.entries[key]; ok {
		return v[0], v[1]
	}

	combined := c.cleaner.Clean(artist + " - " + title)
	parts := strings.SplitN(combined, " - ", 2)
	var result [2]string
	switch {
	case len(parts) == 2 && strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != "":
		result = [2]string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])}
	case len(parts) >= 1 && strings.TrimSpace(parts[0]) != "":
		result = [2]string{"", strings.TrimSpace(parts[0])}
	default:
		result = [2]string{strings.TrimSpace(artist), strings.TrimSpace(title)}
	}

	if len(c.order) > pairCacheLimit {
		for _, k := range c.order[:pairCacheEvictTo] {
			delete(c.entries, k)
		}
		c.order = c.order[pairCacheEvictTo:]
	}
	c.entries[key] = result
	c.order = append(c.order, key)

	return result[0], result[1]
}
