// Package shuffler implements the smart shuffle queue (§4.4): a randomized
// upcoming list with best-effort artist spacing, a history window used to
// avoid near-term repeats, and a replay queue for forced immediate plays.
// Grounded on original_source/music.py's SmartShuffler.
package shuffler

import (
	"math/rand"
	"sync"

	"github.com/lanwave/radio/pkg/types"
)

// Shuffler serves tracks from a fixed cache in randomized, artist-spaced
// order. Safe for concurrent use.
type Shuffler struct {
	mu            sync.Mutex
	cache         []types.Track
	historySize   int
	artistSpacing int

	history     []string // ordered oldest-first, truncated to historySize
	upcoming    []types.Track
	replayQueue []types.Track

	rng *rand.Rand
}

// New builds a Shuffler over cache with the given history window and
// artist-spacing constraint.
func New(cache []types.Track, historySize, artistSpacing int) *Shuffler {
	return newWithRand(cache, historySize, artistSpacing, rand.New(rand.NewSource(rand.Int63())))
}

func newWithRand(cache []types.Track, historySize, artistSpacing int, rng *rand.Rand) *Shuffler {
	return &Shuffler{
		cache:         append([]types.Track(nil), cache...),
		historySize:   historySize,
		artistSpacing: artistSpacing,
		rng:           rng,
	}
}

// SetCache replaces the track cache the shuffler draws from (e.g. after a
// library rescan). Upcoming/history/replay state is left untouched.
func (s *Shuffler) SetCache(cache []types.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append([]types.Track(nil), cache...)
}

// refillUpcoming takes a random permutation of the cache and swaps
// same-artist tracks found within artistSpacing of each other against the
// nearest later track of a different artist (best-effort: no swap target
// may exist near the end of the list).
func (s *Shuffler) refillUpcoming() {
	songs := append([]types.Track(nil), s.cache...)
	s.rng.Shuffle(len(songs), func(i, j int) { songs[i], songs[j] = songs[j], songs[i] })

	for i := range songs {
		for j := 1; j <= s.artistSpacing; j++ {
			if i+j >= len(songs) {
				continue
			}
			if songs[i].Artist != songs[i+j].Artist {
				continue
			}
			for k := i + s.artistSpacing + 1; k < len(songs); k++ {
				if songs[k].Artist != songs[i].Artist {
					songs[i+j], songs[k] = songs[k], songs[i+j]
					break
				}
			}
		}
	}
	s.upcoming = songs
}

// EnqueueReplay inserts track at the front of the replay queue, bypassing
// shuffle and spacing rules entirely.
func (s *Shuffler) EnqueueReplay(track types.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replayQueue = append([]types.Track{track}, s.replayQueue...)
}

// GetUniqueSong serves the replay queue first, then drains upcoming,
// skipping any track already in the recent-history window. It refills
// upcoming once exhausted, and falls back to a random cache pick if the
// entire cache is currently within the history window.
func (s *Shuffler) GetUniqueSong() (types.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replayQueue) > 0 {
		t := s.replayQueue[0]
		s.replayQueue = s.replayQueue[1:]
		return t, true
	}

	if len(s.upcoming) == 0 {
		s.refillUpcoming()
	}

	// Bounded by len(upcoming): every track is visited at most once per
	// pass, so a fully-saturated history can't spin forever.
	for attempts := len(s.upcoming); attempts > 0 && len(s.upcoming) > 0; attempts-- {
		t := s.upcoming[0]
		s.upcoming = s.upcoming[1:]
		if s.inHistory(t.Path) {
			s.upcoming = append(s.upcoming, t)
			continue
		}
		s.pushHistory(t.Path)
		return t, true
	}

	if len(s.cache) == 0 {
		return types.Track{}, false
	}
	t := s.cache[s.rng.Intn(len(s.cache))]
	s.pushHistory(t.Path)
	return t, true
}

// ReplayQueueLen reports how many tracks are currently queued for forced
// replay, letting a caller mirror the queue for display/persistence without
// reaching into Shuffler's internal state.
func (s *Shuffler) ReplayQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replayQueue)
}

func (s *Shuffler) inHistory(path string) bool {
	for _, h := range s.history {
		if h == path {
			return true
		}
	}
	return false
}

func (s *Shuffler) pushHistory(path string) {
	s.history = append(s.history, path)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}
