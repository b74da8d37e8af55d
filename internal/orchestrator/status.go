package orchestrator

import (
	"fmt"
	"time"

	"github.com/lanwave/radio/pkg/types"
)

// kickOffLyrics requests synced lyrics for track asynchronously, tagged
// with the song ID current at call time so a late callback for a track the
// user has since skipped past is discarded rather than overwriting newer
// lyrics (§4.6's songID staleness guard).
func (o *Orchestrator) kickOffLyrics(track types.Track) {
	if o.lyr == nil {
		return
	}
	o.mu.Lock()
	songID := o.state.SongID
	o.mu.Unlock()

	o.lyricsMu.Lock()
	o.currentLyrics = nil
	o.lyricsMu.Unlock()

	o.lyr.Request(track.Artist, track.Title, songID, func(lines []types.LyricLine, forSongID uint64) {
		o.mu.Lock()
		current := o.state.SongID
		o.mu.Unlock()
		if forSongID != current {
			return
		}
		o.lyricsMu.Lock()
		o.currentLyrics = lines
		o.lyricsMu.Unlock()
	})
}

// CurrentLyrics returns the single lyric line active at the current
// playback position, or "" if there are no lyrics or none has started yet
// (types.StatusSource).
func (o *Orchestrator) CurrentLyrics() string {
	o.mu.Lock()
	pos := o.state.Elapsed
	o.mu.Unlock()

	o.lyricsMu.Lock()
	lines := o.currentLyrics
	o.lyricsMu.Unlock()

	var best string
	for _, l := range lines {
		if l.Timestamp > pos {
			break
		}
		best = l.Text
	}
	return best
}

// CurrentSongPath returns the currently loaded track's path, if any
// (types.StatusSource).
func (o *Orchestrator) CurrentSongPath() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Current == nil {
		return "", false
	}
	return o.state.Current.Path, true
}

// Status reports the orchestrator's view of playback for the radio host to
// mirror to peers (types.StatusSource).
func (o *Orchestrator) Status() types.PeerStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	var title, artist string
	if o.state.Current != nil {
		title = o.state.Current.Title
		artist = o.state.Current.Artist
	}

	var gains map[float64]float64
	if o.engine != nil {
		gains = o.engine.GetGains()
	}

	var bufferedAt float64
	if !o.bufferedAt.IsZero() {
		bufferedAt = float64(o.bufferedAt.UnixNano()) / 1e9
	}

	return types.PeerStatus{
		Title:         title,
		Artist:        artist,
		Paused:        o.state.Paused,
		Repeat:        o.state.Repeat,
		EQBands:       gains,
		Volume:        o.state.Volume,
		PositionS:     o.state.Elapsed.Seconds(),
		DurationS:     durationSeconds(o.state.Current),
		BufferedAt:    bufferedAt,
		HostMonotonic: time.Now(),
	}
}

func durationSeconds(t *types.Track) float64 {
	if t == nil {
		return 0
	}
	return t.Duration.Seconds()
}

// Search delegates to the search engine with the spec's default result
// limit (types.SearchProvider).
func (o *Orchestrator) Search(query string) []types.SearchResult {
	if query != "" {
		o.mu.Lock()
		searchLoggedCb := o.searchLoggedCb
		o.mu.Unlock()
		if searchLoggedCb != nil {
			searchLoggedCb(query)
		}
	}
	if o.srch == nil {
		return nil
	}
	return o.srch.Search(query, 0)
}

// Accept dispatches a remote-control Action (types.ActionSink), the same
// set of operations the radio host's /action endpoint and any local
// keybinding layer both drive.
func (o *Orchestrator) Accept(a types.Action) error {
	switch a.Kind {
	case types.ActionPause:
		o.Pause()
	case types.ActionPlay:
		o.Unpause()
	case types.ActionSkip:
		o.SkipNext()
	case types.ActionPrevious:
		o.SkipPrevious()
	case types.ActionVolumeUp:
		o.VolumeUp()
	case types.ActionVolumeDown:
		o.VolumeDown()
	case types.ActionRepeat:
		o.ToggleRepeat()
	case types.ActionPlaySearch:
		if a.Path == "" {
			return fmt.Errorf("orchestrator: play_search action missing path")
		}
		return o.PlayPath(a.Path)
	case types.ActionStatus:
		// No-op: status is read via Status(), not mutated by an action.
	default:
		return fmt.Errorf("orchestrator: unknown action %q", a.Kind)
	}
	return nil
}
