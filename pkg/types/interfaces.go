package types

import "time"

// ActionKind enumerates the actions the radio host's "/action" endpoint
// accepts and the orchestrator can execute regardless of transport.
type ActionKind string

const (
	ActionPause       ActionKind = "pause"
	ActionPlay        ActionKind = "play"
	ActionSkip        ActionKind = "skip"
	ActionPrevious    ActionKind = "previous"
	ActionVolumeUp    ActionKind = "volume_up"
	ActionVolumeDown  ActionKind = "volume_down"
	ActionRepeat      ActionKind = "repeat"
	ActionPlaySearch  ActionKind = "play_search"
	ActionStatus      ActionKind = "status"
)

// Action is one request dispatched through ActionSink, e.g. from the radio
// host's /action endpoint.
type Action struct {
	Kind ActionKind
	Path string // only meaningful for ActionPlaySearch
}

// StatusSource is the capability the radio host needs from the playback
// orchestrator. Resolving the Orchestrator<->Host<->Engine cyclic
// dependency (SPEC_FULL.md §9) this way means the host never imports the
// orchestrator package directly — it depends only on this interface.
type StatusSource interface {
	Status() PeerStatus
	CurrentSongPath() (path string, ok bool)
	CurrentLyrics() string
}

// ActionSink is the capability the radio host needs to forward remote
// control requests into the orchestrator.
type ActionSink interface {
	Accept(Action) error
}

// SearchProvider is the capability the radio host's /search endpoint and
// the orchestrator's own search command both use.
type SearchProvider interface {
	Search(query string) []SearchResult
}

// SearchResult is one scored match from a search.
type SearchResult struct {
	Title string
	Path  string
	Score int
}

// PlayerControl is the set of transport-agnostic playback commands the
// orchestrator exposes to both local callers and the radio action sink.
type PlayerControl interface {
	Pause()
	Unpause()
	SkipNext()
	SkipPrevious()
	VolumeUp()
	VolumeDown()
	ToggleRepeat()
	PlayPath(path string) error
}

// EQController is the capability the radio client needs to apply and
// restore a host's equalizer settings without depending on the concrete
// DSP package.
type EQController interface {
	SetGain(freqHz, gainDB float64) error
	GetGains() map[float64]float64
	SetVolume(v float64)
	GetVolume() float64
}

// LyricCallback is invoked exactly once per request, even on timeout, with
// an empty slice if nothing was obtained. songID lets stale callbacks
// (for a track the orchestrator has since moved on from) be filtered
// without inspecting call order.
type LyricCallback func(lines []LyricLine, songID uint64)

// FinishedCallback fires when the audio engine reaches end-of-track.
type FinishedCallback func()

// PositionCallback fires roughly every 100ms with the current position.
type PositionCallback func(pos time.Duration)
