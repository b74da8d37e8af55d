// Package orchestrator owns track lifecycle, navigation history, and
// persisted state for the audio engine (§4.5), tying together the smart
// shuffler (C4), the lyric pipeline (C6), and the search engine behind the
// transport-agnostic PlayerControl/StatusSource/ActionSink/SearchProvider
// interfaces (pkg/types/interfaces.go). Grounded on the teacher's
// internal/services/music_service.go's service-struct shape and
// original_source/music.py's core_player_loop navigation semantics.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanwave/radio/internal/lyrics"
	"github.com/lanwave/radio/internal/search"
	"github.com/lanwave/radio/internal/shuffler"
	"github.com/lanwave/radio/internal/storage"
	"github.com/lanwave/radio/pkg/types"
)

const volumeStep = 0.05

// repeatSettleDelay is how long repeat stays suppressed after a navigation
// completes, so a finished-callback racing the old session's teardown
// can't immediately re-trigger a repeat-replay (§4.5 "restored after a
// short settle").
const repeatSettleDelay = 250 * time.Millisecond

// playbackEngine is the subset of *internal/audio.Engine the orchestrator
// drives. Accepting the interface rather than the concrete type lets tests
// exercise navigation/persistence logic without a real speaker device.
type playbackEngine interface {
	Load(path string) (types.Track, error)
	Play(path string, startPos time.Duration) bool
	Pause()
	Unpause()
	SetVolume(v float64)
	GetVolume() float64
	GetGains() map[float64]float64
	OnFinished(cb types.FinishedCallback)
	OnPosition(cb types.PositionCallback)
}

// Orchestrator is the process's single playback authority: one Track is
// ever "current", navigated via a history/forward-stack zipper around
// HistoryIndex (pkg/types.PlaybackState), guarded against re-entrant
// navigation by the movement flag (§4.5, §9).
type Orchestrator struct {
	mu    sync.Mutex
	state types.PlaybackState

	engine  playbackEngine
	shuf    *shuffler.Shuffler
	lyr     *lyrics.Pipeline
	srch    *search.Engine
	db      *storage.Database
	persist *statePersister

	movement         int32 // atomic bool, guards re-entrant navigation
	repeatSuppressed int32 // atomic bool, see repeatSettleDelay
	nextSongID       uint64

	currentLyrics []types.LyricLine
	lyricsMu      sync.Mutex

	bufferedAt time.Time

	errorCallback  func(error)
	trackStartedCb func(types.Track)
	searchLoggedCb func(query string)
}

// New builds an Orchestrator around an already-initialized audio engine,
// shuffler, lyric pipeline, search engine, and storage handle, persisting
// playback state to statePath (see §6's .musicapp_state.json).
func New(engine playbackEngine, shuf *shuffler.Shuffler, lyr *lyrics.Pipeline, srch *search.Engine, db *storage.Database, statePath string) *Orchestrator {
	o := &Orchestrator{
		engine:  engine,
		shuf:    shuf,
		lyr:     lyr,
		srch:    srch,
		db:      db,
		persist: newStatePersister(statePath),
		state:   types.PlaybackState{Volume: 1},
	}
	engine.OnFinished(o.onFinished)
	engine.OnPosition(o.onPosition)
	return o
}

// OnError registers the callback that receives unrecoverable, user-facing
// errors (§AMBIENT STACK "error handling").
func (o *Orchestrator) OnError(cb func(error)) {
	o.mu.Lock()
	o.errorCallback = cb
	o.mu.Unlock()
}

// OnTrackStarted registers a callback invoked every time a new track
// begins playing, after the engine has been told to play it. Used by the
// recommender (C10) to tally listens without the orchestrator depending on
// it directly.
func (o *Orchestrator) OnTrackStarted(cb func(types.Track)) {
	o.mu.Lock()
	o.trackStartedCb = cb
	o.mu.Unlock()
}

// OnSearchLogged registers a callback invoked with every non-empty search
// query (types.SearchProvider), used by the recommender to tally search
// terms without the orchestrator depending on it directly.
func (o *Orchestrator) OnSearchLogged(cb func(query string)) {
	o.mu.Lock()
	o.searchLoggedCb = cb
	o.mu.Unlock()
}

func (o *Orchestrator) reportError(err error) {
	log.Printf("[ORCHESTRATOR] %v", err)
	o.mu.Lock()
	cb := o.errorCallback
	o.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Resume loads the persisted state file (if any) and force-queues its
// track at the saved elapsed position, starting paused iff the saved
// state was paused (§4.5 "Persisted state").
func (o *Orchestrator) Resume() {
	saved, ok := o.persist.load()
	if !ok {
		return
	}

	o.mu.Lock()
	track, err := o.engine.Load(saved.Path)
	if err != nil {
		o.mu.Unlock()
		log.Printf("[ORCHESTRATOR] resume: could not load %q: %v", saved.Path, err)
		return
	}
	o.state.Current = &track
	o.state.Paused = saved.Paused
	o.state.Repeat = saved.Repeat
	o.state.History = []string{track.Path}
	o.state.HistoryIndex = 0
	o.state.SongID = o.newSongID()
	o.bufferedAt = time.Now()
	o.mu.Unlock()

	o.engine.Play(track.Path, time.Duration(saved.Elapsed*float64(time.Second)))
	if saved.Paused {
		o.engine.Pause()
	}
	o.kickOffLyrics(track)
}

// PlayPath loads and plays path directly, appending it to navigation
// history and clearing the forward stack (an explicit user pick, not a
// shuffle/skip advance).
func (o *Orchestrator) PlayPath(path string) error {
	track, err := o.engine.Load(path)
	if err != nil {
		return fmt.Errorf("play %q: %w", path, err)
	}

	o.mu.Lock()
	o.state.Current = &track
	o.state.History = append(o.state.History, path)
	o.state.HistoryIndex = len(o.state.History) - 1
	o.state.ForwardStack = nil
	o.state.Paused = false
	o.state.SongID = o.newSongID()
	o.bufferedAt = time.Now()
	o.mu.Unlock()

	if ok := o.engine.Play(path, 0); !ok {
		return fmt.Errorf("play %q: engine refused to start", path)
	}
	o.kickOffLyrics(track)
	o.persist.saveAlways(o.snapshotPersisted())
	return nil
}

// Pause suspends playback and saves state immediately (§4.5 "always on
// pause").
func (o *Orchestrator) Pause() {
	o.engine.Pause()
	o.mu.Lock()
	o.state.Paused = true
	o.mu.Unlock()
	o.persist.saveAlways(o.snapshotPersisted())
}

// Unpause resumes playback.
func (o *Orchestrator) Unpause() {
	o.engine.Unpause()
	o.mu.Lock()
	o.state.Paused = false
	o.mu.Unlock()
}

// VolumeUp raises volume by volumeStep, clamped to 1.
func (o *Orchestrator) VolumeUp() { o.stepVolume(volumeStep) }

// VolumeDown lowers volume by volumeStep, clamped to 0.
func (o *Orchestrator) VolumeDown() { o.stepVolume(-volumeStep) }

func (o *Orchestrator) stepVolume(delta float64) {
	v := o.engine.GetVolume() + delta
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.engine.SetVolume(v)
	o.mu.Lock()
	o.state.Volume = v
	o.mu.Unlock()
}

// ToggleRepeat flips the repeat flag.
func (o *Orchestrator) ToggleRepeat() {
	o.mu.Lock()
	o.state.Repeat = !o.state.Repeat
	o.mu.Unlock()
}

// SkipNext advances to the next track (§4.5 "On skip-next").
func (o *Orchestrator) SkipNext() {
	if !o.beginMovement() {
		return
	}
	defer o.endMovementSettled()
	o.advance(true)
}

// SkipPrevious moves back one track in history, or replays the current
// track if already at the oldest entry (§4.5 "On skip-prev").
func (o *Orchestrator) SkipPrevious() {
	if !o.beginMovement() {
		return
	}
	defer o.endMovementSettled()

	o.mu.Lock()
	if o.state.HistoryIndex <= 0 {
		path := o.currentPathLocked()
		o.mu.Unlock()
		if path != "" {
			o.startTrack(path, 0)
		}
		return
	}
	current := o.state.History[o.state.HistoryIndex]
	o.state.ForwardStack = append(o.state.ForwardStack, current)
	o.state.HistoryIndex--
	prev := o.state.History[o.state.HistoryIndex]
	o.mu.Unlock()

	o.startTrack(prev, 0)
}

// advance implements both the skip-next path and the natural-end-of-track
// path; skip distinguishes only in that natural end-of-track never pulls
// from forwardStack (navigating forward after the track you're already
// past makes no sense for an unprompted advance).
func (o *Orchestrator) advance(fromForwardStack bool) {
	o.mu.Lock()
	if fromForwardStack && len(o.state.ForwardStack) > 0 {
		idx := len(o.state.ForwardStack) - 1
		path := o.state.ForwardStack[idx]
		o.state.ForwardStack = o.state.ForwardStack[:idx]
		o.state.HistoryIndex++
		o.mu.Unlock()
		o.startTrack(path, 0)
		return
	}
	o.state.ForwardStack = nil
	o.mu.Unlock()

	track, ok := o.shuf.GetUniqueSong()
	if !ok {
		o.reportError(fmt.Errorf("orchestrator: no tracks available to advance to"))
		return
	}

	o.mu.Lock()
	o.state.History = append(o.state.History, track.Path)
	o.state.HistoryIndex = len(o.state.History) - 1
	o.mu.Unlock()

	o.startTrack(track.Path, 0)
}

// startTrack loads and plays path, updating Current/SongID and kicking
// off lyrics.
func (o *Orchestrator) startTrack(path string, startPos time.Duration) {
	track, err := o.engine.Load(path)
	if err != nil {
		o.reportError(fmt.Errorf("orchestrator: load %q: %w", path, err))
	}

	o.mu.Lock()
	o.state.Current = &track
	o.state.Paused = false
	o.state.SongID = o.newSongID()
	o.bufferedAt = time.Now()
	o.mu.Unlock()

	o.engine.Play(path, startPos)
	if o.db != nil {
		go func() {
			if err := o.db.RecordPlay(context.Background(), path); err != nil {
				log.Printf("[ORCHESTRATOR] record play for %q: %v", path, err)
			}
		}()
	}
	o.kickOffLyrics(track)

	o.mu.Lock()
	trackStartedCb := o.trackStartedCb
	o.mu.Unlock()
	if trackStartedCb != nil {
		trackStartedCb(track)
	}
}

func (o *Orchestrator) currentPathLocked() string {
	if o.state.Current == nil {
		return ""
	}
	return o.state.Current.Path
}

func (o *Orchestrator) newSongID() uint64 {
	return atomic.AddUint64(&o.nextSongID, 1)
}

// EnqueueReplay forces path to play next regardless of shuffle order.
func (o *Orchestrator) EnqueueReplay(path, artist, title string, duration time.Duration) {
	o.shuf.EnqueueReplay(types.Track{Path: path, Artist: artist, Title: title, Duration: duration})
	o.mu.Lock()
	o.state.ReplayQueue = append(o.state.ReplayQueue, path)
	o.mu.Unlock()
}

func (o *Orchestrator) onFinished() {
	if atomic.LoadInt32(&o.repeatSuppressed) != 0 {
		return
	}

	o.mu.Lock()
	repeat := o.state.Repeat
	path := o.currentPathLocked()
	o.mu.Unlock()

	if repeat && path != "" {
		o.startTrack(path, 0)
		return
	}
	o.advance(false)
}

func (o *Orchestrator) onPosition(pos time.Duration) {
	o.mu.Lock()
	o.state.Elapsed = pos
	playing := !o.state.Paused
	o.mu.Unlock()

	if playing {
		o.persist.saveThrottled(o.snapshotPersisted())
	}
}

// beginMovement returns false (no-op) if a navigation is already in
// flight, implementing §4.5's re-entrant-navigation guard.
func (o *Orchestrator) beginMovement() bool {
	return atomic.CompareAndSwapInt32(&o.movement, 0, 1)
}

func (o *Orchestrator) endMovementSettled() {
	atomic.StoreInt32(&o.repeatSuppressed, 1)
	time.AfterFunc(repeatSettleDelay, func() {
		atomic.StoreInt32(&o.repeatSuppressed, 0)
	})
	atomic.StoreInt32(&o.movement, 0)
}

// Close flushes the lyric cache and persists final state.
func (o *Orchestrator) Close() error {
	o.persist.saveAlways(o.snapshotPersisted())
	if o.lyr != nil {
		return o.lyr.Close()
	}
	return nil
}
