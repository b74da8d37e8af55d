package audio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/internal/dsp"
	"github.com/lanwave/radio/internal/ringbuffer"
	"github.com/lanwave/radio/pkg/types"
)

// State is a position in the engine's playback state machine (§4.3):
// Idle -> Loading -> Buffering -> Playing <-> Paused -> Stopping -> Idle.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateBuffering
	StatePlaying
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

var (
	speakerOnce  sync.Once
	speakerErr   error
	speakerRate  beep.SampleRate
)

// Engine owns the current decode session and the ring-buffered
// producer/consumer pipeline described in §4.1-4.3. One Engine drives one
// speaker output; there is exactly one per process.
type Engine struct {
	cfg *config.Config

	mu       sync.Mutex // guards everything below; see lockedX split for reentrancy
	state    State
	movement int32 // atomic bool: a seek/stop transition is in progress

	track    types.Track
	decoder  beep.StreamSeekCloser
	format   beep.Format
	ring     *ringbuffer.Buffer
	eq       *dsp.EQ
	echo     *dsp.Echo
	consumer *ringConsumer
	feeder   *feeder

	volume float64

	positionCallback types.PositionCallback
	finishedCallback types.FinishedCallback

	stopTicker chan struct{}
}

// NewEngine initializes the process-wide speaker output and builds an
// Engine ready to Load/Play. cfg.Audio.SampleRate/Channels fix the output
// format for the lifetime of the process (beep speaker.Init is one-shot).
func NewEngine(cfg *config.Config) (*Engine, error) {
	rate := beep.SampleRate(cfg.Audio.SampleRate)
	speakerOnce.Do(func() {
		bufSize := rate.N(200 * time.Millisecond)
		speakerErr = speaker.Init(rate, bufSize)
		speakerRate = rate
	})
	if speakerErr != nil {
		return nil, fmt.Errorf("speaker init: %w", speakerErr)
	}
	if speakerRate != rate {
		log.Printf("[AUDIO] warning: engine sample rate %d differs from initialized speaker rate %d", rate, speakerRate)
	}

	maxChunks := int(cfg.Audio.BufferSeconds*float64(cfg.Audio.SampleRate)/float64(cfg.Audio.ChunkSize)) + 1
	if maxChunks < 2 {
		maxChunks = 2
	}

	e := &Engine{
		cfg:    cfg,
		ring:   ringbuffer.New(maxChunks, cfg.Audio.ChunkSize, cfg.Audio.Channels),
		eq:     dsp.NewEQ(cfg.Audio.SampleRate, cfg.Audio.Channels),
		echo:   dsp.NewEcho(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.EchoDelayMS, cfg.Audio.EchoFeedback, cfg.Audio.EchoWet),
		volume: cfg.Audio.DefaultVolume,
	}
	e.consumer = newRingConsumer(e.ring, cfg.Audio.Channels, e.eq, e.echo)
	e.consumer.setGamingMode(cfg.Audio.GamingMode)
	e.consumer.setVolume(e.volume)

	speaker.Play(e.consumer)

	return e, nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State reports the engine's current state-machine position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GetMovement reports whether a seek/stop transition is in progress (§4.3).
func (e *Engine) GetMovement() bool {
	return atomic.LoadInt32(&e.movement) != 0
}

func (e *Engine) beginMovement() { atomic.StoreInt32(&e.movement, 1) }
func (e *Engine) endMovement()   { atomic.StoreInt32(&e.movement, 0) }

// Load probes path and prepares a decode session without starting
// playback. On decode failure it logs and falls back to a zero-duration
// silent session (§4.3 load() failure semantics), returning the error for
// the caller's visibility without failing the state transition.
func (e *Engine) Load(path string) (types.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockedLoad(path)
}

func (e *Engine) lockedLoad(path string) (types.Track, error) {
	e.setStateLocked(StateLoading)

	if e.decoder != nil {
		_ = e.decoder.Close()
		e.decoder = nil
	}
	if e.feeder != nil {
		e.feeder.Stop()
		e.feeder = nil
	}
	e.ring.Clear()

	decoder, format, err := decodeFile(path)
	var track types.Track
	if err != nil {
		log.Printf("[AUDIO] load %q failed, falling back to silence: %v", path, err)
		track = types.Track{Path: path, Duration: 0}
		e.decoder = nil
		e.format = beep.Format{SampleRate: beep.SampleRate(e.cfg.Audio.SampleRate), NumChannels: e.cfg.Audio.Channels}
		e.setStateLocked(StateIdle)
		return track, err
	}

	dur := format.SampleRate.D(decoder.Len())
	track = types.Track{Path: path, Duration: dur}

	e.decoder = decoder
	e.format = format
	e.track = track
	e.setStateLocked(StateIdle)
	return track, nil
}

func (e *Engine) setStateLocked(s State) { e.state = s }

// Play starts or resumes playback of the currently loaded track (or path,
// if given) from startPos. Returns whether playback actually started.
func (e *Engine) Play(path string, startPos time.Duration) bool {
	e.beginMovement()
	defer e.endMovement()

	e.mu.Lock()
	if path != "" && path != e.track.Path {
		if _, err := e.lockedLoad(path); err != nil && e.decoder == nil {
			e.mu.Unlock()
			return false
		}
	}
	if e.decoder == nil {
		e.mu.Unlock()
		return false
	}
	decoder := e.decoder
	format := e.format
	e.mu.Unlock()

	return e.startSession(decoder, format, startPos, 0)
}

// RadioPlay is the radio client's entry point for joining a stream already
// in flight (§4.3): it time-corrects startPos by how long ago bufferTime
// was captured, and returns the monotonic time playback actually began so
// the caller can align lyric timing against it.
func (e *Engine) RadioPlay(path string, startPos time.Duration, bufferTime time.Time) (time.Time, bool) {
	corrected := startPos
	if !bufferTime.IsZero() {
		corrected += time.Since(bufferTime)
	}

	e.beginMovement()
	defer e.endMovement()

	e.mu.Lock()
	if _, err := e.lockedLoad(path); err != nil && e.decoder == nil {
		e.mu.Unlock()
		return time.Time{}, false
	}
	decoder := e.decoder
	format := e.format
	e.mu.Unlock()

	ok := e.startSession(decoder, format, corrected, e.cfg.Audio.MinBufferRatio)
	return time.Now(), ok
}

// startSession builds the resample+feeder pipeline for decoder/format,
// seeks to startPos, waits for minBufferRatio fill (Buffering state) and
// transitions to Playing.
func (e *Engine) startSession(decoder beep.StreamSeekCloser, format beep.Format, startPos time.Duration, minBufferRatio float64) bool {
	e.mu.Lock()
	e.setStateLocked(StateBuffering)

	if startPos > 0 {
		targetSample := format.SampleRate.N(startPos)
		if targetSample < 0 {
			targetSample = 0
		}
		if l := decoder.Len(); l > 0 && targetSample >= l {
			targetSample = l - 1
		}
		_ = decoder.Seek(targetSample)
	}

	var source beep.Streamer = decoder
	outRate := beep.SampleRate(e.cfg.Audio.SampleRate)
	if format.SampleRate != outRate {
		source = beep.Resample(4, format.SampleRate, outRate, decoder)
	}

	if e.feeder != nil {
		e.feeder.Stop()
	}
	e.ring.Clear()
	e.consumer.resetPosition(int64(startPos.Seconds() * float64(e.cfg.Audio.SampleRate)))

	finished := make(chan struct{})
	e.feeder = newFeeder(source, e.ring, e.cfg.Audio.Channels, e.cfg.Audio.ChunkSize, func() {
		close(finished)
	})
	go e.feeder.run()
	e.mu.Unlock()

	if minBufferRatio > 0 {
		deadline := time.Now().Add(5 * time.Second)
		for e.ring.FillRatio() < minBufferRatio && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	e.consumer.setPaused(false)
	e.consumer.setPlaying(true)
	e.setState(StatePlaying)

	e.startProgressTicker()
	go e.watchFinish(finished)

	return true
}

func (e *Engine) watchFinish(finished chan struct{}) {
	<-finished
	e.mu.Lock()
	stillCurrent := e.state == StatePlaying
	e.mu.Unlock()
	if !stillCurrent {
		return
	}
	e.consumer.setPlaying(false)
	e.setState(StateIdle)
	e.stopProgressTicker()
	e.mu.Lock()
	cb := e.finishedCallback
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Pause suspends playback, preserving position.
func (e *Engine) Pause() {
	e.consumer.setPaused(true)
	e.setState(StatePaused)
}

// Unpause resumes a paused session.
func (e *Engine) Unpause() {
	e.consumer.setPaused(false)
	e.setState(StatePlaying)
}

// Stop tears down the current session and returns the engine to Idle.
func (e *Engine) Stop() {
	e.beginMovement()
	defer e.endMovement()

	e.setState(StateStopping)
	e.stopProgressTicker()
	e.consumer.setPlaying(false)

	e.mu.Lock()
	if e.feeder != nil {
		e.feeder.Stop()
		e.feeder = nil
	}
	if e.decoder != nil {
		_ = e.decoder.Close()
		e.decoder = nil
	}
	e.ring.Clear()
	e.track = types.Track{}
	e.mu.Unlock()

	e.setState(StateIdle)
}

// SetPos seeks the active session to the given absolute position.
func (e *Engine) SetPos(pos time.Duration) error {
	e.beginMovement()
	defer e.endMovement()

	e.mu.Lock()
	decoder := e.decoder
	format := e.format
	e.mu.Unlock()
	if decoder == nil {
		return fmt.Errorf("no active session")
	}

	wasPaused := e.consumer.isPaused()
	e.startSession(decoder, format, pos, 0)
	if wasPaused {
		e.Pause()
	}
	return nil
}

// SetVolume clamps v to [0,1] and applies it immediately.
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
	e.consumer.setVolume(v)
}

// GetVolume returns the last volume set via SetVolume.
func (e *Engine) GetVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// GetPos returns elapsed playback position, derived from frames consumed.
func (e *Engine) GetPos() time.Duration {
	frames := e.consumer.Position()
	return time.Duration(float64(frames) / float64(e.cfg.Audio.SampleRate) * float64(time.Second))
}

// GetDuration returns the loaded track's known duration (0 if unknown).
func (e *Engine) GetDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.track.Duration
}

// GetBusy reports whether a session is actively playing (not idle/stopped).
func (e *Engine) GetBusy() bool {
	s := e.State()
	return s == StatePlaying || s == StatePaused || s == StateBuffering
}

// Underruns returns the count of callback cycles that found the ring empty.
func (e *Engine) Underruns() uint64 { return e.consumer.Underruns() }

// SetGain forwards to the engine's EQ (types.EQController).
func (e *Engine) SetGain(freqHz, gainDB float64) error { return e.eq.SetGain(freqHz, gainDB) }

// GetGains forwards to the engine's EQ.
func (e *Engine) GetGains() map[float64]float64 { return e.eq.GetGains() }

// SetGamingMode toggles the DSP bypass described in §4.2.
func (e *Engine) SetGamingMode(v bool) { e.consumer.setGamingMode(v) }

// SetEchoParams forwards to the engine's echo stage.
func (e *Engine) SetEchoParams(delayMS, feedback, wet float64) { e.echo.SetParams(delayMS, feedback, wet) }

// OnPosition registers the periodic position callback (§4.5 "update the
// UI once per ~100 ms").
func (e *Engine) OnPosition(cb types.PositionCallback) {
	e.mu.Lock()
	e.positionCallback = cb
	e.mu.Unlock()
}

// OnFinished registers the end-of-track callback.
func (e *Engine) OnFinished(cb types.FinishedCallback) {
	e.mu.Lock()
	e.finishedCallback = cb
	e.mu.Unlock()
}

func (e *Engine) startProgressTicker() {
	e.mu.Lock()
	if e.stopTicker != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.stopTicker = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.mu.Lock()
				cb := e.positionCallback
				e.mu.Unlock()
				if cb != nil {
					cb(e.GetPos())
				}
			}
		}
	}()
}

func (e *Engine) stopProgressTicker() {
	e.mu.Lock()
	stop := e.stopTicker
	e.stopTicker = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Close releases the engine's session; the process-wide speaker itself is
// never torn down (beep has no re-init path).
func (e *Engine) Close(ctx context.Context) error {
	e.Stop()
	return nil
}
