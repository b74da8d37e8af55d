package audio

import (
	"sync"
	"sync/atomic"

	"github.com/lanwave/radio/internal/dsp"
	"github.com/lanwave/radio/internal/ringbuffer"
)

// ringConsumer is the beep.Streamer driven by the speaker's device
// callback (§4.3 "Callback contract"). It does not block on the hot path:
// Popleft never blocks, returning nil immediately when the ring is
// momentarily empty. It does allocate there: each Stream call makes a fresh
// scratch slice, and each Popleft returns a newly allocated copy of its chunk.
type ringConsumer struct {
	ring     *ringbuffer.Buffer
	channels int

	mu         sync.Mutex
	eq         *dsp.EQ
	echo       *dsp.Echo
	gamingMode bool
	volume     float64
	paused     bool
	playing    bool

	positionFrames int64
	underruns      uint64

	pending []float32 // leftover samples from a chunk larger than one Stream() call
}

func newRingConsumer(ring *ringbuffer.Buffer, channels int, eq *dsp.EQ, echo *dsp.Echo) *ringConsumer {
	return &ringConsumer{
		ring:     ring,
		channels: channels,
		eq:       eq,
		echo:     echo,
		volume:   1,
	}
}

func (c *ringConsumer) Stream(samples [][2]float64) (n int, ok bool) {
	c.mu.Lock()
	paused := c.paused
	playing := c.playing
	gaming := c.gamingMode
	vol := c.volume
	c.mu.Unlock()

	if paused || !playing {
		zeroFill(samples)
		return len(samples), true
	}

	want := len(samples) * c.channels
	buf := make([]float32, 0, want)
	buf = append(buf, c.pending...)
	c.pending = nil

	for len(buf) < want {
		chunk := c.ring.Popleft()
		if chunk == nil {
			atomic.AddUint64(&c.underruns, 1)
			break
		}
		if !gaming {
			chunk = c.eq.Process(chunk)
			chunk = c.echo.Process(chunk)
		}
		buf = append(buf, chunk...)
	}

	if len(buf) > want {
		c.pending = append(c.pending, buf[want:]...)
		buf = buf[:want]
	}

	frames := len(buf) / c.channels
	for i := 0; i < frames; i++ {
		l := float64(buf[i*c.channels]) * vol
		r := l
		if c.channels >= 2 {
			r = float64(buf[i*c.channels+1]) * vol
		}
		samples[i] = [2]float64{l, r}
	}
	for i := frames; i < len(samples); i++ {
		samples[i] = [2]float64{0, 0}
	}

	atomic.AddInt64(&c.positionFrames, int64(frames))
	return len(samples), true
}

func zeroFill(samples [][2]float64) {
	for i := range samples {
		samples[i] = [2]float64{0, 0}
	}
}

func (c *ringConsumer) Err() error { return nil }

func (c *ringConsumer) setPlaying(v bool) {
	c.mu.Lock()
	c.playing = v
	c.mu.Unlock()
}

func (c *ringConsumer) setPaused(v bool) {
	c.mu.Lock()
	c.paused = v
	c.mu.Unlock()
}

func (c *ringConsumer) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *ringConsumer) setGamingMode(v bool) {
	c.mu.Lock()
	c.gamingMode = v
	c.mu.Unlock()
}

func (c *ringConsumer) setVolume(v float64) {
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
}

func (c *ringConsumer) resetPosition(frames int64) {
	atomic.StoreInt64(&c.positionFrames, frames)
	c.pending = nil
}

func (c *ringConsumer) Position() int64 {
	return atomic.LoadInt64(&c.positionFrames)
}

func (c *ringConsumer) Underruns() uint64 {
	return atomic.LoadUint64(&c.underruns)
}
