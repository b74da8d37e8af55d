package audio

import (
	"time"

	"github.com/gopxl/beep"

	"github.com/lanwave/radio/internal/ringbuffer"
)

// feeder pulls decoded frames from src (already resampled to the engine's
// output rate) in chunkFrames-sized groups, converts each group to an
// interleaved float32 chunk, and pushes it into ring. It backs off briefly
// when the ring is full rather than busy-spinning, per §4.1's "caller must
// back off" contract.
type feeder struct {
	src         beep.Streamer
	ring        *ringbuffer.Buffer
	channels    int
	chunkFrames int
	stop        chan struct{}
	done        chan struct{}
	onEOF       func()
}

func newFeeder(src beep.Streamer, ring *ringbuffer.Buffer, channels, chunkFrames int, onEOF func()) *feeder {
	return &feeder{
		src:         src,
		ring:        ring,
		channels:    channels,
		chunkFrames: chunkFrames,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		onEOF:       onEOF,
	}
}

func (f *feeder) run() {
	defer close(f.done)

	samples := make([][2]float64, f.chunkFrames)
	for {
		select {
		case <-f.stop:
			return
		default:
		}

		n, ok := f.src.Stream(samples)
		if n > 0 {
			chunk := make([]float32, n*f.channels)
			for i := 0; i < n; i++ {
				if f.channels >= 2 {
					chunk[i*f.channels] = float32(samples[i][0])
					chunk[i*f.channels+1] = float32(samples[i][1])
				} else {
					chunk[i] = float32((samples[i][0] + samples[i][1]) / 2)
				}
			}

			for !f.tryAppend(chunk) {
				select {
				case <-f.stop:
					return
				case <-time.After(5 * time.Millisecond):
				}
			}
		}

		if !ok {
			if f.onEOF != nil {
				f.onEOF()
			}
			return
		}
	}
}

func (f *feeder) tryAppend(chunk []float32) bool {
	select {
	case <-f.stop:
		return true // pretend success to unwind the retry loop
	default:
	}
	return f.ring.Append(chunk)
}

func (f *feeder) Stop() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	<-f.done
}
