package audio

import (
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/gopxl/beep"
)

// transcodeSampleRate is the PCM rate ffmpeg is asked to produce; the
// caller's beep.Resample stage (see engine.go) retargets it to the
// configured output rate same as any native decoder would.
const transcodeSampleRate = 44100
const transcodeChannels = 2

// newTranscodedDecoder invokes ffmpeg synchronously to render path into a
// temporary raw float32-little-endian PCM file, then wraps that file as a
// seekable beep.StreamSeekCloser. Grounded on original_source/audio.py's
// ffmpeg-subprocess transcode path for formats without a native decoder.
func newTranscodedDecoder(path string) (beep.StreamSeekCloser, beep.Format, error) {
	tmp, err := os.CreateTemp("", "lanwave-pcm-*.f32")
	if err != nil {
		return nil, beep.Format{}, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	cmd := exec.Command("ffmpeg",
		"-y", "-i", path,
		"-f", "f32le",
		"-ar", fmt.Sprintf("%d", transcodeSampleRate),
		"-ac", fmt.Sprintf("%d", transcodeChannels),
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmpPath)
		return nil, beep.Format{}, fmt.Errorf("ffmpeg transcode failed: %w: %s", err, out)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, beep.Format{}, err
	}

	format := beep.Format{
		SampleRate:  transcodeSampleRate,
		NumChannels: transcodeChannels,
		Precision:   4,
	}

	return &pcmFileStreamer{f: f, tmpPath: tmpPath, channels: transcodeChannels, size: -1}, format, nil
}

// pcmFileStreamer reads raw interleaved float32 little-endian samples from
// a seekable file, implementing beep.StreamSeekCloser directly (no mp3/wav
// framing involved — the transcode step already normalized the format).
type pcmFileStreamer struct {
	f        *os.File
	tmpPath  string
	channels int
	pos      int64 // frame index
	size     int64 // total frames, -1 until computed
}

func (s *pcmFileStreamer) frameBytes() int64 { return int64(s.channels) * 4 }

func (s *pcmFileStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	buf := make([]byte, len(samples)*int(s.frameBytes()))
	read, err := s.f.Read(buf)
	if read <= 0 {
		return 0, false
	}
	frames := read / int(s.frameBytes())
	for i := 0; i < frames; i++ {
		off := i * int(s.frameBytes())
		l := decodeF32LE(buf[off:])
		r := l
		if s.channels > 1 {
			r = decodeF32LE(buf[off+4:])
		}
		samples[i] = [2]float64{float64(l), float64(r)}
	}
	s.pos += int64(frames)
	if err != nil && frames == 0 {
		return 0, false
	}
	return frames, true
}

func decodeF32LE(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func (s *pcmFileStreamer) Err() error { return nil }

func (s *pcmFileStreamer) Len() int {
	if s.size < 0 {
		info, err := s.f.Stat()
		if err != nil {
			return 0
		}
		s.size = info.Size() / s.frameBytes()
	}
	return int(s.size)
}

func (s *pcmFileStreamer) Position() int { return int(s.pos) }

func (s *pcmFileStreamer) Seek(p int) error {
	off := int64(p) * s.frameBytes()
	if _, err := s.f.Seek(off, 0); err != nil {
		return err
	}
	s.pos = int64(p)
	return nil
}

func (s *pcmFileStreamer) Close() error {
	err := s.f.Close()
	os.Remove(s.tmpPath)
	return err
}
