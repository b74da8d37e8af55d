// Package audio implements the playback engine (§4.3): a ring-buffered
// producer/consumer pipeline feeding a beep speaker, with the ten-band EQ
// and echo (internal/dsp) applied per chunk unless gaming mode is set.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// transcodedExts lists extensions with no native beep decoder; these route
// through ffmpeg (internal/audio/transcode.go) into a seekable raw-PCM file.
var transcodedExts = map[string]bool{
	".m4a": true,
	".aac": true,
}

// decodeFile opens path and returns a seekable decoder plus its format.
// Unsupported or corrupt files fall back to silence per §4.3's load()
// failure semantics; the caller logs and falls back to the configured
// sample rate and channel count.
func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if transcodedExts[ext] {
		return newTranscodedDecoder(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	switch ext {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg":
		return vorbis.Decode(f)
	default:
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported codec %q", ext)
	}
}

// ProbeDuration opens path just long enough to read its decoded frame count,
// for library-scan bookkeeping (internal/library) that needs a Track's
// duration without starting playback.
func ProbeDuration(path string) (time.Duration, error) {
	decoder, format, err := decodeFile(path)
	if err != nil {
		return 0, err
	}
	defer decoder.Close()
	return format.SampleRate.D(decoder.Len()), nil
}
