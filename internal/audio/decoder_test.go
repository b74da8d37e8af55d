package audio

import "testing"

func TestTranscodedExtsRoutesM4AAndAAC(t *testing.T) {
	for _, ext := range []string{".m4a", ".aac"} {
		if !transcodedExts[ext] {
			t.Fatalf("%s expected to route through the transcoder", ext)
		}
	}
	for _, ext := range []string{".mp3", ".wav", ".flac", ".ogg"} {
		if transcodedExts[ext] {
			t.Fatalf("%s has a native decoder, should not route through the transcoder", ext)
		}
	}
}

func TestDecodeFileUnsupportedExtension(t *testing.T) {
	if _, _, err := decodeFile("song.xyz"); err == nil {
		t.Fatalf("expected an error for an unsupported extension")
	}
}

func TestDecodeFileMissingFile(t *testing.T) {
	if _, _, err := decodeFile("/nonexistent/path/song.mp3"); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
