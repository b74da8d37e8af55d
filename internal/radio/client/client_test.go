package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/pkg/types"
)

type fakeRadioEngine struct {
	pauseCalls   int
	unpauseCalls int
	stopCalls    int
	busy         bool

	volume float64
	gains  map[float64]float64

	playedPaths []string
	playedPos   []time.Duration
}

func newFakeRadioEngine() *fakeRadioEngine {
	return &fakeRadioEngine{volume: 1, gains: map[float64]float64{31: 0, 125: 0}}
}

func (f *fakeRadioEngine) RadioPlay(path string, startPos time.Duration, bufferedAt time.Time) (time.Time, bool) {
	f.playedPaths = append(f.playedPaths, path)
	f.playedPos = append(f.playedPos, startPos)
	f.busy = true
	return time.Now(), true
}

func (f *fakeRadioEngine) Pause()          { f.pauseCalls++ }
func (f *fakeRadioEngine) Unpause()        { f.unpauseCalls++ }
func (f *fakeRadioEngine) Stop()           { f.stopCalls++; f.busy = false }
func (f *fakeRadioEngine) GetBusy() bool   { return f.busy }
func (f *fakeRadioEngine) SetVolume(v float64) { f.volume = v }
func (f *fakeRadioEngine) GetVolume() float64  { return f.volume }

func (f *fakeRadioEngine) SetGain(freqHz, gainDB float64) error {
	f.gains[freqHz] = gainDB
	return nil
}

func (f *fakeRadioEngine) GetGains() map[float64]float64 {
	out := make(map[float64]float64, len(f.gains))
	for k, v := range f.gains {
		out[k] = v
	}
	return out
}

func newTestClient(t *testing.T, engine *fakeRadioEngine) *Client {
	cfg := &config.Config{}
	cfg.Radio.ClientPollMS = 500
	cfg.Radio.DriftToleranceSec = 0.1
	return New(engine, cfg, t.TempDir())
}

func TestParseStatusSplitsArtistAndTitle(t *testing.T) {
	body := "<title>Artist![]!Title</title><paused>True</paused><repeat>False</repeat>" +
		"<eq>31:-1,125:2</eq><volume>0.8</volume><location>12.3</location><duration>180</duration>" +
		"<url>http://1.2.3.4:8080/song</url><buffered_at>1000.5</buffered_at>"

	st := parseStatus(body)
	if st.Artist != "Artist" || st.Title != "Title" {
		t.Fatalf("expected artist/title split, got %q/%q", st.Artist, st.Title)
	}
	if !st.Paused || st.Repeat {
		t.Fatalf("unexpected paused/repeat: %+v", st)
	}
	if st.EQBands[31] != -1 || st.EQBands[125] != 2 {
		t.Fatalf("unexpected eq bands: %+v", st.EQBands)
	}
	if st.Volume != 0.8 || st.PositionS != 12.3 || st.DurationS != 180 {
		t.Fatalf("unexpected numeric fields: %+v", st)
	}
	if st.BufferedAt != 1000.5 {
		t.Fatalf("unexpected buffered_at: %v", st.BufferedAt)
	}
}

func TestApplyHostEQFiltersExcludedAndOutOfRangeBands(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)

	eq := map[float64]float64{
		125:   3,    // valid
		16000: 5,    // excluded sentinel band
		31:    20,   // out of gain range
		10:    1,    // out of frequency range
	}
	c.applyHostEQ(eq, 0.5)

	if engine.gains[125] != 3 {
		t.Fatalf("expected valid band applied, got %+v", engine.gains)
	}
	if _, ok := eq[16000]; !ok {
		t.Fatal("test setup error")
	}
	if engine.gains[16000] == 5 {
		t.Fatal("expected 16000Hz band to never be applied")
	}
	if engine.volume != 0.5 {
		t.Fatalf("expected volume applied, got %v", engine.volume)
	}
	if !c.eqStored {
		t.Fatal("expected original EQ snapshot to be stored on first application")
	}
}

func TestApplyHostEQSkipsDuringSongStartGrace(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)
	c.songStartedAt = c.sync.SyncedNow()

	c.applyHostEQ(map[float64]float64{125: 3}, 0.5)

	if engine.gains[125] == 3 {
		t.Fatal("expected EQ update to be skipped during the post-song-start grace period")
	}
}

func TestApplyHostEQSkipsDuringDownloadGrace(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)
	c.downloadStartedAt = c.sync.SyncedNow()

	c.applyHostEQ(map[float64]float64{125: 3}, 0.5)

	if engine.gains[125] == 3 {
		t.Fatal("expected EQ update to be skipped during the post-download-start grace period")
	}
}

func TestRestoreLocalEQOnStop(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)
	engine.gains[125] = -4
	engine.volume = 0.9

	c.applyHostEQ(map[float64]float64{125: 6}, 0.3)
	if engine.gains[125] != 6 {
		t.Fatalf("expected host gain applied, got %v", engine.gains[125])
	}

	c.mu.Lock()
	c.running = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()
	c.Stop()

	if engine.gains[125] != -4 {
		t.Fatalf("expected original gain restored, got %v", engine.gains[125])
	}
	if engine.volume != 0.9 {
		t.Fatalf("expected original volume restored, got %v", engine.volume)
	}
}

func TestMirrorPauseTogglesEngineOnTransitionOnly(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)

	c.mirrorPause(true)
	c.mirrorPause(true) // repeated paused=true must not double-call Pause
	if engine.pauseCalls != 1 {
		t.Fatalf("expected exactly one Pause call, got %d", engine.pauseCalls)
	}

	c.mirrorPause(false)
	if engine.unpauseCalls != 1 {
		t.Fatalf("expected exactly one Unpause call, got %d", engine.unpauseCalls)
	}
}

func TestCheckDriftResyncsOnMajorDrift(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)

	c.songSyncStart = c.sync.SyncedNow().Add(-5 * time.Second)
	c.songStartServerPos = 0

	c.checkDrift(dummyStatus(100, 180))

	if engine.stopCalls == 0 {
		t.Fatal("expected a major drift to trigger a resync (Stop+RadioPlay)")
	}
	if len(engine.playedPaths) == 0 {
		t.Fatal("expected resync to re-invoke RadioPlay")
	}
}

func TestCheckDriftIgnoresSmallDrift(t *testing.T) {
	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)

	c.songSyncStart = c.sync.SyncedNow().Add(-5 * time.Second)
	c.songStartServerPos = 0

	c.checkDrift(dummyStatus(5.02, 180))

	if engine.stopCalls != 0 {
		t.Fatal("expected small drift within tolerance not to trigger a resync")
	}
}

func TestDownloadAndPlayAbortsForSupersededSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fake mp3 bytes")
	}))
	defer srv.Close()

	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)
	c.downloadSeq = 5

	ctx := context.Background()
	c.downloadAndPlay(ctx, 1 /* stale seq */, srv.URL, 10, c.sync.SyncedNow())

	if len(engine.playedPaths) != 0 {
		t.Fatal("expected a superseded download to never reach RadioPlay")
	}
}

func TestDownloadAndPlaySucceedsForCurrentSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fake mp3 bytes")
	}))
	defer srv.Close()

	engine := newFakeRadioEngine()
	c := newTestClient(t, engine)
	c.downloadSeq = 1

	ctx := context.Background()
	c.downloadAndPlay(ctx, 1, srv.URL, 10, c.sync.SyncedNow())

	if len(engine.playedPaths) != 1 {
		t.Fatalf("expected exactly one RadioPlay call, got %d", len(engine.playedPaths))
	}
	if _, err := os.Stat(filepath.Join(c.cacheDir, ".cache.mp3")); err != nil {
		t.Fatalf("expected downloaded file to exist: %v", err)
	}
}

func dummyStatus(positionS, durationS float64) types.PeerStatus {
	return types.PeerStatus{PositionS: positionS, DurationS: durationS}
}
