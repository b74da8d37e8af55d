// Package client implements the radio client (C8): tunes in to a peer's
// radio host, keeps a clock offset against it, downloads and time-corrects
// each track, mirrors its pause/EQ/volume, and resyncs on detected drift
// (§4.8). Grounded on original_source/radioClient.py's RadioClient/TimeSync
// classes and, for ambient concerns, the teacher's internal/api/client.go
// retryablehttp-plus-rate-limiter idiom.
package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/pkg/types"
)

const (
	eqGraceAfterSongStart = 1500 * time.Millisecond
	eqGraceAfterDownload  = 2000 * time.Millisecond
	majorDriftSeconds     = 1.0
	minFreqHz             = 20.0
	maxFreqHz             = 15999.0
	excludedFreqHz        = 16000.0
	minGainDB             = -12.0
	maxGainDB             = 12.0
)

// radioEngine is the subset of *internal/audio.Engine the radio client
// drives, mirroring the orchestrator package's playbackEngine testability
// seam (internal/orchestrator/orchestrator.go).
type radioEngine interface {
	RadioPlay(path string, startPos time.Duration, bufferedAt time.Time) (time.Time, bool)
	Pause()
	Unpause()
	Stop()
	GetBusy() bool
	SetVolume(v float64)
	GetVolume() float64
	SetGain(freqHz, gainDB float64) error
	GetGains() map[float64]float64
}

// Client is one tuned-in radio session. Exactly one peer at a time; call
// Stop before Listen-ing to a different one.
type Client struct {
	engine   radioEngine
	http     *retryablehttp.Client
	sync     *TimeSync
	cacheDir string

	pollInterval   time.Duration
	driftTolerance float64

	hostPort int

	mu      sync.Mutex
	ip      string
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	acceptHostEQ   bool
	eqStored       bool
	originalEQ     map[float64]float64
	originalVolume float64

	lastTitle          string
	paused             bool
	songSyncStart      time.Time // synced time local playback of current song began
	songStartServerPos float64
	songStartedAt      time.Time // local time RadioPlay reported playback began; gates the EQ grace period
	downloadStartedAt  time.Time
	downloadSeq        uint64
	cancelDownload     context.CancelFunc

	onError func(error)
}

type debugLogger struct{}

func (d *debugLogger) Printf(format string, args ...interface{}) {
	log.Printf("[RADIO_CLIENT_HTTP] "+format, args...)
}

// New builds a Client bound to engine for playback, using cfg's radio
// section for poll cadence and drift tolerance, and cacheDir to hold the
// downloaded ".cache.mp3" (§6).
func New(engine radioEngine, cfg *config.Config, cacheDir string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.HTTPClient.Timeout = 10 * time.Second
	httpClient.Logger = nil
	if cfg.Debug {
		httpClient.Logger = &debugLogger{}
	}

	pollInterval := time.Duration(cfg.Radio.ClientPollMS) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	drift := cfg.Radio.DriftToleranceSec
	if drift <= 0 {
		drift = 0.10
	}
	hostPort := cfg.Radio.HostPort
	if hostPort <= 0 {
		hostPort = 8080
	}

	return &Client{
		engine:         engine,
		http:           httpClient,
		sync:           newTimeSync(httpClient.StandardClient()),
		cacheDir:       cacheDir,
		pollInterval:   pollInterval,
		driftTolerance: drift,
		hostPort:       hostPort,
		acceptHostEQ:   true,
	}
}

// OnError registers a callback for unrecoverable session errors (e.g. the
// host going unreachable) — the caller typically stops listening in
// response.
func (c *Client) OnError(cb func(error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

func (c *Client) reportError(err error) {
	log.Printf("[RADIO_CLIENT] %v", err)
	c.mu.Lock()
	cb := c.onError
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// SetAcceptHostEQ toggles whether the host's EQ/volume broadcast is applied
// locally. Turning it off restores whatever was snapshotted before the
// first application (§4.8 step 7).
func (c *Client) SetAcceptHostEQ(accept bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acceptHostEQ == accept {
		return
	}
	c.acceptHostEQ = accept
	if !accept {
		c.restoreLocalEQLocked()
	}
}

// Listen begins polling ip's radio host (§4.8's main loop) in a background
// goroutine. Calling Listen while already running is a no-op; call Stop
// first to retune.
func (c *Client) Listen(ip string) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.ip = ip
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	if err := os.RemoveAll(c.tempSongPath()); err != nil && !os.IsNotExist(err) {
		log.Printf("[RADIO_CLIENT] could not clear stale temp file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.sync.SyncWithHost(ctx, c.baseURL())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.loop(ctx, stopCh)
	}()
}

// Stop ends the session, restoring any snapshotted local EQ/volume and
// removing the cached song file (§4.8 step 7).
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh := c.stopCh
	c.restoreLocalEQLocked()
	c.mu.Unlock()

	close(stopCh)
	c.wg.Wait()

	if err := os.Remove(c.tempSongPath()); err != nil && !os.IsNotExist(err) {
		log.Printf("[RADIO_CLIENT] could not remove temp song file: %v", err)
	}
}

func (c *Client) baseURL() string {
	c.mu.Lock()
	ip := c.ip
	c.mu.Unlock()
	return fmt.Sprintf("http://%s:%d", ip, c.hostPort)
}

func (c *Client) tempSongPath() string {
	return filepath.Join(c.cacheDir, ".cache.mp3")
}

func (c *Client) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Client) tick(ctx context.Context) {
	if c.sync.Stale() {
		c.sync.SyncWithHost(ctx, c.baseURL())
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.reportError(fmt.Errorf("radio client: poll %s: %w", c.ip, err))
		return
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		c.reportError(fmt.Errorf("radio client: read status body: %w", err))
		return
	}
	status := parseStatus(string(raw))

	dataReceivedAt := c.sync.SyncedNow()

	if c.acceptHostEQStateLocked() {
		c.applyHostEQ(status.EQBands, status.Volume)
	}

	c.mirrorPause(status.Paused)

	if status.Title != "" && status.Title != c.lastTitleLocked() {
		c.handleTitleChange(ctx, status, dataReceivedAt)
	} else {
		c.checkDrift(status)
	}
}

func (c *Client) acceptHostEQStateLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptHostEQ
}

func (c *Client) lastTitleLocked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTitle
}

func (c *Client) mirrorPause(hostPaused bool) {
	c.mu.Lock()
	wasPaused := c.paused
	c.mu.Unlock()

	if hostPaused && !wasPaused {
		c.engine.Pause()
		c.mu.Lock()
		c.paused = true
		c.mu.Unlock()
	} else if !hostPaused && wasPaused {
		c.engine.Unpause()
		c.mu.Lock()
		c.paused = false
		c.mu.Unlock()
	}
}

// handleTitleChange spawns an async download of the new song, cancelling
// any still-running download for the song it superseded so a late-arriving
// stale download can never clobber newer playback (§5 ordering guarantee).
func (c *Client) handleTitleChange(ctx context.Context, status types.PeerStatus, dataReceivedAt time.Time) {
	c.mu.Lock()
	if c.cancelDownload != nil {
		c.cancelDownload()
	}
	c.lastTitle = status.Title
	c.paused = false
	c.downloadStartedAt = c.sync.SyncedNow()
	c.downloadSeq++
	seq := c.downloadSeq
	dlCtx, cancel := context.WithCancel(ctx)
	c.cancelDownload = cancel
	c.mu.Unlock()

	songURL := status.SongURL
	if songURL == "" {
		songURL = c.baseURL() + "/song"
	}

	go c.downloadAndPlay(dlCtx, seq, songURL, status.PositionS, dataReceivedAt)
}

func (c *Client) downloadAndPlay(ctx context.Context, seq uint64, url string, serverPos float64, dataReceivedAt time.Time) {
	if c.engine.GetBusy() {
		c.engine.Stop()
	}

	dest := c.tempSongPath()
	if err := downloadToFile(ctx, c.http, url, dest); err != nil {
		if ctx.Err() != nil {
			return // superseded by a newer song; not a real failure
		}
		c.reportError(fmt.Errorf("radio client: download failed: %w", err))
		return
	}

	c.mu.Lock()
	if seq != c.downloadSeq {
		c.mu.Unlock()
		return // a newer song arrived while this one was downloading
	}
	c.mu.Unlock()

	elapsed := c.sync.SyncedNow().Sub(dataReceivedAt).Seconds()
	correctedPos := serverPos + elapsed

	began, ok := c.engine.RadioPlay(dest, time.Duration(correctedPos*float64(time.Second)), c.sync.SyncedNow())
	if !ok {
		c.reportError(fmt.Errorf("radio client: engine refused playback of %s", dest))
		return
	}

	c.mu.Lock()
	c.songStartedAt = began
	c.songSyncStart = c.sync.SyncedNow()
	c.songStartServerPos = correctedPos
	c.mu.Unlock()
}

// checkDrift compares the locally expected position against the host's
// reported one and, on a large enough gap, restarts playback at the host's
// position (§4.8 step 6).
func (c *Client) checkDrift(status types.PeerStatus) {
	c.mu.Lock()
	syncStart := c.songSyncStart
	startServerPos := c.songStartServerPos
	paused := c.paused
	c.mu.Unlock()

	if syncStart.IsZero() || paused {
		return
	}

	elapsed := c.sync.SyncedNow().Sub(syncStart).Seconds()
	expected := startServerPos + elapsed
	if status.DurationS > 0 {
		expected = math.Max(0, math.Min(expected, status.DurationS))
	}

	drift := math.Abs(expected - status.PositionS)
	nearEnd := status.DurationS > 0 && drift >= status.DurationS-1.0
	if drift <= c.driftTolerance || nearEnd {
		return
	}

	log.Printf("[RADIO_CLIENT] drift detected: expected=%.2f server=%.2f drift=%.2f", expected, status.PositionS, drift)
	if drift > majorDriftSeconds {
		c.resync(status.PositionS)
	}
}

func (c *Client) resync(targetPos float64) {
	c.engine.Stop()
	began, ok := c.engine.RadioPlay(c.tempSongPath(), time.Duration(targetPos*float64(time.Second)), time.Time{})
	if !ok {
		c.reportError(fmt.Errorf("radio client: resync playback failed"))
		return
	}
	c.mu.Lock()
	c.songStartedAt = began
	c.songSyncStart = c.sync.SyncedNow()
	c.songStartServerPos = targetPos
	c.mu.Unlock()
}

// applyHostEQ validates and applies the host's EQ gains and volume,
// skipping during the post-song-start and post-download-start grace
// windows (§4.8 "EQ grace periods") and excluding 16000 Hz per
// ORIGINAL_SOURCE SUPPLEMENTS (the original treats it as a sentinel band,
// never broadcasting it as a real listener-facing gain).
func (c *Client) applyHostEQ(eq map[float64]float64, volume float64) {
	if len(eq) == 0 {
		return
	}

	c.mu.Lock()
	songStartedAt := c.songStartedAt
	downloadStartedAt := c.downloadStartedAt
	c.mu.Unlock()

	now := c.sync.SyncedNow()
	if !songStartedAt.IsZero() && time.Since(songStartedAt) < eqGraceAfterSongStart {
		return
	}
	if !downloadStartedAt.IsZero() && now.Sub(downloadStartedAt) < eqGraceAfterDownload {
		return
	}

	validated := make(map[float64]float64)
	for freq, gain := range eq {
		if freq == excludedFreqHz || freq < minFreqHz || freq > maxFreqHz {
			continue
		}
		if gain < minGainDB || gain > maxGainDB {
			continue
		}
		validated[freq] = gain
	}
	if len(validated) == 0 {
		return
	}

	c.mu.Lock()
	if !c.eqStored {
		c.originalEQ = c.engine.GetGains()
		c.originalVolume = c.engine.GetVolume()
		c.eqStored = true
	}
	c.mu.Unlock()

	if volume >= 0 && volume <= 1 && c.engine.GetVolume() != volume {
		c.engine.SetVolume(volume)
	}
	for freq, gain := range validated {
		if err := c.engine.SetGain(freq, gain); err != nil {
			log.Printf("[RADIO_CLIENT] set gain %v Hz: %v", freq, err)
		}
	}
}

// restoreLocalEQLocked restores the snapshot taken before the first host-EQ
// application. Caller must hold c.mu.
func (c *Client) restoreLocalEQLocked() {
	if !c.eqStored {
		return
	}
	for freq, gain := range c.originalEQ {
		if err := c.engine.SetGain(freq, gain); err != nil {
			log.Printf("[RADIO_CLIENT] restore gain %v Hz: %v", freq, err)
		}
	}
	c.engine.SetVolume(c.originalVolume)
	c.originalEQ = nil
	c.eqStored = false
}
