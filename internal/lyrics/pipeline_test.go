package lyrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/pkg/types"
)

func newTestPipeline(t *testing.T, endpoint string, workerPool int) *Pipeline {
	t.Helper()
	cfg := &config.Config{}
	cfg.Lyrics.Endpoint = endpoint
	cfg.Lyrics.CacheTTLHours = 1
	cfg.Lyrics.BatchSize = 10
	cfg.Lyrics.FlushInterval = 3600
	cfg.Lyrics.RateLimitRPS = 100
	cfg.Lyrics.WorkerPool = workerPool
	cfg.Lyrics.TimeoutSecs = 2

	path := filepath.Join(t.TempDir(), "lyrics-cache.json")
	p, err := NewPipeline(cfg, path)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func syncedLyricsHandler(synced string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(struct {
			SyncedLyrics string `json:"syncedLyrics"`
		}{SyncedLyrics: synced})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func TestPipelineRequestSyncFetchesAndCaches(t *testing.T) {
	srv := httptest.NewServer(syncedLyricsHandler("[00:01.00]hello\n[00:02.50]world"))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 2)
	lines := p.RequestSync(context.Background(), "Some Artist", "Some Title")
	if len(lines) != 2 || lines[0].Text != "hello" || lines[1].Text != "world" {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	key := makeKey("Some Artist", "Some Title")
	if _, ok := p.cache.Get(key); !ok {
		t.Fatalf("expected fetched lines to populate the cache")
	}
}

func TestPipelineRequestSyncUsesCacheWithoutRefetch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		syncedLyricsHandler("[00:00.00]cached")(w, r)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 2)
	first := p.RequestSync(context.Background(), "A", "B")
	second := p.RequestSync(context.Background(), "A", "B")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one line from both calls")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one HTTP call, got %d", calls)
	}
}

func TestPipelineRequestInvokesCallbackExactlyOnce(t *testing.T) {
	srv := httptest.NewServer(syncedLyricsHandler("[00:03.00]async"))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 2)

	var mu sync.Mutex
	calls := 0
	var got []types.LyricLine
	done := make(chan struct{})

	p.Request("Artist", "Title", 42, func(lines []types.LyricLine, songID uint64) {
		mu.Lock()
		calls++
		got = lines
		mu.Unlock()
		if songID != 42 {
			t.Errorf("expected songID 42, got %d", songID)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", calls)
	}
	if len(got) != 1 || got[0].Text != "async" {
		t.Fatalf("unexpected callback lines: %+v", got)
	}
}

func TestPipelineRequestBoundedByWorkerPool(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		syncedLyricsHandler("[00:00.00]x")(w, r)
	}))
	defer srv.Close()

	const pool = 2
	p := newTestPipeline(t, srv.URL, pool)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		title := "Title" + string(rune('A'+i))
		p.Request("Artist", title, uint64(i), func(lines []types.LyricLine, songID uint64) {
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > pool {
		t.Fatalf("worker pool exceeded: saw %d concurrent requests, pool size %d", maxInFlight, pool)
	}
}

func TestPipelineRequestSyncReturnsNilOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestPipeline(t, srv.URL, 2)
	lines := p.RequestSync(context.Background(), "Nobody", "Nothing")
	if lines != nil {
		t.Fatalf("expected nil lines for a 404, got %+v", lines)
	}
}
