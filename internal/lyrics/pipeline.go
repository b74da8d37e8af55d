package lyrics

import (
	"context"
	"time"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/pkg/types"
)

// Pipeline ties the cache and Fetcher together behind both a synchronous
// and a fire-and-callback API (§4.6).
type Pipeline struct {
	cache   *Cache
	fetcher *Fetcher
	workers chan struct{}
	timeout time.Duration
}

// NewPipeline builds a Pipeline backed by cachePath and the lyric section
// of cfg. workerPool bounds concurrent in-flight callback requests.
func NewPipeline(cfg *config.Config, cachePath string) (*Pipeline, error) {
	cache, err := NewCache(
		cachePath,
		time.Duration(cfg.Lyrics.CacheTTLHours)*time.Hour,
		cfg.Lyrics.BatchSize,
		time.Duration(cfg.Lyrics.FlushInterval)*time.Second,
	)
	if err != nil {
		return nil, err
	}

	pool := cfg.Lyrics.WorkerPool
	if pool <= 0 {
		pool = 1
	}

	return &Pipeline{
		cache:   cache,
		fetcher: NewFetcher(cfg),
		workers: make(chan struct{}, pool),
		timeout: time.Duration(cfg.Lyrics.TimeoutSecs) * time.Second,
	}, nil
}

// RequestSync resolves lyrics for (artist, title) synchronously: cache hit
// short-circuits, a miss fetches and populates the cache. Any fetch error
// (including "no lyrics") resolves to an empty slice.
func (p *Pipeline) RequestSync(ctx context.Context, artist, title string) []types.LyricLine {
	key := makeKey(artist, title)
	if lines, ok := p.cache.Get(key); ok {
		return lines
	}

	lines, err := p.fetcher.Fetch(ctx, artist, title)
	if err != nil {
		// Transient failures are not cached, so a later request can retry.
		return nil
	}
	p.cache.Add(key, lines)
	return lines
}

// Request resolves lyrics asynchronously, bounded by the pipeline's worker
// pool, and invokes cb exactly once with the result (or an empty slice on
// timeout or failure), carrying songID through untouched so a caller can
// discard a stale callback for a track the user has already skipped past.
func (p *Pipeline) Request(artist, title string, songID uint64, cb types.LyricCallback) {
	p.workers <- struct{}{}
	go func() {
		defer func() { <-p.workers }()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout+20*time.Second)
		defer cancel()

		lines := p.RequestSync(ctx, artist, title)
		cb(lines, songID)
	}()
}

// Close flushes the cache and releases its background goroutine.
func (p *Pipeline) Close() error {
	return p.cache.Close()
}
