package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/lanwave/radio/internal/config"
	"github.com/lanwave/radio/internal/titleclean"
	"github.com/lanwave/radio/pkg/types"
)

// ErrNoLyrics is returned for a 404 or an empty synced-lyrics response.
var ErrNoLyrics = errors.New("lyrics: no lyrics available")

const maxRetries = 2

var timestampRe = regexp.MustCompile(`^\[(\d+):(\d+(?:\.\d+)?)\](.*)$`)

// Fetcher performs the HTTP lyric lookup described in §4.6: rate-limited to
// rate_limit_rps requests per second, with per-error-kind retry — timeout
// retries with progressively longer timeouts and linear backoff, HTTP 429
// retries with exponential backoff, everything else fails immediately.
type Fetcher struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	cleaner  *titleclean.PairCache
}

// NewFetcher builds a Fetcher from the lyric section of the process
// configuration. The underlying client is built via retryablehttp for its
// connection pooling, but with its own retry loop disabled: this package's
// Fetch drives retries itself to match §4.6's per-error-kind policy
// exactly, which doesn't fit retryablehttp's uniform backoff model.
func NewFetcher(cfg *config.Config) *Fetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil

	return &Fetcher{
		endpoint: cfg.Lyrics.Endpoint,
		client:   rc.StandardClient(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.Lyrics.RateLimitRPS), 1),
		timeout:  time.Duration(cfg.Lyrics.TimeoutSecs) * time.Second,
		cleaner:  titleclean.NewPairCache(),
	}
}

// Fetch looks up synced lyrics for (artist, title), applying the
// pipeline's title-cleaning rules before querying the endpoint.
func (f *Fetcher) Fetch(ctx context.Context, artist, title string) ([]types.LyricLine, error) {
	cleanArtist, cleanTitle := f.cleaner.Clean(artist, title)

	q := url.Values{}
	q.Set("track_name", cleanTitle)
	q.Set("artist_name", cleanArtist)
	reqURL := f.endpoint + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqTimeout := f.timeout + time.Duration(attempt)*5*time.Second
		reqCtx, cancel := context.WithTimeout(ctx, reqTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
		if err != nil {
			cancel()
			return nil, err
		}

		resp, err := f.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			if isTimeoutErr(err) && attempt < maxRetries {
				time.Sleep(time.Duration(1+attempt) * time.Second)
				continue
			}
			if isTimeoutErr(err) {
				return nil, fmt.Errorf("lyrics: timed out after %d attempts: %w", attempt+1, err)
			}
			// Connection/other network errors: no retry.
			return nil, err
		}

		lines, retry, err := f.handleResponse(resp, artist, title, attempt)
		if retry {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
			continue
		}
		return lines, err
	}
	return nil, lastErr
}

func (f *Fetcher) handleResponse(resp *http.Response, artist, title string, attempt int) (lines []types.LyricLine, retry bool, err error) {
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, false, ErrNoLyrics
	case http.StatusTooManyRequests:
		if attempt < maxRetries {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("lyrics: rate limited fetching %s - %s", artist, title)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("lyrics endpoint returned %s", resp.Status)
	}

	var body struct {
		SyncedLyrics string `json:"syncedLyrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, err
	}
	if body.SyncedLyrics == "" {
		return nil, false, ErrNoLyrics
	}
	return parseLyrics(body.SyncedLyrics), false, nil
}

// parseLyrics extracts "[MM:SS.ff]text" lines into sorted LyricLines;
// non-matching lines are dropped, and an empty text capture becomes a
// "🎵" placeholder.
func parseLyrics(synced string) []types.LyricLine {
	var out []types.LyricLine
	for _, line := range strings.Split(synced, "\n") {
		m := timestampRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		minutes, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(m[3])
		if text == "" {
			text = "🎵"
		}
		totalSeconds := float64(minutes)*60 + seconds
		ts := time.Duration(totalSeconds * float64(time.Second))
		out = append(out, types.LyricLine{Timestamp: ts, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func isTimeoutErr(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
