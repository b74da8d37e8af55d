package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hashicorp/go-retryablehttp"
)

// downloadToFile streams url's body to destPath, writing through a ".part"
// sibling and renaming atomically into place on success (§6's ".cache.mp3").
// Adapted from the teacher's internal/audio/streaming.go StreamReader
// goroutine-driven downloader: here the destination is a seekable file
// rather than a growing in-memory buffer, since C3's decoder needs a
// complete file to open. ctx cancellation aborts the read loop and leaves
// no partial file behind.
func downloadToFile(ctx context.Context, httpClient *retryablehttp.Client, url, destPath string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("radio client: build download request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("radio client: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("radio client: download %s: status %d", url, resp.StatusCode)
	}

	partial := destPath + ".part"
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("radio client: create %s: %w", partial, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(partial)
		return fmt.Errorf("radio client: write %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("radio client: close %s: %w", partial, err)
	}

	if err := os.Rename(partial, destPath); err != nil {
		os.Remove(partial)
		return fmt.Errorf("radio client: finalize %s: %w", destPath, err)
	}
	return nil
}
