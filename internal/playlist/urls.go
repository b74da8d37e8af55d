// Package playlist loads the Playlists.txt bootstrap list: one download
// URL per line, consumed once at startup to seed the download manager
// (internal/download) with tracks the local library doesn't have yet.
// Grounded on original_source/playerUtils.py's MusicOverlayController.load_playlists.
package playlist

import (
	"bufio"
	"log"
	"os"
	"strings"
)

// LoadBootstrapURLs reads path (one URL per line; blank lines and lines
// starting with '#' are ignored) and returns the list of URLs found. A
// missing file is not an error: it is created empty and an empty list is
// returned, matching the original's FileNotFoundError handling.
func LoadBootstrapURLs(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if createErr := os.WriteFile(path, nil, 0o644); createErr != nil {
				log.Printf("[PLAYLIST] create %s: %v", path, createErr)
			}
			return nil
		}
		log.Printf("[PLAYLIST] open %s: %v", path, err)
		return nil
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[PLAYLIST] read %s: %v", path, err)
	}
	return urls
}
