package host

import (
	"bufio"
	"io"
)

// readLineRange returns up to count lines starting at the start-th line of
// r (0-indexed), and whether at least one more line exists beyond the
// range returned — mirroring the original's itertools.islice-based log
// pager (§4.7 "/logs/api").
func readLineRange(r io.Reader, start, count int) ([]string, bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for i := 0; i < start && scanner.Scan(); i++ {
	}

	lines := make([]string, 0, count)
	for len(lines) < count && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	hasMore := len(lines) == count && scanner.Scan()
	return lines, hasMore
}
