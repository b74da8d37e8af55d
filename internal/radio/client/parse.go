package client

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lanwave/radio/pkg/types"
)

// titleSeparator matches internal/radio/host's wire format literally.
const titleSeparator = "![]!"

var (
	reTitle      = regexp.MustCompile(`<title>(.*?)</title>`)
	rePaused     = regexp.MustCompile(`<paused>(.*?)</paused>`)
	reRepeat     = regexp.MustCompile(`<repeat>(.*?)</repeat>`)
	reEQ         = regexp.MustCompile(`<eq>(.*?)</eq>`)
	reVolume     = regexp.MustCompile(`<volume>(.*?)</volume>`)
	reLocation   = regexp.MustCompile(`<location>(.*?)</location>`)
	reDuration   = regexp.MustCompile(`<duration>(.*?)</duration>`)
	reURL        = regexp.MustCompile(`<url>(.*?)</url>`)
	reBufferedAt = regexp.MustCompile(`<buffered_at>(.*?)</buffered_at>`)
)

// parseStatus parses a host's "/" response body into a PeerStatus, mirroring
// original_source/radioClient.py's _fetch_data regex extraction field for
// field, including its defaults for any tag the body is missing.
func parseStatus(body string) types.PeerStatus {
	title := extract(reTitle, body, "")
	artist := ""
	if idx := strings.Index(title, titleSeparator); idx >= 0 {
		artist, title = title[:idx], title[idx+len(titleSeparator):]
	}

	return types.PeerStatus{
		Title:      title,
		Artist:     artist,
		Paused:     extract(rePaused, body, "False") == "True",
		Repeat:     extract(reRepeat, body, "False") == "True",
		EQBands:    parseEQ(extract(reEQ, body, "")),
		Volume:     parseFloat(extract(reVolume, body, "1.0"), 1.0),
		PositionS:  parseFloat(extract(reLocation, body, "0"), 0),
		DurationS:  parseFloat(extract(reDuration, body, "0"), 0),
		SongURL:    extract(reURL, body, "/song"),
		BufferedAt: parseFloat(extract(reBufferedAt, body, "0"), 0),
	}
}

func extract(re *regexp.Regexp, body, fallback string) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return fallback
	}
	return m[1]
}

func parseFloat(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseEQ(s string) map[float64]float64 {
	if s == "" {
		return nil
	}
	out := make(map[float64]float64)
	for _, pair := range strings.Split(s, ",") {
		freq, gain, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		f, err1 := strconv.ParseFloat(freq, 64)
		g, err2 := strconv.ParseFloat(gain, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[f] = g
	}
	return out
}
