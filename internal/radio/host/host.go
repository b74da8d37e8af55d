// Package host implements the radio host (C7): an HTTP server broadcasting
// the local playback orchestrator's status, current song file, and lyrics
// to peers on the LAN (§4.7). Grounded on the pack's
// arung-agamani-denpa-radio/internal/radio/server.go mux-and-middleware
// idiom, adapted from that file's REST API surface to this spec's literal
// tag-based "/" status body and action dispatch.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lanwave/radio/pkg/types"
)

// titleSeparator is the literal three-character sequence the wire protocol
// uses between artist and title in the "/" status body (§6).
const titleSeparator = "![]!"

const maxLogLines = 5000

// Host serves the radio protocol's HTTP endpoints over the capability
// interfaces it depends on, never importing the orchestrator package
// directly (resolves the C5<->C7 cyclic dependency, SPEC_FULL.md §9).
type Host struct {
	status types.StatusSource
	action types.ActionSink
	search types.SearchProvider

	port    int
	logPath string

	httpServer *http.Server
}

// New builds a Host bound to port, serving logs from logPath (the
// platform-paths-resolved ".logging.txt", see internal/platform/logfile.go).
func New(status types.StatusSource, action types.ActionSink, search types.SearchProvider, port int, logPath string) *Host {
	h := &Host{status: status, action: action, search: search, port: port, logPath: logPath}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleStatus)
	mux.HandleFunc("GET /song", h.handleSong)
	mux.HandleFunc("GET /lyrics", h.handleLyrics)
	mux.HandleFunc("GET /time", h.handleTime)
	mux.HandleFunc("POST /action", h.handleAction)
	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("GET /logs/api", h.handleLogs)

	h.httpServer = &http.Server{
		Handler:        noCacheHeaders(securityHeaders(mux)),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return h
}

// securityHeaders mirrors server.go's clickjacking/MIME-sniffing mitigation
// middleware, applied to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// noCacheHeaders is the Go equivalent of the original's Flask
// after_request hook: every response is explicitly uncacheable, since
// peers must always see the latest status.
func noCacheHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// Start binds the host's listener and begins serving. Per §9's Open
// Question resolution, a port already in use fails the start immediately
// rather than attempting to terminate whatever process is listening.
func (h *Host) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.port))
	if err != nil {
		return fmt.Errorf("radio host: bind port %d: %w", h.port, err)
	}
	go func() {
		if err := h.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[RADIO_HOST] serve error: %v", err)
		}
	}()
	log.Printf("[RADIO_HOST] serving on %s", ln.Addr())
	return nil
}

// Close shuts the HTTP server down gracefully.
func (h *Host) Close(ctx context.Context) error {
	return h.httpServer.Shutdown(ctx)
}

func (h *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()

	title := st.Artist + titleSeparator + st.Title

	freqs := make([]float64, 0, len(st.EQBands))
	for f := range st.EQBands {
		freqs = append(freqs, f)
	}
	sort.Float64s(freqs)
	eqParts := make([]string, 0, len(freqs))
	for _, f := range freqs {
		eqParts = append(eqParts, fmt.Sprintf("%s:%s", formatFloat(f), formatFloat(st.EQBands[f])))
	}

	songURL := fmt.Sprintf("http://%s:%d/song", localIP(), h.port)

	var body strings.Builder
	fmt.Fprintf(&body, "<title>%s</title>", title)
	fmt.Fprintf(&body, "<paused>%s</paused>", pyBool(st.Paused))
	fmt.Fprintf(&body, "<repeat>%s</repeat>", pyBool(st.Repeat))
	fmt.Fprintf(&body, "<eq>%s</eq>", strings.Join(eqParts, ","))
	fmt.Fprintf(&body, "<volume>%s</volume>", formatFloat(st.Volume))
	fmt.Fprintf(&body, "<location>%s</location>", formatFloat(st.PositionS))
	fmt.Fprintf(&body, "<duration>%s</duration>", formatFloat(st.DurationS))
	fmt.Fprintf(&body, "<url>%s</url>", songURL)
	fmt.Fprintf(&body, "<buffered_at>%s</buffered_at>", formatFloat(st.BufferedAt))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(body.String()))
}

func (h *Host) handleSong(w http.ResponseWriter, r *http.Request) {
	path, ok := h.status.CurrentSongPath()
	if !ok || path == "" {
		http.Error(w, "No song loaded", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "No song loaded", http.StatusNotFound)
		return
	}

	mime := "audio/mpeg"
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		mime = "audio/wav"
	}
	w.Header().Set("Content-Type", mime)
	http.ServeFile(w, r, path)
}

func (h *Host) handleLyrics(w http.ResponseWriter, r *http.Request) {
	lyrics := h.status.CurrentLyrics()
	if lyrics == "" {
		lyrics = "No lyrics available"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(lyrics))
}

// handleTime serves the host's wall-clock time for the radio client's clock
// sync (§4.8). This is the one endpoint that must never be touched by any
// monotonic-clock substitution (§5 "Clock discipline").
func (h *Host) handleTime(w http.ResponseWriter, r *http.Request) {
	now := float64(time.Now().UnixNano()) / 1e9
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, formatFloat(now))
}

func (h *Host) handleAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
		Path   string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "error", "message": "invalid request body"})
		return
	}

	kind := types.ActionKind(strings.ToLower(strings.TrimSpace(body.Action)))
	if kind == types.ActionPlaySearch && strings.TrimSpace(body.Path) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "error", "message": "play_search requires a path"})
		return
	}
	if err := h.action.Accept(types.Action{Kind: kind, Path: body.Path}); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "error", "message": err.Error()})
		return
	}

	st := h.status.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":     "success",
		"title":    st.Title,
		"position": round2(st.PositionS),
		"paused":   st.Paused,
		"repeat":   st.Repeat,
		"volume":   round2(st.Volume),
	})
}

func (h *Host) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "error", "message": "invalid request body"})
		return
	}

	query := strings.TrimSpace(body.Query)
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "error", "message": "Empty search query"})
		return
	}

	results := h.search.Search(query)
	out := make([]map[string]string, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]string{"title": res.Title, "path": res.Path})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": "success", "results": out})
}

func (h *Host) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.logPath == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Log file not found"})
		return
	}
	f, err := os.Open(h.logPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Log file not found"})
		return
	}
	defer f.Close()

	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 100
	}
	if count > maxLogLines {
		count = maxLogLines
	}
	if start < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid start or count"})
		return
	}

	lines, hasMore := readLineRange(f, start, count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lines":    lines,
		"start":    start,
		"count":    len(lines),
		"has_more": hasMore,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// localIP determines the outbound-facing local IPv4 address by opening a
// UDP "connection" to 10.255.255.255 and reading the chosen source
// interface, without sending any packet (§4.7/§4.9). Falls back to
// loopback if no route is found (e.g. an offline machine).
func localIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
