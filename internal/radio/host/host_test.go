package host

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lanwave/radio/pkg/types"
)

type fakeStatus struct {
	status  types.PeerStatus
	path    string
	pathOK  bool
	lyrics  string
}

func (f *fakeStatus) Status() types.PeerStatus         { return f.status }
func (f *fakeStatus) CurrentSongPath() (string, bool)  { return f.path, f.pathOK }
func (f *fakeStatus) CurrentLyrics() string            { return f.lyrics }

type fakeAction struct {
	lastAction types.Action
	err        error
}

func (f *fakeAction) Accept(a types.Action) error {
	f.lastAction = a
	return f.err
}

type fakeSearch struct {
	results []types.SearchResult
}

func (f *fakeSearch) Search(query string) []types.SearchResult { return f.results }

func newTestHost() (*Host, *fakeStatus, *fakeAction, *fakeSearch) {
	st := &fakeStatus{status: types.PeerStatus{
		Title:  "Title",
		Artist: "Artist",
		EQBands: map[float64]float64{
			125: 2,
			31:  -1,
		},
		Volume:    0.8,
		PositionS: 12.3,
		DurationS: 180,
	}}
	ac := &fakeAction{}
	se := &fakeSearch{}
	h := New(st, ac, se, 0, "")
	return h, st, ac, se
}

func TestHandleStatusBodyFormat(t *testing.T) {
	h, _, _, _ := newTestHost()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "<title>Artist![]!Title</title>") {
		t.Fatalf("expected artist/title wire format, got %s", body)
	}
	if !strings.Contains(body, "<paused>False</paused>") {
		t.Fatalf("expected Python-style paused flag, got %s", body)
	}
	if !strings.Contains(body, "<eq>31:-1,125:2</eq>") {
		t.Fatalf("expected eq bands sorted by frequency, got %s", body)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatal("expected a no-cache header on every response")
	}
}

func TestHandleTimeReturnsWallClockSeconds(t *testing.T) {
	h, _, _, _ := newTestHost()
	req := httptest.NewRequest(http.MethodGet, "/time", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	now := float64(time.Now().Unix())
	body := rec.Body.String()
	secs, err := strconv.ParseFloat(body, 64)
	if err != nil || secs < now-5 || secs > now+5 {
		t.Fatalf("unexpected /time body: %s", body)
	}
}

func TestHandleActionDispatchesAndReportsStatus(t *testing.T) {
	h, _, ac, _ := newTestHost()
	reqBody, _ := json.Marshal(map[string]string{"action": "SKIP"})
	req := httptest.NewRequest(http.MethodPost, "/action", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ac.lastAction.Kind != types.ActionSkip {
		t.Fatalf("expected skip action dispatched, got %q", ac.lastAction.Kind)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["code"] != "success" {
		t.Fatalf("expected success code, got %v", resp["code"])
	}
}

func TestHandleActionPlaySearchRequiresPath(t *testing.T) {
	h, _, _, _ := newTestHost()
	reqBody, _ := json.Marshal(map[string]string{"action": "play_search"})
	req := httptest.NewRequest(http.MethodPost, "/action", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a play_search with no path, got %d", rec.Code)
	}
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	h, _, _, _ := newTestHost()
	reqBody, _ := json.Marshal(map[string]string{"query": "  "})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty query, got %d", rec.Code)
	}
}

func TestHandleSearchReturnsResults(t *testing.T) {
	h, _, _, se := newTestHost()
	se.results = []types.SearchResult{{Title: "Song A", Path: "/a.mp3", Score: 100}}

	reqBody, _ := json.Marshal(map[string]string{"query": "song"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	var resp struct {
		Code    string              `json:"code"`
		Results []map[string]string `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Code != "success" || len(resp.Results) != 1 || resp.Results[0]["path"] != "/a.mp3" {
		t.Fatalf("unexpected search response: %+v", resp)
	}
}

func TestHandleSongReturns404WhenNothingLoaded(t *testing.T) {
	h, _, _, _ := newTestHost()
	req := httptest.NewRequest(http.MethodGet, "/song", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no song is loaded, got %d", rec.Code)
	}
}

func TestHandleSongServesExistingFile(t *testing.T) {
	h, st, _, _ := newTestHost()
	f, err := os.CreateTemp(t.TempDir(), "song-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	f.WriteString("pretend audio bytes")
	f.Close()

	st.path, st.pathOK = f.Name(), true

	req := httptest.NewRequest(http.MethodGet, "/song", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "audio/wav" {
		t.Fatalf("expected audio/wav content type, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestHandleLyricsFallsBackWhenEmpty(t *testing.T) {
	h, _, _, _ := newTestHost()
	req := httptest.NewRequest(http.MethodGet, "/lyrics", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Body.String() != "No lyrics available" {
		t.Fatalf("expected fallback lyrics text, got %q", rec.Body.String())
	}
}

func TestHandleLogsReturnsLineRange(t *testing.T) {
	h, _, _, _ := newTestHost()
	logFile, err := os.CreateTemp(t.TempDir(), "log-*.txt")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	for i := 0; i < 5; i++ {
		logFile.WriteString("line\n")
	}
	logFile.Close()
	h.logPath = logFile.Name()

	req := httptest.NewRequest(http.MethodGet, "/logs/api?start=1&count=2", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	var resp struct {
		Lines   []string `json:"lines"`
		HasMore bool     `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.Lines) != 2 || !resp.HasMore {
		t.Fatalf("unexpected logs response: %+v", resp)
	}
}

func TestSecurityAndNoCacheHeadersApplied(t *testing.T) {
	h, _, _, _ := newTestHost()
	req := httptest.NewRequest(http.MethodGet, "/time", nil)
	rec := httptest.NewRecorder()
	h.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected security headers on every response")
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatal("expected no-cache headers on every response")
	}
}
