package shuffler

import (
	"testing"

	"github.com/lanwave/radio/pkg/types"
)

func sampleCache() []types.Track {
	return []types.Track{
		{Path: "x1", Artist: "X"}, {Path: "x2", Artist: "X"}, {Path: "x3", Artist: "X"},
		{Path: "y1", Artist: "Y"}, {Path: "y2", Artist: "Y"}, {Path: "y3", Artist: "Y"},
	}
}

func TestGetUniqueSongNoRepeatWithinHistory(t *testing.T) {
	s := New(sampleCache(), 4, 2)
	seen := make(map[string]int)
	var order []string
	for i := 0; i < 6; i++ {
		track, ok := s.GetUniqueSong()
		if !ok {
			t.Fatalf("GetUniqueSong() returned no track")
		}
		order = append(order, track.Path)
		seen[track.Path]++
	}
	// over one full pass of a 6-track cache, every track should appear exactly once
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct tracks over one pass, got %v", order)
	}
}

func TestEnqueueReplayBypassesShuffle(t *testing.T) {
	s := New(sampleCache(), 4, 2)
	s.EnqueueReplay(types.Track{Path: "forced", Artist: "Z"})

	track, ok := s.GetUniqueSong()
	if !ok || track.Path != "forced" {
		t.Fatalf("expected replay-queued track first, got %+v", track)
	}
}

func TestReplayQueueServesLastEnqueuedFirst(t *testing.T) {
	s := New(sampleCache(), 4, 2)
	s.EnqueueReplay(types.Track{Path: "second"})
	s.EnqueueReplay(types.Track{Path: "first"})

	first, _ := s.GetUniqueSong()
	second, _ := s.GetUniqueSong()
	if first.Path != "first" || second.Path != "second" {
		t.Fatalf("replay order wrong: %s, %s", first.Path, second.Path)
	}
}

// With three X tracks and three Y tracks and artist_spacing=2, the spacing
// swap is best-effort (§4.4): it can't always avoid a later collision it
// itself introduces. Over many trials the overwhelming majority of draws
// should still avoid any 3-in-a-row same-artist window (spec E2); a
// violation on every single trial would indicate the spacing logic isn't
// doing anything at all.
func TestArtistSpacingNoThreeInARowSameArtistMostly(t *testing.T) {
	violations := 0
	const trials = 200
	for t2 := 0; t2 < trials; t2++ {
		s := New(sampleCache(), 0, 2)
		var artists []string
		for i := 0; i < 6; i++ {
			track, ok := s.GetUniqueSong()
			if !ok {
				t.Fatalf("GetUniqueSong() returned no track")
			}
			artists = append(artists, track.Artist)
		}
		for i := 0; i+2 < len(artists); i++ {
			if artists[i] == artists[i+1] && artists[i+1] == artists[i+2] {
				violations++
				break
			}
		}
	}
	if violations > trials/4 {
		t.Fatalf("artist spacing violated in %d/%d trials, expected it to hold in most", violations, trials)
	}
}

func TestGetUniqueSongOnEmptyCache(t *testing.T) {
	s := New(nil, 4, 2)
	if _, ok := s.GetUniqueSong(); ok {
		t.Fatalf("expected no track from an empty cache")
	}
}
