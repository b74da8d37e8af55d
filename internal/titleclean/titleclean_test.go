package titleclean

import "testing"

func TestCleanArtistTrack(t *testing.T) {
	c := New()
	if got := c.Clean("The Beatles - Let It Be"); got != "The Beatles - Let It Be" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanTrackOnly(t *testing.T) {
	c := New()
	if got := c.Clean("Let It Be"); got != "Let It Be" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanSymmetricArtistWrap(t *testing.T) {
	c := New()
	got := c.Clean("Queen - Bohemian Rhapsody - Queen")
	if got != "Queen - Bohemian Rhapsody" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanStripsParentheticalSuffix(t *testing.T) {
	c := New()
	got := c.Clean("Artist - Title (Remastered 2011)")
	if got != "Artist - Title" {
		t.Fatalf("got %q", got)
	}
}

func TestCleanPausedSuffixRule(t *testing.T) {
	c := New()
	got := c.Clean("Artist - Title*=*")
	if got != "Artist - Title -[Paused]-" {
		t.Fatalf("got %q", got)
	}
}

func TestPairCacheReturnsConsistentResult(t *testing.T) {
	pc := NewPairCache()
	a1, t1 := pc.Clean("Artist", "Title (Live)")
	a2, t2 := pc.Clean("Artist", "Title (Live)")
	if a1 != a2 || t1 != t2 {
		t.Fatalf("cache inconsistent: (%q,%q) vs (%q,%q)", a1, t1, a2, t2)
	}
	if t1 != "Title" {
		t.Fatalf("cleaned title = %q, want %q", t1, "Title")
	}
}

func TestPairCacheEvictsOldestHalfOverLimit(t *testing.T) {
	pc := NewPairCache()
	for i := 0; i < pairCacheLimit+10; i++ {
		pc.Clean("Artist", string(rune('a'+i%26))+string(rune(i)))
	}
	if len(pc.entries) > pairCacheLimit+1 {
		t.Fatalf("cache did not evict, size=%d", len(pc.entries))
	}
}
