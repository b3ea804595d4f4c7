package m3u

import (
	"testing"

	"github.com/catalogd/catalogd/internal/domain"
)

func TestParse_notAPlaylist(t *testing.T) {
	_, err := Parse("<html><body>provider error page</body></html>")
	if err == nil {
		t.Fatal("expected parse error for non-M3U content")
	}
}

func TestParse_fullAttributes(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1 tvg-id="espn.us" tvg-name="ESPN HD" tvg-logo="http://logo.example/espn.png" group-title="Sports",ESPN HD
http://host/live/user/pass/1001.ts
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry; got %d", len(entries))
	}
	e := entries[0]
	if e.Name != "ESPN HD" || e.TVGID != "espn.us" || e.TVGName != "ESPN HD" {
		t.Errorf("entry = %+v", e)
	}
	if e.LogoURL != "http://logo.example/espn.png" || e.GroupTitle != "Sports" {
		t.Errorf("entry = %+v", e)
	}
	if e.URL != "http://host/live/user/pass/1001.ts" {
		t.Errorf("url = %q", e.URL)
	}
	if e.DurationSec != -1 {
		t.Errorf("duration = %d", e.DurationSec)
	}
}

func TestParse_nameWithCommas(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1 tvg-id="x",News, Weather, and Sports
http://example.com/1
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "and Sports" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParse_unknownAttrsPreserved(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1 tvg-id="a" catchup="shift" catchup-days="7",One
http://example.com/1
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	e := entries[0]
	if got := e.Attrs.GetString("catchup"); got != "shift" {
		t.Errorf("catchup = %q", got)
	}
	if got := e.Attrs.GetString("catchup-days"); got != "7" {
		t.Errorf("catchup-days = %q", got)
	}
	if _, ok := e.Attrs.Get("tvg-id"); ok {
		t.Error("promoted attribute leaked into Attrs")
	}
}

func TestParse_extgrpOverridesGroupTitle(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1 group-title="Old",One
#EXTGRP:New Group
http://example.com/1
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].GroupTitle != "New Group" {
		t.Errorf("group = %q", entries[0].GroupTitle)
	}
}

func TestParse_badURLSkipsEntry(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1,Broken
not a url at all
#EXTINF:-1,Fine
http://example.com/2
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "Fine" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParse_vendorDirectiveKeepsPending(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1,One
#EXTVLCOPT:http-user-agent=VLC
http://example.com/1
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].URL != "http://example.com/1" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParse_urlWithoutExtinfIgnored(t *testing.T) {
	m3u := `#EXTM3U
http://example.com/orphan
#EXTINF:-1,One
http://example.com/1
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParse_headerlessButHasExtinf(t *testing.T) {
	m3u := `#EXTINF:3600 tvg-id="m",A Movie
http://example.com/movie.mp4
`
	entries, err := Parse(m3u)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].DurationSec != 3600 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		group, url string
		want       domain.ContentType
	}{
		{"Movies | Action", "http://h/live/u/p/1.ts", domain.ContentMovie},
		{"TV Series", "http://h/live/u/p/1.ts", domain.ContentSeries},
		{"Sports", "http://h/movie/u/p/5.mp4", domain.ContentMovie},
		{"", "http://h/series/u/p/9.mkv", domain.ContentSeries},
		{"News", "http://h/live/u/p/2.ts", domain.ContentLive},
		{"", "http://h/stream/3", domain.ContentLive},
		// Group title wins over the URL path.
		{"Films", "http://h/series/u/p/9.mkv", domain.ContentMovie},
	}
	for _, c := range cases {
		if got := Classify(c.group, c.url); got != c.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", c.group, c.url, got, c.want)
		}
	}
}

func TestToChannels_stableIDs(t *testing.T) {
	entries := []Entry{
		{Name: "With TVG", URL: "http://example.com/1", TVGID: "abc"},
		{Name: "No TVG", URL: "http://example.com/2"},
	}
	first := ToChannels(entries)
	second := ToChannels(entries)
	if first[0].ID != "abc" {
		t.Errorf("tvg-id not used as channel ID: %q", first[0].ID)
	}
	if first[1].ID == "" || first[1].ID != second[1].ID {
		t.Errorf("hash ID not stable: %q vs %q", first[1].ID, second[1].ID)
	}
}

func TestCategories_derivedFromGroups(t *testing.T) {
	channels := ToChannels([]Entry{
		{Name: "A", URL: "http://e/1", GroupTitle: "Sports"},
		{Name: "B", URL: "http://e/2", GroupTitle: "Sports"},
		{Name: "C", URL: "http://e/3", GroupTitle: "News"},
		{Name: "D", URL: "http://e/4"},
	})
	cats := Categories(channels)
	if len(cats) != 2 {
		t.Fatalf("categories = %+v", cats)
	}
	// Sorted by name: News before Sports.
	if cats[0].Name != "News" || cats[0].ChannelCount != 1 {
		t.Errorf("cats[0] = %+v", cats[0])
	}
	if cats[1].Name != "Sports" || cats[1].ChannelCount != 2 {
		t.Errorf("cats[1] = %+v", cats[1])
	}
	if cats[1].ID != channels[0].CategoryID {
		t.Errorf("category ID mismatch: %q vs %q", cats[1].ID, channels[0].CategoryID)
	}
}
