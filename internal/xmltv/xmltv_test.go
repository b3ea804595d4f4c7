package xmltv

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

const sampleGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="test">
  <channel id="espn.us">
    <display-name>ESPN</display-name>
    <display-name>ESPN HD</display-name>
    <icon src="http://logo.example/espn.png"/>
  </channel>
  <channel id="cnn.us">
    <display-name>CNN</display-name>
  </channel>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="espn.us">
    <title>SportsCenter</title>
    <desc>Highlights and analysis.</desc>
    <category>Sports</category>
  </programme>
  <programme start="20260115190000 +0000" stop="20260115210000 +0000" channel="espn.us">
    <title>Monday Night Football</title>
  </programme>
</tv>`

func TestParse_sample(t *testing.T) {
	g, err := Parse(strings.NewReader(sampleGuide))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Channels) != 2 {
		t.Fatalf("channels = %d", len(g.Channels))
	}
	espn := g.Channels["espn.us"]
	if espn.Name() != "ESPN" || len(espn.DisplayNames) != 2 || espn.IconURL != "http://logo.example/espn.png" {
		t.Errorf("espn = %+v", espn)
	}
	progs := g.Programs["espn.us"]
	if len(progs) != 2 {
		t.Fatalf("programs = %+v", progs)
	}
	if progs[0].Title != "SportsCenter" || progs[0].Category != "Sports" {
		t.Errorf("progs[0] = %+v", progs[0])
	}
	want := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	if !progs[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", progs[0].Start, want)
	}
}

func TestParse_programsSortedByStart(t *testing.T) {
	doc := `<tv>
  <programme start="20260115200000 +0000" stop="20260115210000 +0000" channel="c"><title>Later</title></programme>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c"><title>Earlier</title></programme>
</tv>`
	g, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	progs := g.Programs["c"]
	if len(progs) != 2 || progs[0].Title != "Earlier" || progs[1].Title != "Later" {
		t.Fatalf("progs = %+v", progs)
	}
}

func TestParse_skipsInvalidProgrammes(t *testing.T) {
	doc := `<tv>
  <programme start="garbage" stop="20260115190000 +0000" channel="c"><title>Bad start</title></programme>
  <programme start="20260115190000 +0000" stop="20260115180000 +0000" channel="c"><title>Stop before start</title></programme>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000"><title>No channel</title></programme>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c"><title>Good</title></programme>
</tv>`
	g, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Programs["c"]) != 1 || g.Programs["c"][0].Title != "Good" {
		t.Fatalf("programs = %+v", g.Programs)
	}
}

func TestParse_noRoot(t *testing.T) {
	_, err := Parse(strings.NewReader(`<guide></guide>`))
	if err == nil {
		t.Fatal("expected error for missing <tv> root")
	}
}

func TestParse_emptyGuide(t *testing.T) {
	_, err := Parse(strings.NewReader(`<tv></tv>`))
	if !errors.Is(err, ErrEmptyGuide) {
		t.Fatalf("err = %v, want ErrEmptyGuide", err)
	}
}

func TestParse_nonUTF8Charset(t *testing.T) {
	// "Télé" in Latin-1: 0x54 0xE9 0x6C 0xE9.
	doc := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>
<tv>
  <channel id="fr.1"><display-name>T`)
	doc = append(doc, 0xE9, 'l', 0xE9)
	doc = append(doc, []byte(`</display-name></channel>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="fr.1">
    <title>Journal</title>
  </programme>
</tv>`)...)

	g, err := Parse(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %+v", err)
	}
	ch, ok := g.Channels["fr.1"]
	if !ok {
		t.Fatal("channel fr.1 missing")
	}
	if ch.Name() != "Télé" {
		t.Errorf("Name() = %q, want %q", ch.Name(), "Télé")
	}
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20260115180000 +0000", time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)},
		{"20260115130000 -0500", time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)},
		{"20260115180000", time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)},
		{"202601151800", time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseTime(c.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseTime("January 15"); err == nil {
		t.Error("expected error for unsupported layout")
	}
}

func TestCurrentNext(t *testing.T) {
	g, err := Parse(strings.NewReader(sampleGuide))
	if err != nil {
		t.Fatal(err)
	}

	// Mid-first-program.
	at := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)
	cur := g.Current("espn.us", at)
	if cur == nil || cur.Title != "SportsCenter" {
		t.Fatalf("current = %+v", cur)
	}
	next := g.Next("espn.us", at)
	if next == nil || next.Title != "Monday Night Football" {
		t.Fatalf("next = %+v", next)
	}

	// Exactly at a boundary: stop is exclusive, the second program owns it.
	at = time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
	cur = g.Current("espn.us", at)
	if cur == nil || cur.Title != "Monday Night Football" {
		t.Fatalf("current at boundary = %+v", cur)
	}

	// After the last program.
	at = time.Date(2026, 1, 15, 22, 0, 0, 0, time.UTC)
	if got := g.Current("espn.us", at); got != nil {
		t.Errorf("current after schedule = %+v", got)
	}
	if got := g.Next("espn.us", at); got != nil {
		t.Errorf("next after schedule = %+v", got)
	}

	// Gap in the schedule.
	at = time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)
	if got := g.Current("espn.us", at); got != nil {
		t.Errorf("current in gap = %+v", got)
	}
	if got := g.Next("espn.us", at); got == nil || got.Title != "SportsCenter" {
		t.Errorf("next in gap = %+v", got)
	}

	// Unknown channel.
	if got := g.NowNext("nope", at); got != nil {
		t.Errorf("nownext for unknown channel = %+v", got)
	}
}

func TestProgress(t *testing.T) {
	g, err := Parse(strings.NewReader(sampleGuide))
	if err != nil {
		t.Fatal(err)
	}
	p := g.Programs["espn.us"][0] // 18:00-19:00

	if got := p.Progress(time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)); got != 0 {
		t.Errorf("before start: %v", got)
	}
	if got := p.Progress(time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)); got != 1 {
		t.Errorf("at stop: %v", got)
	}
	got := p.Progress(time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC))
	if math.Abs(got-0.5) > 0.01 {
		t.Errorf("halfway: %v", got)
	}
}
