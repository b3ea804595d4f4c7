// Package xmltv parses XMLTV guide documents and answers now/next queries
// against the parsed schedule.
package xmltv

import (
	"encoding/xml"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/metrics"
)

// ErrEmptyGuide marks a well-formed document that yields no channels and no
// programs. Some providers answer "no data" with an empty <tv/>; callers that
// want to treat that as valid can errors.Is against this instead of lumping
// it with malformed-feed failures.
var ErrEmptyGuide = errors.New("xmltv: guide has no channels or programs")

// Guide is a parsed XMLTV document. Programs per channel are ordered by
// start time ascending; the correlator's binary search relies on that.
type Guide struct {
	Channels map[string]domain.EPGChannel
	Programs map[string][]domain.EPGProgram
}

type xmlChannel struct {
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         *xmlIcon `xml:"icon"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlProgramme struct {
	Start      string   `xml:"start,attr"`
	Stop       string   `xml:"stop,attr"`
	Channel    string   `xml:"channel,attr"`
	Title      string   `xml:"title"`
	Desc       string   `xml:"desc"`
	Categories []string `xml:"category"`
	Language   string   `xml:"language"`
	EpisodeNum string   `xml:"episode-num"`
}

// Parse reads an XMLTV document. Document-level failures return errs.Parse;
// malformed individual programmes are skipped and counted. Feeds in non-UTF-8
// encodings are decoded via their declared charset.
func Parse(r io.Reader) (*Guide, error) {
	g := &Guide{
		Channels: make(map[string]domain.EPGChannel),
		Programs: make(map[string][]domain.EPGProgram),
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	sawRoot := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errs.Wrap(errs.Parse, err, "xmltv document")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			var c xmlChannel
			if err := dec.DecodeElement(&c, &start); err != nil {
				log.Printf("xmltv: skipping channel element: %v", err)
				metrics.ParserSkips.WithLabelValues("xmltv").Inc()
				continue
			}
			if c.ID == "" {
				continue
			}
			ch := domain.EPGChannel{ID: c.ID}
			for _, n := range c.DisplayNames {
				if n = strings.TrimSpace(n); n != "" {
					ch.DisplayNames = append(ch.DisplayNames, n)
				}
			}
			if c.Icon != nil {
				ch.IconURL = c.Icon.Src
			}
			g.Channels[c.ID] = ch
		case "programme":
			var p xmlProgramme
			if err := dec.DecodeElement(&p, &start); err != nil {
				log.Printf("xmltv: skipping programme element: %v", err)
				metrics.ParserSkips.WithLabelValues("xmltv").Inc()
				continue
			}
			prog, ok := mapProgramme(p)
			if !ok {
				metrics.ParserSkips.WithLabelValues("xmltv").Inc()
				continue
			}
			g.Programs[prog.ChannelID] = append(g.Programs[prog.ChannelID], prog)
		}
	}

	if !sawRoot {
		return nil, errs.New(errs.Parse, "xmltv root <tv> element not found")
	}
	if len(g.Channels) == 0 && len(g.Programs) == 0 {
		return nil, ErrEmptyGuide
	}

	for id := range g.Programs {
		progs := g.Programs[id]
		sort.Slice(progs, func(i, j int) bool { return progs[i].Start.Before(progs[j].Start) })
		g.Programs[id] = progs
	}
	return g, nil
}

func mapProgramme(p xmlProgramme) (domain.EPGProgram, bool) {
	if p.Channel == "" {
		return domain.EPGProgram{}, false
	}
	start, err := ParseTime(p.Start)
	if err != nil {
		return domain.EPGProgram{}, false
	}
	stop, err := ParseTime(p.Stop)
	if err != nil {
		return domain.EPGProgram{}, false
	}
	if !start.Before(stop) {
		return domain.EPGProgram{}, false
	}
	prog := domain.EPGProgram{
		ChannelID:   p.Channel,
		Title:       strings.TrimSpace(p.Title),
		Start:       start,
		Stop:        stop,
		Description: strings.TrimSpace(p.Desc),
		Language:    strings.TrimSpace(p.Language),
		EpisodeNum:  strings.TrimSpace(p.EpisodeNum),
	}
	if len(p.Categories) > 0 {
		prog.Category = strings.TrimSpace(p.Categories[0])
	}
	return prog, true
}

// xmltvLayouts in order of how often providers use them. Offset-less stamps
// are taken as UTC.
var xmltvLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

// ParseTime parses an XMLTV timestamp attribute into a UTC instant.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range xmltvLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
