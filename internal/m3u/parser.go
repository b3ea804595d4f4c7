// Package m3u parses extended M3U playlists into typed entries.
//
// The parser is a single forward pass over the content: an #EXTINF line opens
// a pending entry, the next non-comment line must be its URL. A malformed URL
// line discards the pending entry and moves on; only content that is not an
// M3U playlist at all refuses to parse.
package m3u

import (
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/metrics"
)

const (
	headerTag = "#EXTM3U"
	extinfTag = "#EXTINF"
	extgrpTag = "#EXTGRP"
)

// Entry is one parsed playlist entry: the metadata from its #EXTINF line
// plus the stream URL that followed it.
type Entry struct {
	Name        string
	DurationSec int // -1 for live/indefinite
	URL         string
	TVGID       string
	TVGName     string
	LogoURL     string
	GroupTitle  string
	Attrs       domain.Metadata // attributes not promoted to a typed field
}

// IsValid reports whether content looks like an extended M3U playlist:
// it starts with #EXTM3U or at minimum contains one #EXTINF tag.
func IsValid(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, headerTag) || strings.Contains(trimmed, extinfTag)
}

// Parse tokenizes content into entries. Invalid top-level content is a hard
// errs.Parse failure; individual malformed lines are skipped and counted.
func Parse(content string) ([]Entry, error) {
	if !IsValid(content) {
		return nil, errs.New(errs.Parse, "content is not an extended M3U playlist")
	}

	var entries []Entry
	var pending *Entry

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, headerTag) {
			continue
		}

		switch {
		case strings.HasPrefix(line, extinfTag):
			e := parseExtinf(line)
			pending = &e

		case strings.HasPrefix(line, extgrpTag):
			// Overrides group-title when it appears after EXTINF for the entry.
			if pending != nil {
				group := strings.TrimSpace(strings.TrimPrefix(line[len(extgrpTag):], ":"))
				if group != "" {
					pending.GroupTitle = group
				}
			}

		case strings.HasPrefix(line, "#"):
			// Vendor directive such as #EXTVLCOPT. Keep the pending entry.

		default:
			if pending == nil {
				// URL with no metadata; nothing to attach it to.
				continue
			}
			if !validStreamURL(line) {
				log.Printf("m3u: skipping entry %q: unparseable url %q", pending.Name, line)
				metrics.ParserSkips.WithLabelValues("m3u").Inc()
				pending = nil
				continue
			}
			pending.URL = line
			entries = append(entries, *pending)
			pending = nil
		}
	}
	return entries, nil
}

// validStreamURL requires the line to parse as a URI with a scheme.
func validStreamURL(line string) bool {
	u, err := url.Parse(line)
	return err == nil && u.Scheme != ""
}

// parseExtinf splits one #EXTINF line into duration, attributes, and name.
// Only the last comma is structural; names themselves may contain commas.
func parseExtinf(line string) Entry {
	e := Entry{DurationSec: -1}

	rest := strings.TrimPrefix(line, extinfTag)
	rest = strings.TrimPrefix(rest, ":")

	if i := strings.LastIndex(rest, ","); i >= 0 {
		e.Name = strings.TrimSpace(rest[i+1:])
		rest = rest[:i]
	}

	// Optional leading duration integer; -1 means live.
	rest = strings.TrimSpace(rest)
	numEnd := 0
	for numEnd < len(rest) && (rest[numEnd] == '-' || rest[numEnd] == '+' || (rest[numEnd] >= '0' && rest[numEnd] <= '9')) {
		numEnd++
	}
	if numEnd > 0 {
		if d, err := strconv.Atoi(rest[:numEnd]); err == nil {
			e.DurationSec = d
		}
		rest = rest[numEnd:]
	}

	scanAttrs(rest, func(key, val string) {
		switch strings.ToLower(key) {
		case "tvg-id", "channel-id":
			if e.TVGID == "" {
				e.TVGID = val
			}
		case "tvg-logo", "logo":
			if e.LogoURL == "" {
				e.LogoURL = val
			}
		case "group-title":
			e.GroupTitle = val
		case "tvg-name":
			e.TVGName = val
		default:
			e.Attrs.Set(key, val)
		}
	})

	if e.Name == "" {
		e.Name = e.TVGName
	}
	return e
}

// scanAttrs walks s for key="value" pairs. Unquoted or truncated pairs end
// the scan; everything before them is still reported.
func scanAttrs(s string, fn func(key, val string)) {
	i := 0
	for i < len(s) {
		// Skip separators.
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return
		}
		key := strings.TrimSpace(s[i : i+eq])
		// Stray unquoted tokens before the key are not part of it.
		if fields := strings.Fields(key); len(fields) > 0 {
			key = fields[len(fields)-1]
		}
		i += eq + 1
		if i >= len(s) || s[i] != '"' {
			return
		}
		i++
		end := strings.IndexByte(s[i:], '"')
		if end < 0 {
			return
		}
		val := s[i : i+end]
		i += end + 1
		if key != "" {
			fn(key, val)
		}
	}
}
