package domain

import "time"

// EPGChannel is a guide channel as declared by an XMLTV feed.
// DisplayNames keeps feed order; the first entry is the canonical name.
type EPGChannel struct {
	ID           string   `json:"id"`
	DisplayNames []string `json:"display_names"`
	IconURL      string   `json:"icon_url,omitempty"`
}

// Name returns the canonical display name, or "" for a nameless channel.
func (c EPGChannel) Name() string {
	if len(c.DisplayNames) == 0 {
		return ""
	}
	return c.DisplayNames[0]
}

// EPGProgram is one scheduled guide entry. Start and Stop are UTC and
// Start < Stop holds for every program a parser emits.
type EPGProgram struct {
	ChannelID   string    `json:"channel_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Language    string    `json:"language,omitempty"`
	EpisodeNum  string    `json:"episode_num,omitempty"`
}

// Duration returns the scheduled length of the program.
func (p EPGProgram) Duration() time.Duration {
	return p.Stop.Sub(p.Start)
}

// Contains reports whether at falls inside the program's [Start, Stop) window.
func (p EPGProgram) Contains(at time.Time) bool {
	return !at.Before(p.Start) && at.Before(p.Stop)
}

// Progress returns how far through the program the instant at is, in [0, 1].
// A zero-length interval counts as already elapsed so callers never divide
// by zero.
func (p EPGProgram) Progress(at time.Time) float64 {
	if at.Before(p.Start) {
		return 0
	}
	if !at.Before(p.Stop) {
		return 1
	}
	total := p.Stop.Sub(p.Start)
	if total <= 0 {
		return 1
	}
	return float64(at.Sub(p.Start)) / float64(total)
}
