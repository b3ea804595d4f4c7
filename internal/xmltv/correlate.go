package xmltv

import (
	"sort"
	"time"

	"github.com/catalogd/catalogd/internal/domain"
)

// Current returns the program whose [start, stop) window contains at for the
// given channel, or nil when the schedule has a gap there.
func (g *Guide) Current(channelID string, at time.Time) *domain.EPGProgram {
	progs := g.Programs[channelID]
	if len(progs) == 0 {
		return nil
	}
	// First program starting after at; the candidate is the one before it.
	i := sort.Search(len(progs), func(i int) bool { return progs[i].Start.After(at) })
	if i == 0 {
		return nil
	}
	if p := progs[i-1]; p.Contains(at) {
		return &p
	}
	return nil
}

// Next returns the first program starting strictly after at, or nil.
func (g *Guide) Next(channelID string, at time.Time) *domain.EPGProgram {
	progs := g.Programs[channelID]
	i := sort.Search(len(progs), func(i int) bool { return progs[i].Start.After(at) })
	if i >= len(progs) {
		return nil
	}
	p := progs[i]
	return &p
}

// NowNext bundles Current and Next into the summary attached to channels.
func (g *Guide) NowNext(channelID string, at time.Time) *domain.EPGSummary {
	cur := g.Current(channelID, at)
	next := g.Next(channelID, at)
	if cur == nil && next == nil {
		return nil
	}
	return &domain.EPGSummary{Current: cur, Next: next}
}
