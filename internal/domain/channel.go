package domain

// ContentType classifies a catalog entry by how it is played:
// a continuous live stream, a single movie file, or an episodic series.
type ContentType string

const (
	ContentLive   ContentType = "live"
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
)

// Channel is one normalized live/catalog entry. Values are immutable
// snapshots: a refresh replaces the whole slice, nothing mutates a Channel
// after the mapper emits it.
type Channel struct {
	ID         string      `json:"id"` // unique per source (provider stream_id or playlist hash)
	Name       string      `json:"name"`
	StreamURL  string      `json:"stream_url"`
	LogoURL    string      `json:"logo_url,omitempty"`
	GroupTitle string      `json:"group_title,omitempty"` // M3U group-title / provider category name
	CategoryID string      `json:"category_id,omitempty"`
	TVGID      string      `json:"tvg_id,omitempty"` // EPG channel id for XMLTV correlation
	Type       ContentType `json:"type"`
	Metadata   Metadata    `json:"metadata,omitempty"` // provider extension fields, order preserved
	EPG        *EPGSummary `json:"epg,omitempty"`
}

// EPGSummary is the now/next pair attached to a channel for display.
type EPGSummary struct {
	Current *EPGProgram `json:"current,omitempty"`
	Next    *EPGProgram `json:"next,omitempty"`
}

// Category groups channels or VOD items.
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ChannelCount int    `json:"channel_count"`
	IconURL      string `json:"icon_url,omitempty"`
	// SortOrder carries the provider's parent_id field. Providers use it as a
	// hierarchy pointer, not a sort key; treat it as advisory only.
	SortOrder int `json:"sort_order,omitempty"`
}
