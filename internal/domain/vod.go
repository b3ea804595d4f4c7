package domain

// VodItem is a single movie with provider metadata.
type VodItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	StreamURL   string   `json:"stream_url"`
	CategoryID  string   `json:"category_id,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	Plot        string   `json:"plot,omitempty"`
	Cast        string   `json:"cast,omitempty"`
	Genre       string   `json:"genre,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Year        int      `json:"year,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Series is a show owning an ordered sequence of seasons.
// Episode stream URLs are built by the mapper from credentials plus the
// container extension discovered in get_series_info; the series list response
// alone cannot produce them.
type Series struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CategoryID  string   `json:"category_id,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	Plot        string   `json:"plot,omitempty"`
	Cast        string   `json:"cast,omitempty"`
	Genre       string   `json:"genre,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Year        int      `json:"year,omitempty"`
	Seasons     []Season `json:"seasons,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Season holds one season's episodes in episode order.
type Season struct {
	Number   int       `json:"number"`
	Name     string    `json:"name,omitempty"`
	Episodes []Episode `json:"episodes"`
}

// Episode is a single playable episode.
type Episode struct {
	ID          string   `json:"id"`
	SeasonNum   int      `json:"season_num"`
	EpisodeNum  int      `json:"episode_num"`
	Title       string   `json:"title"`
	StreamURL   string   `json:"stream_url"`
	DurationSec int      `json:"duration_sec,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}
