package m3u

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/catalogd/catalogd/internal/domain"
)

// movie/series markers checked against group titles first, URL paths second.
var (
	movieMarkers  = []string{"movie", "film"}
	seriesMarkers = []string{"series", "show"}
)

// Classify derives a content type from an entry's group title and stream URL.
// Group-title substrings win over URL path substrings; first match wins.
func Classify(groupTitle, streamURL string) domain.ContentType {
	if t, ok := classifyText(strings.ToLower(groupTitle)); ok {
		return t
	}
	if u, err := url.Parse(streamURL); err == nil {
		if t, ok := classifyText(strings.ToLower(u.Path)); ok {
			return t
		}
	}
	return domain.ContentLive
}

func classifyText(s string) (domain.ContentType, bool) {
	if s == "" {
		return "", false
	}
	for _, m := range movieMarkers {
		if strings.Contains(s, m) {
			return domain.ContentMovie, true
		}
	}
	for _, m := range seriesMarkers {
		if strings.Contains(s, m) {
			return domain.ContentSeries, true
		}
	}
	return "", false
}

// ToChannels maps parsed entries to normalized channels. Entry IDs are stable
// across refreshes: tvg-id when present, else a hash of URL+name.
func ToChannels(entries []Entry) []domain.Channel {
	channels := make([]domain.Channel, 0, len(entries))
	for _, e := range entries {
		id := e.TVGID
		if id == "" {
			id = StableID(e.URL + "|" + e.Name)
		}
		channels = append(channels, domain.Channel{
			ID:         id,
			Name:       e.Name,
			StreamURL:  e.URL,
			LogoURL:    e.LogoURL,
			GroupTitle: e.GroupTitle,
			CategoryID: categoryID(e.GroupTitle),
			TVGID:      e.TVGID,
			Type:       Classify(e.GroupTitle, e.URL),
			Metadata:   e.Attrs,
		})
	}
	return channels
}

// Categories derives the category list from mapped channels, one category per
// distinct group title, sorted by name for stable output.
func Categories(channels []domain.Channel) []domain.Category {
	counts := make(map[string]*domain.Category)
	for _, c := range channels {
		if c.GroupTitle == "" {
			continue
		}
		id := categoryID(c.GroupTitle)
		if cat, ok := counts[id]; ok {
			cat.ChannelCount++
			continue
		}
		counts[id] = &domain.Category{ID: id, Name: c.GroupTitle, ChannelCount: 1}
	}
	out := make([]domain.Category, 0, len(counts))
	for _, cat := range counts {
		out = append(out, *cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func categoryID(groupTitle string) string {
	if groupTitle == "" {
		return ""
	}
	return StableID(groupTitle)
}

// StableID hashes s to a short stable identifier. The same input always maps
// to the same ID, so re-importing a playlist reuses existing slots.
func StableID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
