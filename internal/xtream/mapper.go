package xtream

import (
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/metrics"
)

// record wraps one decoded JSON object. Named fields are read through the
// lenient scalar helpers and marked consumed; whatever is left over lands in
// the entity's Metadata so unknown provider extensions survive.
type record struct {
	m        domain.Metadata
	consumed map[string]bool
}

func newRecord(raw json.RawMessage) (*record, error) {
	var m domain.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &record{m: m, consumed: make(map[string]bool)}, nil
}

// value returns the first present key's value, marking every listed key
// consumed so aliases don't leak into Metadata.
func (r *record) value(keys ...string) any {
	var v any
	found := false
	for _, k := range keys {
		if got, ok := r.m.Get(k); ok {
			if !found {
				v, found = got, true
			}
			r.consumed[k] = true
		}
	}
	return v
}

func (r *record) str(keys ...string) string        { return asString(r.value(keys...)) }
func (r *record) intval(keys ...string) int        { return asInt(r.value(keys...)) }
func (r *record) floatval(keys ...string) float64  { return asFloat(r.value(keys...)) }
func (r *record) timeval(keys ...string) time.Time { return asTime(r.value(keys...)) }

// leftovers returns the unconsumed fields in document order.
func (r *record) leftovers() domain.Metadata {
	var out domain.Metadata
	for _, k := range r.m.Keys() {
		if r.consumed[k] {
			continue
		}
		if v, ok := r.m.Get(k); ok {
			out.Set(k, v)
		}
	}
	return out
}

// decodeList splits a JSON array body into per-item raw messages. A body that
// is not an array at all is a Parse failure; bad items inside it are the
// caller's per-record problem.
func decodeList(body []byte, what string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, errs.Wrap(errs.Parse, err, what+" response")
	}
	return items, nil
}

func skipRecord(what string, err error) {
	log.Printf("xtream: skipping %s record: %v", what, err)
	metrics.ParserSkips.WithLabelValues("xtream").Inc()
}

// mapAccountInfo validates the authenticate response. status "Active" or a
// numeric auth flag of 1 is a successful login; anything else is an Auth
// failure even though the HTTP exchange succeeded.
func mapAccountInfo(body []byte) (*AccountInfo, error) {
	var resp struct {
		UserInfo   json.RawMessage `json:"user_info"`
		ServerInfo json.RawMessage `json:"server_info"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.Parse, err, "authenticate response")
	}
	if len(resp.UserInfo) == 0 || string(resp.UserInfo) == "null" {
		return nil, errs.New(errs.Auth, "authenticate: no user_info in response")
	}
	user, err := newRecord(resp.UserInfo)
	if err != nil {
		return nil, errs.Wrap(errs.Parse, err, "authenticate user_info")
	}

	status := user.str("status")
	authFlag := user.intval("auth")
	if !strings.EqualFold(status, "Active") && authFlag != 1 {
		if status == "" {
			status = "unknown"
		}
		return nil, errs.New(errs.Auth, "account status %q", status)
	}

	info := &AccountInfo{
		Username:       user.str("username"),
		Status:         status,
		ExpDate:        user.timeval("exp_date"),
		MaxConnections: user.intval("max_connections"),
		ActiveConns:    user.intval("active_cons"),
		Metadata:       user.leftovers(),
	}
	if len(resp.ServerInfo) > 0 && string(resp.ServerInfo) != "null" {
		if srv, err := newRecord(resp.ServerInfo); err == nil {
			info.ServerURL = srv.str("url")
			info.ServerPort = srv.str("port")
		}
	}
	return info, nil
}

func mapCategories(body []byte, what string) ([]domain.Category, error) {
	items, err := decodeList(body, what)
	if err != nil {
		return nil, err
	}
	cats := make([]domain.Category, 0, len(items))
	for _, raw := range items {
		rec, err := newRecord(raw)
		if err != nil {
			skipRecord(what, err)
			continue
		}
		id := rec.str("category_id")
		name := rec.str("category_name")
		if id == "" && name == "" {
			skipRecord(what, errs.New(errs.Parse, "category without id or name"))
			continue
		}
		cats = append(cats, domain.Category{
			ID:   id,
			Name: name,
			// parent_id is a hierarchy pointer the source abuses as a sort
			// key; stored as advisory only.
			SortOrder: rec.intval("parent_id"),
		})
	}
	return cats, nil
}

func mapLiveStreams(body []byte, b urlBuilder) ([]domain.Channel, error) {
	items, err := decodeList(body, actionLiveStreams)
	if err != nil {
		return nil, err
	}
	channels := make([]domain.Channel, 0, len(items))
	for _, raw := range items {
		rec, err := newRecord(raw)
		if err != nil {
			skipRecord("live stream", err)
			continue
		}
		sid := rec.str("stream_id")
		if sid == "" {
			skipRecord("live stream", errs.New(errs.Parse, "missing stream_id"))
			continue
		}
		name := strings.TrimSpace(rec.str("name"))
		if name == "" {
			name = "Channel " + sid
		}
		channels = append(channels, domain.Channel{
			ID:         sid,
			Name:       name,
			StreamURL:  b.live(sid),
			LogoURL:    rec.str("stream_icon"),
			CategoryID: rec.str("category_id"),
			TVGID:      rec.str("epg_channel_id"),
			Type:       domain.ContentLive,
			Metadata:   rec.leftovers(),
		})
	}
	return channels, nil
}

func mapVodStreams(body []byte, b urlBuilder) ([]domain.VodItem, error) {
	items, err := decodeList(body, actionVodStreams)
	if err != nil {
		return nil, err
	}
	movies := make([]domain.VodItem, 0, len(items))
	for _, raw := range items {
		rec, err := newRecord(raw)
		if err != nil {
			skipRecord("vod stream", err)
			continue
		}
		sid := rec.str("stream_id")
		if sid == "" {
			skipRecord("vod stream", errs.New(errs.Parse, "missing stream_id"))
			continue
		}
		movies = append(movies, domain.VodItem{
			ID:         sid,
			Name:       strings.TrimSpace(rec.str("name")),
			StreamURL:  b.movie(sid, rec.str("container_extension")),
			CategoryID: rec.str("category_id"),
			PosterURL:  rec.str("stream_icon"),
			Rating:     rec.floatval("rating", "rating_5based"),
			Year:       yearOf(rec.str("releasedate", "release_date", "year")),
			Metadata:   rec.leftovers(),
		})
	}
	return movies, nil
}

func mapVodInfo(body []byte, vodID string, b urlBuilder) (*domain.VodItem, error) {
	var resp struct {
		Info      json.RawMessage `json:"info"`
		MovieData json.RawMessage `json:"movie_data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.Parse, err, actionVodInfo+" response")
	}

	item := &domain.VodItem{ID: vodID}
	ext := ""
	if len(resp.MovieData) > 0 && string(resp.MovieData) != "null" {
		md, err := newRecord(resp.MovieData)
		if err != nil {
			return nil, errs.Wrap(errs.Parse, err, "movie_data")
		}
		if sid := md.str("stream_id"); sid != "" {
			item.ID = sid
		}
		item.Name = strings.TrimSpace(md.str("name"))
		item.CategoryID = md.str("category_id")
		ext = md.str("container_extension")
	}
	if len(resp.Info) > 0 && string(resp.Info) != "null" {
		info, err := newRecord(resp.Info)
		if err != nil {
			return nil, errs.Wrap(errs.Parse, err, "vod info")
		}
		if item.Name == "" {
			item.Name = strings.TrimSpace(info.str("name"))
		}
		item.PosterURL = info.str("movie_image", "cover_big")
		item.BackdropURL = firstBackdrop(info.value("backdrop_path"))
		item.Plot = info.str("plot", "description")
		item.Cast = info.str("cast", "actors")
		item.Genre = info.str("genre")
		item.Rating = info.floatval("rating")
		item.DurationSec = info.intval("duration_secs")
		item.Year = yearOf(info.str("releasedate", "release_date"))
		item.Metadata = info.leftovers()
	}
	item.StreamURL = b.movie(item.ID, ext)
	return item, nil
}

func mapSeriesList(body []byte) ([]domain.Series, error) {
	items, err := decodeList(body, actionSeries)
	if err != nil {
		// Some panels key get_series by series id instead of returning an
		// array; accept that shape too.
		var byID map[string]json.RawMessage
		if mapErr := json.Unmarshal(body, &byID); mapErr != nil {
			return nil, err
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items = items[:0]
		for _, k := range keys {
			items = append(items, byID[k])
		}
	}
	shows := make([]domain.Series, 0, len(items))
	for _, raw := range items {
		rec, err := newRecord(raw)
		if err != nil {
			skipRecord("series", err)
			continue
		}
		sid := rec.str("series_id", "id")
		if sid == "" {
			skipRecord("series", errs.New(errs.Parse, "missing series_id"))
			continue
		}
		shows = append(shows, domain.Series{
			ID:          sid,
			Name:        strings.TrimSpace(rec.str("name")),
			CategoryID:  rec.str("category_id"),
			PosterURL:   rec.str("cover"),
			BackdropURL: firstBackdrop(rec.value("backdrop_path")),
			Plot:        rec.str("plot"),
			Cast:        rec.str("cast"),
			Genre:       rec.str("genre"),
			Rating:      rec.floatval("rating", "rating_5based"),
			Year:        yearOf(rec.str("releaseDate", "release_date", "year")),
			Metadata:    rec.leftovers(),
		})
	}
	return shows, nil
}

func mapSeriesInfo(body []byte, seriesID string, b urlBuilder) (*domain.Series, error) {
	var resp struct {
		Info     json.RawMessage            `json:"info"`
		Episodes map[string]json.RawMessage `json:"episodes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Wrap(errs.Parse, err, actionSeriesInfo+" response")
	}

	show := &domain.Series{ID: seriesID}
	if len(resp.Info) > 0 && string(resp.Info) != "null" {
		info, err := newRecord(resp.Info)
		if err != nil {
			return nil, errs.Wrap(errs.Parse, err, "series info")
		}
		show.Name = strings.TrimSpace(info.str("name"))
		show.CategoryID = info.str("category_id")
		show.PosterURL = info.str("cover")
		show.BackdropURL = firstBackdrop(info.value("backdrop_path"))
		show.Plot = info.str("plot")
		show.Cast = info.str("cast")
		show.Genre = info.str("genre")
		show.Rating = info.floatval("rating", "rating_5based")
		show.Year = yearOf(info.str("releaseDate", "release_date"))
		show.Metadata = info.leftovers()
	}

	seasonMap := make(map[int]*domain.Season)
	for seasonKey, rawEps := range resp.Episodes {
		var eps []json.RawMessage
		if err := json.Unmarshal(rawEps, &eps); err != nil {
			skipRecord("season "+seasonKey, err)
			continue
		}
		defaultSeason, _ := strconv.Atoi(seasonKey)
		if defaultSeason < 1 {
			defaultSeason = 1
		}
		for _, rawEp := range eps {
			rec, err := newRecord(rawEp)
			if err != nil {
				skipRecord("episode", err)
				continue
			}
			eid := rec.str("id")
			if eid == "" {
				skipRecord("episode", errs.New(errs.Parse, "missing id"))
				continue
			}
			seasonNum := rec.intval("season")
			if seasonNum < 1 {
				seasonNum = defaultSeason
			}
			durationSec := 0
			if raw, ok := rec.value("info").(json.RawMessage); ok {
				if epInfo, err := newRecord(raw); err == nil {
					durationSec = epInfo.intval("duration_secs")
				}
			}
			ep := domain.Episode{
				ID:          eid,
				SeasonNum:   seasonNum,
				EpisodeNum:  rec.intval("episode_num"),
				Title:       strings.TrimSpace(rec.str("title")),
				StreamURL:   b.episode(eid, rec.str("container_extension")),
				DurationSec: durationSec,
				Metadata:    rec.leftovers(),
			}
			s := seasonMap[seasonNum]
			if s == nil {
				s = &domain.Season{Number: seasonNum}
				seasonMap[seasonNum] = s
			}
			s.Episodes = append(s.Episodes, ep)
		}
	}

	nums := make([]int, 0, len(seasonMap))
	for n := range seasonMap {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		s := seasonMap[n]
		sort.Slice(s.Episodes, func(i, j int) bool { return s.Episodes[i].EpisodeNum < s.Episodes[j].EpisodeNum })
		show.Seasons = append(show.Seasons, *s)
	}
	return show, nil
}

// firstBackdrop handles backdrop_path arriving as a string or an array of
// strings.
func firstBackdrop(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.RawMessage:
		var list []string
		if json.Unmarshal(x, &list) == nil && len(list) > 0 {
			return list[0]
		}
		var s string
		if json.Unmarshal(x, &s) == nil {
			return s
		}
	}
	return ""
}

// yearOf pulls a 4-digit year from a date-ish string.
func yearOf(s string) int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1800 || y > 2200 {
		return 0
	}
	return y
}
