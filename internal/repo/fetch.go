package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/httpclient"
	"github.com/catalogd/catalogd/internal/m3u"
	"github.com/catalogd/catalogd/internal/metrics"
	"github.com/catalogd/catalogd/internal/xmltv"
	"github.com/catalogd/catalogd/internal/xtream"
)

// Channels returns the active profile's live/catalog channels.
func (r *Repository) Channels(ctx context.Context) (Result[[]domain.Channel], error) {
	return get(ctx, r, cache.KindChannels, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Channel, error) {
		return api.LiveStreams(ctx, "")
	})
}

// Categories returns the merged live+VOD+series category list.
func (r *Repository) Categories(ctx context.Context) (Result[[]domain.Category], error) {
	return get(ctx, r, cache.KindCategories, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Category, error) {
		return fetchAllCategories(ctx, api)
	})
}

// VodItems returns the movie catalog.
func (r *Repository) VodItems(ctx context.Context) (Result[[]domain.VodItem], error) {
	return get(ctx, r, cache.KindVod, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.VodItem, error) {
		return api.VodStreams(ctx, "")
	})
}

// SeriesList returns the series catalog without season detail.
func (r *Repository) SeriesList(ctx context.Context) (Result[[]domain.Series], error) {
	return get(ctx, r, cache.KindSeries, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Series, error) {
		return api.Series(ctx, "")
	})
}

// SeriesInfo fetches one show's seasons and episodes live. Episode stream
// URLs depend on container extensions only this response carries, so the
// result is not cached.
func (r *Repository) SeriesInfo(ctx context.Context, seriesID string) (*domain.Series, error) {
	api, err := r.activeAPI()
	if err != nil {
		return nil, err
	}
	return api.SeriesInfo(ctx, seriesID)
}

// VodInfo fetches one movie's extended metadata live.
func (r *Repository) VodInfo(ctx context.Context, vodID string) (*domain.VodItem, error) {
	api, err := r.activeAPI()
	if err != nil {
		return nil, err
	}
	return api.VodInfo(ctx, vodID)
}

// Authenticate verifies the active profile's credentials against its panel.
func (r *Repository) Authenticate(ctx context.Context) (*xtream.AccountInfo, error) {
	api, err := r.activeAPI()
	if err != nil {
		return nil, err
	}
	return api.Authenticate(ctx)
}

// Guide returns the active profile's parsed EPG.
func (r *Repository) Guide(ctx context.Context) (Result[*xmltv.Guide], error) {
	p, err := r.ActiveProfile()
	if err != nil {
		return Result[*xmltv.Guide]{}, err
	}
	r.maybeInvalidateSwitched(ctx, p)
	sid := sourceID(p)

	class := cache.TTLEPGXtream
	if p.EPGURL != "" {
		class = cache.TTLEPGURL
	}

	load := func() (*xmltv.Guide, bool) {
		var g xmltv.Guide
		if ok, err := r.store.Load(ctx, sid, cache.KindEPG, &g); err == nil && ok {
			return &g, true
		}
		return nil, false
	}

	stale, err := r.store.IsStale(ctx, sid, cache.KindEPG)
	if err != nil {
		return Result[*xmltv.Guide]{}, err
	}
	if !stale {
		if g, ok := load(); ok {
			return fresh(g), nil
		}
	}

	g, fetchErr := r.refreshEPG(ctx, p, sid, class)
	if fetchErr == nil {
		return fresh(g), nil
	}
	if cached, ok := load(); ok {
		metrics.StaleServed.WithLabelValues(string(cache.KindEPG)).Inc()
		log.Printf("repo: serving stale EPG for %s: %v", p.Name, fetchErr)
		return staleResult(cached, fetchErr), nil
	}
	return Result[*xmltv.Guide]{}, fetchErr
}

// NowNext returns the current and next program for a channel's tvg id.
func (r *Repository) NowNext(ctx context.Context, tvgID string) (*domain.EPGSummary, error) {
	res, err := r.Guide(ctx)
	if err != nil {
		return nil, err
	}
	return res.Data.NowNext(tvgID, r.now().UTC()), nil
}

// Refresh forces a refresh of one kind for the active profile, bypassing
// freshness checks but still coalescing with any in-flight fetch.
func (r *Repository) Refresh(ctx context.Context, kind cache.Kind) error {
	p, err := r.ActiveProfile()
	if err != nil {
		return err
	}
	sid := sourceID(p)
	if kind == cache.KindEPG {
		class := cache.TTLEPGXtream
		if p.EPGURL != "" {
			class = cache.TTLEPGURL
		}
		_, err := r.refreshEPG(ctx, p, sid, class)
		return err
	}
	if p.Strategy == domain.StrategyM3UImport || p.Type != domain.SourceXtream {
		_, err := r.importPlaylist(ctx, p, sid)
		return err
	}
	switch kind {
	case cache.KindChannels:
		_, err = refreshKind(ctx, r, p, sid, kind, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Channel, error) {
			return api.LiveStreams(ctx, "")
		})
	case cache.KindCategories:
		_, err = refreshKind(ctx, r, p, sid, kind, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Category, error) {
			return fetchAllCategories(ctx, api)
		})
	case cache.KindVod:
		_, err = refreshKind(ctx, r, p, sid, kind, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.VodItem, error) {
			return api.VodStreams(ctx, "")
		})
	case cache.KindSeries:
		_, err = refreshKind(ctx, r, p, sid, kind, func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]domain.Series, error) {
			return api.Series(ctx, "")
		})
	default:
		return errs.New(errs.Unknown, "unknown kind %q", kind)
	}
	return err
}

// RefreshAll refreshes every catalog kind plus the EPG for the active
// profile. Failures are collected, not short-circuited; one bad endpoint
// must not block the rest of the refresh. On the import path a single
// playlist fetch writes every catalog kind, so the playlist is downloaded
// and parsed exactly once per run. Profiles without an EPG source skip the
// EPG kind entirely.
func (r *Repository) RefreshAll(ctx context.Context) error {
	p, err := r.ActiveProfile()
	if err != nil {
		return err
	}

	var firstErr error
	record := func(what string, err error) {
		if err != nil {
			log.Printf("repo: refresh %s: %v", what, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if p.Strategy == domain.StrategyM3UImport || p.Type != domain.SourceXtream {
		_, err := r.importPlaylist(ctx, p, sourceID(p))
		record("playlist import", err)
	} else {
		for _, kind := range []cache.Kind{cache.KindChannels, cache.KindCategories, cache.KindVod, cache.KindSeries} {
			record(string(kind), r.Refresh(ctx, kind))
		}
	}
	if hasEPGSource(p) {
		record(string(cache.KindEPG), r.Refresh(ctx, cache.KindEPG))
	}

	if firstErr == nil {
		r.invalidateIndex()
	}
	return firstErr
}

// hasEPGSource reports whether a profile can serve guide data at all: a
// configured XMLTV URL or an Xtream panel with its xmltv.php endpoint.
// Profiles with neither have nothing to refresh, which is not a failure.
func hasEPGSource(p domain.Profile) bool {
	return p.EPGURL != "" || (p.Type == domain.SourceXtream && p.Xtream != nil)
}

// fetchFunc fetches one kind's data via the Xtream API.
type fetchFunc[T any] func(ctx context.Context, p domain.Profile, api XtreamAPI) ([]T, error)

// get is the shared read path: serve fresh cache, otherwise refresh through
// the single-flight gate, falling back to stale data when the upstream
// fails and a previous snapshot exists.
func get[T any](ctx context.Context, r *Repository, kind cache.Kind, fetch fetchFunc[T]) (Result[[]T], error) {
	p, err := r.ActiveProfile()
	if err != nil {
		return Result[[]T]{}, err
	}
	r.maybeInvalidateSwitched(ctx, p)
	sid := sourceID(p)

	load := func() ([]T, bool) {
		var data []T
		if ok, loadErr := r.store.Load(ctx, sid, kind, &data); loadErr == nil && ok {
			return data, true
		}
		return nil, false
	}

	stale, err := r.store.IsStale(ctx, sid, kind)
	if err != nil {
		return Result[[]T]{}, err
	}

	m3uPath := p.Strategy == domain.StrategyM3UImport || p.Type != domain.SourceXtream
	if !stale || m3uPath {
		// M3U imports serve the snapshot until explicitly refreshed; a stale
		// snapshot is still authoritative, only a missing one forces import.
		if data, ok := load(); ok {
			res := fresh(data)
			res.Stale = stale && m3uPath
			return res, nil
		}
	}

	var fetchErr error
	if m3uPath {
		_, fetchErr = r.importPlaylist(ctx, p, sid)
	} else {
		_, fetchErr = refreshKind(ctx, r, p, sid, kind, fetch)
	}
	if fetchErr == nil {
		if data, ok := load(); ok {
			return fresh(data), nil
		}
		return fresh[[]T](nil), nil
	}

	// Upstream failed: a previous good snapshot beats an empty answer.
	if data, ok := load(); ok {
		metrics.StaleServed.WithLabelValues(string(kind)).Inc()
		log.Printf("repo: serving stale %s for %s: %v", kind, p.Name, fetchErr)
		return staleResult(data, fetchErr), nil
	}
	return Result[[]T]{}, fetchErr
}

// refreshKind runs one upstream fetch through the single-flight gate keyed
// by (source, kind). Concurrent callers for the same key observe the same
// flight's outcome; the flight itself is detached from any one caller's
// cancellation so an abandoning caller cannot fail the others.
func refreshKind[T any](ctx context.Context, r *Repository, p domain.Profile, sid string, kind cache.Kind, fetch fetchFunc[T]) ([]T, error) {
	if p.Xtream == nil {
		return nil, errs.New(errs.NotFound, "profile %q has no Xtream credentials", p.Name)
	}
	key := sid + ":" + string(kind)
	v, err, shared := r.group.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		api := r.newXtream(*p.Xtream)
		data, err := fetch(fctx, p, api)
		if err != nil {
			return nil, err
		}
		if err := r.store.Save(fctx, sid, kind, data, len(data), cache.TTLCatalog, r.now().UTC()); err != nil {
			return nil, err
		}
		r.touchProfile(p.ID)
		if kind == cache.KindChannels {
			r.invalidateIndex()
		}
		return data, nil
	})
	if shared {
		metrics.RefreshCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// refreshEPG downloads and parses the XMLTV feed through the single-flight
// gate, then persists the parsed guide.
func (r *Repository) refreshEPG(ctx context.Context, p domain.Profile, sid string, class cache.TTLClass) (*xmltv.Guide, error) {
	key := sid + ":" + string(cache.KindEPG)
	v, err, shared := r.group.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		body, err := r.fetchEPGBody(fctx, p, sid)
		if err != nil {
			return nil, err
		}
		if body == nil {
			// 304: the feed is unchanged, bump the snapshot's freshness
			// stamp without re-parsing.
			var g xmltv.Guide
			ok, loadErr := r.store.Load(fctx, sid, cache.KindEPG, &g)
			if loadErr == nil && ok {
				meta, _ := r.store.Meta(fctx, sid, cache.KindEPG)
				count := 0
				if meta != nil {
					count = meta.ItemCount
				}
				if err := r.store.Save(fctx, sid, cache.KindEPG, &g, count, class, r.now().UTC()); err != nil {
					return nil, err
				}
				return &g, nil
			}
			// Not-modified but no local copy; refetch without validators.
			body, err = fetchURL(fctx, httpclient.WithTimeout(httpclient.EPGTimeout), p.EPGURL, "epg")
			if err != nil {
				return nil, err
			}
		}
		g, err := xmltv.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		count := 0
		for _, progs := range g.Programs {
			count += len(progs)
		}
		if err := r.store.Save(fctx, sid, cache.KindEPG, g, count, class, r.now().UTC()); err != nil {
			return nil, err
		}
		return g, nil
	})
	if shared {
		metrics.RefreshCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*xmltv.Guide), nil
}

// fetchEPGBody picks the EPG transport: a configured XMLTV URL wins,
// otherwise an Xtream profile uses the panel's xmltv.php. URL feeds go
// through a conditional GET; a nil body with nil error means 304.
func (r *Repository) fetchEPGBody(ctx context.Context, p domain.Profile, sid string) ([]byte, error) {
	if p.EPGURL != "" {
		var prior httpclient.Validators
		if err := r.store.LoadValidators(ctx, sid, cache.KindEPG, &prior); err != nil {
			log.Printf("repo: epg validators for %s: %v", p.Name, err)
		}
		body, v, notModified, err := httpclient.ConditionalGet(ctx, httpclient.WithTimeout(httpclient.EPGTimeout), p.EPGURL, prior)
		if err != nil {
			metrics.UpstreamFetches.WithLabelValues("epg", string(errs.KindOf(err))).Inc()
			return nil, err
		}
		metrics.UpstreamFetches.WithLabelValues("epg", "ok").Inc()
		if notModified {
			return nil, nil
		}
		if err := r.store.SaveValidators(ctx, sid, cache.KindEPG, v); err != nil {
			log.Printf("repo: save epg validators for %s: %v", p.Name, err)
		}
		return body, nil
	}
	if p.Type == domain.SourceXtream && p.Xtream != nil {
		return r.newXtream(*p.Xtream).DownloadXMLTV(ctx)
	}
	return nil, errs.New(errs.NotFound, "profile %q has no EPG source", p.Name)
}

// importPlaylist fetches, parses, and maps one M3U snapshot, persisting
// channels, categories, and VOD kinds in one pass. Single-flighted per
// source so concurrent first reads of different kinds share one import.
func (r *Repository) importPlaylist(ctx context.Context, p domain.Profile, sid string) (any, error) {
	key := sid + ":import"
	v, err, shared := r.group.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		body, err := r.fetchPlaylist(fctx, p)
		if err != nil {
			return nil, err
		}
		entries, err := m3u.Parse(body)
		if err != nil {
			return nil, err
		}
		channels := m3u.ToChannels(entries)
		categories := m3u.Categories(channels)

		// Movie-classified entries double as the VOD catalog on this path.
		var vod []domain.VodItem
		for _, ch := range channels {
			if ch.Type != domain.ContentMovie {
				continue
			}
			vod = append(vod, domain.VodItem{
				ID:         ch.ID,
				Name:       ch.Name,
				StreamURL:  ch.StreamURL,
				CategoryID: ch.CategoryID,
				PosterURL:  ch.LogoURL,
				Metadata:   ch.Metadata,
			})
		}

		now := r.now().UTC()
		if err := r.store.Save(fctx, sid, cache.KindChannels, channels, len(channels), cache.TTLCatalog, now); err != nil {
			return nil, err
		}
		if err := r.store.Save(fctx, sid, cache.KindCategories, categories, len(categories), cache.TTLCatalog, now); err != nil {
			return nil, err
		}
		if err := r.store.Save(fctx, sid, cache.KindVod, vod, len(vod), cache.TTLCatalog, now); err != nil {
			return nil, err
		}
		if err := r.store.Save(fctx, sid, cache.KindSeries, []domain.Series{}, 0, cache.TTLCatalog, now); err != nil {
			return nil, err
		}
		r.touchProfile(p.ID)
		r.invalidateIndex()
		metrics.UpstreamFetches.WithLabelValues("m3u", "ok").Inc()
		return channels, nil
	})
	if shared {
		metrics.RefreshCoalesced.Inc()
	}
	return v, err
}

// activeAPI builds an Xtream client for the active profile.
func (r *Repository) activeAPI() (XtreamAPI, error) {
	p, err := r.ActiveProfile()
	if err != nil {
		return nil, err
	}
	if p.Type != domain.SourceXtream || p.Xtream == nil {
		return nil, errs.New(errs.NotFound, "profile %q has no Xtream credentials", p.Name)
	}
	return r.newXtream(*p.Xtream), nil
}

// fetchAllCategories merges live, VOD, and series category lists.
func fetchAllCategories(ctx context.Context, api XtreamAPI) ([]domain.Category, error) {
	live, err := api.LiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	// VOD and series category endpoints are optional on some panels; their
	// failure degrades the merge rather than failing it.
	var out []domain.Category
	out = append(out, live...)
	if vod, err := api.VodCategories(ctx); err == nil {
		out = append(out, vod...)
	} else {
		log.Printf("repo: vod categories unavailable: %v", err)
	}
	if series, err := api.SeriesCategories(ctx); err == nil {
		out = append(out, series...)
	} else {
		log.Printf("repo: series categories unavailable: %v", err)
	}
	return out, nil
}

// playlistURL returns the location an M3U profile imports from. Xtream
// profiles on the import path use the panel's get.php endpoint.
func playlistURL(p domain.Profile) string {
	if p.URL != "" {
		return p.URL
	}
	if p.Xtream != nil {
		base := p.Xtream.BaseURL()
		return base + "/get.php?username=" + url.QueryEscape(p.Xtream.Username) +
			"&password=" + url.QueryEscape(p.Xtream.Password) + "&type=m3u_plus&output=ts"
	}
	return ""
}

// FetchPlaylist is the default playlist fetcher: local file for m3u_file
// profiles, HTTP GET otherwise.
func FetchPlaylist(ctx context.Context, p domain.Profile) (string, error) {
	if p.Type == domain.SourceM3UFile {
		data, err := os.ReadFile(strings.TrimPrefix(p.URL, "file://"))
		if err != nil {
			return "", errs.Wrap(errs.NotFound, err, "read playlist file")
		}
		return string(data), nil
	}
	target := playlistURL(p)
	if target == "" {
		return "", errs.New(errs.NotFound, "profile %q has no playlist source", p.Name)
	}
	body, err := fetchURL(ctx, httpclient.Default(), target, "playlist")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func fetchURL(ctx context.Context, hc *http.Client, rawURL, what string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, what)
	}
	req.Header.Set("User-Agent", "catalogd/1.0")
	resp, err := hc.Do(req)
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues(what, string(errs.KindOf(err))).Inc()
		return nil, errs.FromTransport(err, what)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		serr := errs.Status(resp.StatusCode, fmt.Sprintf("%s: %s", what, resp.Status))
		metrics.UpstreamFetches.WithLabelValues(what, string(serr.Kind)).Inc()
		return nil, serr
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, what)
	}
	metrics.UpstreamFetches.WithLabelValues(what, "ok").Inc()
	return body, nil
}
