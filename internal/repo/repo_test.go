package repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/kvstore"
	"github.com/catalogd/catalogd/internal/xtream"
)

// fakeAPI is a scriptable XtreamAPI. Call counts are atomic so tests can
// hammer it from many goroutines.
type fakeAPI struct {
	liveCalls atomic.Int64
	liveDelay time.Duration
	failLive  error

	channels []domain.Channel
}

func (f *fakeAPI) LiveStreams(ctx context.Context, categoryID string) ([]domain.Channel, error) {
	f.liveCalls.Add(1)
	if f.liveDelay > 0 {
		time.Sleep(f.liveDelay)
	}
	if f.failLive != nil {
		return nil, f.failLive
	}
	return f.channels, nil
}

func (f *fakeAPI) Authenticate(ctx context.Context) (*xtream.AccountInfo, error) {
	return &xtream.AccountInfo{Status: "Active"}, nil
}
func (f *fakeAPI) LiveCategories(ctx context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: "1", Name: "Sports"}}, nil
}
func (f *fakeAPI) VodCategories(ctx context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: "2", Name: "Movies"}}, nil
}
func (f *fakeAPI) SeriesCategories(ctx context.Context) ([]domain.Category, error) {
	return nil, errs.New(errs.Server, "panel has no series")
}
func (f *fakeAPI) VodStreams(ctx context.Context, categoryID string) ([]domain.VodItem, error) {
	return []domain.VodItem{{ID: "m1", Name: "A Movie"}}, nil
}
func (f *fakeAPI) VodInfo(ctx context.Context, vodID string) (*domain.VodItem, error) {
	return &domain.VodItem{ID: vodID}, nil
}
func (f *fakeAPI) Series(ctx context.Context, categoryID string) ([]domain.Series, error) {
	return []domain.Series{{ID: "s1", Name: "A Show"}}, nil
}
func (f *fakeAPI) SeriesInfo(ctx context.Context, seriesID string) (*domain.Series, error) {
	return &domain.Series{ID: seriesID}, nil
}
func (f *fakeAPI) DownloadXMLTV(ctx context.Context) ([]byte, error) {
	return []byte(`<tv><programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c"><title>P</title></programme></tv>`), nil
}

func xtreamProfile() domain.Profile {
	return domain.Profile{
		Name:   "test",
		Type:   domain.SourceXtream,
		Xtream: &domain.XtreamCredentials{Host: "http://panel", Username: "u", Password: "p"},
	}
}

func newTestRepo(t *testing.T, api *fakeAPI, opts ...Option) *Repository {
	t.Helper()
	store := cache.NewStore(kvstore.NewMemory(), cache.DefaultTTLs())
	opts = append([]Option{
		WithXtreamFactory(func(domain.XtreamCredentials) XtreamAPI { return api }),
	}, opts...)
	return New(store, opts...)
}

func TestChannels_readThroughAndCached(t *testing.T) {
	api := &fakeAPI{channels: []domain.Channel{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}}}
	r := newTestRepo(t, api)
	r.AddProfile(xtreamProfile())
	ctx := context.Background()

	res, err := r.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data) != 2 || res.Stale {
		t.Fatalf("res = %+v", res)
	}

	// Second read is served from cache; the upstream is not hit again.
	if _, err := r.Channels(ctx); err != nil {
		t.Fatal(err)
	}
	if got := api.liveCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestChannels_concurrentReadsCoalesce(t *testing.T) {
	api := &fakeAPI{
		channels:  []domain.Channel{{ID: "1", Name: "One"}},
		liveDelay: 50 * time.Millisecond,
	}
	r := newTestRepo(t, api)
	r.AddProfile(xtreamProfile())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Channels(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := api.liveCalls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 for coalesced refresh", got)
	}
}

func TestChannels_staleFallbackOnUpstreamFailure(t *testing.T) {
	api := &fakeAPI{channels: []domain.Channel{{ID: "1", Name: "One"}}}
	clock := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store := cache.NewStore(kvstore.NewMemory(), cache.DefaultTTLs()).WithClock(now)
	r := New(store,
		WithXtreamFactory(func(domain.XtreamCredentials) XtreamAPI { return api }),
		WithClock(now),
	)
	r.AddProfile(xtreamProfile())
	ctx := context.Background()

	if _, err := r.Channels(ctx); err != nil {
		t.Fatal(err)
	}

	// TTL expires, then the upstream starts failing.
	clock = clock.Add(25 * time.Hour)
	api.failLive = errs.New(errs.Network, "connection refused")

	res, err := r.Channels(ctx)
	if err != nil {
		t.Fatalf("stale fallback must not error: %v", err)
	}
	if !res.Stale || res.Warning == "" {
		t.Errorf("res = %+v, want stale with warning", res)
	}
	if len(res.Data) != 1 || res.Data[0].Name != "One" {
		t.Errorf("data = %+v", res.Data)
	}
}

func TestChannels_failureWithEmptyCachePropagates(t *testing.T) {
	api := &fakeAPI{failLive: errs.New(errs.Network, "connection refused")}
	r := newTestRepo(t, api)
	r.AddProfile(xtreamProfile())

	_, err := r.Channels(context.Background())
	if errs.KindOf(err) != errs.Network {
		t.Fatalf("err = %v, want network kind", err)
	}
}

func TestChannels_noActiveProfile(t *testing.T) {
	r := newTestRepo(t, &fakeAPI{})
	_, err := r.Channels(context.Background())
	if errs.KindOf(err) != errs.NotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestCategories_mergesAndSurvivesPartialFailure(t *testing.T) {
	api := &fakeAPI{}
	r := newTestRepo(t, api)
	r.AddProfile(xtreamProfile())

	res, err := r.Categories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Series categories fail on this fake; live + vod still merge.
	if len(res.Data) != 2 {
		t.Fatalf("categories = %+v", res.Data)
	}
}

func TestM3UImport_singleFetchFillsEveryKind(t *testing.T) {
	playlist := `#EXTM3U
#EXTINF:-1 tvg-id="one.tv" group-title="News",One
http://e/live/1
#EXTINF:-1 group-title="Movies | Action",A Film
http://e/movie/2.mp4
`
	var fetches atomic.Int64
	r := newTestRepo(t, &fakeAPI{}, WithPlaylistFetcher(func(ctx context.Context, p domain.Profile) (string, error) {
		fetches.Add(1)
		return playlist, nil
	}))
	r.AddProfile(domain.Profile{Name: "list", Type: domain.SourceM3UURL, URL: "http://e/list.m3u"})
	ctx := context.Background()

	chans, err := r.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chans.Data) != 2 {
		t.Fatalf("channels = %+v", chans.Data)
	}

	// Other kinds were persisted by the same import.
	vod, err := r.VodItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(vod.Data) != 1 || vod.Data[0].Name != "A Film" {
		t.Errorf("vod = %+v", vod.Data)
	}
	cats, err := r.Categories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats.Data) != 2 {
		t.Errorf("categories = %+v", cats.Data)
	}
	series, err := r.SeriesList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Data) != 0 {
		t.Errorf("series = %+v", series.Data)
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("playlist fetches = %d, want 1", got)
	}
}

func TestRefreshAll_m3uImportFetchesPlaylistOnce(t *testing.T) {
	playlist := `#EXTM3U
#EXTINF:-1 tvg-id="one.tv" group-title="News",One
http://e/live/1
#EXTINF:-1 group-title="Movies",A Film
http://e/movie/2.mp4
`
	var fetches atomic.Int64
	r := newTestRepo(t, &fakeAPI{}, WithPlaylistFetcher(func(ctx context.Context, p domain.Profile) (string, error) {
		fetches.Add(1)
		return playlist, nil
	}))
	r.AddProfile(domain.Profile{Name: "list", Type: domain.SourceM3UURL, URL: "http://e/list.m3u"})
	ctx := context.Background()

	// No EPG source on this profile: the EPG kind is skipped, not failed.
	if err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Fatalf("playlist fetched %d times during one RefreshAll, want 1", got)
	}

	// Every catalog kind was written by that single import.
	chans, err := r.Channels(ctx)
	if err != nil || len(chans.Data) != 2 {
		t.Fatalf("channels = %+v, %v", chans.Data, err)
	}
	vod, err := r.VodItems(ctx)
	if err != nil || len(vod.Data) != 1 {
		t.Fatalf("vod = %+v, %v", vod.Data, err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("reads after RefreshAll refetched the playlist: %d fetches", got)
	}

	// A second run is one more import, not one per kind.
	if err := r.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("playlist fetches after two RefreshAll runs = %d, want 2", got)
	}
}

func TestRefreshAll_m3uProfileWithEPGURLRefreshesGuide(t *testing.T) {
	playlist := "#EXTM3U\n#EXTINF:-1 tvg-id=\"c\",C\nhttp://e/1\n"
	r := newTestRepo(t, &fakeAPI{}, WithPlaylistFetcher(func(ctx context.Context, p domain.Profile) (string, error) {
		return playlist, nil
	}))
	r.AddProfile(domain.Profile{Name: "list", Type: domain.SourceM3UURL, URL: "http://e/list.m3u", EPGURL: "http://127.0.0.1:1/epg.xml"})

	// The EPG URL is unreachable, so the run reports a failure; the catalog
	// import must still have landed.
	err := r.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected EPG failure to surface when an EPG source is configured")
	}
	chans, cerr := r.Channels(context.Background())
	if cerr != nil || len(chans.Data) != 1 {
		t.Fatalf("channels = %+v, %v", chans.Data, cerr)
	}
}

func TestRefresh_xtreamProfileWithoutCredentials(t *testing.T) {
	r := newTestRepo(t, &fakeAPI{})
	r.AddProfile(domain.Profile{Name: "broken", Type: domain.SourceXtream})

	if err := r.Refresh(context.Background(), cache.KindChannels); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
	if _, err := r.Channels(context.Background()); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("read err = %v, want not_found", err)
	}
}

func TestStrategySwitch_invalidatesPreviousSlot(t *testing.T) {
	api := &fakeAPI{channels: []domain.Channel{{ID: "api1", Name: "From API"}}}
	playlist := "#EXTM3U\n#EXTINF:-1 tvg-id=\"m1\",From M3U\nhttp://e/1\n"
	r := newTestRepo(t, api, WithPlaylistFetcher(func(ctx context.Context, p domain.Profile) (string, error) {
		return playlist, nil
	}))
	p := r.AddProfile(xtreamProfile())
	ctx := context.Background()

	res, err := r.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Data[0].ID != "api1" {
		t.Fatalf("api-direct data = %+v", res.Data)
	}

	if err := r.SetStrategy(p.ID, domain.StrategyM3UImport); err != nil {
		t.Fatal(err)
	}
	res, err = r.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data) != 1 || res.Data[0].ID != "m1" {
		t.Fatalf("m3u-import data = %+v", res.Data)
	}

	// Switch back: the api-direct slot was cleared on the previous switch,
	// so this read refetches from the API instead of serving old data.
	before := api.liveCalls.Load()
	if err := r.SetStrategy(p.ID, domain.StrategyAPIDirect); err != nil {
		t.Fatal(err)
	}
	res, err = r.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Data[0].ID != "api1" {
		t.Fatalf("after switch back = %+v", res.Data)
	}
	if api.liveCalls.Load() != before+1 {
		t.Error("expected a fresh API fetch after switching back")
	}
}

func TestProfiles_lifecycle(t *testing.T) {
	r := newTestRepo(t, &fakeAPI{})

	a := r.AddProfile(domain.Profile{Name: "a", Type: domain.SourceM3UURL, URL: "http://e/a.m3u"})
	if a.ID == "" {
		t.Fatal("no ID assigned")
	}
	if !a.Active {
		t.Error("first profile must become active")
	}

	b := r.AddProfile(domain.Profile{Name: "b", Type: domain.SourceM3UURL, URL: "http://e/b.m3u"})
	active, err := r.ActiveProfile()
	if err != nil || active.ID != a.ID {
		t.Fatalf("active = %+v, %v", active, err)
	}

	if err := r.SetActiveProfile(b.ID); err != nil {
		t.Fatal(err)
	}
	active, _ = r.ActiveProfile()
	if active.ID != b.ID {
		t.Errorf("active = %+v", active)
	}
	// Exactly one active.
	count := 0
	for _, p := range r.Profiles() {
		if p.Active {
			count++
		}
	}
	if count != 1 {
		t.Errorf("active count = %d", count)
	}

	if err := r.SetActiveProfile("nope"); errs.KindOf(err) != errs.NotFound {
		t.Errorf("err = %v", err)
	}
}

func TestChannelLookups(t *testing.T) {
	api := &fakeAPI{channels: []domain.Channel{
		{ID: "1", Name: "B Channel", CategoryID: "5", Type: domain.ContentLive},
		{ID: "2", Name: "A Channel", CategoryID: "5", Type: domain.ContentLive},
		{ID: "3", Name: "Elsewhere", CategoryID: "9", Type: domain.ContentLive},
	}}
	r := newTestRepo(t, api)
	r.AddProfile(xtreamProfile())
	ctx := context.Background()

	ch, err := r.Channel(ctx, "2")
	if err != nil || ch.Name != "A Channel" {
		t.Fatalf("channel = %+v, %v", ch, err)
	}
	if _, err := r.Channel(ctx, "404"); errs.KindOf(err) != errs.NotFound {
		t.Errorf("err = %v", err)
	}

	byCat, err := r.ChannelsByCategory(ctx, "5")
	if err != nil {
		t.Fatal(err)
	}
	if len(byCat) != 2 || byCat[0].Name != "A Channel" {
		t.Errorf("byCat = %+v", byCat)
	}

	byType, err := r.ChannelsByType(ctx, domain.ContentLive)
	if err != nil || len(byType) != 3 {
		t.Errorf("byType = %+v, %v", byType, err)
	}
}

func TestGuide_nowNext(t *testing.T) {
	r := newTestRepo(t, &fakeAPI{})
	r.AddProfile(xtreamProfile())

	res, err := r.Guide(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data.Programs["c"]) != 1 {
		t.Fatalf("guide = %+v", res.Data)
	}

	at := time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC)
	nn := res.Data.NowNext("c", at)
	if nn == nil || nn.Current == nil || nn.Current.Title != "P" {
		t.Fatalf("nownext = %+v", nn)
	}
}

func TestSourceID_strategyDependent(t *testing.T) {
	p := xtreamProfile()
	p.ID = "pid"
	apiSlot := sourceID(p)
	if apiSlot != "pid" {
		t.Errorf("api-direct slot = %q", apiSlot)
	}
	p.Strategy = domain.StrategyM3UImport
	m3uSlot := sourceID(p)
	if m3uSlot == apiSlot {
		t.Error("m3u-import must use a separate slot")
	}

	// Two xtream profiles with identical credentials share the playlist slot.
	q := xtreamProfile()
	q.ID = "other"
	q.Strategy = domain.StrategyM3UImport
	if sourceID(q) != m3uSlot {
		t.Error("identical playlists must share a slot")
	}
}
