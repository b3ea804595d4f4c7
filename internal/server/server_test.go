package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/kvstore"
	"github.com/catalogd/catalogd/internal/repo"
	"github.com/catalogd/catalogd/internal/xtream"
)

type stubAPI struct{}

func (stubAPI) Authenticate(ctx context.Context) (*xtream.AccountInfo, error) {
	return &xtream.AccountInfo{Status: "Active"}, nil
}
func (stubAPI) LiveCategories(ctx context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: "1", Name: "Sports"}}, nil
}
func (stubAPI) LiveStreams(ctx context.Context, categoryID string) ([]domain.Channel, error) {
	return []domain.Channel{{ID: "10", Name: "One", CategoryID: "1", Type: domain.ContentLive}}, nil
}
func (stubAPI) VodCategories(ctx context.Context) ([]domain.Category, error)    { return nil, nil }
func (stubAPI) SeriesCategories(ctx context.Context) ([]domain.Category, error) { return nil, nil }
func (stubAPI) VodStreams(ctx context.Context, categoryID string) ([]domain.VodItem, error) {
	return nil, nil
}
func (stubAPI) VodInfo(ctx context.Context, vodID string) (*domain.VodItem, error) {
	return nil, errs.New(errs.NotFound, "vod %q", vodID)
}
func (stubAPI) Series(ctx context.Context, categoryID string) ([]domain.Series, error) {
	return nil, nil
}
func (stubAPI) SeriesInfo(ctx context.Context, seriesID string) (*domain.Series, error) {
	return &domain.Series{ID: seriesID, Name: "A Show"}, nil
}
func (stubAPI) DownloadXMLTV(ctx context.Context) ([]byte, error) {
	return []byte(`<tv><channel id="c"><display-name>C</display-name></channel></tv>`), nil
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := cache.NewStore(kvstore.NewMemory(), cache.DefaultTTLs())
	r := repo.New(store, repo.WithXtreamFactory(func(domain.XtreamCredentials) repo.XtreamAPI {
		return stubAPI{}
	}))
	r.AddProfile(domain.Profile{
		Name:   "test",
		Type:   domain.SourceXtream,
		Xtream: &domain.XtreamCredentials{Host: "http://panel", Username: "u", Password: "p"},
	})
	srv := httptest.NewServer(New(":0", r).Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestChannelsEndpoint(t *testing.T) {
	srv := testServer(t)

	var body struct {
		Data  []domain.Channel `json:"data"`
		Stale bool             `json:"stale"`
	}
	if code := getJSON(t, srv.URL+"/api/channels", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Data) != 1 || body.Data[0].Name != "One" || body.Stale {
		t.Errorf("body = %+v", body)
	}
}

func TestChannelByID(t *testing.T) {
	srv := testServer(t)

	var ch domain.Channel
	if code := getJSON(t, srv.URL+"/api/channels/10", &ch); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if ch.Name != "One" {
		t.Errorf("ch = %+v", ch)
	}

	var errBody map[string]string
	if code := getJSON(t, srv.URL+"/api/channels/404", &errBody); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	if errBody["kind"] != "not_found" {
		t.Errorf("errBody = %v", errBody)
	}
}

func TestVodInfoErrorMapping(t *testing.T) {
	srv := testServer(t)
	if code := getJSON(t, srv.URL+"/api/vod/123", nil); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
}

func TestProfilesRedactPassword(t *testing.T) {
	srv := testServer(t)

	var profiles []domain.Profile
	if code := getJSON(t, srv.URL+"/api/profiles", &profiles); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(profiles) != 1 || profiles[0].Xtream == nil {
		t.Fatalf("profiles = %+v", profiles)
	}
	if profiles[0].Xtream.Password == "p" {
		t.Error("password leaked through the profiles endpoint")
	}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	var body map[string]any
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["active_profile"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Post(srv.URL+"/api/refresh?kind=channels", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
