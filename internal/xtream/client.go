// Package xtream implements the Xtream Codes player_api.php client and the
// mapping of its JSON responses onto the normalized domain model.
package xtream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/httpclient"
	"github.com/catalogd/catalogd/internal/metrics"
)

const (
	actionLiveCategories   = "get_live_categories"
	actionLiveStreams      = "get_live_streams"
	actionVodCategories    = "get_vod_categories"
	actionVodStreams       = "get_vod_streams"
	actionVodInfo          = "get_vod_info"
	actionSeriesCategories = "get_series_categories"
	actionSeries           = "get_series"
	actionSeriesInfo       = "get_series_info"

	// Pacing between panel requests; panels rate-limit aggressively and a
	// category fan-out can issue dozens of calls back to back.
	requestInterval = 200 * time.Millisecond
)

// Client talks to one Xtream Codes panel. Safe for concurrent use.
type Client struct {
	creds   domain.XtreamCredentials
	baseURL string
	liveExt string // extension for live stream URLs: "ts" or "m3u8"

	httpDefault *http.Client
	httpLogin   *http.Client
	httpEPG     *http.Client
	limiter     *rate.Limiter
}

// Option tweaks a Client.
type Option func(*Client)

// WithLiveExtension overrides the live stream URL extension (default "ts").
func WithLiveExtension(ext string) Option {
	return func(c *Client) { c.liveExt = ext }
}

// WithHTTPClient replaces all three timeout-class clients; used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpDefault = hc
		c.httpLogin = hc
		c.httpEPG = hc
	}
}

// NewClient builds a client for the given credentials.
func NewClient(creds domain.XtreamCredentials, opts ...Option) *Client {
	c := &Client{
		creds:       creds,
		baseURL:     creds.BaseURL(),
		liveExt:     "ts",
		httpDefault: httpclient.Default(),
		httpLogin:   httpclient.WithTimeout(httpclient.LoginTimeout),
		httpEPG:     httpclient.WithTimeout(httpclient.EPGTimeout),
		limiter:     rate.NewLimiter(rate.Every(requestInterval), 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiURL builds a player_api.php URL. action may be empty (authenticate);
// categoryID is appended only when non-empty.
func (c *Client) apiURL(action, categoryID string, extra url.Values) string {
	u := c.baseURL + "/player_api.php?username=" + url.QueryEscape(c.creds.Username) +
		"&password=" + url.QueryEscape(c.creds.Password)
	if action != "" {
		u += "&action=" + url.QueryEscape(action)
	}
	if categoryID != "" {
		u += "&category_id=" + url.QueryEscape(categoryID)
	}
	for k, vs := range extra {
		for _, v := range vs {
			u += "&" + url.QueryEscape(k) + "=" + url.QueryEscape(v)
		}
	}
	return u
}

// get performs one paced GET and returns the body. All failures come back
// tagged with the error taxonomy; nothing panics across this boundary.
func (c *Client) get(ctx context.Context, hc *http.Client, rawURL, what string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.Unknown, err, what)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, what)
	}
	req.Header.Set("User-Agent", "catalogd/1.0")
	resp, err := hc.Do(req)
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues("xtream", string(errs.KindOf(err))).Inc()
		return nil, errs.FromTransport(err, what)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		serr := errs.Status(resp.StatusCode, fmt.Sprintf("%s: %s", what, resp.Status))
		metrics.UpstreamFetches.WithLabelValues("xtream", string(serr.Kind)).Inc()
		return nil, serr
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues("xtream", string(errs.Network)).Inc()
		return nil, errs.Wrap(errs.Network, err, what)
	}
	metrics.UpstreamFetches.WithLabelValues("xtream", "ok").Inc()
	return body, nil
}

// AccountInfo is the normalized authenticate() result.
type AccountInfo struct {
	Username       string
	Status         string
	ExpDate        time.Time
	MaxConnections int
	ActiveConns    int
	ServerURL      string
	ServerPort     string
	Metadata       domain.Metadata
}

// Authenticate calls player_api.php without an action and validates the
// account. An HTTP 200 carrying an expired or disabled account is an Auth
// failure; panels report logical login failure in-band.
func (c *Client) Authenticate(ctx context.Context) (*AccountInfo, error) {
	body, err := c.get(ctx, c.httpLogin, c.apiURL("", "", nil), "authenticate")
	if err != nil {
		return nil, err
	}
	return mapAccountInfo(body)
}

// LiveCategories fetches live stream categories.
func (c *Client) LiveCategories(ctx context.Context) ([]domain.Category, error) {
	return c.categories(ctx, actionLiveCategories)
}

// VodCategories fetches VOD categories.
func (c *Client) VodCategories(ctx context.Context) ([]domain.Category, error) {
	return c.categories(ctx, actionVodCategories)
}

// SeriesCategories fetches series categories.
func (c *Client) SeriesCategories(ctx context.Context) ([]domain.Category, error) {
	return c.categories(ctx, actionSeriesCategories)
}

func (c *Client) categories(ctx context.Context, action string) ([]domain.Category, error) {
	body, err := c.get(ctx, c.httpDefault, c.apiURL(action, "", nil), action)
	if err != nil {
		return nil, err
	}
	return mapCategories(body, action)
}

// LiveStreams fetches live channels, optionally scoped to one category.
func (c *Client) LiveStreams(ctx context.Context, categoryID string) ([]domain.Channel, error) {
	body, err := c.get(ctx, c.httpDefault, c.apiURL(actionLiveStreams, categoryID, nil), actionLiveStreams)
	if err != nil {
		return nil, err
	}
	return mapLiveStreams(body, c.streamURLBuilder())
}

// VodStreams fetches the movie catalog, optionally scoped to one category.
func (c *Client) VodStreams(ctx context.Context, categoryID string) ([]domain.VodItem, error) {
	body, err := c.get(ctx, c.httpDefault, c.apiURL(actionVodStreams, categoryID, nil), actionVodStreams)
	if err != nil {
		return nil, err
	}
	return mapVodStreams(body, c.streamURLBuilder())
}

// VodInfo fetches extended metadata for one movie.
func (c *Client) VodInfo(ctx context.Context, vodID string) (*domain.VodItem, error) {
	extra := url.Values{"vod_id": {vodID}}
	body, err := c.get(ctx, c.httpDefault, c.apiURL(actionVodInfo, "", extra), actionVodInfo)
	if err != nil {
		return nil, err
	}
	return mapVodInfo(body, vodID, c.streamURLBuilder())
}

// Series fetches the series catalog (without seasons), optionally scoped to
// one category.
func (c *Client) Series(ctx context.Context, categoryID string) ([]domain.Series, error) {
	body, err := c.get(ctx, c.httpDefault, c.apiURL(actionSeries, categoryID, nil), actionSeries)
	if err != nil {
		return nil, err
	}
	return mapSeriesList(body)
}

// SeriesInfo fetches one show's seasons and episodes. Episode stream URLs are
// built here because the container extension only appears in this response.
func (c *Client) SeriesInfo(ctx context.Context, seriesID string) (*domain.Series, error) {
	extra := url.Values{"series_id": {seriesID}}
	body, err := c.get(ctx, c.httpDefault, c.apiURL(actionSeriesInfo, "", extra), actionSeriesInfo)
	if err != nil {
		return nil, err
	}
	return mapSeriesInfo(body, seriesID, c.streamURLBuilder())
}

// DownloadXMLTV fetches the panel's full XMLTV EPG. Uses the extended
// timeout class; EPG payloads are by far the largest the panel serves.
func (c *Client) DownloadXMLTV(ctx context.Context) ([]byte, error) {
	u := c.baseURL + "/xmltv.php?username=" + url.QueryEscape(c.creds.Username) +
		"&password=" + url.QueryEscape(c.creds.Password)
	return c.get(ctx, c.httpEPG, u, "xmltv download")
}

// streamURLBuilder returns the deterministic URL constructor for this
// client's credentials.
func (c *Client) streamURLBuilder() urlBuilder {
	return urlBuilder{
		base:    c.baseURL,
		user:    c.creds.Username,
		pass:    c.creds.Password,
		liveExt: c.liveExt,
	}
}

// urlBuilder assembles playback URLs. Pure function of its fields; the same
// inputs always yield the same URL.
type urlBuilder struct {
	base    string
	user    string
	pass    string
	liveExt string
}

func (b urlBuilder) live(streamID string) string {
	ext := b.liveExt
	if ext == "" {
		ext = "ts"
	}
	return fmt.Sprintf("%s/live/%s/%s/%s.%s", b.base, url.PathEscape(b.user), url.PathEscape(b.pass), url.PathEscape(streamID), ext)
}

func (b urlBuilder) movie(streamID, containerExt string) string {
	return fmt.Sprintf("%s/movie/%s/%s/%s.%s", b.base, url.PathEscape(b.user), url.PathEscape(b.pass), url.PathEscape(streamID), sanitizeExt(containerExt))
}

func (b urlBuilder) episode(episodeID, containerExt string) string {
	return fmt.Sprintf("%s/series/%s/%s/%s.%s", b.base, url.PathEscape(b.user), url.PathEscape(b.pass), url.PathEscape(episodeID), sanitizeExt(containerExt))
}

// sanitizeExt falls back to mp4 when the provider omits or mangles
// container_extension.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" || len(ext) > 5 || strings.ContainsAny(ext, "/\\?&") {
		return "mp4"
	}
	return ext
}
