package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout         = 30 * time.Second
	LoginTimeout           = 10 * time.Second
	EPGTimeout             = 120 * time.Second // full XMLTV payloads run to tens of MB
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &decompressTransport{
			base: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: MaxIdleConnsPerHost,
				IdleConnTimeout:     DefaultIdleConnTimeout,
				// We negotiate Accept-Encoding ourselves to add brotli.
				DisableCompression: true,
			},
		},
	}
}

// Default returns the shared tuned HTTP client used by the Xtream client,
// playlist fetcher, and EPG downloader.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout sharing Default's
// transport, so connection pools are reused across timeout classes.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: defaultClient.Transport,
	}
}

// decompressTransport advertises gzip+br and transparently decodes whichever
// the upstream picked. Providers routinely compress xmltv.php bodies.
type decompressTransport struct {
	base http.RoundTripper
}

func (t *decompressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &wrappedBody{Reader: gz, closer: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	case "br":
		resp.Body = &wrappedBody{Reader: brotli.NewReader(resp.Body), closer: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}
	return resp, nil
}

type wrappedBody struct {
	io.Reader
	closer io.Closer
}

func (b *wrappedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		c.Close()
	}
	return b.closer.Close()
}
