// Package health checks whether the active profile's upstream is reachable
// at all, separately from any catalog fetch.
package health

import (
	"context"
	"io"
	"net/http"

	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/httpclient"
)

// CheckURL issues a GET against rawURL and reports taxonomy-tagged failure.
// Some providers reject HEAD, so the body is drained and discarded instead.
func CheckURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return errs.New(errs.NotFound, "no upstream URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Wrap(errs.Unknown, err, "upstream check")
	}
	req.Header.Set("User-Agent", "catalogd/1.0")
	resp, err := httpclient.Default().Do(req)
	if err != nil {
		return errs.FromTransport(err, "upstream unreachable")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Status(resp.StatusCode, "upstream check")
	}
	return nil
}
