package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/catalogd/catalogd/internal/errs"
)

// Validators are the cache-validator headers from a previous fetch of the
// same URL. Callers persist them between runs and pass them back in.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// ConditionalGet issues a GET carrying If-None-Match / If-Modified-Since when
// prior validators exist. notModified is true on a 304; the caller keeps its
// existing copy and its existing validators. On 200 the full body and the
// response's validators come back.
func ConditionalGet(ctx context.Context, client *http.Client, rawURL string, prior Validators) (body []byte, v Validators, notModified bool, err error) {
	if client == nil {
		client = Default()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Validators{}, false, errs.Wrap(errs.Unknown, err, "conditional get")
	}
	req.Header.Set("User-Agent", "catalogd/1.0")
	if prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}
	if prior.LastModified != "" {
		req.Header.Set("If-Modified-Since", prior.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Validators{}, false, errs.FromTransport(err, "conditional get")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, prior, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Validators{}, false, errs.Status(resp.StatusCode, fmt.Sprintf("conditional get: %s", resp.Status))
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, Validators{}, false, errs.Wrap(errs.Network, err, "conditional get: read body")
	}
	v = Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	return body, v, false, nil
}
