// Package safeurl guards the places where user-supplied URLs enter the
// system: scheme allow-listing for fetch targets and credential redaction
// for log output.
package safeurl

import "net/url"

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF
// or local file access via a profile's playlist or EPG URL.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact strips credentials from u for logging. Provider URLs carry the
// account username and password in the query string and userinfo; log lines
// must never echo them.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<unparseable url>"
	}
	if parsed.User != nil {
		parsed.User = url.User("xxx")
	}
	q := parsed.Query()
	for _, k := range []string{"username", "password", "token"} {
		if q.Has(k) {
			q.Set(k, "xxx")
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
