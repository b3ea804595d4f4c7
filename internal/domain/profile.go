package domain

import (
	"strings"
	"time"
)

// SourceType identifies how a profile's catalog is reached.
type SourceType string

const (
	SourceM3UFile SourceType = "m3u_file"
	SourceM3UURL  SourceType = "m3u_url"
	SourceXtream  SourceType = "xtream"
)

// Strategy selects the ingestion path for an Xtream profile: query the
// player_api directly, or import the provider's M3U snapshot once and serve
// reads from it.
type Strategy string

const (
	StrategyAPIDirect Strategy = "api_direct"
	StrategyM3UImport Strategy = "m3u_import"
)

// XtreamCredentials identifies an Xtream Codes account.
type XtreamCredentials struct {
	Host     string `json:"host" yaml:"host"` // e.g. http://provider.example.com
	Port     string `json:"port,omitempty" yaml:"port,omitempty"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// BaseURL returns the host with any trailing slash stripped and the explicit
// port appended when one is configured.
func (c XtreamCredentials) BaseURL() string {
	base := strings.TrimSuffix(strings.TrimSpace(c.Host), "/")
	if c.Port != "" && !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(base, "https://"), "http://"), ":") {
		base += ":" + c.Port
	}
	return base
}

// Profile is one configured provider. Exactly one profile is active at a
// time; the repository enforces that, not storage.
type Profile struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Type        SourceType         `json:"type" yaml:"type"`
	URL         string             `json:"url,omitempty" yaml:"url,omitempty"`         // playlist location for m3u_* types
	EPGURL      string             `json:"epg_url,omitempty" yaml:"epg_url,omitempty"` // optional XMLTV feed URL; Xtream profiles default to xmltv.php
	Xtream      *XtreamCredentials `json:"xtream,omitempty" yaml:"xtream,omitempty"`
	Strategy    Strategy           `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	AddedAt     time.Time          `json:"added_at" yaml:"-"`
	LastUpdated time.Time          `json:"last_updated" yaml:"-"`
	Active      bool               `json:"active" yaml:"active"`
}
