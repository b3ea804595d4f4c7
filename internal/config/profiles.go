package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/safeurl"
)

// ProfilesFile is the on-disk shape of the profiles YAML.
type ProfilesFile struct {
	Profiles []domain.Profile `yaml:"profiles"`
}

// LoadProfiles reads and validates a profiles YAML file. A missing file
// yields an empty list so the service can start with no sources configured.
func LoadProfiles(path string) ([]domain.Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var f ProfilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	for i, p := range f.Profiles {
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("profile %d (%s): %w", i, p.Name, err)
		}
	}
	return f.Profiles, nil
}

func validateProfile(p domain.Profile) error {
	switch p.Type {
	case domain.SourceM3UFile:
		if p.URL == "" {
			return fmt.Errorf("m3u profile needs a url")
		}
	case domain.SourceM3UURL:
		if p.URL == "" {
			return fmt.Errorf("m3u profile needs a url")
		}
		if !safeurl.IsHTTPOrHTTPS(p.URL) {
			return fmt.Errorf("m3u_url profile needs an http(s) url, got %s", safeurl.Redact(p.URL))
		}
	case domain.SourceXtream:
		if p.Xtream == nil || p.Xtream.Host == "" || p.Xtream.Username == "" {
			return fmt.Errorf("xtream profile needs host and username")
		}
		switch p.Strategy {
		case domain.StrategyAPIDirect, domain.StrategyM3UImport, "":
		default:
			return fmt.Errorf("unknown strategy %q", p.Strategy)
		}
	default:
		return fmt.Errorf("unknown source type %q", p.Type)
	}
	if p.EPGURL != "" && !safeurl.IsHTTPOrHTTPS(p.EPGURL) {
		return fmt.Errorf("epg_url must be http(s), got %s", safeurl.Redact(p.EPGURL))
	}
	return nil
}
