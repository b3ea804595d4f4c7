// Package cache layers TTL-tracked snapshots over the opaque key/value
// store. Each (sourceID, kind) pair is an independent slot holding the last
// good snapshot plus metadata about when it was fetched. Reads never touch
// the network; staleness only tells the caller it is time to refresh.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/catalogd/catalogd/internal/kvstore"
	"github.com/catalogd/catalogd/internal/metrics"
)

// Kind names one cached data family for a source.
type Kind string

const (
	KindChannels   Kind = "channels"
	KindCategories Kind = "categories"
	KindVod        Kind = "vod"
	KindSeries     Kind = "series"
	KindEPG        Kind = "epg"
)

// TTLClass selects which TTL table row governs a slot.
type TTLClass string

const (
	TTLCatalog   TTLClass = "catalog"    // channels, categories, vod, series
	TTLEPGXtream TTLClass = "epg_xtream" // EPG fetched via player panel xmltv.php
	TTLEPGURL    TTLClass = "epg_url"    // EPG fetched from a configured URL
)

// TTLTable is the single consolidated per-class TTL configuration. The
// previous split of EPG vs. general knobs across modules was ambiguous; every
// slot now resolves through exactly this table.
type TTLTable struct {
	Catalog   time.Duration
	EPGXtream time.Duration
	EPGURL    time.Duration
}

// DefaultTTLs returns the stock table: catalog data a day, EPG six hours.
func DefaultTTLs() TTLTable {
	return TTLTable{
		Catalog:   24 * time.Hour,
		EPGXtream: 6 * time.Hour,
		EPGURL:    6 * time.Hour,
	}
}

// For resolves the duration for a class.
func (t TTLTable) For(class TTLClass) time.Duration {
	switch class {
	case TTLEPGXtream:
		return t.EPGXtream
	case TTLEPGURL:
		return t.EPGURL
	default:
		return t.Catalog
	}
}

// Metadata describes one slot's last write. Never exposed to consumers
// directly; the repository reads it to drive staleness decisions.
type Metadata struct {
	LastFetchedAt time.Time `json:"last_fetched_at"`
	ItemCount     int       `json:"item_count"`
	TTLClass      TTLClass  `json:"ttl_class"`
}

// Store reads and writes snapshots through a kvstore.
type Store struct {
	kv   kvstore.Store
	ttls TTLTable
	now  func() time.Time
}

// NewStore wraps kv. A zero TTLTable entry falls back to the default table.
func NewStore(kv kvstore.Store, ttls TTLTable) *Store {
	def := DefaultTTLs()
	if ttls.Catalog <= 0 {
		ttls.Catalog = def.Catalog
	}
	if ttls.EPGXtream <= 0 {
		ttls.EPGXtream = def.EPGXtream
	}
	if ttls.EPGURL <= 0 {
		ttls.EPGURL = def.EPGURL
	}
	return &Store{kv: kv, ttls: ttls, now: time.Now}
}

// WithClock overrides the time source. Tests use it to simulate expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// TTLs returns the table the store resolves against.
func (s *Store) TTLs() TTLTable { return s.ttls }

func snapshotKey(sourceID string, kind Kind) string {
	return fmt.Sprintf("snapshot:%s:%s", sourceID, kind)
}

func metaKey(sourceID string, kind Kind) string {
	return fmt.Sprintf("meta:%s:%s", sourceID, kind)
}

// Save writes a snapshot and its metadata. itemCount is recorded for
// observability; fetchedAt drives later staleness checks.
func (s *Store) Save(ctx context.Context, sourceID string, kind Kind, data any, itemCount int, class TTLClass, fetchedAt time.Time) error {
	if err := s.kv.SetJSON(ctx, snapshotKey(sourceID, kind), data); err != nil {
		return fmt.Errorf("cache save %s/%s: %w", sourceID, kind, err)
	}
	meta := Metadata{LastFetchedAt: fetchedAt.UTC(), ItemCount: itemCount, TTLClass: class}
	if err := s.kv.SetJSON(ctx, metaKey(sourceID, kind), meta); err != nil {
		return fmt.Errorf("cache save meta %s/%s: %w", sourceID, kind, err)
	}
	metrics.SnapshotItems.WithLabelValues(sourceID, string(kind)).Set(float64(itemCount))
	return nil
}

// Load reads a snapshot into dst. ok is false on a clean miss; err reports
// real I/O or decode failure only.
func (s *Store) Load(ctx context.Context, sourceID string, kind Kind, dst any) (ok bool, err error) {
	err = s.kv.GetJSON(ctx, snapshotKey(sourceID, kind), dst)
	if errors.Is(err, kvstore.ErrNotFound) {
		metrics.CacheReads.WithLabelValues(string(kind), "miss").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache load %s/%s: %w", sourceID, kind, err)
	}
	metrics.CacheReads.WithLabelValues(string(kind), "hit").Inc()
	return true, nil
}

// Meta returns the slot's metadata, or nil on a clean miss.
func (s *Store) Meta(ctx context.Context, sourceID string, kind Kind) (*Metadata, error) {
	var meta Metadata
	err := s.kv.GetJSON(ctx, metaKey(sourceID, kind), &meta)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache meta %s/%s: %w", sourceID, kind, err)
	}
	return &meta, nil
}

// IsStale reports whether the slot is missing or older than its TTL.
func (s *Store) IsStale(ctx context.Context, sourceID string, kind Kind) (bool, error) {
	meta, err := s.Meta(ctx, sourceID, kind)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return true, nil
	}
	ttl := s.ttls.For(meta.TTLClass)
	return s.now().Sub(meta.LastFetchedAt) > ttl, nil
}

// SaveValidators persists HTTP cache validators for a slot's upstream URL.
func (s *Store) SaveValidators(ctx context.Context, sourceID string, kind Kind, v any) error {
	if err := s.kv.SetJSON(ctx, validatorKey(sourceID, kind), v); err != nil {
		return fmt.Errorf("cache save validators %s/%s: %w", sourceID, kind, err)
	}
	return nil
}

// LoadValidators reads a slot's validators into dst; a clean miss leaves dst
// zero-valued.
func (s *Store) LoadValidators(ctx context.Context, sourceID string, kind Kind, dst any) error {
	err := s.kv.GetJSON(ctx, validatorKey(sourceID, kind), dst)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	return err
}

func validatorKey(sourceID string, kind Kind) string {
	return fmt.Sprintf("validators:%s:%s", sourceID, kind)
}

// Clear removes every kind's slot for a source.
func (s *Store) Clear(ctx context.Context, sourceID string) error {
	for _, kind := range []Kind{KindChannels, KindCategories, KindVod, KindSeries, KindEPG} {
		if err := s.ClearKind(ctx, sourceID, kind); err != nil {
			return err
		}
	}
	return nil
}

// ClearKind removes one slot.
func (s *Store) ClearKind(ctx context.Context, sourceID string, kind Kind) error {
	if err := s.kv.Delete(ctx, snapshotKey(sourceID, kind)); err != nil {
		return fmt.Errorf("cache clear %s/%s: %w", sourceID, kind, err)
	}
	if err := s.kv.Delete(ctx, metaKey(sourceID, kind)); err != nil {
		return fmt.Errorf("cache clear meta %s/%s: %w", sourceID, kind, err)
	}
	if err := s.kv.Delete(ctx, validatorKey(sourceID, kind)); err != nil {
		return fmt.Errorf("cache clear validators %s/%s: %w", sourceID, kind, err)
	}
	return nil
}

// SourceIDForURL derives a stable cache slot ID from a playlist URL, so
// re-adding the same playlist reuses the existing slot. Xtream sources use
// the profile ID directly.
func SourceIDForURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "m3u-" + hex.EncodeToString(sum[:8])
}
