// Package repo is the composite repository consumers read the catalog from.
// It owns source selection (API-direct vs. M3U import), refresh coalescing,
// and the stale-cache fallback policy; parsers and clients stay stateless
// underneath it.
package repo

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/xtream"
)

// XtreamAPI is the slice of the Xtream client the repository drives.
// *xtream.Client satisfies it; tests substitute fakes.
type XtreamAPI interface {
	Authenticate(ctx context.Context) (*xtream.AccountInfo, error)
	LiveCategories(ctx context.Context) ([]domain.Category, error)
	LiveStreams(ctx context.Context, categoryID string) ([]domain.Channel, error)
	VodCategories(ctx context.Context) ([]domain.Category, error)
	VodStreams(ctx context.Context, categoryID string) ([]domain.VodItem, error)
	VodInfo(ctx context.Context, vodID string) (*domain.VodItem, error)
	SeriesCategories(ctx context.Context) ([]domain.Category, error)
	Series(ctx context.Context, categoryID string) ([]domain.Series, error)
	SeriesInfo(ctx context.Context, seriesID string) (*domain.Series, error)
	DownloadXMLTV(ctx context.Context) ([]byte, error)
}

// PlaylistFetcher retrieves a raw M3U body for a profile.
type PlaylistFetcher func(ctx context.Context, p domain.Profile) (string, error)

// Result wraps a read that may have been served from stale cache after an
// upstream failure. Warning is empty on a clean read.
type Result[T any] struct {
	Data    T
	Stale   bool
	Warning string
}

func fresh[T any](data T) Result[T] { return Result[T]{Data: data} }

func staleResult[T any](data T, cause error) Result[T] {
	return Result[T]{Data: data, Stale: true, Warning: cause.Error()}
}

// Repository is safe for concurrent use.
type Repository struct {
	store         *cache.Store
	newXtream     func(creds domain.XtreamCredentials) XtreamAPI
	fetchPlaylist PlaylistFetcher
	now           func() time.Time

	group singleflight.Group

	mu           sync.RWMutex
	profiles     map[string]*domain.Profile
	order        []string // profile insertion order
	lastStrategy map[string]domain.Strategy
	index        *catalogIndex
	indexSource  string
}

// Option configures a Repository.
type Option func(*Repository)

// WithXtreamFactory substitutes the Xtream client constructor.
func WithXtreamFactory(f func(creds domain.XtreamCredentials) XtreamAPI) Option {
	return func(r *Repository) { r.newXtream = f }
}

// WithPlaylistFetcher substitutes the M3U body fetcher.
func WithPlaylistFetcher(f PlaylistFetcher) Option {
	return func(r *Repository) { r.fetchPlaylist = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New builds a repository over the given cache store.
func New(store *cache.Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		newXtream: func(creds domain.XtreamCredentials) XtreamAPI {
			return xtream.NewClient(creds)
		},
		fetchPlaylist: FetchPlaylist,
		now:           time.Now,
		profiles:      make(map[string]*domain.Profile),
		lastStrategy:  make(map[string]domain.Strategy),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddProfile registers a profile, assigning an ID and AddedAt when missing.
// The first profile added becomes active.
func (r *Repository) AddProfile(p domain.Profile) domain.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = r.now().UTC()
	}
	if p.Strategy == "" {
		p.Strategy = domain.StrategyAPIDirect
	}
	if len(r.profiles) == 0 {
		p.Active = true
	} else if p.Active {
		for _, other := range r.profiles {
			other.Active = false
		}
	}
	if _, exists := r.profiles[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.profiles[p.ID] = &p
	r.lastStrategy[p.ID] = p.Strategy
	return p
}

// SetActiveProfile activates one profile and deactivates every other;
// exactly one profile is active at a time.
func (r *Repository) SetActiveProfile(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.profiles[id]
	if !ok {
		return errs.New(errs.NotFound, "profile %q", id)
	}
	for _, p := range r.profiles {
		p.Active = false
	}
	target.Active = true
	return nil
}

// ActiveProfile returns the active profile.
func (r *Repository) ActiveProfile() (domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Active {
			return *p, nil
		}
	}
	return domain.Profile{}, errs.New(errs.NotFound, "no active profile")
}

// Profiles returns all profiles in insertion order.
func (r *Repository) Profiles() []domain.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.profiles[id])
	}
	return out
}

// SetStrategy switches a profile's ingestion strategy. The previously used
// path's cache slot is invalidated lazily on the next read, not here.
func (r *Repository) SetStrategy(id string, s domain.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return errs.New(errs.NotFound, "profile %q", id)
	}
	p.Strategy = s
	return nil
}

// sourceID returns the cache slot ID for a profile's current ingestion path.
// M3U imports key by playlist URL so re-adding the same playlist reuses the
// slot; API-direct profiles key by profile ID.
func sourceID(p domain.Profile) string {
	if p.Type == domain.SourceXtream && p.Strategy != domain.StrategyM3UImport {
		return p.ID
	}
	return cache.SourceIDForURL(playlistURL(p))
}

// touchProfile records a successful refresh.
func (r *Repository) touchProfile(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.LastUpdated = r.now().UTC()
	}
}

// maybeInvalidateSwitched clears the cache slot of the path a profile no
// longer uses. Called lazily from the read path after a strategy switch.
func (r *Repository) maybeInvalidateSwitched(ctx context.Context, p domain.Profile) {
	r.mu.Lock()
	prev, seen := r.lastStrategy[p.ID]
	r.lastStrategy[p.ID] = p.Strategy
	r.mu.Unlock()
	if !seen || prev == p.Strategy {
		return
	}
	// Clear the slot the previous strategy was writing to.
	old := p
	old.Strategy = prev
	// Invalidation failure is not fatal; stale data in the unused slot is
	// unreachable until the strategy switches back.
	if err := r.store.Clear(ctx, sourceID(old)); err != nil {
		log.Printf("repo: clear slot for %s after strategy switch: %v", p.Name, err)
	}
}

// Channel returns one channel by ID from the active profile's snapshot.
func (r *Repository) Channel(ctx context.Context, id string) (*domain.Channel, error) {
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()
	if idx == nil {
		return nil, errs.New(errs.NotFound, "channel %q", id)
	}
	ch := idx.byID(id)
	if ch == nil {
		return nil, errs.New(errs.NotFound, "channel %q", id)
	}
	return ch, nil
}

// ChannelsByCategory returns the active profile's channels in one category.
func (r *Repository) ChannelsByCategory(ctx context.Context, categoryID string) ([]domain.Channel, error) {
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}
	return idx.byCategory(categoryID), nil
}

// ChannelsByType returns the active profile's channels of one content type.
func (r *Repository) ChannelsByType(ctx context.Context, t domain.ContentType) ([]domain.Channel, error) {
	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}
	return idx.byType(t), nil
}

// ensureIndex makes sure the in-memory index matches the active profile's
// current channel snapshot.
func (r *Repository) ensureIndex(ctx context.Context) error {
	res, err := r.Channels(ctx)
	if err != nil {
		return err
	}
	p, err := r.ActiveProfile()
	if err != nil {
		return err
	}
	sid := sourceID(p)
	r.mu.RLock()
	current := r.indexSource
	haveIndex := r.index != nil
	r.mu.RUnlock()
	if haveIndex && current == sid {
		return nil
	}
	idx, err := newCatalogIndex(res.Data)
	if err != nil {
		return fmt.Errorf("rebuild catalog index: %w", err)
	}
	r.mu.Lock()
	r.index = idx
	r.indexSource = sid
	r.mu.Unlock()
	return nil
}

// invalidateIndex drops the in-memory index so the next lookup rebuilds it
// from the freshly written snapshot.
func (r *Repository) invalidateIndex() {
	r.mu.Lock()
	r.index = nil
	r.indexSource = ""
	r.mu.Unlock()
}
