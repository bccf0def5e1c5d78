package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/session"
	"github.com/brettboylen/clanboard/views"
)

// Backend is everything the view sessions need from the backend REST API
type Backend interface {
	views.Backend
	session.Authenticator
}

// Viewer is the view session of one browser: its authentication state and one
// controller per page
type Viewer struct {
	ID       string
	Session  *session.Store
	Home     *views.HomeFeed
	Clan     *views.ClanFeed
	Post     *views.PostDetail
	Search   *views.Search
	Profile  *views.Profile
	Sidebar  *views.Sidebar
	Composer *views.Composer

	lastSeen time.Time
}

// Close releases the viewer's session subscriptions
func (v *Viewer) Close() {
	v.Clan.Close()
	v.Sidebar.Close()
}

// Caches are the optional local stores used while the backend is down
type Caches struct {
	Tokens session.TokenStore
	Posts  views.PostCache
	Clans  views.ClanCache
}

// Registry holds the live view sessions and expires idle ones
type Registry struct {
	mu      sync.Mutex
	viewers map[string]*Viewer
	ttl     time.Duration
	backend Backend
	caches  Caches
	log     *logrus.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(backend Backend, caches Caches, ttl time.Duration, log *logrus.Logger) *Registry {
	return &Registry{
		viewers: make(map[string]*Viewer),
		ttl:     ttl,
		backend: backend,
		caches:  caches,
		log:     log,
		now:     time.Now,
	}
}

// Resolve returns the viewer for id, creating it when the id is unknown. An
// empty or malformed id gets a fresh one. A recreated viewer restores any token
// persisted under its id.
func (r *Registry) Resolve(id string) *Viewer {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.viewers[id]; ok {
		v.lastSeen = r.now()
		return v
	}

	v := r.newViewer(id)
	r.viewers[id] = v
	r.log.WithField("viewer_id", id).Debug("View session created")
	return v
}

func (r *Registry) newViewer(id string) *Viewer {
	store := session.NewStore(id, r.backend, r.caches.Tokens, r.log)

	return &Viewer{
		ID:       id,
		Session:  store,
		Home:     views.NewHomeFeed(r.backend, store, r.caches.Posts, r.log),
		Clan:     views.NewClanFeed(r.backend, store, r.log),
		Post:     views.NewPostDetail(r.backend, store, r.log),
		Search:   views.NewSearch(r.backend, store, r.log),
		Profile:  views.NewProfile(r.backend, store, r.log),
		Sidebar:  views.NewSidebar(r.backend, store, r.caches.Clans, r.log),
		Composer: views.NewComposer(r.backend, store, r.log),
		lastSeen: r.now(),
	}
}

// Len returns the number of live view sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Sweep drops view sessions idle for longer than the TTL and returns how many
// were dropped
func (r *Registry) Sweep() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.ttl)
	expired := make([]*Viewer, 0)
	for id, v := range r.viewers {
		if v.lastSeen.Before(cutoff) {
			expired = append(expired, v)
			delete(r.viewers, id)
		}
	}
	r.mu.Unlock()

	for _, v := range expired {
		v.Close()
	}
	if len(expired) > 0 {
		r.log.WithField("count", len(expired)).Info("Expired idle view sessions")
	}
	return len(expired)
}

// Run sweeps on a ticker until ctx is cancelled
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
