package views

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/session"
	"github.com/brettboylen/clanboard/utils"
)

const popularClanLimit = 10

const msgCachedClans = "Using cached clans - backend not available"

// ClanItem is a clan in the sidebar with the viewer's membership
type ClanItem struct {
	models.Clan
	Joined bool `json:"joined"`
}

// SidebarView is the sidebar view model
type SidebarView struct {
	Status  Status     `json:"status"`
	Notice  *Notice    `json:"notice,omitempty"`
	Popular []ClanItem `json:"popular"`
	Mine    []ClanItem `json:"mine"`
}

// Sidebar lists popular clans and, for a logged in viewer, the clans they joined
type Sidebar struct {
	loader
	popular       []models.Clan
	mine          []models.Clan
	toggling      map[string]bool
	authenticated bool
	loaded        bool
	backend       Backend
	session       Session
	cache         ClanCache
	log           *logrus.Logger
	unsubscribe   func()
}

// NewSidebar creates the sidebar controller. cache may be nil. It reloads
// itself whenever the viewer logs in or out.
func NewSidebar(backend Backend, sess Session, cache ClanCache, log *logrus.Logger) *Sidebar {
	s := &Sidebar{
		popular:       make([]models.Clan, 0),
		mine:          make([]models.Clan, 0),
		toggling:      make(map[string]bool),
		authenticated: sess.State().Authenticated,
		backend:       backend,
		session:       sess,
		cache:         cache,
		log:           log,
	}
	s.status = StatusLoading
	s.unsubscribe = sess.Subscribe(s.onAuthChange)
	return s
}

// Close stops following the session
func (s *Sidebar) Close() {
	s.unsubscribe()
}

func (s *Sidebar) onAuthChange(state session.State) {
	s.mu.Lock()
	flipped := state.Authenticated != s.authenticated
	s.authenticated = state.Authenticated
	loaded := s.loaded
	s.mu.Unlock()

	if flipped && loaded {
		s.Load(context.Background())
	}
}

// Load fetches the clan list and the viewer's clans concurrently
func (s *Sidebar) Load(ctx context.Context) SidebarView {
	s.mu.Lock()
	gen := s.restartLocked()
	s.loaded = true
	s.mu.Unlock()

	var (
		clanRecords []models.Record
		clansErr    error
		mine        = make([]models.Clan, 0)
	)

	var g errgroup.Group
	g.Go(func() error {
		clanRecords, clansErr = s.backend.GetClans(ctx)
		return nil
	})
	if token, ok := s.session.Token(); ok {
		g.Go(func() error {
			records, err := s.backend.GetUserClans(ctx, token)
			if err != nil {
				s.log.WithError(err).Warn("Failed to load the viewer's clans")
				return nil
			}
			mine = models.NormalizeClans(records)
			return nil
		})
	}
	_ = g.Wait()

	status := StatusReady
	var notice *Notice
	var clans []models.Clan
	if clansErr != nil {
		s.log.WithError(clansErr).Warn("Failed to fetch clans for sidebar")
		clans = s.cachedClans()
		status = StatusError
		if len(clans) > 0 {
			notice = errorNotice(msgCachedClans)
		} else {
			notice = errorNotice(msgBackendOffline)
		}
	} else {
		clans = models.NormalizeClans(clanRecords)
		s.saveCache(clans)
	}

	sort.SliceStable(clans, func(i, j int) bool {
		return clans[i].MemberCount > clans[j].MemberCount
	})
	if len(clans) > popularClanLimit {
		clans = clans[:popularClanLimit]
	}
	if clans == nil {
		clans = make([]models.Clan, 0)
	}

	s.mu.Lock()
	if gen == s.gen {
		s.popular = clans
		s.mine = mine
		s.status = status
		s.notice = notice
	}
	s.mu.Unlock()

	return s.View()
}

// View renders the current state
func (s *Sidebar) View() SidebarView {
	s.mu.Lock()
	defer s.mu.Unlock()

	joined := make(map[string]bool, len(s.mine))
	mine := make([]ClanItem, 0, len(s.mine))
	for _, clan := range s.mine {
		joined[clan.Name] = true
		mine = append(mine, ClanItem{Clan: clan, Joined: true})
	}
	popular := make([]ClanItem, 0, len(s.popular))
	for _, clan := range s.popular {
		popular = append(popular, ClanItem{Clan: clan, Joined: joined[clan.Name]})
	}

	return SidebarView{
		Status:  s.status,
		Notice:  s.notice,
		Popular: popular,
		Mine:    mine,
	}
}

// Toggle joins the named clan, or leaves it when the viewer is already a
// member. Nothing changes until the backend accepts the request.
func (s *Sidebar) Toggle(ctx context.Context, name string) (SidebarView, error) {
	token, ok := s.session.Token()
	if !ok {
		return s.View(), utils.NewLoginRequiredError("join clans")
	}

	s.mu.Lock()
	clan, found := s.findLocked(name)
	if !found {
		s.mu.Unlock()
		return s.View(), utils.NewNotFoundError(msgClanNotFound)
	}
	if s.toggling[name] {
		s.mu.Unlock()
		return s.View(), utils.NewInFlightError("A membership change is already in progress")
	}
	s.toggling[name] = true
	leaving := s.isMemberLocked(name)
	gen := s.gen
	s.mu.Unlock()

	var err error
	if leaving {
		err = s.backend.LeaveClan(ctx, token, clanRef(clan))
	} else {
		err = s.backend.JoinClan(ctx, token, clanRef(clan))
	}

	s.mu.Lock()
	delete(s.toggling, name)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).WithField("clan", name).Warn("Membership change rejected")
		failure := "Failed to join clan"
		if leaving {
			failure = "Failed to leave clan"
		}
		return s.View(), utils.NewBackendError(failure, err)
	}
	if gen == s.gen {
		s.applyMembershipLocked(clan, !leaving)
	}
	s.mu.Unlock()

	return s.View(), nil
}

func (s *Sidebar) findLocked(name string) (models.Clan, bool) {
	for _, list := range [][]models.Clan{s.popular, s.mine} {
		for _, clan := range list {
			if clan.Name == name {
				return clan, true
			}
		}
	}
	return models.Clan{}, false
}

func (s *Sidebar) isMemberLocked(name string) bool {
	for _, clan := range s.mine {
		if clan.Name == name {
			return true
		}
	}
	return false
}

func (s *Sidebar) applyMembershipLocked(clan models.Clan, joined bool) {
	if joined == s.isMemberLocked(clan.Name) {
		return
	}

	delta := 1
	if !joined {
		delta = -1
	}
	for i := range s.popular {
		if s.popular[i].Name == clan.Name {
			s.popular[i].MemberCount += delta
			clan = s.popular[i]
		}
	}

	if joined {
		s.mine = append(s.mine, clan)
		return
	}
	kept := make([]models.Clan, 0, len(s.mine))
	for _, c := range s.mine {
		if c.Name != clan.Name {
			kept = append(kept, c)
		}
	}
	s.mine = kept
}

func (s *Sidebar) cachedClans() []models.Clan {
	if s.cache == nil {
		return nil
	}
	clans, err := s.cache.GetCachedClans()
	if err != nil {
		s.log.WithError(err).Error("Failed to read cached clans")
		return nil
	}
	return clans
}

func (s *Sidebar) saveCache(clans []models.Clan) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ReplaceClans(clans); err != nil {
		s.log.WithError(err).Error("Failed to cache clans")
	}
}
