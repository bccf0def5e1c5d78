package views

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/session"
	"github.com/brettboylen/clanboard/utils"
)

const (
	msgClanNotFound    = "Clan not found"
	msgClanPostsFailed = "Failed to load posts for this clan"
)

// ClanView is the clan feed view model
type ClanView struct {
	Status   Status       `json:"status"`
	Notice   *Notice      `json:"notice,omitempty"`
	Name     string       `json:"name"`
	Clan     *models.Clan `json:"clan,omitempty"`
	IsMember bool         `json:"is_member"`
	Posts    []PostItem   `json:"posts"`
}

// ClanFeed shows one clan, its posts and the viewer's membership
type ClanFeed struct {
	*feed
	name          string
	clan          *models.Clan
	member        bool
	joining       bool
	authenticated bool
	unsubscribe   func()
}

// NewClanFeed creates the clan feed controller. It reloads itself whenever
// the viewer logs in or out.
func NewClanFeed(backend Backend, sess Session, log *logrus.Logger) *ClanFeed {
	c := &ClanFeed{
		feed:          newFeed(backend, sess, log),
		authenticated: sess.State().Authenticated,
	}
	c.unsubscribe = sess.Subscribe(c.onAuthChange)
	return c
}

// Close stops following the session
func (c *ClanFeed) Close() {
	c.unsubscribe()
}

func (c *ClanFeed) onAuthChange(state session.State) {
	c.mu.Lock()
	flipped := state.Authenticated != c.authenticated
	c.authenticated = state.Authenticated
	name := c.name
	c.mu.Unlock()

	if flipped && name != "" {
		c.Load(context.Background(), name)
	}
}

// Load resolves the clan by name, then shows its posts and, for a logged in
// viewer, whether they are a member
func (c *ClanFeed) Load(ctx context.Context, name string) ClanView {
	name = strings.TrimSpace(name)
	gen := c.begin()

	c.mu.Lock()
	c.name = name
	c.clan = nil
	c.member = false
	c.mu.Unlock()

	if err := models.ValidateClanName(name); err != nil {
		c.log.WithField("clan", name).Debug("Rejected malformed clan name")
		c.finish(gen, StatusNotFound, errorNotice(msgClanNotFound), nil, nil, false)
		return c.View()
	}

	var (
		clanRecord  models.Record
		clanErr     error
		postRecords []models.Record
		postsErr    error
	)
	var g errgroup.Group
	g.Go(func() error {
		clanRecord, clanErr = c.backend.GetClanByName(ctx, name)
		return nil
	})
	g.Go(func() error {
		postRecords, postsErr = c.backend.GetPosts(ctx)
		return nil
	})
	_ = g.Wait()

	if clanErr != nil {
		c.log.WithError(clanErr).WithField("clan", name).Warn("Failed to load clan")
		c.finish(gen, StatusNotFound, errorNotice(msgClanNotFound), nil, nil, false)
		return c.View()
	}
	clan := models.NormalizeClan(clanRecord)
	if clan.Name == "" {
		clan.Name = name
		clan.DisplayName = name
	}

	var notice *Notice
	posts := make([]models.Post, 0)
	if postsErr != nil {
		c.log.WithError(postsErr).WithField("clan", name).Warn("Failed to load clan posts")
		notice = errorNotice(msgClanPostsFailed)
	} else {
		for _, p := range models.NormalizePosts(postRecords) {
			if strings.EqualFold(p.Clan, name) {
				posts = append(posts, p)
			}
		}
	}

	member := false
	if token, ok := c.session.Token(); ok {
		status, err := c.backend.GetMembership(ctx, token, clanRef(clan))
		if err != nil {
			c.log.WithError(err).WithField("clan", name).Warn("Failed to load membership")
		} else {
			member = models.NormalizeMembership(status)
		}
	}

	c.finish(gen, StatusReady, notice, &clan, posts, member)
	return c.View()
}

func (c *ClanFeed) finish(gen uint64, status Status, notice *Notice, clan *models.Clan, posts []models.Post, member bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.status = status
	c.notice = notice
	c.clan = clan
	c.member = member
	c.setPostsLocked(posts)
}

// View renders the current state
func (c *ClanFeed) View() ClanView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := ClanView{
		Status:   c.status,
		Notice:   c.notice,
		Name:     c.name,
		IsMember: c.member,
		Posts:    c.itemsLocked(),
	}
	if c.clan != nil {
		clan := *c.clan
		view.Clan = &clan
	}
	return view
}

// Join makes the viewer a member of the shown clan
func (c *ClanFeed) Join(ctx context.Context) (ClanView, error) {
	return c.setMembership(ctx, true)
}

// Leave removes the viewer from the shown clan
func (c *ClanFeed) Leave(ctx context.Context) (ClanView, error) {
	return c.setMembership(ctx, false)
}

// setMembership sends the join or leave request; the flag and member count only
// change once the backend accepts it
func (c *ClanFeed) setMembership(ctx context.Context, join bool) (ClanView, error) {
	action, failure := "join clans", "Failed to join clan"
	if !join {
		action, failure = "leave clans", "Failed to leave clan"
	}

	token, ok := c.session.Token()
	if !ok {
		return c.View(), utils.NewLoginRequiredError(action)
	}

	c.mu.Lock()
	if c.clan == nil || c.status != StatusReady {
		c.mu.Unlock()
		return c.View(), utils.NewNotFoundError(msgClanNotFound)
	}
	if c.joining {
		c.mu.Unlock()
		return c.View(), utils.NewInFlightError("A membership change is already in progress")
	}
	c.joining = true
	gen, ref := c.gen, clanRef(*c.clan)
	c.mu.Unlock()

	var err error
	if join {
		err = c.backend.JoinClan(ctx, token, ref)
	} else {
		err = c.backend.LeaveClan(ctx, token, ref)
	}

	c.mu.Lock()
	c.joining = false
	if err != nil {
		c.mu.Unlock()
		c.log.WithError(err).WithField("clan", ref).Warn("Membership change rejected")
		return c.View(), utils.NewBackendError(failure, err)
	}
	if gen == c.gen && c.clan != nil && c.member != join {
		c.member = join
		if join {
			c.clan.MemberCount++
		} else if c.clan.MemberCount > 0 {
			c.clan.MemberCount--
		}
	}
	c.mu.Unlock()

	return c.View(), nil
}

// Members lists the members of the shown clan; a failed fetch yields an empty list
func (c *ClanFeed) Members(ctx context.Context) ([]models.Member, error) {
	c.mu.Lock()
	if c.clan == nil {
		c.mu.Unlock()
		return nil, utils.NewNotFoundError(msgClanNotFound)
	}
	ref := clanRef(*c.clan)
	c.mu.Unlock()

	records, err := c.backend.GetClanMembers(ctx, ref)
	if err != nil {
		c.log.WithError(err).WithField("clan", ref).Warn("Failed to load clan members")
		return make([]models.Member, 0), nil
	}
	return models.NormalizeMembers(records), nil
}

// clanRef is the identifier used in clan paths: the id, or the name when the
// backend did not send one
func clanRef(clan models.Clan) string {
	if clan.ID != "" {
		return clan.ID
	}
	return clan.Name
}
