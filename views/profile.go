package views

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
)

const msgUserNotFound = "User not found"

// ProfileView is the profile view model
type ProfileView struct {
	Status    Status     `json:"status"`
	Notice    *Notice    `json:"notice,omitempty"`
	Username  string     `json:"username"`
	PostCount int        `json:"post_count"`
	Karma     int        `json:"karma"`
	Posts     []PostItem `json:"posts"`
}

// Profile lists the posts of one author
type Profile struct {
	*feed
	username string
}

// NewProfile creates the profile controller
func NewProfile(backend Backend, sess Session, log *logrus.Logger) *Profile {
	return &Profile{feed: newFeed(backend, sess, log)}
}

// Load shows the posts written by username. An author with no posts, or a
// feed that cannot be fetched, is shown as not found.
func (p *Profile) Load(ctx context.Context, username string) ProfileView {
	username = strings.TrimSpace(username)
	gen := p.begin()

	status := StatusReady
	var notice *Notice
	posts := make([]models.Post, 0)

	records, err := p.backend.GetPosts(ctx)
	if err != nil {
		p.log.WithError(err).WithField("username", username).Warn("Failed to fetch posts for profile")
	} else {
		for _, post := range models.NormalizePosts(records) {
			if post.Author == username {
				posts = append(posts, post)
			}
		}
	}
	if len(posts) == 0 {
		status = StatusNotFound
		notice = errorNotice(msgUserNotFound)
	}

	p.mu.Lock()
	if gen == p.gen {
		p.username = username
		p.setPostsLocked(posts)
		p.status = status
		p.notice = notice
	}
	p.mu.Unlock()

	return p.View()
}

// View renders the current state. Karma is the sum of the shown post scores.
func (p *Profile) View() ProfileView {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := p.itemsLocked()
	karma := 0
	for _, item := range items {
		karma += item.Votes
	}
	return ProfileView{
		Status:    p.status,
		Notice:    p.notice,
		Username:  p.username,
		PostCount: len(items),
		Karma:     karma,
		Posts:     items,
	}
}
