// Package views holds the per-page view controllers of a view session. Each
// controller loads its data from the backend, tracks the viewer's votes on what
// it shows and renders a JSON view model.
//
// A controller is in one of four states: loading, ready, not_found or error.
// Calling Load again starts a fresh load and resets the vote state; results of
// operations started before that reload are dropped without effect.
package views

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/session"
	"github.com/brettboylen/clanboard/utils"
	"github.com/brettboylen/clanboard/votes"
)

// Status is the load state of a view
type Status string

const (
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// notice levels
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice is a transient message shown alongside a view
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func errorNotice(message string) *Notice {
	return &Notice{Level: NoticeError, Message: message}
}

// Backend is the part of the backend REST API the views read from and write to
type Backend interface {
	GetPosts(ctx context.Context) ([]models.Record, error)
	GetPost(ctx context.Context, id string) (models.Record, error)
	CreatePost(ctx context.Context, token string, post models.NewPost) (models.Record, error)
	VotePost(ctx context.Context, token, postID string, choice models.VoteChoice) (models.Record, error)
	GetComments(ctx context.Context, postID string) ([]models.Record, error)
	CreateComment(ctx context.Context, token, postID, parentID, content string) (models.Record, error)
	VoteComment(ctx context.Context, token, commentID string, choice models.VoteChoice) (models.Record, error)
	GetClans(ctx context.Context) ([]models.Record, error)
	GetClanByName(ctx context.Context, name string) (models.Record, error)
	CreateClan(ctx context.Context, token string, clan models.NewClan) (models.Record, error)
	JoinClan(ctx context.Context, token, id string) error
	LeaveClan(ctx context.Context, token, id string) error
	GetClanMembers(ctx context.Context, id string) ([]models.Record, error)
	GetMembership(ctx context.Context, token, id string) (models.Record, error)
	GetUserClans(ctx context.Context, token string) ([]models.Record, error)
}

// Session is the viewer's authentication state as seen by the views
type Session interface {
	Token() (string, bool)
	State() session.State
	Subscribe(fn func(session.State)) func()
}

// PostCache keeps the last feed that loaded successfully
type PostCache interface {
	ReplacePosts(posts []models.Post) error
	GetCachedPosts() ([]models.Post, error)
}

// ClanCache keeps the last clan list that loaded successfully
type ClanCache interface {
	ReplaceClans(clans []models.Clan) error
	GetCachedClans() ([]models.Clan, error)
}

// PostItem is a post as the viewer sees it: Votes includes the viewer's own votes
type PostItem struct {
	models.Post
	UserVote models.VoteChoice `json:"user_vote"`
}

// loader carries the load state shared by every controller
type loader struct {
	mu     sync.Mutex
	gen    uint64
	status Status
	notice *Notice
}

// restartLocked enters loading and returns the new generation; mu must be held
func (l *loader) restartLocked() uint64 {
	l.gen++
	l.status = StatusLoading
	l.notice = nil
	return l.gen
}

// feed is a loader over a list of votable posts
type feed struct {
	loader
	posts   []models.Post
	ballots *votes.Reconciler
	backend Backend
	session Session
	log     *logrus.Logger
}

func newFeed(backend Backend, sess Session, log *logrus.Logger) *feed {
	f := &feed{
		posts:   make([]models.Post, 0),
		backend: backend,
		session: sess,
		log:     log,
	}
	f.status = StatusLoading
	f.ballots = votes.NewReconciler(backend, sess, log)
	return f
}

// begin starts a reload: a new generation and a fresh vote state
func (f *feed) begin() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ballots = votes.NewReconciler(f.backend, f.session, f.log)
	return f.restartLocked()
}

// setPostsLocked replaces the shown posts and tracks their load-time scores
func (f *feed) setPostsLocked(posts []models.Post) {
	if posts == nil {
		posts = make([]models.Post, 0)
	}
	f.posts = posts
	for _, p := range posts {
		f.ballots.Track(votes.PostKey(p.ID), p.Votes)
	}
}

func (f *feed) itemLocked(p models.Post) PostItem {
	choice := models.VoteNone
	if tally, ok := f.ballots.Tally(votes.PostKey(p.ID)); ok {
		p.Votes = tally.Score
		choice = tally.Choice
	}
	return PostItem{Post: p, UserVote: choice}
}

func (f *feed) itemsLocked() []PostItem {
	items := make([]PostItem, 0, len(f.posts))
	for _, p := range f.posts {
		items = append(items, f.itemLocked(p))
	}
	return items
}

// vote casts a vote through the current vote state. If the view reloads while
// the vote is in flight the outcome is discarded and the reloaded tally returned.
func (f *feed) vote(ctx context.Context, key votes.Key, choice models.VoteChoice) (votes.Tally, error) {
	f.mu.Lock()
	gen, ballots := f.gen, f.ballots
	f.mu.Unlock()

	tally, err := ballots.Cast(ctx, key, choice)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		current, _ := f.ballots.Tally(key)
		return current, nil
	}
	return tally, err
}

// Vote votes on one of the shown posts
func (f *feed) Vote(ctx context.Context, postID string, choice models.VoteChoice) (votes.Tally, error) {
	return f.vote(ctx, votes.PostKey(postID), choice)
}

// inputError converts a form validation failure into the action boundary error
func inputError(err error) error {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return utils.NewValidationError(verr.Message)
	}
	return err
}
