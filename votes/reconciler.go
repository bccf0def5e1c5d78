// Package votes tracks a viewer's optimistic votes within one view session.
//
// The displayed score of an item is always the score the server reported when
// the item was loaded plus the delta of this viewer's own successful votes.
// Votes by other viewers are not seen until the item is loaded again.
package votes

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/utils"
)

// Kind is the type of item being voted on
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// Key identifies a votable item
type Key struct {
	Kind Kind
	ID   string
}

// PostKey returns the key of a post
func PostKey(id string) Key { return Key{Kind: KindPost, ID: id} }

// CommentKey returns the key of a comment
func CommentKey(id string) Key { return Key{Kind: KindComment, ID: id} }

// Tally is what the viewer sees for an item
type Tally struct {
	Score  int               `json:"votes"`
	Choice models.VoteChoice `json:"user_vote"`
}

// Backend sends votes
type Backend interface {
	VotePost(ctx context.Context, token, postID string, choice models.VoteChoice) (models.Record, error)
	VoteComment(ctx context.Context, token, commentID string, choice models.VoteChoice) (models.Record, error)
}

// TokenSource reports the viewer's token
type TokenSource interface {
	Token() (string, bool)
}

type entry struct {
	serverScore int
	delta       int
	choice      models.VoteChoice
}

func (e *entry) tally() Tally {
	return Tally{Score: e.serverScore + e.delta, Choice: e.choice}
}

// Reconciler holds the vote state of every item in one view
type Reconciler struct {
	mu       sync.Mutex
	items    map[Key]*entry
	inflight map[Key]struct{}
	backend  Backend
	tokens   TokenSource
	log      *logrus.Logger
}

// NewReconciler creates an empty reconciler
func NewReconciler(backend Backend, tokens TokenSource, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		items:    make(map[Key]*entry),
		inflight: make(map[Key]struct{}),
		backend:  backend,
		tokens:   tokens,
		log:      log,
	}
}

// Track records an item as loaded with serverScore and no vote from this viewer
func (r *Reconciler) Track(key Key, serverScore int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = &entry{serverScore: serverScore, choice: models.VoteNone}
}

// Rebase treats serverScore as a fresh load of an already tracked item. The
// viewer's choice is kept; the refetched score already counts it.
func (r *Reconciler) Rebase(key Key, serverScore int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	if !ok {
		r.items[key] = &entry{serverScore: serverScore, choice: models.VoteNone}
		return
	}
	e.serverScore = serverScore
	e.delta = 0
}

// Tally returns the displayed score and choice of an item
func (r *Reconciler) Tally(key Key) (Tally, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	if !ok {
		return Tally{Choice: models.VoteNone}, false
	}
	return e.tally(), true
}

// Cast sends a vote and, only once the backend accepts it, applies it locally.
// Voting the current choice again withdraws it.
func (r *Reconciler) Cast(ctx context.Context, key Key, requested models.VoteChoice) (Tally, error) {
	if requested != models.VoteUp && requested != models.VoteDown {
		return Tally{}, utils.NewValidationError("Vote must be up or down")
	}

	token, ok := r.tokens.Token()
	if !ok {
		return Tally{}, utils.NewLoginRequiredError("vote")
	}

	r.mu.Lock()
	if _, tracked := r.items[key]; !tracked {
		r.mu.Unlock()
		return Tally{}, utils.NewNotFoundError("Nothing to vote on")
	}
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return Tally{}, utils.NewInFlightError("Your previous vote is still being sent")
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	err := r.send(ctx, token, key, requested)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, key)

	e := r.items[key]
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"kind": key.Kind,
			"id":   key.ID,
			"vote": requested,
		}).Warn("Vote rejected")
		return e.tally(), utils.NewBackendError("Failed to vote", err)
	}

	switch {
	case requested == e.choice:
		e.delta -= e.choice.Sign()
		e.choice = models.VoteNone
	case e.choice == models.VoteNone:
		e.delta += requested.Sign()
		e.choice = requested
	default:
		e.delta += 2 * requested.Sign()
		e.choice = requested
	}

	return e.tally(), nil
}

func (r *Reconciler) send(ctx context.Context, token string, key Key, choice models.VoteChoice) error {
	var err error
	switch key.Kind {
	case KindComment:
		_, err = r.backend.VoteComment(ctx, token, key.ID, choice)
	default:
		_, err = r.backend.VotePost(ctx, token, key.ID, choice)
	}
	return err
}
