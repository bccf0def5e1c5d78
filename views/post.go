package views

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/threads"
	"github.com/brettboylen/clanboard/utils"
	"github.com/brettboylen/clanboard/votes"
)

const (
	msgPostLoadFailed = "Failed to load post"
	msgCommentPosted  = "Comment posted"
	msgReplyPosted    = "Reply posted"
)

// CommentItem is a comment as the viewer sees it
type CommentItem struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Author     string            `json:"author"`
	Votes      int               `json:"votes"`
	UserVote   models.VoteChoice `json:"user_vote"`
	CreatedAt  string            `json:"created_at"`
	ParentID   string            `json:"parent_id,omitempty"`
	ReplyCount int               `json:"reply_count"`
	Draft      string            `json:"draft,omitempty"`
	Replies    []*CommentItem    `json:"replies"`
}

// PostView is the post detail view model
type PostView struct {
	Status   Status         `json:"status"`
	Notice   *Notice        `json:"notice,omitempty"`
	Post     *PostItem      `json:"post,omitempty"`
	Comments []*CommentItem `json:"comments"`
	Draft    string         `json:"draft,omitempty"`
}

// PostDetail shows one post with its comment tree
type PostDetail struct {
	*feed
	postID   string
	thread   *threads.Thread
	composer *threads.Composer
	drafts   map[string]string // keyed by parent comment id; "" is the top-level draft
	pending  map[string]bool   // submissions in flight, keyed like drafts
}

// NewPostDetail creates the post detail controller
func NewPostDetail(backend Backend, sess Session, log *logrus.Logger) *PostDetail {
	return &PostDetail{
		feed:     newFeed(backend, sess, log),
		composer: threads.NewComposer(backend, log),
		drafts:   make(map[string]string),
		pending:  make(map[string]bool),
	}
}

// Load fetches the post and its comments. A post that fails to load for any
// reason is shown as not found; failed comments show as an empty thread.
func (p *PostDetail) Load(ctx context.Context, id string) PostView {
	gen := p.begin()

	p.mu.Lock()
	p.postID = id
	p.thread = threads.Build(id, nil)
	p.drafts = make(map[string]string)
	p.mu.Unlock()

	var (
		record     models.Record
		postErr    error
		thread     *threads.Thread
		commentErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		record, postErr = p.backend.GetPost(ctx, id)
		return nil
	})
	g.Go(func() error {
		thread, commentErr = p.composer.Fetch(ctx, id)
		return nil
	})
	_ = g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return p.viewLocked()
	}

	if postErr != nil {
		p.log.WithError(postErr).WithField("post_id", id).Warn("Failed to load post")
		p.status = StatusNotFound
		p.notice = errorNotice(msgPostLoadFailed)
		p.setPostsLocked(nil)
		return p.viewLocked()
	}

	post := models.NormalizePost(record)
	if post.ID == "" {
		post.ID = id
	}
	if commentErr != nil {
		p.log.WithError(commentErr).WithField("post_id", id).Warn("Failed to load comments")
		thread = threads.Build(id, nil)
	}

	p.setPostsLocked([]models.Post{post})
	p.thread = thread
	p.thread.Walk(func(_ int, c *models.Comment) bool {
		p.ballots.Track(votes.CommentKey(c.ID), c.Votes)
		return true
	})
	p.status = StatusReady
	return p.viewLocked()
}

// View renders the current state
func (p *PostDetail) View() PostView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *PostDetail) viewLocked() PostView {
	view := PostView{
		Status:   p.status,
		Notice:   p.notice,
		Comments: make([]*CommentItem, 0),
		Draft:    p.drafts[""],
	}
	if len(p.posts) > 0 {
		item := p.itemLocked(p.posts[0])
		view.Post = &item
	}
	if p.thread != nil {
		view.Comments = p.commentItemsLocked(p.thread.Roots(), make(map[*models.Comment]bool))
	}
	return view
}

func (p *PostDetail) commentItemsLocked(list []*models.Comment, seen map[*models.Comment]bool) []*CommentItem {
	items := make([]*CommentItem, 0, len(list))
	for _, c := range list {
		if seen[c] {
			continue
		}
		seen[c] = true

		item := &CommentItem{
			ID:         c.ID,
			Content:    c.Content,
			Author:     c.Author,
			Votes:      c.Votes,
			UserVote:   models.VoteNone,
			CreatedAt:  c.CreatedAt,
			ParentID:   c.ParentID,
			ReplyCount: c.ReplyCount,
			Draft:      p.drafts[c.ID],
		}
		if tally, ok := p.ballots.Tally(votes.CommentKey(c.ID)); ok {
			item.Votes = tally.Score
			item.UserVote = tally.Choice
		}
		item.Replies = p.commentItemsLocked(c.Replies, seen)
		items = append(items, item)
	}
	return items
}

// current returns what an action needs to run against the loaded post
func (p *PostDetail) current() (gen uint64, postID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusReady || len(p.posts) == 0 {
		return 0, "", utils.NewNotFoundError("Post not found")
	}
	return p.gen, p.posts[0].ID, nil
}

// VotePost votes on the shown post
func (p *PostDetail) VotePost(ctx context.Context, choice models.VoteChoice) (votes.Tally, error) {
	_, postID, err := p.current()
	if err != nil {
		return votes.Tally{}, err
	}
	return p.vote(ctx, votes.PostKey(postID), choice)
}

// VoteComment votes on a comment anywhere in the thread
func (p *PostDetail) VoteComment(ctx context.Context, commentID string, choice models.VoteChoice) (votes.Tally, error) {
	return p.vote(ctx, votes.CommentKey(commentID), choice)
}

// SetDraft keeps the text being typed for a reply to parentID, or for a new
// top-level comment when parentID is empty
func (p *PostDetail) SetDraft(parentID, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if content == "" {
		delete(p.drafts, parentID)
		return
	}
	p.drafts[parentID] = content
}

// Draft returns the kept draft for parentID
func (p *PostDetail) Draft(parentID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drafts[parentID]
}

// claim marks a submission for key as in flight and keeps its draft
func (p *PostDetail) claim(key, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[key] {
		return utils.NewInFlightError("Your previous submission is still being sent")
	}
	p.pending[key] = true
	p.drafts[key] = content
	return nil
}

// SubmitComment posts a top-level comment. On success the thread is refetched,
// or a local copy of the comment is shown when that refetch fails, and the
// post's comment count goes up by one.
func (p *PostDetail) SubmitComment(ctx context.Context, content string) (PostView, error) {
	gen, postID, err := p.current()
	if err != nil {
		return p.View(), err
	}
	if err := p.claim("", content); err != nil {
		return p.View(), err
	}

	token, _ := p.session.Token()

	p.mu.Lock()
	current := p.thread.Clone()
	p.mu.Unlock()

	thread, synthesized, err := p.composer.SubmitComment(ctx, token, postID, content, current)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, "")
	if err != nil {
		return p.viewLocked(), err
	}
	if gen != p.gen {
		return p.viewLocked(), nil
	}

	delete(p.drafts, "")
	p.replaceThreadLocked(thread, !synthesized)
	p.posts[0].CommentCount++
	p.notice = &Notice{Level: NoticeInfo, Message: msgCommentPosted}
	return p.viewLocked(), nil
}

// SubmitReply posts a reply to parentID. The draft is kept when the backend
// rejects the reply and cleared once it is accepted.
func (p *PostDetail) SubmitReply(ctx context.Context, parentID, content string) (PostView, error) {
	gen, postID, err := p.current()
	if err != nil {
		return p.View(), err
	}

	p.mu.Lock()
	_, exists := p.thread.Find(parentID)
	p.mu.Unlock()
	if !exists {
		return p.View(), utils.NewNotFoundError("Comment not found")
	}

	if err := p.claim(parentID, content); err != nil {
		return p.View(), err
	}

	token, _ := p.session.Token()
	thread, err := p.composer.SubmitReply(ctx, token, postID, parentID, content)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, parentID)
	if err != nil {
		return p.viewLocked(), err
	}
	if gen != p.gen {
		return p.viewLocked(), nil
	}

	delete(p.drafts, parentID)
	if thread != nil {
		p.replaceThreadLocked(thread, true)
	}
	p.notice = &Notice{Level: NoticeInfo, Message: msgReplyPosted}
	return p.viewLocked(), nil
}

// replaceThreadLocked shows a new thread. Refetched scores become the new
// load-time scores; the viewer's votes are kept.
func (p *PostDetail) replaceThreadLocked(thread *threads.Thread, refetched bool) {
	p.thread = thread
	p.thread.Walk(func(_ int, c *models.Comment) bool {
		key := votes.CommentKey(c.ID)
		if _, tracked := p.ballots.Tally(key); tracked && !refetched {
			return true
		}
		p.ballots.Rebase(key, c.Votes)
		return true
	})
}
