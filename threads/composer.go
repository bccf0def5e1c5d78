package threads

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/utils"
)

// labels of a comment synthesized locally when the refetch after posting fails
const (
	LocalAuthor    = "You"
	LocalCreatedAt = "Just now"
)

// Backend is the part of the backend the composer writes to and refetches from
type Backend interface {
	CreateComment(ctx context.Context, token, postID, parentID, content string) (models.Record, error)
	GetComments(ctx context.Context, postID string) ([]models.Record, error)
}

// Composer posts comments and replies and rebuilds the thread afterwards
type Composer struct {
	backend Backend
	log     *logrus.Logger
}

// NewComposer creates a composer
func NewComposer(backend Backend, log *logrus.Logger) *Composer {
	return &Composer{backend: backend, log: log}
}

// Fetch loads and builds the comment tree of a post
func (c *Composer) Fetch(ctx context.Context, postID string) (*Thread, error) {
	records, err := c.backend.GetComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments for post %s: %w", postID, err)
	}
	return Build(postID, models.NormalizeComments(records)), nil
}

// SubmitReply posts a reply to parentID and returns the refetched thread, or a
// nil thread when the refetch failed. Nothing is sent when the content is blank.
func (c *Composer) SubmitReply(ctx context.Context, token, postID, parentID, content string) (*Thread, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError(models.MsgReplyEmpty)
	}
	if token == "" {
		return nil, utils.NewLoginRequiredError("reply")
	}

	if _, err := c.backend.CreateComment(ctx, token, postID, parentID, content); err != nil {
		return nil, utils.NewBackendError("Failed to post reply", err)
	}

	c.log.WithFields(logrus.Fields{
		"post_id":   postID,
		"parent_id": parentID,
	}).Info("Reply posted")

	thread, err := c.Fetch(ctx, postID)
	if err != nil {
		// the reply exists; the caller keeps its current tree until the next load
		c.log.WithError(err).WithField("post_id", postID).Warn("Reply refetch failed")
		return nil, nil
	}
	return thread, nil
}

// SubmitComment posts a top-level comment and returns the refetched thread. If
// the refetch fails, current is returned with one synthesized comment
// prepended and synthesized is true.
func (c *Composer) SubmitComment(ctx context.Context, token, postID, content string, current *Thread) (thread *Thread, synthesized bool, err error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, utils.NewValidationError(models.MsgCommentEmpty)
	}
	if token == "" {
		return nil, false, utils.NewLoginRequiredError("comment")
	}

	created, err := c.backend.CreateComment(ctx, token, postID, "", content)
	if err != nil {
		return nil, false, utils.NewBackendError("Failed to post comment", err)
	}

	thread, err = c.Fetch(ctx, postID)
	if err == nil {
		return thread, false, nil
	}

	c.log.WithError(err).WithField("post_id", postID).Warn("Comment refetch failed, showing local copy")

	id := models.NormalizeComment(created).ID
	if id == "" {
		id = "local-" + uuid.NewString()
	}

	if current == nil {
		current = Build(postID, nil)
	}
	current.Prepend(&models.Comment{
		ID:        id,
		Content:   content,
		Author:    LocalAuthor,
		Votes:     0,
		CreatedAt: LocalCreatedAt,
		PostID:    postID,
		Replies:   make([]*models.Comment, 0),
	})
	return current, true, nil
}
