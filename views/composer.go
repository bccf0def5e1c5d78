package views

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/session"
	"github.com/brettboylen/clanboard/utils"
)

const (
	msgCredentialsRequired = "Email and password are required"
	msgSignupRequired      = "Username, email and password are required"
)

// AuthSession is a Session that can also log the viewer in and out
type AuthSession interface {
	Session
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, username, email, password string) error
	Logout()
}

// Composer handles the create post, create clan, login and signup forms
type Composer struct {
	backend Backend
	session AuthSession
	log     *logrus.Logger
}

// NewComposer creates the form controller
func NewComposer(backend Backend, sess AuthSession, log *logrus.Logger) *Composer {
	return &Composer{backend: backend, session: sess, log: log}
}

// CreatePost validates and submits a new post
func (c *Composer) CreatePost(ctx context.Context, title, content, clan string) (models.Post, error) {
	payload, err := models.PrepareNewPost(title, content, clan)
	if err != nil {
		return models.Post{}, inputError(err)
	}

	token, ok := c.session.Token()
	if !ok {
		return models.Post{}, utils.NewLoginRequiredError("create a post")
	}

	record, err := c.backend.CreatePost(ctx, token, payload)
	if err != nil {
		return models.Post{}, utils.NewBackendError("Failed to create post", err)
	}

	post := models.NormalizePost(record)
	if post.Title == "" {
		post.Title = payload.Title
	}
	if post.Content == "" {
		post.Content = payload.Content
	}
	_, sentClan := record["clan"]
	_, sentSubreddit := record["subreddit"]
	if !sentClan && !sentSubreddit {
		post.Clan = payload.Clan
	}

	c.log.WithFields(logrus.Fields{
		"post_id": post.ID,
		"clan":    post.Clan,
	}).Info("Post created")
	return post, nil
}

// CreateClan validates and submits a new clan
func (c *Composer) CreateClan(ctx context.Context, name, displayName, description string) (models.Clan, error) {
	payload, err := models.PrepareNewClan(name, displayName, description)
	if err != nil {
		return models.Clan{}, inputError(err)
	}

	token, ok := c.session.Token()
	if !ok {
		return models.Clan{}, utils.NewLoginRequiredError("create a clan")
	}

	record, err := c.backend.CreateClan(ctx, token, payload)
	if err != nil {
		return models.Clan{}, utils.NewBackendError("Failed to create clan", err)
	}

	clan := models.NormalizeClan(record)
	if clan.Name == "" {
		clan.Name = payload.Name
		clan.DisplayName = payload.DisplayName
	}
	if clan.Description == "" {
		clan.Description = payload.Description
	}

	c.log.WithField("clan", clan.Name).Info("Clan created")
	return clan, nil
}

// Login authenticates the viewer
func (c *Composer) Login(ctx context.Context, email, password string) (session.State, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return c.session.State(), utils.NewValidationError(msgCredentialsRequired)
	}

	if err := c.session.Login(ctx, email, password); err != nil {
		return c.session.State(), utils.NewBackendError("Login failed", err)
	}
	return c.session.State(), nil
}

// Signup registers the viewer and logs them in
func (c *Composer) Signup(ctx context.Context, username, email, password string) (session.State, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return c.session.State(), utils.NewValidationError(msgSignupRequired)
	}

	if err := c.session.Signup(ctx, username, email, password); err != nil {
		return c.session.State(), utils.NewBackendError("Signup failed", err)
	}
	return c.session.State(), nil
}

// Logout forgets the viewer's token
func (c *Composer) Logout() session.State {
	c.session.Logout()
	return c.session.State()
}
