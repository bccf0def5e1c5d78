package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/brettboylen/clanboard/models"
)

const (
	defaultBaseURL = "http://localhost:8000/api"
	bearerPrefix   = "Bearer "
)

// Error is a non-2xx response from the backend
type Error struct {
	Op      string
	Status  int
	Message string // response body, verbatim
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// BackendMessage returns the message the backend sent, if any
func (e *Error) BackendMessage() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client represents a clan backend REST API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	reads      singleflight.Group
	log        *logrus.Logger
}

// NewClient creates a new backend client
func NewClient(baseURL string, timeout time.Duration, maxRequestsPerMinute int, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = 600
	}

	// spread the per-minute allocation evenly, with a small burst for page loads
	// that fan out into several reads
	limiter := rate.NewLimiter(rate.Limit(float64(maxRequestsPerMinute)/60.0), 5)

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		limiter:    limiter,
		log:        log,
	}
}

// AuthorizationHeader builds the Authorization header value for token,
// leaving a token that already carries the Bearer prefix untouched
func AuthorizationHeader(token string) string {
	if strings.HasPrefix(token, bearerPrefix) {
		return token
	}
	return bearerPrefix + token
}

// Signup registers a new user
func (c *Client) Signup(ctx context.Context, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.do(ctx, "signup", http.MethodPost, "/auth/signup", "", body, nil)
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return "", err
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("login response did not include a token")
	}
	return token, nil
}

// GetPosts fetches every post
func (c *Client) GetPosts(ctx context.Context) ([]models.Record, error) {
	return c.getList(ctx, "get posts", "/posts")
}

// GetPost fetches a single post
func (c *Client) GetPost(ctx context.Context, id string) (models.Record, error) {
	return c.getOne(ctx, "get post", "/posts/"+url.PathEscape(id))
}

// CreatePost creates a post in a clan
func (c *Client) CreatePost(ctx context.Context, token string, post models.NewPost) (models.Record, error) {
	var out any
	if err := c.do(ctx, "create post", http.MethodPost, "/posts", token, post, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// VotePost casts a vote on a post
func (c *Client) VotePost(ctx context.Context, token, postID string, choice models.VoteChoice) (models.Record, error) {
	var out any
	body := map[string]string{"voteType": string(choice)}
	if err := c.do(ctx, "vote post", http.MethodPost, "/posts/"+url.PathEscape(postID)+"/vote", token, body, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// GetComments fetches the comments of a post, flat or nested
func (c *Client) GetComments(ctx context.Context, postID string) ([]models.Record, error) {
	return c.getList(ctx, "get comments", "/comments/post/"+url.PathEscape(postID))
}

// CreateComment creates a comment on a post; a non-empty parentID makes it a reply
func (c *Client) CreateComment(ctx context.Context, token, postID, parentID, content string) (models.Record, error) {
	body := map[string]any{
		"post_id": idValue(postID),
		"content": content,
	}
	if parentID != "" {
		body["parent_id"] = idValue(parentID)
	}

	var out any
	if err := c.do(ctx, "create comment", http.MethodPost, "/comments", token, body, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// UpdateComment replaces the content of a comment
func (c *Client) UpdateComment(ctx context.Context, token, commentID, content string) (models.Record, error) {
	var out any
	body := map[string]string{"content": content}
	if err := c.do(ctx, "update comment", http.MethodPut, "/comments/"+url.PathEscape(commentID), token, body, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// DeleteComment deletes a comment
func (c *Client) DeleteComment(ctx context.Context, token, commentID string) error {
	return c.do(ctx, "delete comment", http.MethodDelete, "/comments/"+url.PathEscape(commentID), token, nil, nil)
}

// VoteComment casts a vote on a comment
func (c *Client) VoteComment(ctx context.Context, token, commentID string, choice models.VoteChoice) (models.Record, error) {
	var out any
	body := map[string]string{"voteType": string(choice)}
	if err := c.do(ctx, "vote comment", http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/vote", token, body, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// RemoveCommentVote withdraws the viewer's vote on a comment
func (c *Client) RemoveCommentVote(ctx context.Context, token, commentID string) error {
	return c.do(ctx, "remove comment vote", http.MethodDelete, "/comments/"+url.PathEscape(commentID)+"/vote", token, nil, nil)
}

// GetClans fetches every clan
func (c *Client) GetClans(ctx context.Context) ([]models.Record, error) {
	return c.getList(ctx, "get clans", "/clans")
}

// GetClan fetches a clan by id
func (c *Client) GetClan(ctx context.Context, id string) (models.Record, error) {
	return c.getOne(ctx, "get clan", "/clans/"+url.PathEscape(id))
}

// GetClanByName fetches a clan by its routing name
func (c *Client) GetClanByName(ctx context.Context, name string) (models.Record, error) {
	return c.getOne(ctx, "get clan", "/clans/name/"+url.PathEscape(name))
}

// CreateClan creates a clan
func (c *Client) CreateClan(ctx context.Context, token string, clan models.NewClan) (models.Record, error) {
	var out any
	if err := c.do(ctx, "create clan", http.MethodPost, "/clans", token, clan, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// UpdateClan updates a clan's display name and description
func (c *Client) UpdateClan(ctx context.Context, token, id string, update models.ClanUpdate) (models.Record, error) {
	var out any
	if err := c.do(ctx, "update clan", http.MethodPut, "/clans/"+url.PathEscape(id), token, update, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// DeleteClan deletes a clan
func (c *Client) DeleteClan(ctx context.Context, token, id string) error {
	return c.do(ctx, "delete clan", http.MethodDelete, "/clans/"+url.PathEscape(id), token, nil, nil)
}

// JoinClan adds the viewer to a clan
func (c *Client) JoinClan(ctx context.Context, token, id string) error {
	return c.do(ctx, "join clan", http.MethodPost, "/clans/"+url.PathEscape(id)+"/join", token, nil, nil)
}

// LeaveClan removes the viewer from a clan
func (c *Client) LeaveClan(ctx context.Context, token, id string) error {
	return c.do(ctx, "leave clan", http.MethodPost, "/clans/"+url.PathEscape(id)+"/leave", token, nil, nil)
}

// GetClanMembers fetches the member list of a clan
func (c *Client) GetClanMembers(ctx context.Context, id string) ([]models.Record, error) {
	return c.getList(ctx, "get clan members", "/clans/"+url.PathEscape(id)+"/members")
}

// GetMembership fetches the viewer's membership status in a clan
func (c *Client) GetMembership(ctx context.Context, token, id string) (models.Record, error) {
	var out any
	if err := c.do(ctx, "get membership", http.MethodGet, "/clans/"+url.PathEscape(id)+"/membership", token, nil, &out); err != nil {
		return nil, err
	}
	return record(out), nil
}

// GetUserClans fetches the clans the viewer belongs to
func (c *Client) GetUserClans(ctx context.Context, token string) ([]models.Record, error) {
	var out any
	if err := c.do(ctx, "get user clans", http.MethodGet, "/users/clans", token, nil, &out); err != nil {
		return nil, err
	}
	return models.RecordList(out), nil
}

// getList performs an anonymous GET and extracts the list payload.
// Concurrent identical reads share one request.
func (c *Client) getList(ctx context.Context, op, path string) ([]models.Record, error) {
	out, err := c.sharedGet(ctx, op, path)
	if err != nil {
		return nil, err
	}
	return models.RecordList(out), nil
}

// getOne performs an anonymous GET for a single object
func (c *Client) getOne(ctx context.Context, op, path string) (models.Record, error) {
	out, err := c.sharedGet(ctx, op, path)
	if err != nil {
		return nil, err
	}
	r, ok := models.AsRecord(out)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected response shape", op)
	}
	return r, nil
}

// sharedGet runs one GET per path at a time. The request itself is detached
// from any single caller's context so a caller that gives up does not fail the
// others; each caller still stops waiting when its own ctx is done.
func (c *Client) sharedGet(ctx context.Context, op, path string) (any, error) {
	ch := c.reads.DoChan(path, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var out any
		err := c.do(readCtx, op, http.MethodGet, path, "", nil, &out)
		return out, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.log.WithField("path", path).Debug("Shared in-flight backend read")
		}
		return res.Val, res.Err
	}
}

// do executes a single request against the backend
func (c *Client) do(ctx context.Context, op, method, path, token string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait aborted: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", AuthorizationHeader(token))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe(op, "error", start)
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()
	observe(op, strconv.Itoa(resp.StatusCode), start)

	c.log.WithFields(logrus.Fields{
		"op":          op,
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Backend request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		c.log.WithFields(logrus.Fields{
			"op":            op,
			"response_body": string(raw),
			"status_code":   resp.StatusCode,
		}).Warn("Backend error response")
		return &Error{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// record returns the object payload of a write response, or an empty record
func record(v any) models.Record {
	if r, ok := models.AsRecord(v); ok {
		return r
	}
	return models.Record{}
}

// idValue sends integer ids as JSON numbers, anything else as a string
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
