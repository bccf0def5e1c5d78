package views

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/session"
)

var errOffline = errors.New("connection refused")

// rejection is a backend error carrying the backend's own message
type rejection struct{ msg string }

func (r *rejection) Error() string          { return "HTTP 400: " + r.msg }
func (r *rejection) BackendMessage() string { return r.msg }

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	posts    []models.Record
	postsErr error
	onPosts  func() // runs once, on the next GetPosts

	post    models.Record
	postErr error

	comments         []models.Record
	commentsErr      error
	failCommentsNext bool // the refetch after the next comment write fails
	nextCommentID    int

	clans      []models.Record
	clansErr   error
	clanByName map[string]models.Record
	membership bool
	userClans  []models.Record
	members    []models.Record
	membersErr error

	writeErr error
	loginErr error
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (string, error) {
	f.record("Login")
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "tok-" + email, nil
}

func (f *fakeBackend) Signup(ctx context.Context, username, email, password string) error {
	f.record("Signup")
	return f.writeErr
}

func (f *fakeBackend) GetPosts(ctx context.Context) ([]models.Record, error) {
	f.record("GetPosts")
	if hook := f.onPosts; hook != nil {
		f.onPosts = nil
		hook()
	}
	return f.posts, f.postsErr
}

func (f *fakeBackend) GetPost(ctx context.Context, id string) (models.Record, error) {
	f.record("GetPost")
	return f.post, f.postErr
}

func (f *fakeBackend) CreatePost(ctx context.Context, token string, post models.NewPost) (models.Record, error) {
	f.record("CreatePost")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return models.Record{"id": float64(99)}, nil
}

func (f *fakeBackend) VotePost(ctx context.Context, token, postID string, choice models.VoteChoice) (models.Record, error) {
	f.record("VotePost")
	return models.Record{}, f.writeErr
}

func (f *fakeBackend) GetComments(ctx context.Context, postID string) ([]models.Record, error) {
	f.record("GetComments")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments, f.commentsErr
}

func (f *fakeBackend) CreateComment(ctx context.Context, token, postID, parentID, content string) (models.Record, error) {
	f.record("CreateComment")
	if f.writeErr != nil {
		return nil, f.writeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCommentID++
	created := models.Record{
		"id":        "new" + strconv.Itoa(f.nextCommentID),
		"content":   content,
		"author":    "me",
		"parent_id": parentID,
	}
	f.comments = append(f.comments, created)
	if f.failCommentsNext {
		f.failCommentsNext = false
		f.commentsErr = errOffline
	}
	return created, nil
}

func (f *fakeBackend) VoteComment(ctx context.Context, token, commentID string, choice models.VoteChoice) (models.Record, error) {
	f.record("VoteComment")
	return models.Record{}, f.writeErr
}

func (f *fakeBackend) GetClans(ctx context.Context) ([]models.Record, error) {
	f.record("GetClans")
	return f.clans, f.clansErr
}

func (f *fakeBackend) GetClanByName(ctx context.Context, name string) (models.Record, error) {
	f.record("GetClanByName")
	f.mu.Lock()
	defer f.mu.Unlock()
	clan, ok := f.clanByName[name]
	if !ok {
		return nil, &rejection{msg: "Clan not found"}
	}
	return clan, nil
}

func (f *fakeBackend) CreateClan(ctx context.Context, token string, clan models.NewClan) (models.Record, error) {
	f.record("CreateClan")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return models.Record{"id": float64(5), "name": clan.Name}, nil
}

func (f *fakeBackend) JoinClan(ctx context.Context, token, id string) error {
	f.record("JoinClan")
	return f.writeErr
}

func (f *fakeBackend) LeaveClan(ctx context.Context, token, id string) error {
	f.record("LeaveClan")
	return f.writeErr
}

func (f *fakeBackend) GetClanMembers(ctx context.Context, id string) ([]models.Record, error) {
	f.record("GetClanMembers")
	return f.members, f.membersErr
}

func (f *fakeBackend) GetMembership(ctx context.Context, token, id string) (models.Record, error) {
	f.record("GetMembership")
	return models.Record{"is_member": f.membership}, nil
}

func (f *fakeBackend) GetUserClans(ctx context.Context, token string) ([]models.Record, error) {
	f.record("GetUserClans")
	return f.userClans, nil
}

type memPostCache struct {
	posts []models.Post
}

func (m *memPostCache) ReplacePosts(posts []models.Post) error {
	m.posts = append([]models.Post(nil), posts...)
	return nil
}

func (m *memPostCache) GetCachedPosts() ([]models.Post, error) {
	return append([]models.Post(nil), m.posts...), nil
}

type memClanCache struct {
	clans []models.Clan
}

func (m *memClanCache) ReplaceClans(clans []models.Clan) error {
	m.clans = append([]models.Clan(nil), clans...)
	return nil
}

func (m *memClanCache) GetCachedClans() ([]models.Clan, error) {
	return append([]models.Clan(nil), m.clans...), nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newSession(backend *fakeBackend) *session.Store {
	return session.NewStore("viewer", backend, nil, quietLogger())
}

func loggedIn(t *testing.T, backend *fakeBackend) *session.Store {
	t.Helper()
	store := newSession(backend)
	require.NoError(t, store.Login(context.Background(), "me@example.com", "secret"))
	return store
}

func post(id string, votes, comments int, clan, author string) models.Record {
	return models.Record{
		"id":            id,
		"title":         "title " + id,
		"content":       "content " + id,
		"author":        author,
		"vote_score":    float64(votes),
		"comment_count": float64(comments),
		"clan":          clan,
	}
}

func itemIDs(items []PostItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
