package views

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/clanboard/models"
	"github.com/brettboylen/clanboard/utils"
)

func clanBackend() *fakeBackend {
	return &fakeBackend{
		posts: []models.Record{
			post("1", 4, 0, "golang", "ann"),
			post("2", 9, 0, "rust", "bob"),
			post("3", 1, 0, "GoLang", "cat"),
		},
		clanByName: map[string]models.Record{
			"golang": {"id": float64(12), "name": "golang", "description": "Go", "member_count": float64(40)},
		},
	}
}

func TestClanFeedLoad(t *testing.T) {
	backend := clanBackend()
	feed := NewClanFeed(backend, newSession(backend), quietLogger())
	defer feed.Close()

	view := feed.Load(context.Background(), "golang")
	assert.Equal(t, StatusReady, view.Status)
	require.NotNil(t, view.Clan)
	assert.Equal(t, "12", view.Clan.ID)
	assert.Equal(t, 40, view.Clan.MemberCount)
	assert.Equal(t, []string{"1", "3"}, itemIDs(view.Posts))
	assert.False(t, view.IsMember)
	// membership is only asked for a logged in viewer
	assert.Equal(t, 0, backend.called("GetMembership"))
}

func TestClanFeedNotFound(t *testing.T) {
	backend := clanBackend()
	feed := NewClanFeed(backend, newSession(backend), quietLogger())
	defer feed.Close()

	view := feed.Load(context.Background(), "missing")
	assert.Equal(t, StatusNotFound, view.Status)
	assert.Nil(t, view.Clan)
	assert.Empty(t, view.Posts)

	// a malformed name never reaches the backend
	before := backend.called("GetClanByName")
	view = feed.Load(context.Background(), "Not A Clan")
	assert.Equal(t, StatusNotFound, view.Status)
	assert.Equal(t, before, backend.called("GetClanByName"))
}

func TestClanFeedPostsFailure(t *testing.T) {
	backend := clanBackend()
	backend.postsErr = errOffline
	feed := NewClanFeed(backend, newSession(backend), quietLogger())
	defer feed.Close()

	view := feed.Load(context.Background(), "golang")
	assert.Equal(t, StatusReady, view.Status)
	require.NotNil(t, view.Notice)
	assert.Equal(t, msgClanPostsFailed, view.Notice.Message)
	assert.NotNil(t, view.Posts)
	assert.Empty(t, view.Posts)
}

func TestClanFeedJoinAndLeave(t *testing.T) {
	backend := clanBackend()
	feed := NewClanFeed(backend, loggedIn(t, backend), quietLogger())
	defer feed.Close()
	feed.Load(context.Background(), "golang")

	view, err := feed.Join(context.Background())
	require.NoError(t, err)
	assert.True(t, view.IsMember)
	assert.Equal(t, 41, view.Clan.MemberCount)

	backend.writeErr = &rejection{msg: "Owners cannot leave"}
	view, err = feed.Leave(context.Background())
	assert.Equal(t, utils.ErrBackend, utils.ErrorCode(err))
	assert.Equal(t, "Owners cannot leave", utils.UserMessage(err, ""))
	assert.True(t, view.IsMember)
	assert.Equal(t, 41, view.Clan.MemberCount)

	backend.writeErr = nil
	view, err = feed.Leave(context.Background())
	require.NoError(t, err)
	assert.False(t, view.IsMember)
	assert.Equal(t, 40, view.Clan.MemberCount)
}

func TestClanFeedJoinRequiresLogin(t *testing.T) {
	backend := clanBackend()
	feed := NewClanFeed(backend, newSession(backend), quietLogger())
	defer feed.Close()
	feed.Load(context.Background(), "golang")

	_, err := feed.Join(context.Background())
	assert.Equal(t, utils.ErrLoginRequired, utils.ErrorCode(err))
	assert.Equal(t, 0, backend.called("JoinClan"))
}

func TestClanFeedReloadsOnLogin(t *testing.T) {
	backend := clanBackend()
	backend.membership = true
	store := newSession(backend)
	feed := NewClanFeed(backend, store, quietLogger())
	defer feed.Close()

	view := feed.Load(context.Background(), "golang")
	assert.False(t, view.IsMember)

	require.NoError(t, store.Login(context.Background(), "me@example.com", "secret"))
	assert.True(t, feed.View().IsMember)
	assert.Equal(t, 2, backend.called("GetClanByName"))

	store.Logout()
	assert.False(t, feed.View().IsMember)
	assert.Equal(t, 3, backend.called("GetClanByName"))
}

func TestClanFeedMembers(t *testing.T) {
	backend := clanBackend()
	backend.members = []models.Record{{"user_id": float64(1), "username": "ann", "role": "owner"}}
	feed := NewClanFeed(backend, newSession(backend), quietLogger())
	defer feed.Close()

	_, err := feed.Members(context.Background())
	assert.Equal(t, utils.ErrNotFound, utils.ErrorCode(err))

	feed.Load(context.Background(), "golang")
	members, err := feed.Members(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner", members[0].Role)

	backend.membersErr = errOffline
	members, err = feed.Members(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
}
