package views

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/clanboard/models"
)

func searchBackend() *fakeBackend {
	return &fakeBackend{posts: []models.Record{
		{"id": "1", "title": "Learning Go", "content": "channels", "author": "ann", "clan": "golang"},
		{"id": "2", "title": "Vim tips", "content": "use GO to jump", "author": "bob", "clan": "neovim"},
		{"id": "3", "title": "React", "content": "hooks", "author": "gopher", "clan": "reactjs"},
		{"id": "4", "title": "Rust", "content": "traits", "author": "cat", "clan": "rust"},
	}}
}

func TestSearchBlankQuery(t *testing.T) {
	backend := searchBackend()
	search := NewSearch(backend, newSession(backend), quietLogger())

	for _, q := range []string{"", "   "} {
		view := search.Load(context.Background(), q)
		assert.Equal(t, StatusReady, view.Status)
		assert.NotNil(t, view.Results)
		assert.Empty(t, view.Results)
	}
	assert.Equal(t, 0, backend.called("GetPosts"))
}

func TestSearchMatchesEveryField(t *testing.T) {
	backend := searchBackend()
	search := NewSearch(backend, newSession(backend), quietLogger())

	view := search.Load(context.Background(), " go ")
	assert.Equal(t, "go", view.Query)

	ids := make([]string, 0, len(view.Results))
	for _, r := range view.Results {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	require.NotEmpty(t, view.Results)
	assert.Equal(t, "Learning <mark>Go</mark>", view.Results[0].Highlights.Title)
	assert.Equal(t, "<mark>go</mark>lang", view.Results[0].Highlights.Clan)
	assert.Equal(t, "ann", view.Results[0].Highlights.Author)
}

func TestSearchBackendDown(t *testing.T) {
	backend := searchBackend()
	backend.postsErr = errOffline
	search := NewSearch(backend, newSession(backend), quietLogger())

	view := search.Load(context.Background(), "go")
	assert.Equal(t, StatusError, view.Status)
	assert.Empty(t, view.Results)
	require.NotNil(t, view.Notice)
}

func TestSearchVote(t *testing.T) {
	backend := searchBackend()
	search := NewSearch(backend, loggedIn(t, backend), quietLogger())
	search.Load(context.Background(), "rust")

	_, err := search.Vote(context.Background(), "4", models.VoteUp)
	require.NoError(t, err)
	view := search.View()
	require.Len(t, view.Results, 1)
	assert.Equal(t, 1, view.Results[0].Votes)
	assert.Equal(t, models.VoteUp, view.Results[0].UserVote)
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  string
	}{
		{"no query", "plain", "", "plain"},
		{"no match", "plain", "x", "plain"},
		{"case insensitive", "Go go GO", "go", "<mark>Go</mark> <mark>go</mark> <mark>GO</mark>"},
		{"markup is escaped", "<b>bold</b> go", "go", "&lt;b&gt;bold&lt;/b&gt; <mark>go</mark>"},
		{"script never survives", "<script>go()</script>", "go", "&lt;script&gt;<mark>go</mark>()&lt;/script&gt;"},
		{"multibyte text", "héllo go", "go", "héllo <mark>go</mark>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query))
		})
	}
}
