package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestNormalizePost(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Post
	}{
		{
			name: "documented fields",
			raw:  `{"id": 7, "title": "t", "content": "c", "author": "ann", "vote_score": 12, "comment_count": 3, "clan": "golang", "created_at": "2024-01-01"}`,
			want: Post{ID: "7", Title: "t", Content: "c", Author: "ann", Votes: 12, CommentCount: 3, Clan: "golang", CreatedAt: "2024-01-01"},
		},
		{
			name: "aliases",
			raw:  `{"id": "abc", "author_id": 4, "votes": "5", "commentCount": 2, "subreddit": "news", "createdAt": "yesterday"}`,
			want: Post{ID: "abc", Author: "4", Votes: 5, CommentCount: 2, Clan: "news", CreatedAt: "yesterday"},
		},
		{
			name: "missing everything",
			raw:  `{"id": 1}`,
			want: Post{ID: "1", Author: DefaultAuthor, Clan: DefaultClan, CreatedAt: DefaultCreatedAt},
		},
		{
			name: "zero score wins over alias",
			raw:  `{"id": 2, "vote_score": 0, "votes": 9}`,
			want: Post{ID: "2", Author: DefaultAuthor, Clan: DefaultClan, CreatedAt: DefaultCreatedAt},
		},
		{
			name: "non numeric votes fall back",
			raw:  `{"id": 3, "vote_score": "lots", "votes": [1]}`,
			want: Post{ID: "3", Author: DefaultAuthor, Clan: DefaultClan, CreatedAt: DefaultCreatedAt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := AsRecord(decode(t, tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.want, NormalizePost(r))
		})
	}
}

func TestNormalizeComment(t *testing.T) {
	raw := `{
		"id": 1, "content": "top", "username": "bob", "vote_count": 4, "post_id": 9,
		"replies": [
			{"id": 2, "content": "child", "parentId": 1, "replies": [{"id": 3}]},
			{"id": 4}
		]
	}`
	r, _ := AsRecord(decode(t, raw))
	c := NormalizeComment(r)

	assert.Equal(t, "1", c.ID)
	assert.Equal(t, "bob", c.Author)
	assert.Equal(t, 4, c.Votes)
	assert.Equal(t, "9", c.PostID)
	assert.True(t, c.IsTopLevel())
	require.Len(t, c.Replies, 2)
	assert.Equal(t, 2, c.ReplyCount)
	assert.Equal(t, "1", c.Replies[0].ParentID)
	require.Len(t, c.Replies[0].Replies, 1)
	assert.Equal(t, "3", c.Replies[0].Replies[0].ID)
	assert.NotNil(t, c.Replies[1].Replies)
	assert.Empty(t, c.Replies[1].Replies)
}

func TestNormalizeCommentReplyCountFromBackend(t *testing.T) {
	c := NormalizeComment(Record{"id": "x", "reply_count": float64(5)})
	assert.Equal(t, 5, c.ReplyCount)
	assert.Equal(t, DefaultAuthor, c.Author)
	assert.Equal(t, 0, c.Votes)
}

func TestNormalizeClan(t *testing.T) {
	clan := NormalizeClan(Record{"id": float64(3), "name": "golang", "memberCount": "42"})
	assert.Equal(t, Clan{ID: "3", Name: "golang", DisplayName: "golang", MemberCount: 42, CreatedAt: DefaultCreatedAt}, clan)

	clan = NormalizeClan(Record{"name": "golang", "display_name": "Go Programming", "member_count": float64(0), "memberCount": float64(8)})
	assert.Equal(t, "Go Programming", clan.DisplayName)
	assert.Equal(t, 0, clan.MemberCount)
}

func TestNormalizeMembership(t *testing.T) {
	assert.True(t, NormalizeMembership(Record{"is_member": true}))
	assert.True(t, NormalizeMembership(Record{"isMember": "true"}))
	assert.False(t, NormalizeMembership(Record{"member": false}))
	assert.False(t, NormalizeMembership(Record{}))
}

func TestRecordList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"id": 1}, {"id": 2}]`, 2},
		{"wrapped in data", `{"data": [{"id": 1}]}`, 1},
		{"wrapped in posts", `{"posts": [{"id": 1}, {"id": 2}, {"id": 3}]}`, 3},
		{"wrapped in clans", `{"clans": [{"name": "a"}]}`, 1},
		{"non objects skipped", `[{"id": 1}, 4, "x", null]`, 1},
		{"object without list", `{"message": "nope"}`, 0},
		{"scalar", `"hello"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := RecordList(decode(t, tt.raw))
			assert.NotNil(t, list)
			assert.Len(t, list, tt.want)
		})
	}
}

func TestNormalizePostsAcceptsRecords(t *testing.T) {
	posts := NormalizePosts([]Record{{"id": "a"}, {"id": "b", "votes": 2}})
	require.Len(t, posts, 2)
	assert.Equal(t, 2, posts[1].Votes)
}

func TestVoteChoice(t *testing.T) {
	assert.Equal(t, 1, VoteUp.Sign())
	assert.Equal(t, -1, VoteDown.Sign())
	assert.Equal(t, 0, VoteNone.Sign())

	v, err := ParseVoteChoice("down")
	require.NoError(t, err)
	assert.Equal(t, VoteDown, v)

	_, err = ParseVoteChoice("none")
	assert.Error(t, err)
	_, err = ParseVoteChoice("sideways")
	assert.Error(t, err)
}
