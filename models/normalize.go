package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Defaults used when the backend omits a field entirely
const (
	DefaultClan      = "general"
	DefaultAuthor    = "Unknown"
	DefaultCreatedAt = "Unknown"
)

// list payloads are either bare arrays or objects wrapping the array under one of these keys
var listKeys = []string{"data", "posts", "comments", "clans", "members", "items"}

// NormalizePost maps a backend post record onto the canonical Post
func NormalizePost(r Record) Post {
	return Post{
		ID:           idField(r, "id"),
		Title:        stringField(r, "", "title"),
		Content:      stringField(r, "", "content"),
		Author:       stringField(r, DefaultAuthor, "author", "author_id"),
		Votes:        intField(r, 0, "vote_score", "votes"),
		CommentCount: intField(r, 0, "comment_count", "commentCount"),
		Clan:         stringField(r, DefaultClan, "clan", "subreddit"),
		CreatedAt:    stringField(r, DefaultCreatedAt, "created_at", "createdAt"),
	}
}

// NormalizePosts normalizes a list payload of posts
func NormalizePosts(v any) []Post {
	records := RecordList(v)
	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, NormalizePost(r))
	}
	return posts
}

// NormalizeComment maps a backend comment record onto the canonical Comment,
// normalizing any nested replies recursively
func NormalizeComment(r Record) *Comment {
	replies := NormalizeComments(r["replies"])

	return &Comment{
		ID:         idField(r, "id"),
		Content:    stringField(r, "", "content"),
		Author:     stringField(r, DefaultAuthor, "author", "username", "author_id"),
		Votes:      intField(r, 0, "vote_score", "vote_count", "votes"),
		CreatedAt:  stringField(r, DefaultCreatedAt, "created_at", "createdAt"),
		PostID:     idField(r, "post_id", "postId"),
		ParentID:   idField(r, "parent_id", "parentId"),
		Replies:    replies,
		ReplyCount: intField(r, len(replies), "reply_count", "replyCount"),

		ReplyCountReported: hasIntField(r, "reply_count", "replyCount"),
	}
}

// NormalizeComments normalizes a list payload of comments
func NormalizeComments(v any) []*Comment {
	records := RecordList(v)
	comments := make([]*Comment, 0, len(records))
	for _, r := range records {
		comments = append(comments, NormalizeComment(r))
	}
	return comments
}

// NormalizeClan maps a backend clan record onto the canonical Clan
func NormalizeClan(r Record) Clan {
	name := stringField(r, "", "name")
	return Clan{
		ID:          idField(r, "id"),
		Name:        name,
		DisplayName: stringField(r, name, "display_name", "displayName"),
		Description: stringField(r, "", "description"),
		MemberCount: intField(r, 0, "member_count", "memberCount"),
		CreatedAt:   stringField(r, DefaultCreatedAt, "created_at", "createdAt"),
	}
}

// NormalizeClans normalizes a list payload of clans
func NormalizeClans(v any) []Clan {
	records := RecordList(v)
	clans := make([]Clan, 0, len(records))
	for _, r := range records {
		clans = append(clans, NormalizeClan(r))
	}
	return clans
}

// NormalizeMember maps a backend membership row onto Member
func NormalizeMember(r Record) Member {
	return Member{
		UserID:   idField(r, "user_id", "userId", "id"),
		Username: stringField(r, DefaultAuthor, "username", "user_name", "name"),
		Role:     stringField(r, "member", "role"),
		JoinedAt: stringField(r, DefaultCreatedAt, "joined_at", "joinedAt", "created_at"),
	}
}

// NormalizeMembers normalizes a list payload of members
func NormalizeMembers(v any) []Member {
	records := RecordList(v)
	members := make([]Member, 0, len(records))
	for _, r := range records {
		members = append(members, NormalizeMember(r))
	}
	return members
}

// NormalizeMembership reads the viewer's membership flag from a membership status record
func NormalizeMembership(r Record) bool {
	for _, key := range []string{"is_member", "isMember", "member"} {
		switch v := r[key].(type) {
		case bool:
			return v
		case string:
			b, err := strconv.ParseBool(v)
			return err == nil && b
		}
	}
	return false
}

// RecordList extracts the records of a list payload. Anything that is not a
// list, or an object wrapping one, yields an empty list.
func RecordList(v any) []Record {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []Record:
		return t
	case []map[string]any:
		out := make([]Record, 0, len(t))
		for _, m := range t {
			out = append(out, Record(m))
		}
		return out
	case map[string]any:
		return wrappedList(t)
	case Record:
		return wrappedList(t)
	default:
		return []Record{}
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		if r, ok := AsRecord(item); ok {
			out = append(out, r)
		}
	}
	return out
}

func wrappedList(m map[string]any) []Record {
	for _, key := range listKeys {
		if inner, ok := m[key]; ok {
			return RecordList(inner)
		}
	}
	return []Record{}
}

// AsRecord converts a decoded JSON value to a Record if it is an object
func AsRecord(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]any:
		return Record(t), true
	default:
		return nil, false
	}
}

// stringField returns the first present, non-empty field among keys
func stringField(r Record, def string, keys ...string) string {
	for _, key := range keys {
		if s, ok := scalarString(r[key]); ok && s != "" {
			return s
		}
	}
	return def
}

// idField is stringField without a default; ids may be numbers or strings
func idField(r Record, keys ...string) string {
	return stringField(r, "", keys...)
}

// intField returns the first present numeric field among keys. A documented
// field that is present wins even when its value is zero.
func intField(r Record, def int, keys ...string) int {
	for _, key := range keys {
		if n, ok := scalarInt(r[key]); ok {
			return n
		}
	}
	return def
}

// hasIntField reports whether any of keys holds a number
func hasIntField(r Record, keys ...string) bool {
	for _, key := range keys {
		if _, ok := scalarInt(r[key]); ok {
			return true
		}
	}
	return false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func scalarInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(math.Round(f)), true
		}
	case float64:
		return int(math.Round(t)), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}
