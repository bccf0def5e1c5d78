package models

import (
	"fmt"
	"time"
)

// Record is a single decoded backend object whose exact field names are not known
type Record map[string]any

// Post represents a post in a clan
type Post struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	Votes        int    `json:"votes"`
	CommentCount int    `json:"comment_count"`
	Clan         string `json:"clan"`
	CreatedAt    string `json:"created_at"`
}

// Comment represents a comment on a post, or a reply when ParentID is set
type Comment struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Author     string     `json:"author"`
	Votes      int        `json:"votes"`
	CreatedAt  string     `json:"created_at"`
	PostID     string     `json:"post_id,omitempty"`
	ParentID   string     `json:"parent_id,omitempty"`
	Replies    []*Comment `json:"replies"`
	ReplyCount int        `json:"reply_count"`

	// ReplyCountReported is set when ReplyCount came from the backend
	ReplyCountReported bool `json:"-"`
}

// IsTopLevel reports whether the comment replies to the post itself
func (c *Comment) IsTopLevel() bool {
	return c.ParentID == ""
}

// Clan represents a community
type Clan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
}

// Member is a single entry of a clan's member list
type Member struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// VoteChoice is a viewer's vote on a single item
type VoteChoice string

const (
	VoteUp   VoteChoice = "up"
	VoteDown VoteChoice = "down"
	VoteNone VoteChoice = "none"
)

// Sign returns +1 for an up vote, -1 for a down vote and 0 otherwise
func (v VoteChoice) Sign() int {
	switch v {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	default:
		return 0
	}
}

// ParseVoteChoice parses the voteType sent by callers; only up and down are castable
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch VoteChoice(s) {
	case VoteUp, VoteDown:
		return VoteChoice(s), nil
	default:
		return VoteNone, fmt.Errorf("invalid vote type %q", s)
	}
}

// NewPost is the payload for creating a post
type NewPost struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	Clan    string `json:"clan" validate:"required"`
}

// NewClan is the payload for creating a clan
type NewClan struct {
	Name        string `json:"name" validate:"required,clanname,min=3,max=50"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Description string `json:"description" validate:"required,max=500"`
}

// ClanUpdate holds the editable fields of a clan
type ClanUpdate struct {
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Credentials are the login/signup form fields
type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ClanStats holds statistics for a single clan
type ClanStats struct {
	PostCount        int  `json:"post_count"`
	HighestVotedPost Post `json:"highest_voted_post"`
}

// Statistics holds the feed snapshot statistics
type Statistics struct {
	TotalPosts      int                  `json:"total_posts"`
	TopPostsByVotes []Post               `json:"top_posts_by_votes"`
	TopClans        []Clan               `json:"top_clans"`
	ClanStats       map[string]ClanStats `json:"clan_stats"`
	StartTime       time.Time            `json:"start_time"`
	LastUpdated     time.Time            `json:"last_updated"`
}
