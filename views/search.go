package views

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
)

// highlightPolicy only lets the match markers through
var highlightPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("mark")
	return p
}()

// Highlights holds HTML renderings of a result's fields with every match of
// the query wrapped in <mark>
type Highlights struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Clan    string `json:"clan"`
	Author  string `json:"author"`
}

// SearchResult is a matching post with its highlighted fields
type SearchResult struct {
	PostItem
	Highlights Highlights `json:"highlights"`
}

// SearchView is the search view model
type SearchView struct {
	Status  Status         `json:"status"`
	Notice  *Notice        `json:"notice,omitempty"`
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Search filters the fetched posts by a case-insensitive substring match
type Search struct {
	*feed
	query string
}

// NewSearch creates the search controller
func NewSearch(backend Backend, sess Session, log *logrus.Logger) *Search {
	return &Search{feed: newFeed(backend, sess, log)}
}

// Load runs query against the title, content, clan and author of every post.
// A blank query shows no results without contacting the backend.
func (s *Search) Load(ctx context.Context, query string) SearchView {
	query = strings.TrimSpace(query)
	gen := s.begin()

	if query == "" {
		s.mu.Lock()
		if gen == s.gen {
			s.query = ""
			s.setPostsLocked(nil)
			s.status = StatusReady
		}
		s.mu.Unlock()
		return s.View()
	}

	status := StatusReady
	var notice *Notice
	matches := make([]models.Post, 0)

	records, err := s.backend.GetPosts(ctx)
	if err != nil {
		s.log.WithError(err).WithField("query", query).Warn("Failed to fetch posts for search")
		status = StatusError
		notice = errorNotice(msgBackendOffline)
	} else {
		for _, p := range models.NormalizePosts(records) {
			if Matches(p, query) {
				matches = append(matches, p)
			}
		}
	}

	s.mu.Lock()
	if gen == s.gen {
		s.query = query
		s.setPostsLocked(matches)
		s.status = status
		s.notice = notice
	}
	s.mu.Unlock()

	return s.View()
}

// View renders the current state
func (s *Search) View() SearchView {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.itemsLocked()
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, SearchResult{
			PostItem: item,
			Highlights: Highlights{
				Title:   Highlight(item.Title, s.query),
				Content: Highlight(item.Content, s.query),
				Clan:    Highlight(item.Clan, s.query),
				Author:  Highlight(item.Author, s.query),
			},
		})
	}
	return SearchView{
		Status:  s.status,
		Notice:  s.notice,
		Query:   s.query,
		Results: results,
	}
}

// Matches reports whether query occurs in the post's title, content, clan or author
func Matches(p models.Post, query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{p.Title, p.Content, p.Clan, p.Author} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Highlight escapes text and wraps every case-insensitive match of query in <mark>
func Highlight(text, query string) string {
	if query == "" {
		return highlightPolicy.Sanitize(html.EscapeString(text))
	}

	var b strings.Builder
	start := 0
	for i := 0; i+len(query) <= len(text); {
		if strings.EqualFold(text[i:i+len(query)], query) {
			b.WriteString(html.EscapeString(text[start:i]))
			b.WriteString("<mark>")
			b.WriteString(html.EscapeString(text[i : i+len(query)]))
			b.WriteString("</mark>")
			i += len(query)
			start = i
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	b.WriteString(html.EscapeString(text[start:]))

	return highlightPolicy.Sanitize(b.String())
}
