package views

import (
	"context"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
)

// feed orderings
const (
	SortHot = "hot"
	SortNew = "new"
	SortTop = "top"
)

const (
	msgCachedPosts    = "Using cached posts - backend not available"
	msgBackendOffline = "Backend not available"
)

// HomeView is the home feed view model
type HomeView struct {
	Status Status     `json:"status"`
	Notice *Notice    `json:"notice,omitempty"`
	Sort   string     `json:"sort"`
	Posts  []PostItem `json:"posts"`
}

// HomeFeed lists every post
type HomeFeed struct {
	*feed
	sort  string
	cache PostCache
}

// NewHomeFeed creates the home feed controller. cache may be nil.
func NewHomeFeed(backend Backend, sess Session, cache PostCache, log *logrus.Logger) *HomeFeed {
	return &HomeFeed{
		feed:  newFeed(backend, sess, log),
		sort:  SortHot,
		cache: cache,
	}
}

// Load fetches the feed and orders it by sortBy. When the backend is down the
// last cached feed is shown instead.
func (h *HomeFeed) Load(ctx context.Context, sortBy string) HomeView {
	sortBy = normalizeSort(sortBy)
	gen := h.begin()

	status := StatusReady
	var notice *Notice

	var posts []models.Post
	records, err := h.backend.GetPosts(ctx)
	if err != nil {
		h.log.WithError(err).Warn("Failed to fetch posts for home feed")
		posts = h.cachedPosts()
		status = StatusError
		if len(posts) > 0 {
			notice = errorNotice(msgCachedPosts)
		} else {
			notice = errorNotice(msgBackendOffline)
		}
	} else {
		posts = models.NormalizePosts(records)
		h.saveCache(posts)
	}

	SortPosts(posts, sortBy)

	h.mu.Lock()
	if gen == h.gen {
		h.sort = sortBy
		h.setPostsLocked(posts)
		h.status = status
		h.notice = notice
	}
	h.mu.Unlock()

	return h.View()
}

// View renders the current state
func (h *HomeFeed) View() HomeView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HomeView{
		Status: h.status,
		Notice: h.notice,
		Sort:   h.sort,
		Posts:  h.itemsLocked(),
	}
}

func (h *HomeFeed) cachedPosts() []models.Post {
	if h.cache == nil {
		return nil
	}
	posts, err := h.cache.GetCachedPosts()
	if err != nil {
		h.log.WithError(err).Error("Failed to read cached posts")
		return nil
	}
	return posts
}

func (h *HomeFeed) saveCache(posts []models.Post) {
	if h.cache == nil {
		return
	}
	if err := h.cache.ReplacePosts(posts); err != nil {
		h.log.WithError(err).Error("Failed to cache posts")
	}
}

func normalizeSort(s string) string {
	switch s {
	case SortNew, SortTop:
		return s
	default:
		return SortHot
	}
}

// SortPosts orders posts in place. hot ranks by votes plus comments, new by
// id descending and top by votes. Ties keep backend order.
func SortPosts(posts []models.Post, sortBy string) {
	var less func(a, b models.Post) bool
	switch sortBy {
	case SortNew:
		less = newer
	case SortTop:
		less = func(a, b models.Post) bool { return a.Votes > b.Votes }
	default:
		less = func(a, b models.Post) bool {
			return a.Votes+a.CommentCount > b.Votes+b.CommentCount
		}
	}
	sort.SliceStable(posts, func(i, j int) bool { return less(posts[i], posts[j]) })
}

// newer compares ids numerically when both are integers
func newer(a, b models.Post) bool {
	ai, errA := strconv.ParseInt(a.ID, 10, 64)
	bi, errB := strconv.ParseInt(b.ID, 10, 64)
	if errA == nil && errB == nil {
		return ai > bi
	}
	return a.ID > b.ID
}
