package threads

import (
	"github.com/brettboylen/clanboard/models"
)

// Thread is the comment tree of one post
type Thread struct {
	PostID string
	roots  []*models.Comment
	index  map[string]*models.Comment
}

// Build assembles comments into a tree. The payload may be flat, with parent
// references, or already nested; both forms may be mixed. Children keep the
// order the backend returned them in. A comment whose parent is not in the
// payload is kept as a top-level comment.
func Build(postID string, comments []*models.Comment) *Thread {
	t := &Thread{
		PostID: postID,
		index:  make(map[string]*models.Comment),
	}

	// flatten in pre-order so every node is visited in backend order. A nested
	// reply stays under the node it was nested in, even when that node has no id.
	ordered := make([]*models.Comment, 0, len(comments))
	nestedIn := make(map[*models.Comment]*models.Comment)
	visited := make(map[*models.Comment]bool)
	var flatten func(parent *models.Comment, list []*models.Comment)
	flatten = func(parent *models.Comment, list []*models.Comment) {
		for _, c := range list {
			if c == nil || visited[c] {
				continue
			}
			visited[c] = true

			node := *c
			if node.ID != "" {
				if _, dup := t.index[node.ID]; dup {
					continue
				}
				t.index[node.ID] = &node
			}
			if parent != nil && node.ParentID == "" {
				node.ParentID = parent.ID
				nestedIn[&node] = parent
			}
			ordered = append(ordered, &node)
			flatten(&node, c.Replies)
		}
	}
	flatten(nil, comments)

	for _, node := range ordered {
		node.Replies = make([]*models.Comment, 0)
	}

	for _, node := range ordered {
		if parent, ok := nestedIn[node]; ok {
			parent.Replies = append(parent.Replies, node)
			continue
		}
		parent, ok := t.index[node.ParentID]
		if node.ParentID == "" || !ok || parent == node {
			t.roots = append(t.roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	for _, node := range ordered {
		if !node.ReplyCountReported {
			node.ReplyCount = len(node.Replies)
		}
	}

	if t.roots == nil {
		t.roots = make([]*models.Comment, 0)
	}
	return t
}

// Roots returns the top-level comments
func (t *Thread) Roots() []*models.Comment {
	return t.roots
}

// Find returns the comment with id anywhere in the tree
func (t *Thread) Find(id string) (*models.Comment, bool) {
	c, ok := t.index[id]
	return c, ok
}

// Len returns the number of comments in the tree
func (t *Thread) Len() int {
	n := 0
	t.Walk(func(int, *models.Comment) bool {
		n++
		return true
	})
	return n
}

// Walk visits every comment reachable from the roots in display order. Returning
// false from fn skips that comment's replies.
func (t *Thread) Walk(fn func(depth int, c *models.Comment) bool) {
	seen := make(map[*models.Comment]bool)
	var walk func(depth int, list []*models.Comment)
	walk = func(depth int, list []*models.Comment) {
		for _, c := range list {
			if seen[c] {
				continue
			}
			seen[c] = true
			if fn(depth, c) {
				walk(depth+1, c.Replies)
			}
		}
	}
	walk(0, t.roots)
}

// Clone returns a copy of the tree that can be modified independently
func (t *Thread) Clone() *Thread {
	return Build(t.PostID, t.roots)
}

// Prepend inserts a top-level comment ahead of the existing ones
func (t *Thread) Prepend(c *models.Comment) {
	if c.Replies == nil {
		c.Replies = make([]*models.Comment, 0)
	}
	t.roots = append([]*models.Comment{c}, t.roots...)
	if c.ID != "" {
		t.index[c.ID] = c
	}
}
