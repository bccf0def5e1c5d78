package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/models"
)

// Database stores view-session tokens and the last good copy of the feed
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		viewer_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cached_posts (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL,
		votes INTEGER NOT NULL,
		comment_count INTEGER NOT NULL,
		clan TEXT NOT NULL,
		created_at TEXT NOT NULL,
		cached_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cached_posts_votes ON cached_posts(votes DESC);
	CREATE INDEX IF NOT EXISTS idx_cached_posts_clan ON cached_posts(clan);
	CREATE TABLE IF NOT EXISTS cached_clans (
		name TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL,
		member_count INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		cached_at TIMESTAMP NOT NULL
	);
	`

	_, err := d.db.Exec(query)
	return err
}

// SaveToken persists the auth token of a view session
func (d *Database) SaveToken(viewerID, token string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO sessions (viewer_id, token, updated_at) VALUES (?, ?, ?)`,
		viewerID, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the persisted token of a view session, or "" if none
func (d *Database) LoadToken(viewerID string) (string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var token string
	err := d.db.QueryRow(`SELECT token FROM sessions WHERE viewer_id = ?`, viewerID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// ClearToken forgets the token of a view session
func (d *Database) ClearToken(viewerID string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, err := d.db.Exec(`DELETE FROM sessions WHERE viewer_id = ?`, viewerID); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// ReplacePosts swaps the cached feed for posts, keeping their order
func (d *Database) ReplacePosts(posts []models.Post) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_posts`); err != nil {
		return fmt.Errorf("failed to clear cached posts: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO cached_posts (
		id, position, title, content, author, votes, comment_count, clan, created_at, cached_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, post := range posts {
		_, err := stmt.Exec(
			post.ID, i, post.Title, post.Content, post.Author,
			post.Votes, post.CommentCount, post.Clan, post.CreatedAt, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save post %s: %w", post.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached posts: %w", err)
	}
	return nil
}

// GetCachedPosts returns the cached feed in its original order
func (d *Database) GetCachedPosts() ([]models.Post, error) {
	return d.queryPosts(`
	SELECT id, title, content, author, votes, comment_count, clan, created_at
	FROM cached_posts
	ORDER BY position ASC
	`)
}

// GetTopPostsByVotes returns the top N cached posts by votes
func (d *Database) GetTopPostsByVotes(limit int) ([]models.Post, error) {
	return d.queryPosts(`
	SELECT id, title, content, author, votes, comment_count, clan, created_at
	FROM cached_posts
	ORDER BY votes DESC, position ASC
	LIMIT ?
	`, limit)
}

// GetPostsByClan returns the cached posts of one clan ordered by votes
func (d *Database) GetPostsByClan(clan string) ([]models.Post, error) {
	return d.queryPosts(`
	SELECT id, title, content, author, votes, comment_count, clan, created_at
	FROM cached_posts
	WHERE clan = ?
	ORDER BY votes DESC, position ASC
	`, clan)
}

func (d *Database) queryPosts(query string, args ...any) ([]models.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		err := rows.Scan(
			&post.ID, &post.Title, &post.Content, &post.Author,
			&post.Votes, &post.CommentCount, &post.Clan, &post.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

// GetPostCountsByClan returns the number of cached posts per clan
func (d *Database) GetPostCountsByClan() (map[string]int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.Query(`SELECT clan, COUNT(*) FROM cached_posts GROUP BY clan`)
	if err != nil {
		return nil, fmt.Errorf("failed to query post counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var clan string
		var count int
		if err := rows.Scan(&clan, &count); err != nil {
			return nil, fmt.Errorf("failed to scan clan post count: %w", err)
		}
		counts[clan] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// GetTotalPosts returns the total number of cached posts
func (d *Database) GetTotalPosts() (int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM cached_posts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get total posts: %w", err)
	}

	return count, nil
}

// ReplaceClans swaps the cached clan list for clans
func (d *Database) ReplaceClans(clans []models.Clan) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_clans`); err != nil {
		return fmt.Errorf("failed to clear cached clans: %w", err)
	}

	now := time.Now().UTC()
	for _, clan := range clans {
		if clan.Name == "" {
			continue
		}
		_, err := tx.Exec(`
		INSERT OR REPLACE INTO cached_clans (
			name, id, display_name, description, member_count, created_at, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, clan.Name, clan.ID, clan.DisplayName, clan.Description, clan.MemberCount, clan.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("failed to save clan %s: %w", clan.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached clans: %w", err)
	}
	return nil
}

// GetCachedClans returns the cached clans, largest first
func (d *Database) GetCachedClans() ([]models.Clan, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.Query(`
	SELECT id, name, display_name, description, member_count, created_at
	FROM cached_clans
	ORDER BY member_count DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached clans: %w", err)
	}
	defer rows.Close()

	clans := make([]models.Clan, 0)
	for rows.Next() {
		var clan models.Clan
		err := rows.Scan(&clan.ID, &clan.Name, &clan.DisplayName, &clan.Description, &clan.MemberCount, &clan.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clan: %w", err)
		}
		clans = append(clans, clan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return clans, nil
}
