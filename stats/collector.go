package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/db"
	"github.com/brettboylen/clanboard/models"
)

const (
	defaultTopPostsLimit = 10
	defaultTopClansLimit = 10
)

// Source is the part of the backend the collector polls
type Source interface {
	GetPosts(ctx context.Context) ([]models.Record, error)
	GetClans(ctx context.Context) ([]models.Record, error)
}

// Collector snapshots the backend's feed and clan list into the local cache and
// keeps statistics over the latest snapshot
type Collector struct {
	source          Source
	database        *db.Database
	pollingInterval time.Duration
	topPostsLimit   int
	topClansLimit   int
	stats           models.Statistics
	log             *logrus.Logger
	mutex           sync.RWMutex
	snapshotCount   int
}

// NewCollector creates a new collector
func NewCollector(
	source Source,
	database *db.Database,
	pollingInterval int,
	log *logrus.Logger,
) *Collector {
	if pollingInterval <= 0 {
		pollingInterval = 60
	}
	return &Collector{
		source:          source,
		database:        database,
		pollingInterval: time.Duration(pollingInterval) * time.Second,
		topPostsLimit:   defaultTopPostsLimit,
		topClansLimit:   defaultTopClansLimit,
		stats: models.Statistics{
			TopPostsByVotes: make([]models.Post, 0, defaultTopPostsLimit),
			TopClans:        make([]models.Clan, 0, defaultTopClansLimit),
			ClanStats:       make(map[string]models.ClanStats),
			StartTime:       time.Now(),
			LastUpdated:     time.Now(),
		},
		log: log,
	}
}

// Start polls the backend until ctx is cancelled. A failed poll is logged and
// the next tick tries again.
func (c *Collector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect takes one snapshot and refreshes the statistics
func (c *Collector) Collect(ctx context.Context) {
	if err := c.fetchAndStore(ctx); err != nil {
		c.log.WithError(err).Error("Failed to snapshot feed")
	}
	c.updateStatistics()
	c.logStatistics()
}

// fetchAndStore fetches posts and clans concurrently and caches whichever arrived
func (c *Collector) fetchAndStore(ctx context.Context) error {
	c.log.Debug("Fetching feed snapshot")

	fetchCtx, cancel := context.WithTimeout(ctx, c.pollingInterval/2)
	defer cancel()

	var wg sync.WaitGroup
	errorsCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		records, err := c.source.GetPosts(fetchCtx)
		if err != nil {
			errorsCh <- fmt.Errorf("failed to fetch posts: %w", err)
			return
		}
		posts := models.NormalizePosts(records)
		if err := c.database.ReplacePosts(posts); err != nil {
			errorsCh <- fmt.Errorf("failed to cache posts: %w", err)
			return
		}
		c.log.WithField("count", len(posts)).Info("Cached posts snapshot")
	}()
	go func() {
		defer wg.Done()
		records, err := c.source.GetClans(fetchCtx)
		if err != nil {
			errorsCh <- fmt.Errorf("failed to fetch clans: %w", err)
			return
		}
		clans := models.NormalizeClans(records)
		if err := c.database.ReplaceClans(clans); err != nil {
			errorsCh <- fmt.Errorf("failed to cache clans: %w", err)
			return
		}
		c.log.WithField("count", len(clans)).Info("Cached clans snapshot")
	}()

	wg.Wait()
	close(errorsCh)

	var firstErr error
	for err := range errorsCh {
		if firstErr == nil {
			firstErr = err
			continue
		}
		c.log.WithError(err).Error("Error while taking feed snapshot")
	}
	if firstErr != nil {
		return firstErr
	}

	c.mutex.Lock()
	c.snapshotCount++
	c.mutex.Unlock()
	return nil
}

// updateStatistics recomputes the statistics from the cache
func (c *Collector) updateStatistics() {
	topPosts, err := c.database.GetTopPostsByVotes(c.topPostsLimit)
	if err != nil {
		c.log.WithError(err).Error("Failed to get top posts")
		return
	}

	totalPosts, err := c.database.GetTotalPosts()
	if err != nil {
		c.log.WithError(err).Error("Failed to get total posts")
		return
	}

	clans, err := c.database.GetCachedClans()
	if err != nil {
		c.log.WithError(err).Error("Failed to get cached clans")
		return
	}
	if len(clans) > c.topClansLimit {
		clans = clans[:c.topClansLimit]
	}

	counts, err := c.database.GetPostCountsByClan()
	if err != nil {
		c.log.WithError(err).Error("Failed to get post counts by clan")
		return
	}

	clanStats := make(map[string]models.ClanStats, len(counts))
	for clan, count := range counts {
		posts, err := c.database.GetPostsByClan(clan)
		if err != nil {
			c.log.WithError(err).WithField("clan", clan).Error("Failed to get posts for clan")
			continue
		}
		if len(posts) == 0 {
			continue
		}

		// posts come back highest voted first
		clanStats[clan] = models.ClanStats{
			PostCount:        count,
			HighestVotedPost: posts[0],
		}
	}

	c.mutex.Lock()
	c.stats.TopPostsByVotes = topPosts
	c.stats.TopClans = clans
	c.stats.TotalPosts = totalPosts
	c.stats.ClanStats = clanStats
	c.stats.LastUpdated = time.Now()
	c.mutex.Unlock()
}

// logStatistics logs the current statistics
func (c *Collector) logStatistics() {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	c.log.WithFields(logrus.Fields{
		"total_posts":     c.stats.TotalPosts,
		"clans_with_data": len(c.stats.ClanStats),
		"snapshots_taken": c.snapshotCount,
		"running_since":   time.Since(c.stats.StartTime).String(),
	}).Info("Statistics updated")
}

// GetStatistics returns a copy of the current statistics
func (c *Collector) GetStatistics() models.Statistics {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.stats
}
