// Package genre resolves artist genres through a per-user TTL'd cache so that
// scrobble writes can attribute plays to genres without hammering the
// upstream artist API.
package genre

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"playlog/internal/core"
	genrenorm "playlog/pkg/genre"
)

// Cache layers an in-memory LRU over the durable genre rows. A fresh row
// only bumps its play counter; a missing or stale row triggers a full
// upstream refresh. This path sits inside a best-effort scrobble write and
// never returns an error: on upstream failure it degrades to the previous
// cached value, or an empty list when none exists.
type Cache struct {
	store   core.GenreStore
	artists core.ArtistSource
	ttl     time.Duration
	hot     *lru.Cache[string, hotEntry]
	logger  *zap.Logger
}

type hotEntry struct {
	genres    []string
	updatedAt time.Time
}

func NewCache(store core.GenreStore, artists core.ArtistSource, cfg *core.GenreConfig, logger *zap.Logger) *Cache {
	hot, _ := lru.New[string, hotEntry](cfg.HotCacheSize)

	return &Cache{
		store:   store,
		artists: artists,
		ttl:     cfg.TTL,
		hot:     hot,
		logger:  logger,
	}
}

// Resolve returns the genre list for (userID, artistID), counting this call
// as one play for the artist.
func (c *Cache) Resolve(ctx context.Context, userID, artistID string) []string {
	now := time.Now()
	key := userID + ":" + artistID

	if entry, ok := c.hot.Get(key); ok && now.Sub(entry.updatedAt) < c.ttl {
		if err := c.store.IncrementPlayCount(ctx, userID, artistID); err != nil {
			c.logger.Warn("Failed to increment genre play count",
				zap.String("userID", userID),
				zap.String("artistID", artistID),
				zap.Error(err))
		}
		return entry.genres
	}

	stored, err := c.store.GetGenres(ctx, userID, artistID)
	if err != nil {
		c.logger.Warn("Genre cache lookup failed",
			zap.String("userID", userID),
			zap.String("artistID", artistID),
			zap.Error(err))
		stored = nil
	}

	if stored != nil && now.Sub(stored.UpdatedAt) < c.ttl {
		if err := c.store.IncrementPlayCount(ctx, userID, artistID); err != nil {
			c.logger.Warn("Failed to increment genre play count",
				zap.String("userID", userID),
				zap.String("artistID", artistID),
				zap.Error(err))
		}
		c.hot.Add(key, hotEntry{genres: stored.Genres, updatedAt: stored.UpdatedAt})
		return stored.Genres
	}

	raw, err := c.artists.FetchArtistGenres(ctx, userID, artistID)
	if err != nil {
		c.logger.Warn("Artist genre lookup failed, falling back",
			zap.String("userID", userID),
			zap.String("artistID", artistID),
			zap.Error(err))
		if stored != nil {
			// Stale but present beats empty.
			return stored.Genres
		}
		return []string{}
	}

	genres := genrenorm.NormalizeAll(raw)

	if err := c.store.UpsertGenres(ctx, userID, artistID, genres, now); err != nil {
		c.logger.Warn("Failed to persist refreshed genres",
			zap.String("userID", userID),
			zap.String("artistID", artistID),
			zap.Error(err))
	}
	c.hot.Add(key, hotEntry{genres: genres, updatedAt: now})

	return genres
}

// Invalidate drops a user's artist entry from the hot layer, e.g. in tests or
// after an external cache wipe.
func (c *Cache) Invalidate(userID, artistID string) {
	c.hot.Remove(userID + ":" + artistID)
}
