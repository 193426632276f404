package store

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"playlog/internal/core"
)

// DuplicateGuard suppresses duplicate play records inside a short look-back
// window. The in-memory scrobbled flag on the session is the primary defense;
// this guard protects against process restarts and concurrent pollers.
//
// A Bloom filter over (userID, trackID) pairs provides a negative fast path:
// a pair the filter has never seen cannot have a recent record from this
// process, so the windowed store query only runs on filter hits. The filter
// cannot forget entries, so hits past the window still resolve correctly
// through the store.
type DuplicateGuard struct {
	history core.HistoryStore
	window  time.Duration
	bloom   *bloom.BloomFilter
	mutex   sync.Mutex
	// coldStart stays true until the first full window has elapsed; before
	// that, records written by a previous process may exist that the fresh
	// filter has never seen, so every check must hit the store.
	startedAt time.Time
	logger    *zap.Logger
}

func NewDuplicateGuard(history core.HistoryStore, window time.Duration, expectedPlays uint, logger *zap.Logger) *DuplicateGuard {
	return &DuplicateGuard{
		history:   history,
		window:    window,
		bloom:     bloom.NewWithEstimates(expectedPlays, 0.001),
		startedAt: time.Now(),
		logger:    logger,
	}
}

// IsDuplicate reports whether a play record for (userID, trackID) already
// exists inside the suppression window.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, userID, trackID string) (bool, error) {
	key := userID + ":" + trackID

	g.mutex.Lock()
	seen := g.bloom.TestString(key)
	coldStart := time.Since(g.startedAt) < g.window
	g.mutex.Unlock()

	if !seen && !coldStart {
		return false, nil
	}

	since := time.Now().Add(-g.window)
	dup, err := g.history.HasRecentPlay(ctx, userID, trackID, since)
	if err != nil {
		return false, err
	}
	if dup {
		g.logger.Debug("Suppressed duplicate play",
			zap.String("userID", userID),
			zap.String("trackID", trackID))
	}
	return dup, nil
}

// MarkRecorded registers a freshly written record so subsequent checks for the
// same pair take the store path.
func (g *DuplicateGuard) MarkRecorded(userID, trackID string) {
	g.mutex.Lock()
	g.bloom.AddString(userID + ":" + trackID)
	g.mutex.Unlock()
}
