// Package batch drives the polling loop: on a fixed interval it walks the
// opt-in user set in bounded batches, feeds each user's now-playing snapshot
// through the tracker and hands scrobble-eligible events to the recorder.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"playlog/internal/core"
	"playlog/internal/scrobble"
	"playlog/internal/tracker"
)

// sessionCleanupEvery is how many cycles pass between idle-session sweeps.
const sessionCleanupEvery = 20

// Metrics receives engine observations. Implemented by the HTTP server.
type Metrics interface {
	RecordCycle(duration time.Duration)
	RecordEvent(kind string)
	RecordScrobble()
	RecordDuplicate()
	RecordError(component, errorType string)
	SetTrackedUsers(count int)
	SetActiveSessions(count int)
}

type Cycle struct {
	config     *core.BatchConfig
	registry   core.UserRegistry
	nowPlaying core.NowPlayingSource
	tracker    *tracker.Tracker
	recorder   *scrobble.Recorder
	metrics    Metrics
	logger     *zap.Logger

	// running enforces skip-if-running: a cycle that fires while the
	// previous one is still in flight is dropped, not queued, so slow
	// upstream latency cannot pile up concurrent batches.
	running sync.Mutex
	cycles  int
}

func NewCycle(
	config *core.BatchConfig,
	registry core.UserRegistry,
	nowPlaying core.NowPlayingSource,
	trk *tracker.Tracker,
	recorder *scrobble.Recorder,
	metrics Metrics,
	logger *zap.Logger,
) *Cycle {
	return &Cycle{
		config:     config,
		registry:   registry,
		nowPlaying: nowPlaying,
		tracker:    trk,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run drives the polling loop until the context is cancelled.
func (c *Cycle) Run(ctx context.Context) error {
	c.logger.Info("Starting batch cycle",
		zap.Duration("interval", c.config.PollInterval),
		zap.Int("batchSize", c.config.BatchSize))

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Batch cycle stopped")
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Cycle) tick(ctx context.Context) {
	if !c.running.TryLock() {
		c.logger.Warn("Previous cycle still running, skipping this tick")
		c.metrics.RecordError("batch", "overlap_skipped")
		return
	}
	defer c.running.Unlock()

	start := time.Now()
	c.RunOnce(ctx)
	c.metrics.RecordCycle(time.Since(start))

	c.cycles++
	if c.cycles%sessionCleanupEvery == 0 {
		if removed := c.tracker.Cleanup(time.Now()); removed > 0 {
			c.logger.Debug("Dropped idle sessions", zap.Int("removed", removed))
		}
	}
	c.metrics.SetActiveSessions(c.tracker.ActiveSessions())
}

// RunOnce executes a single full cycle over the current opt-in set.
func (c *Cycle) RunOnce(ctx context.Context) {
	userIDs, err := c.registry.ListTrackedUsers(ctx)
	if err != nil {
		c.logger.Error("Failed to list tracked users", zap.Error(err))
		c.metrics.RecordError("registry", "list_users")
		return
	}
	c.metrics.SetTrackedUsers(len(userIDs))

	if len(userIDs) == 0 {
		return
	}

	// Batches run sequentially to bound upstream pressure; users within a
	// batch run concurrently. A user appears in exactly one batch, so no
	// two tasks ever touch the same session.
	for _, batch := range partition(userIDs, c.config.BatchSize) {
		g, gCtx := errgroup.WithContext(ctx)
		for _, userID := range batch {
			g.Go(func() error {
				c.processUser(gCtx, userID)
				return nil
			})
		}
		// processUser never returns an error; failures are isolated per user.
		_ = g.Wait()

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Cycle) processUser(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, c.config.UpstreamTimeout)
	defer cancel()

	snapshot, err := c.nowPlaying.FetchNowPlaying(ctx, userID)
	if err != nil {
		c.logPollFailure(userID, err)
		return
	}

	event := c.tracker.Update(userID, snapshot, time.Now())
	c.metrics.RecordEvent(event.Kind.String())

	if event.Kind != core.EventScrobbleEligible {
		return
	}

	outcome, err := c.recorder.Record(ctx, userID, event)
	if err != nil {
		// The session already carries scrobbled=true, so this play is lost
		// rather than retried; see the recorder for the tradeoff.
		c.logger.Error("Failed to record play",
			zap.String("userID", userID),
			zap.String("trackID", event.Track.TrackID),
			zap.Error(err))
		c.metrics.RecordError("recorder", "persist")
		return
	}

	switch outcome {
	case core.OutcomeRecorded:
		c.metrics.RecordScrobble()
	case core.OutcomeSkippedDuplicate:
		c.metrics.RecordDuplicate()
	}
}

func (c *Cycle) logPollFailure(userID string, err error) {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		// The grant is revoked or invalid; the user stays opted in and will
		// be retried next cycle in case the grant is restored.
		c.logger.Warn("Skipping user with invalid grant", zap.String("userID", userID), zap.Error(err))
		c.metrics.RecordError("poll", "auth")
		return
	}

	c.logger.Debug("Now-playing fetch failed, skipping user this cycle",
		zap.String("userID", userID),
		zap.Error(err))
	c.metrics.RecordError("poll", "upstream")
}

func partition(userIDs []string, size int) [][]string {
	if size <= 0 {
		return [][]string{userIDs}
	}

	var batches [][]string
	for start := 0; start < len(userIDs); start += size {
		end := start + size
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batches = append(batches, userIDs[start:end])
	}
	return batches
}
