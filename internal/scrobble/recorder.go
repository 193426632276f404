// Package scrobble persists play records once the tracker has judged a
// session scrobble-eligible.
package scrobble

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"playlog/internal/core"
	"playlog/internal/genre"
	"playlog/internal/store"
)

type Recorder struct {
	history core.HistoryStore
	genres  *genre.Cache
	guard   *store.DuplicateGuard
	logger  *zap.Logger
}

func NewRecorder(history core.HistoryStore, genres *genre.Cache, guard *store.DuplicateGuard, logger *zap.Logger) *Recorder {
	return &Recorder{
		history: history,
		genres:  genres,
		guard:   guard,
		logger:  logger,
	}
}

// Record persists one play for a scrobble-eligible event. A duplicate inside
// the suppression window is skipped silently; a failed write surfaces as
// *core.PersistenceError and is not retried within the cycle.
func (r *Recorder) Record(ctx context.Context, userID string, event core.TrackEvent) (core.RecordOutcome, error) {
	track := event.Track

	dup, err := r.guard.IsDuplicate(ctx, userID, track.TrackID)
	if err != nil {
		return 0, &core.PersistenceError{Op: "duplicate check", Err: err}
	}
	if dup {
		r.logger.Debug("Skipping duplicate scrobble",
			zap.String("userID", userID),
			zap.String("trackID", track.TrackID))
		return core.OutcomeSkippedDuplicate, nil
	}

	genres := r.resolveGenres(ctx, userID, track.ArtistIDs)

	playedMs := event.PlayedMs
	if playedMs <= 0 {
		playedMs = track.DurationMs
	}

	rec := &core.PlayRecord{
		UserID:           userID,
		TrackID:          track.TrackID,
		TrackName:        track.Name,
		ArtistIDs:        track.ArtistIDs,
		ArtistNames:      track.ArtistNames,
		Genres:           genres,
		AlbumName:        track.AlbumName,
		DurationMs:       track.DurationMs,
		PlayedDurationMs: playedMs,
		Popularity:       track.Popularity,
		ContextType:      track.Context.Type,
		ContextURI:       track.Context.URI,
		PlayedAt:         time.Now(),
	}

	if err := r.history.InsertPlay(ctx, rec); err != nil {
		return 0, &core.PersistenceError{Op: "insert play", Err: err}
	}
	r.guard.MarkRecorded(userID, track.TrackID)

	r.logger.Info("Recorded play",
		zap.String("userID", userID),
		zap.String("trackID", track.TrackID),
		zap.String("track", track.Name),
		zap.Int("playedMs", playedMs),
		zap.Strings("genres", genres))

	return core.OutcomeRecorded, nil
}

// resolveGenres fans out one cache resolution per artist. Resolution is
// order-independent and best-effort: an artist that cannot be resolved
// contributes nothing rather than aborting the record.
func (r *Recorder) resolveGenres(ctx context.Context, userID string, artistIDs []string) []string {
	perArtist := make([][]string, len(artistIDs))

	var wg sync.WaitGroup
	for i, artistID := range artistIDs {
		wg.Add(1)
		go func(i int, artistID string) {
			defer wg.Done()
			perArtist[i] = r.genres.Resolve(ctx, userID, artistID)
		}(i, artistID)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []string
	for _, genres := range perArtist {
		for _, g := range genres {
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			merged = append(merged, g)
		}
	}
	return merged
}
