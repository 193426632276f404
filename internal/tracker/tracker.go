// Package tracker infers listening engagement from poll-sampled playback
// snapshots. It owns the per-user session state machine that decides when a
// play has been listened to long enough to be recorded.
package tracker

import (
	"time"

	"go.uber.org/zap"

	"playlog/internal/core"
)

// Session is the in-memory tracking state for one user. It lives only for the
// life of the process; a restart loses in-flight sessions.
type Session struct {
	UserID         string
	TrackID        string
	StartTime      time.Time
	LastProgressMs int
	DurationMs     int
	Scrobbled      bool
	Track          core.TrackMetadata

	lastSeen time.Time
}

// Tracker applies snapshots to per-user sessions and emits track events.
// All I/O lives with the caller; Advance is a pure transition on the session.
type Tracker struct {
	scrobblePercent float64
	seekBackMs      int
	sessions        *SessionStore
	logger          *zap.Logger
}

func New(cfg *core.TrackerConfig, logger *zap.Logger) *Tracker {
	return &Tracker{
		scrobblePercent: cfg.ScrobblePercent,
		seekBackMs:      cfg.SeekBackThresholdMs,
		sessions:        newSessionStore(cfg.IdleSessionTimeout),
		logger:          logger,
	}
}

// Update feeds one polled snapshot for a user through the state machine and
// returns the resulting event. A nil snapshot means nothing is playing; the
// session, if any, is left untouched since a pause is not loss of session.
func (t *Tracker) Update(userID string, snapshot *core.Snapshot, now time.Time) core.TrackEvent {
	if snapshot == nil {
		t.sessions.touch(userID, now)
		return core.TrackEvent{Kind: core.EventIdle, UserID: userID}
	}

	session := t.sessions.get(userID)
	next, event := Advance(session, snapshot, now, t.scrobblePercent, t.seekBackMs)
	next.UserID = userID
	next.lastSeen = now
	t.sessions.put(userID, next)

	event.UserID = userID

	if event.Kind == core.EventScrobbleEligible {
		t.logger.Debug("Session crossed scrobble threshold",
			zap.String("userID", userID),
			zap.String("trackID", snapshot.TrackID),
			zap.Int("progressMs", snapshot.ProgressMs),
			zap.Int("durationMs", snapshot.DurationMs))
	}

	return event
}

// Forget drops a user's session, e.g. when the user opts out of tracking.
func (t *Tracker) Forget(userID string) {
	t.sessions.delete(userID)
}

// Cleanup drops sessions idle beyond the configured horizon and returns how
// many were removed.
func (t *Tracker) Cleanup(now time.Time) int {
	return t.sessions.cleanup(now)
}

// ActiveSessions returns the number of users currently holding session state.
func (t *Tracker) ActiveSessions() int {
	return t.sessions.size()
}

// Advance computes the successor session and the event for one snapshot.
// The zero-value session (empty TrackID) means no prior session exists.
//
// Track identity, not time, is the session key: a trackId change is the only
// place a new session boundary is created. A backward jump beyond seekBackMs
// resets the session timing while keeping the track; the scrobbled flag is
// deliberately left as-is on a seek, so a rewound track is not scrobbled twice
// within the same session.
func Advance(prev Session, snapshot *core.Snapshot, now time.Time, scrobblePercent float64, seekBackMs int) (Session, core.TrackEvent) {
	if prev.TrackID == "" || prev.TrackID != snapshot.TrackID {
		next := Session{
			TrackID:        snapshot.TrackID,
			StartTime:      now,
			LastProgressMs: snapshot.ProgressMs,
			DurationMs:     snapshot.DurationMs,
			Scrobbled:      false,
			Track:          snapshot.Track,
		}
		return next, core.TrackEvent{Kind: core.EventTrackStarted, Track: snapshot.Track}
	}

	next := prev
	next.Track = snapshot.Track

	progressDiff := snapshot.ProgressMs - prev.LastProgressMs
	if progressDiff < -seekBackMs {
		next.StartTime = now
		next.LastProgressMs = snapshot.ProgressMs
		return next, core.TrackEvent{Kind: core.EventSeeked, Track: snapshot.Track}
	}

	next.LastProgressMs = snapshot.ProgressMs

	if snapshot.DurationMs > 0 {
		listenedPct := float64(snapshot.ProgressMs) / float64(snapshot.DurationMs) * 100
		if listenedPct >= scrobblePercent && !prev.Scrobbled && snapshot.IsPlaying {
			next.Scrobbled = true
			return next, core.TrackEvent{
				Kind:     core.EventScrobbleEligible,
				Track:    snapshot.Track,
				PlayedMs: snapshot.ProgressMs,
			}
		}
	}

	return next, core.TrackEvent{Kind: core.EventProgressUpdated, Track: snapshot.Track}
}
