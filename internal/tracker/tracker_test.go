package tracker

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"playlog/internal/core"
)

func testConfig() *core.TrackerConfig {
	return &core.TrackerConfig{
		ScrobblePercent:     50,
		SeekBackThresholdMs: 3000,
		IdleSessionTimeout:  time.Hour,
	}
}

func newTestTracker() *Tracker {
	return New(testConfig(), zap.NewNop())
}

func snap(trackID string, progressMs, durationMs int, playing bool) *core.Snapshot {
	return &core.Snapshot{
		TrackID:    trackID,
		ProgressMs: progressMs,
		DurationMs: durationMs,
		IsPlaying:  playing,
		Track:      core.TrackMetadata{TrackID: trackID, Name: "Track " + trackID, DurationMs: durationMs},
	}
}

func TestTracker_NilSnapshotIsIdle(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	event := tr.Update("u1", nil, now)
	if event.Kind != core.EventIdle {
		t.Errorf("Expected idle event, got %s", event.Kind)
	}

	// A pause must not discard an existing session.
	tr.Update("u1", snap("A", 10000, 200000, true), now)
	tr.Update("u1", nil, now.Add(30*time.Second))

	event = tr.Update("u1", snap("A", 40000, 200000, true), now.Add(time.Minute))
	if event.Kind != core.EventProgressUpdated {
		t.Errorf("Session should survive a pause, got %s after resume", event.Kind)
	}
}

func TestTracker_FirstSnapshotStartsTrack(t *testing.T) {
	tr := newTestTracker()

	event := tr.Update("u1", snap("A", 5000, 200000, true), time.Now())
	if event.Kind != core.EventTrackStarted {
		t.Errorf("Expected track_started for first snapshot, got %s", event.Kind)
	}
	if event.Track.TrackID != "A" {
		t.Errorf("Event should carry track metadata, got trackID %q", event.Track.TrackID)
	}
}

func TestTracker_ScrobbleScenario(t *testing.T) {
	// Track A, 200000ms: 45% -> progress, 55% playing -> eligible, then no repeat.
	tr := newTestTracker()
	now := time.Now()

	steps := []struct {
		progressMs int
		playing    bool
		want       core.EventKind
	}{
		{10000, true, core.EventTrackStarted},
		{90000, true, core.EventProgressUpdated},
		{110000, true, core.EventScrobbleEligible},
		{115000, true, core.EventProgressUpdated},
	}

	for i, step := range steps {
		now = now.Add(30 * time.Second)
		event := tr.Update("u1", snap("A", step.progressMs, 200000, step.playing), now)
		if event.Kind != step.want {
			t.Errorf("Step %d (progress %d): expected %s, got %s", i, step.progressMs, step.want, event.Kind)
		}
	}
}

func TestTracker_ExactlyOneScrobblePerSession(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	eligible := 0
	for progress := 0; progress <= 200000; progress += 20000 {
		now = now.Add(30 * time.Second)
		event := tr.Update("u1", snap("A", progress, 200000, true), now)
		if event.Kind == core.EventScrobbleEligible {
			eligible++
			if progress != 100000 {
				t.Errorf("Scrobble fired at %dms, expected first crossing at 100000ms", progress)
			}
		}
	}

	if eligible != 1 {
		t.Errorf("Expected exactly one scrobble-eligible event, got %d", eligible)
	}
}

func TestTracker_NotEligibleWhilePaused(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	event := tr.Update("u1", snap("A", 120000, 200000, false), now.Add(30*time.Second))
	if event.Kind != core.EventProgressUpdated {
		t.Errorf("Paused snapshot past threshold should not scrobble, got %s", event.Kind)
	}

	// Resuming past the threshold scrobbles.
	event = tr.Update("u1", snap("A", 125000, 200000, true), now.Add(time.Minute))
	if event.Kind != core.EventScrobbleEligible {
		t.Errorf("Expected scrobble once playing again past threshold, got %s", event.Kind)
	}
}

func TestTracker_IdenticalSnapshotIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	first := tr.Update("u1", snap("A", 110000, 200000, true), now.Add(30*time.Second))
	if first.Kind != core.EventScrobbleEligible {
		t.Fatalf("Expected scrobble-eligible, got %s", first.Kind)
	}

	second := tr.Update("u1", snap("A", 110000, 200000, true), now.Add(time.Minute))
	if second.Kind == core.EventScrobbleEligible {
		t.Error("Identical snapshot after scrobble must not re-emit scrobble-eligible")
	}
}

func TestTracker_TrackChangeResetsSession(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	tr.Update("u1", snap("A", 150000, 200000, true), now.Add(30*time.Second))

	event := tr.Update("u1", snap("B", 0, 180000, true), now.Add(time.Minute))
	if event.Kind != core.EventTrackStarted {
		t.Errorf("Track change should start a new session, got %s", event.Kind)
	}
	if event.Track.TrackID != "B" {
		t.Errorf("New session should carry track B, got %q", event.Track.TrackID)
	}

	// Track B's fresh session scrobbles independently of A's.
	event = tr.Update("u1", snap("B", 100000, 180000, true), now.Add(90*time.Second))
	if event.Kind != core.EventScrobbleEligible {
		t.Errorf("New session should scrobble on its own threshold, got %s", event.Kind)
	}
}

func TestTracker_BackwardSeek(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 80000, 200000, true), now)

	event := tr.Update("u1", snap("A", 70000, 200000, true), now.Add(30*time.Second))
	if event.Kind != core.EventSeeked {
		t.Errorf("Backward jump of 10000ms should be a seek, got %s", event.Kind)
	}
}

func TestTracker_SmallBackwardJitterIsNotSeek(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 80000, 200000, true), now)

	event := tr.Update("u1", snap("A", 78000, 200000, true), now.Add(30*time.Second))
	if event.Kind == core.EventSeeked {
		t.Error("Backward jump of 2000ms is within the threshold, should not be a seek")
	}
}

func TestTracker_SeekKeepsScrobbledFlag(t *testing.T) {
	// A scrobbled session that rewinds stays scrobbled; replaying most of the
	// track does not record a second play within the same session.
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	event := tr.Update("u1", snap("A", 110000, 200000, true), now.Add(30*time.Second))
	if event.Kind != core.EventScrobbleEligible {
		t.Fatalf("Expected scrobble-eligible, got %s", event.Kind)
	}

	event = tr.Update("u1", snap("A", 5000, 200000, true), now.Add(time.Minute))
	if event.Kind != core.EventSeeked {
		t.Fatalf("Expected seek on rewind, got %s", event.Kind)
	}

	event = tr.Update("u1", snap("A", 120000, 200000, true), now.Add(2*time.Minute))
	if event.Kind == core.EventScrobbleEligible {
		t.Error("Rewound session must not scrobble a second time")
	}
}

func TestAdvance_SeekResetsStartTime(t *testing.T) {
	start := time.Now()
	prev := Session{
		TrackID:        "A",
		StartTime:      start,
		LastProgressMs: 80000,
		DurationMs:     200000,
	}

	seekTime := start.Add(time.Minute)
	next, event := Advance(prev, snap("A", 70000, 200000, true), seekTime, 50, 3000)

	if event.Kind != core.EventSeeked {
		t.Fatalf("Expected seek, got %s", event.Kind)
	}
	if !next.StartTime.Equal(seekTime) {
		t.Errorf("Seek should reset startTime to now, got %v", next.StartTime)
	}
	if next.TrackID != "A" {
		t.Errorf("Seek must keep trackID, got %q", next.TrackID)
	}
	if next.LastProgressMs != 70000 {
		t.Errorf("Seek should adopt the new progress, got %d", next.LastProgressMs)
	}
}

func TestAdvance_ZeroDurationNeverScrobbles(t *testing.T) {
	prev := Session{TrackID: "A", LastProgressMs: 1000}

	_, event := Advance(prev, snap("A", 5000, 0, true), time.Now(), 50, 3000)
	if event.Kind != core.EventProgressUpdated {
		t.Errorf("Zero duration should fall through to progress update, got %s", event.Kind)
	}
}

func TestTracker_ScrobbleEligibleCarriesPlayedMs(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	event := tr.Update("u1", snap("A", 112000, 200000, true), now.Add(30*time.Second))

	if event.Kind != core.EventScrobbleEligible {
		t.Fatalf("Expected scrobble-eligible, got %s", event.Kind)
	}
	if event.PlayedMs != 112000 {
		t.Errorf("Expected playedMs 112000, got %d", event.PlayedMs)
	}
}

func TestTracker_UsersAreIndependent(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	tr.Update("u2", snap("A", 10000, 200000, true), now)

	event := tr.Update("u1", snap("A", 110000, 200000, true), now.Add(30*time.Second))
	if event.Kind != core.EventScrobbleEligible {
		t.Fatalf("u1 should scrobble, got %s", event.Kind)
	}

	event = tr.Update("u2", snap("A", 110000, 200000, true), now.Add(30*time.Second))
	if event.Kind != core.EventScrobbleEligible {
		t.Errorf("u2's session is independent and should also scrobble, got %s", event.Kind)
	}
}

func TestTracker_ForgetDropsSession(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 150000, 200000, true), now)
	tr.Forget("u1")

	event := tr.Update("u1", snap("A", 160000, 200000, true), now.Add(30*time.Second))
	if event.Kind != core.EventTrackStarted {
		t.Errorf("After Forget the next snapshot starts a fresh session, got %s", event.Kind)
	}
}

func TestTracker_CleanupDropsIdleSessions(t *testing.T) {
	tr := newTestTracker()
	now := time.Now()

	tr.Update("u1", snap("A", 10000, 200000, true), now)
	tr.Update("u2", snap("B", 10000, 200000, true), now.Add(50*time.Minute))

	removed := tr.Cleanup(now.Add(90 * time.Minute))
	if removed != 1 {
		t.Errorf("Expected 1 idle session removed, got %d", removed)
	}
	if tr.ActiveSessions() != 1 {
		t.Errorf("Expected 1 session remaining, got %d", tr.ActiveSessions())
	}
}
