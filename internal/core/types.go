package core

import (
	"context"
	"time"
)

// Snapshot is a single polled observation of a user's current playback.
// A nil *Snapshot means nothing is playing for that user.
type Snapshot struct {
	TrackID    string
	ProgressMs int
	DurationMs int
	IsPlaying  bool
	Track      TrackMetadata
}

// TrackMetadata carries the track details needed to persist a play record.
// ArtistIDs and ArtistNames are parallel slices in Spotify's track-artist order.
type TrackMetadata struct {
	TrackID     string
	Name        string
	ArtistIDs   []string
	ArtistNames []string
	AlbumName   string
	DurationMs  int
	Popularity  int
	Context     PlayContext
}

// PlayContext describes where playback originated (playlist, album, ...).
type PlayContext struct {
	Type string
	URI  string
}

type EventKind int

const (
	// EventIdle means nothing is playing; existing session state is untouched.
	EventIdle EventKind = iota
	// EventTrackStarted means a new listening session began for a track.
	EventTrackStarted
	// EventSeeked means playback jumped backward beyond the seek threshold.
	EventSeeked
	// EventProgressUpdated means playback advanced within the current session.
	EventProgressUpdated
	// EventScrobbleEligible means the session crossed the listened threshold.
	EventScrobbleEligible
)

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "idle"
	case EventTrackStarted:
		return "track_started"
	case EventSeeked:
		return "seeked"
	case EventProgressUpdated:
		return "progress_updated"
	case EventScrobbleEligible:
		return "scrobble_eligible"
	default:
		return "unknown"
	}
}

// TrackEvent is the tracker's verdict for one snapshot.
type TrackEvent struct {
	Kind   EventKind
	UserID string
	Track  TrackMetadata
	// PlayedMs is the last observed progress, valid for scrobble-eligible events.
	PlayedMs int
}

type RecordOutcome int

const (
	// OutcomeRecorded means a play record was persisted.
	OutcomeRecorded RecordOutcome = iota
	// OutcomeSkippedDuplicate means a record already existed inside the
	// suppression window and no write occurred.
	OutcomeSkippedDuplicate
)

// PlayRecord is one persisted listening event.
type PlayRecord struct {
	UserID           string
	TrackID          string
	TrackName        string
	ArtistIDs        []string
	ArtistNames      []string
	Genres           []string
	AlbumName        string
	DurationMs       int
	PlayedDurationMs int
	Popularity       int
	ContextType      string
	ContextURI       string
	PlayedAt         time.Time
}

// GenreEntry is one cached (userID, artistID) genre row.
type GenreEntry struct {
	UserID    string
	ArtistID  string
	Genres    []string
	PlayCount int
	UpdatedAt time.Time
}

// NowPlayingSource fetches the current playback snapshot for a user.
// A nil snapshot with a nil error means nothing is playing.
type NowPlayingSource interface {
	FetchNowPlaying(ctx context.Context, userID string) (*Snapshot, error)
}

// ArtistSource looks up artist genres upstream.
type ArtistSource interface {
	FetchArtistGenres(ctx context.Context, userID, artistID string) ([]string, error)
}

// TokenService resolves a valid bearer token for a user, refreshing
// transparently. A revoked grant surfaces as *AuthError.
type TokenService interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
}

// HistoryStore is the durable store for play records.
type HistoryStore interface {
	InsertPlay(ctx context.Context, rec *PlayRecord) error
	HasRecentPlay(ctx context.Context, userID, trackID string, since time.Time) (bool, error)
}

// GenreStore is the durable store for per-user artist genre rows.
type GenreStore interface {
	GetGenres(ctx context.Context, userID, artistID string) (*GenreEntry, error)
	UpsertGenres(ctx context.Context, userID, artistID string, genres []string, updatedAt time.Time) error
	IncrementPlayCount(ctx context.Context, userID, artistID string) error
}

// UserRegistry exposes the opt-in set of users eligible for tracking.
type UserRegistry interface {
	ListTrackedUsers(ctx context.Context) ([]string, error)
	SetTracking(ctx context.Context, userID string, enabled bool) error
}
