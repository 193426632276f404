// Package store provides the SQLite persistence layer: play history, the
// per-user artist genre cache, the opt-in user registry and OAuth tokens.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"

	"playlog/internal/core"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and bootstraps the
// schema. Callers open a single Store and reuse it for all operations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			track_name TEXT NOT NULL,
			artist_ids TEXT NOT NULL,
			artist_names TEXT NOT NULL,
			genres TEXT NOT NULL,
			album_name TEXT,
			duration_ms INTEGER NOT NULL,
			played_duration_ms INTEGER NOT NULL,
			popularity INTEGER,
			context_type TEXT,
			context_uri TEXT,
			played_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user_track_time ON play_history(user_id, track_id, played_at)`,
		`CREATE TABLE IF NOT EXISTS genre_cache (
			user_id TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			genres TEXT NOT NULL,
			play_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, artist_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			tracking_enabled INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS spotify_tokens (
			user_id TEXT PRIMARY KEY,
			token TEXT NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertPlay appends one play record. The history table is append-only.
func (s *Store) InsertPlay(ctx context.Context, rec *core.PlayRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO play_history(
			user_id, track_id, track_name, artist_ids, artist_names, genres,
			album_name, duration_ms, played_duration_ms, popularity,
			context_type, context_uri, played_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.UserID, rec.TrackID, rec.TrackName,
		joinList(rec.ArtistIDs), joinList(rec.ArtistNames), joinList(rec.Genres),
		rec.AlbumName, rec.DurationMs, rec.PlayedDurationMs, rec.Popularity,
		rec.ContextType, rec.ContextURI, rec.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert play: %w", err)
	}
	return nil
}

// HasRecentPlay reports whether a play record exists for (userID, trackID)
// with played_at at or after since.
func (s *Store) HasRecentPlay(ctx context.Context, userID, trackID string, since time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM play_history
			WHERE user_id = ? AND track_id = ? AND played_at >= ?
		)`,
		userID, trackID, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent play lookup: %w", err)
	}
	return exists == 1, nil
}

// GetGenres returns the cached genre row for (userID, artistID), or nil when
// no row exists.
func (s *Store) GetGenres(ctx context.Context, userID, artistID string) (*core.GenreEntry, error) {
	entry := &core.GenreEntry{UserID: userID, ArtistID: artistID}
	var genres string

	err := s.db.QueryRowContext(ctx,
		`SELECT genres, play_count, updated_at FROM genre_cache WHERE user_id = ? AND artist_id = ?`,
		userID, artistID,
	).Scan(&genres, &entry.PlayCount, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("genre lookup: %w", err)
	}

	entry.Genres = splitList(genres)
	return entry, nil
}

// UpsertGenres replaces the genre list for (userID, artistID), bumping the
// play counter (initialized to 1 for a new row).
func (s *Store) UpsertGenres(ctx context.Context, userID, artistID string, genres []string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO genre_cache(user_id, artist_id, genres, play_count, updated_at)
		 VALUES (?,?,?,1,?)
		 ON CONFLICT(user_id, artist_id) DO UPDATE SET
			genres = excluded.genres,
			play_count = genre_cache.play_count + 1,
			updated_at = excluded.updated_at`,
		userID, artistID, joinList(genres), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert genres: %w", err)
	}
	return nil
}

// IncrementPlayCount atomically bumps the play counter for a fresh cache row.
func (s *Store) IncrementPlayCount(ctx context.Context, userID, artistID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE genre_cache SET play_count = play_count + 1 WHERE user_id = ? AND artist_id = ?`,
		userID, artistID,
	)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}
	return nil
}

// ListTrackedUsers returns the opt-in set in stable order.
func (s *Store) ListTrackedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM users WHERE tracking_enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list tracked users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// SetTracking flips a user's opt-in flag, creating the user row if needed.
func (s *Store) SetTracking(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, tracking_enabled) VALUES (?,?)
		 ON CONFLICT(user_id) DO UPDATE SET tracking_enabled = excluded.tracking_enabled`,
		userID, boolToInt(enabled),
	)
	if err != nil {
		return fmt.Errorf("set tracking: %w", err)
	}
	return nil
}

// SaveToken persists a user's OAuth token, replacing any existing one.
func (s *Store) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO spotify_tokens(user_id, token) VALUES (?,?)
		 ON CONFLICT(user_id) DO UPDATE SET token = excluded.token`,
		userID, string(b),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// GetToken loads a user's stored OAuth token, or nil when none is saved.
func (s *Store) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM spotify_tokens WHERE user_id = ?`, userID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// Parallel string lists are stored as a single delimited column. The unit
// separator never occurs in track or genre text.
const listSeparator = "\x1f"

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
