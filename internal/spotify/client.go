// Package spotify adapts the Spotify Web API to the engine's collaborator
// interfaces: per-user now-playing snapshots and artist genre lookups.
package spotify

import (
	"context"
	"errors"
	"net/http"

	spotifyapi "github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"playlog/internal/core"
)

// Client fetches playback state on behalf of individual users. Every call
// resolves a fresh bearer token through the token service, so grant refresh
// stays transparent to callers.
type Client struct {
	tokens core.TokenService
	logger *zap.Logger
}

func NewClient(tokens core.TokenService, logger *zap.Logger) *Client {
	return &Client{
		tokens: tokens,
		logger: logger,
	}
}

// FetchNowPlaying returns the user's current playback snapshot, or nil when
// nothing is playing. Auth failures surface as *core.AuthError, everything
// else as *core.UpstreamError.
func (c *Client) FetchNowPlaying(ctx context.Context, userID string) (*core.Snapshot, error) {
	api, err := c.apiFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	currently, err := api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, classifyError(userID, "now playing", err)
	}

	if currently == nil || currently.Item == nil {
		return nil, nil
	}

	item := currently.Item
	artistIDs := make([]string, 0, len(item.Artists))
	artistNames := make([]string, 0, len(item.Artists))
	for _, artist := range item.Artists {
		artistIDs = append(artistIDs, string(artist.ID))
		artistNames = append(artistNames, artist.Name)
	}

	// Episodes and local files come back without artists; skip them.
	if len(artistIDs) == 0 {
		return nil, nil
	}

	snapshot := &core.Snapshot{
		TrackID:    string(item.ID),
		ProgressMs: int(currently.Progress),
		DurationMs: int(item.Duration),
		IsPlaying:  currently.Playing,
		Track: core.TrackMetadata{
			TrackID:     string(item.ID),
			Name:        item.Name,
			ArtistIDs:   artistIDs,
			ArtistNames: artistNames,
			AlbumName:   item.Album.Name,
			DurationMs:  int(item.Duration),
			Popularity:  int(item.Popularity),
			Context: core.PlayContext{
				Type: currently.PlaybackContext.Type,
				URI:  string(currently.PlaybackContext.URI),
			},
		},
	}

	return snapshot, nil
}

// FetchArtistGenres looks up an artist's genre list on behalf of a user.
func (c *Client) FetchArtistGenres(ctx context.Context, userID, artistID string) ([]string, error) {
	api, err := c.apiFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	artist, err := api.GetArtist(ctx, spotifyapi.ID(artistID))
	if err != nil {
		return nil, classifyError(userID, "artist lookup", err)
	}

	return artist.Genres, nil
}

func (c *Client) apiFor(ctx context.Context, userID string) (*spotifyapi.Client, error) {
	token, err := c.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return spotifyapi.New(httpClient), nil
}

// classifyError maps Spotify API failures onto the engine's error taxonomy.
// 401/403 mean the grant itself is bad; everything else is transient.
func classifyError(userID, op string, err error) error {
	var apiErr spotifyapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &core.AuthError{UserID: userID, Err: err}
		}
	}
	return &core.UpstreamError{Op: op, Err: err}
}
