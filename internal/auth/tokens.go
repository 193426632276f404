// Package auth resolves valid Spotify bearer tokens per user, refreshing
// expired grants transparently and writing refreshed tokens back to the
// store.
package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"playlog/internal/core"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// expiryMargin forces a refresh slightly before the advertised expiry so
	// a token never dies mid-request.
	expiryMargin = 30 * time.Second
)

// TokenStore is the durable home for per-user OAuth tokens.
type TokenStore interface {
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, token *oauth2.Token) error
}

type Service struct {
	config *oauth2.Config
	store  TokenStore
	logger *zap.Logger
}

func NewService(cfg *core.SpotifyConfig, store TokenStore, logger *zap.Logger) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
			Scopes: []string{
				"user-read-currently-playing",
				"user-read-playback-state",
			},
		},
		store:  store,
		logger: logger,
	}
}

// GetValidToken returns a usable bearer token for the user, refreshing via
// the stored refresh token when the access token is expired or close to it.
// A missing or unrefreshable grant surfaces as *core.AuthError.
func (s *Service) GetValidToken(ctx context.Context, userID string) (string, error) {
	stored, err := s.store.GetToken(ctx, userID)
	if err != nil {
		return "", &core.AuthError{UserID: userID, Err: fmt.Errorf("load token: %w", err)}
	}
	if stored == nil {
		return "", &core.AuthError{UserID: userID, Err: fmt.Errorf("no stored grant")}
	}

	if stored.Valid() && time.Until(stored.Expiry) > expiryMargin {
		return stored.AccessToken, nil
	}

	refreshed, err := s.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return "", &core.AuthError{UserID: userID, Err: fmt.Errorf("refresh: %w", err)}
	}

	if refreshed.AccessToken != stored.AccessToken {
		// Spotify may rotate the refresh token; keep whichever we got.
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = stored.RefreshToken
		}
		if err := s.store.SaveToken(ctx, userID, refreshed); err != nil {
			s.logger.Warn("Failed to persist refreshed token",
				zap.String("userID", userID),
				zap.Error(err))
		} else {
			s.logger.Debug("Refreshed Spotify token",
				zap.String("userID", userID),
				zap.Time("expiry", refreshed.Expiry))
		}
	}

	return refreshed.AccessToken, nil
}

// AuthURL returns the authorization URL a user visits to grant access.
func (s *Service) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func (s *Service) Exchange(ctx context.Context, userID, code string) error {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return &core.AuthError{UserID: userID, Err: fmt.Errorf("exchange: %w", err)}
	}
	return s.store.SaveToken(ctx, userID, token)
}
