// ABOUTME: Per-platform OAuth configuration and token refresh
// ABOUTME: Client settings come from environment variables; refreshed tokens are persisted
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// refreshWindow is how close to expiry a token may get before a request
// triggers a refresh.
const refreshWindow = time.Minute

// OAuthConfig returns the oauth2 client configuration for an OAuth platform.
// API-key platforms have no configuration and get an error.
func OAuthConfig(platform models.Platform) (*oauth2.Config, error) {
	var envPrefix string
	var endpoint oauth2.Endpoint

	switch platform {
	case models.PlatformClio:
		envPrefix = "CLIO"
		endpoint = oauth2.Endpoint{
			AuthURL:  "https://app.clio.com/oauth/authorize",
			TokenURL: "https://app.clio.com/oauth/token",
		}
	case models.PlatformPipedrive:
		envPrefix = "PIPEDRIVE"
		endpoint = oauth2.Endpoint{
			AuthURL:  "https://oauth.pipedrive.com/oauth/authorize",
			TokenURL: "https://oauth.pipedrive.com/oauth/token",
		}
	default:
		return nil, fmt.Errorf("platform %s does not use OAuth", platform)
	}

	// Overridable so self-hosted instances can point at a gateway.
	if u := os.Getenv(envPrefix + "_TOKEN_URL"); u != "" {
		endpoint.TokenURL = u
	}

	clientID := os.Getenv(envPrefix + "_CLIENT_ID")
	clientSecret := os.Getenv(envPrefix + "_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%s OAuth credentials not configured. Set %s_CLIENT_ID and %s_CLIENT_SECRET environment variables",
			platform, envPrefix, envPrefix)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  os.Getenv("OAUTH_REDIRECT_URI"),
		Endpoint:     endpoint,
	}, nil
}

// ExchangeCode trades an authorization code from the connect flow for tokens.
func ExchangeCode(ctx context.Context, platform models.Platform, code string) (*oauth2.Token, error) {
	config, err := OAuthConfig(platform)
	if err != nil {
		return nil, err
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, crmerr.Auth("authorization code rejected").Wrap(err)
	}
	return token, nil
}

// EnsureFresh refreshes the user's access token when it is about to expire
// and persists the new tokens. API-key users pass through untouched.
func EnsureFresh(ctx context.Context, database *sql.DB, user *models.User) error {
	if user.AuthType != models.AuthTypeOAuth || user.TokenExpiry == nil {
		return nil
	}
	if time.Until(*user.TokenExpiry) > refreshWindow {
		return nil
	}
	if user.RefreshToken == "" {
		return crmerr.Auth("access token expired and no refresh token stored")
	}

	config, err := OAuthConfig(user.Platform)
	if err != nil {
		return err
	}

	stale := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       *user.TokenExpiry,
	}
	fresh, err := config.TokenSource(ctx, stale).Token()
	if err != nil {
		return crmerr.Auth("token refresh failed").Wrap(err)
	}

	user.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		user.RefreshToken = fresh.RefreshToken
	}
	expiry := fresh.Expiry
	user.TokenExpiry = &expiry

	if err := db.UpdateUserTokens(database, user.ID, user.Platform, user.AccessToken, user.RefreshToken, user.TokenExpiry); err != nil {
		return fmt.Errorf("persisting refreshed tokens: %w", err)
	}
	return nil
}
